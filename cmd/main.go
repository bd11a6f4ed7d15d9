package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dfusionai/vericore-statement-verifier-agent/config"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/auth"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/chain"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/evaluator"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/gist"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/helpers"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/relay"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/sandbox"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/watchdog"
)

func main() {
	root := &cobra.Command{
		Use:           "vericore-agent",
		Short:         "Vericore statement-verification agent node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			helpers.InitLogger()
		},
	}

	root.AddCommand(newPushCommand(), newPullCommand(), newVerifyCommand(), newValidateCommand())

	if err := root.Execute(); err != nil {
		log.Errorln(err)
		os.Exit(1)
	}
}

func newPushCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "push [path]",
		Short: "Upload agent code, announce it, and commit its locator on chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if settings.WalletSeed == "" {
				return errors.New("WALLET_SEED must be set for push")
			}
			if settings.GithubToken == "" {
				return errors.New("GITHUB_TOKEN must be set for push")
			}

			path := "agents/baseline"
			if len(args) > 0 {
				path = args[0]
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			keypair, err := auth.KeypairFromSeed(settings.WalletSeed)
			if err != nil {
				return err
			}

			files, err := gist.CollectFiles(path)
			if err != nil {
				return err
			}

			store := gist.NewStore(settings.GistAPIURL, settings.GithubToken, settings.DataDir, settings.GistRawTimeout)
			locator, err := store.Upload(ctx, files)
			if err != nil {
				return err
			}

			message := auth.SubmissionMessage(keypair.Address(), locator)
			signature, err := keypair.Sign(message)
			if err != nil {
				return err
			}

			outcome, err := relay.New(settings.VerifierServerURL, 60*time.Second).
				Announce(ctx, keypair.Address(), locator, signature)
			if err != nil {
				return errors.Wrap(err, "announcing submission")
			}
			switch outcome.Kind {
			case relay.OutcomeRateLimited:
				log.Warnln("Acceptance service rate limited the submission; retry later")
				return nil
			case relay.OutcomeRejected:
				return errors.Errorf("submission rejected: %s", outcome.Reason)
			}

			registry := chain.NewRPCRegistry(settings.ChainEndpoint)
			if err := registry.Commit(ctx, settings.NetUID, keypair.Address(), locator, settings.RevealDelayBlocks); err != nil {
				return err
			}

			fmt.Println(locator)
			return nil
		},
	}
}

func newPullCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "pull [uid]",
		Short: "Download a participant's committed payload (or all with --all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if !all && len(args) == 0 {
				return errors.New("provide a uid or --all")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			registry := chain.NewRPCRegistry(settings.ChainEndpoint)
			store := gist.NewStore(settings.GistAPIURL, settings.GithubToken, settings.DataDir, settings.GistRawTimeout)

			var uids []int
			if all {
				members, err := registry.Members(ctx, settings.NetUID)
				if err != nil {
					return err
				}
				for _, m := range members {
					uids = append(uids, m.UID)
				}
			} else {
				uid, err := strconv.Atoi(args[0])
				if err != nil {
					return errors.Errorf("invalid uid: %s", args[0])
				}
				uids = []int{uid}
			}

			for _, uid := range uids {
				dir, err := pullOne(ctx, registry, store, settings.NetUID, uid)
				if err != nil {
					log.Warnf("uid %d: %v", uid, err)
					continue
				}
				fmt.Printf("uid %d: %s\n", uid, dir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "pull every registered participant's payload")
	return cmd
}

func pullOne(ctx context.Context, registry chain.Registry, store *gist.Store, netuid, uid int) (string, error) {
	commitment, err := registry.RevealedCommitment(ctx, netuid, uid)
	if err != nil {
		return "", err
	}
	locator, err := gist.Normalize(commitment.Data)
	if err != nil {
		return "", err
	}
	subdir := fmt.Sprintf("uid%d-block%d", uid, commitment.Block)
	return store.Download(ctx, locator, subdir)
}

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <address> <locator> <signature>",
		Short: "Check a submission tuple: signature over {address}:{locator} plus current membership",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			address, rawLocator, signature := args[0], args[1], args[2]

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			locator, err := gist.Normalize(rawLocator)
			if err != nil {
				return err
			}

			ok, err := auth.Verify(address, auth.SubmissionMessage(address, locator), signature)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("signature does not match address and locator")
			}

			registry := chain.NewRPCRegistry(settings.ChainEndpoint)
			verifier := auth.NewMembershipVerifier(registry, settings.NetUID, settings.MembershipMaxAge)
			if _, err := verifier.VerifyMembership(ctx, address); err != nil {
				return err
			}

			fmt.Println("valid")
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Run the continuous evaluation loop with a watchdog",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}

			// Loop and watchdog share one root context; SIGINT/SIGTERM cancel
			// both as a unit, and teardown paths run on their own deadlines.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, err := sandbox.NewDockerRunner(ctx, sandbox.Config{
				Port:             settings.AgentPort,
				CPUs:             settings.SandboxCPUs,
				Memory:           settings.SandboxMemory,
				ReadinessRetries: settings.ReadinessRetries,
			})
			if err != nil {
				return err
			}

			heldout, err := evaluator.LoadHeldout(settings.HeldoutPath, time.Now().UnixNano())
			if err != nil {
				return err
			}

			validatorAddress := ""
			if settings.WalletSeed != "" {
				keypair, err := auth.KeypairFromSeed(settings.WalletSeed)
				if err != nil {
					return err
				}
				validatorAddress = keypair.Address()
			}

			heartbeat := watchdog.NewHeartbeat()
			wd, wCtx := watchdog.New(ctx, heartbeat, settings.WatchdogTimeout)

			loop := &evaluator.Loop{
				Registry:         chain.NewRPCRegistry(settings.ChainEndpoint),
				Store:            gist.NewStore(settings.GistAPIURL, settings.GithubToken, settings.DataDir, settings.GistRawTimeout),
				Runner:           runner,
				Heldout:          heldout,
				Beat:             heartbeat,
				Reporter:         helpers.InitializeReportingService(settings.ReportingURL, 10*time.Second),
				NetUID:           settings.NetUID,
				Trials:           settings.TrialsPerAgent,
				InvokeTimeout:    settings.InvokeTimeout,
				CycleDelay:       settings.CycleDelay,
				ValidatorAddress: validatorAddress,
			}

			err = loop.Run(wCtx)
			stop()
			wd.Wait()

			if watchdog.IsStall(wCtx) {
				return context.Cause(wCtx)
			}
			if errors.Is(err, context.Canceled) {
				log.Infoln("Shutting down gracefully")
				return nil
			}
			return err
		},
	}
}
