package evaluator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/chain"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/gist"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/helpers"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/sandbox"
	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/watchdog"
)

// PayloadStore is the slice of the gist store the loop needs.
type PayloadStore interface {
	Download(ctx context.Context, locator, subdir string) (string, error)
}

// Loop runs the continuous evaluation cycle: refresh membership, pull and
// score every identity sequentially, submit the full score vector, sleep,
// repeat. Identities are processed one at a time: sandboxes carry hard
// CPU/memory ceilings and must not run concurrently beyond the host's
// declared capacity.
type Loop struct {
	Registry chain.Registry
	Store    PayloadStore
	Runner   sandbox.Runner
	Heldout  *HeldoutSet
	Beat     *watchdog.Heartbeat
	Reporter *helpers.ReportingService

	NetUID           int
	Trials           int
	InvokeTimeout    time.Duration
	CycleDelay       time.Duration
	ValidatorAddress string
}

// Run executes cycles until the context is cancelled. Chain unavailability is
// fatal and propagates; every other cycle-level failure is logged and the
// loop proceeds to the next cycle after CycleDelay.
func (l *Loop) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Infof("Starting evaluation cycle %d", cycle)
		if err := l.runCycle(ctx, cycle); err != nil {
			if errors.Is(err, chain.ErrChainUnavailable) {
				// No evaluation can proceed without chain state; exit rather
				// than continue with stale results.
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorln("Cycle failed: ", err)
			l.Reporter.SendFailureNotification(l.ValidatorAddress, "CYCLE_FAILURE", -1, err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.CycleDelay):
		}
	}
}

// runCycle never lets an unexpected panic escape: it is logged with its stack
// and reported as a cycle-level error.
func (l *Loop) runCycle(ctx context.Context, cycle int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Cycle %d panicked: %v\n%s", cycle, r, debug.Stack())
			err = errors.Errorf("cycle panicked: %v", r)
		}
	}()

	members, err := l.Registry.Members(ctx, l.NetUID)
	if err != nil {
		return errors.Wrap(err, "refreshing membership")
	}
	if len(members) == 0 {
		log.Warnln("No registered members, skipping cycle")
		return nil
	}

	// Every known identity appears in the vector; failures score zero rather
	// than being omitted.
	uids := make([]int, 0, len(members))
	weights := make([]float64, 0, len(members))
	for _, m := range members {
		l.Beat.Beat()
		score := l.evaluateUID(ctx, m.UID)
		uids = append(uids, m.UID)
		weights = append(weights, score)
		log.Infof("uid %d scored %.3f", m.UID, score)
	}

	if err := l.Registry.SubmitWeights(ctx, l.NetUID, uids, weights); err != nil {
		// Best-effort: the next cycle submits a fresh vector.
		log.Errorln("Weight submission failed: ", err)
		l.Reporter.SendFailureNotification(l.ValidatorAddress, "WEIGHT_SUBMISSION_FAILURE", -1, err.Error())
		return nil
	}

	log.Infof("Cycle %d complete: submitted %d weights", cycle, len(weights))
	return nil
}

// evaluateUID scores one identity. Pull, build, and start failures all score
// zero and never abort the cycle.
func (l *Loop) evaluateUID(ctx context.Context, uid int) float64 {
	commitment, err := l.Registry.RevealedCommitment(ctx, l.NetUID, uid)
	if err != nil {
		if errors.Is(err, chain.ErrNoCommitment) {
			log.Debugf("uid %d has no revealed commitment", uid)
		} else {
			log.Warnf("uid %d: commitment lookup failed: %v", uid, err)
		}
		return 0
	}

	locator, err := gist.Normalize(commitment.Data)
	if err != nil {
		log.Warnf("uid %d: unusable commitment payload: %v", uid, err)
		return 0
	}

	// Keyed by (uid, reveal block) so historical pulls stay distinct and a
	// re-evaluation of an older revision never clobbers a newer one.
	subdir := fmt.Sprintf("uid%d-block%d", uid, commitment.Block)
	payloadDir, err := l.Store.Download(ctx, locator, subdir)
	if err != nil {
		log.Warnf("uid %d: payload pull failed: %v", uid, err)
		l.Reporter.SendFailureNotification(l.ValidatorAddress, "PAYLOAD_PULL_FAILURE", uid, err.Error())
		return 0
	}

	inst, err := l.Runner.Start(ctx, payloadDir, uid)
	if err != nil {
		log.Warnf("uid %d: sandbox start failed: %v", uid, err)
		l.Reporter.SendFailureNotification(l.ValidatorAddress, "SANDBOX_FAILURE", uid, err.Error())
		return 0
	}
	defer inst.Teardown()

	return l.runTrials(ctx, uid, inst)
}

// runTrials draws the configured number of statements and returns
// correct/total. An invocation failure or malformed verdict counts as an
// incorrect trial, not an excluded one: the denominator stays constant and an
// unreliable agent is penalized identically to a wrong one.
func (l *Loop) runTrials(ctx context.Context, uid int, inst sandbox.Instance) float64 {
	correct := 0
	for i := 0; i < l.Trials; i++ {
		stmt := l.Heldout.Sample()
		statementID := uuid.New().String()

		verdict, err := inst.Invoke(ctx, stmt.Text, statementID, l.InvokeTimeout)
		if err != nil {
			log.Debugf("uid %d trial %d: invocation failed: %v", uid, i+1, err)
			continue
		}
		if verdict.OverallVerdict == stmt.Expected {
			correct++
		}
	}
	return float64(correct) / float64(l.Trials)
}
