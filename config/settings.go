package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Settings carries every externally supplied knob for the node. It is loaded
// once at process start and passed explicitly to the components that need it.
type Settings struct {
	ChainEndpoint     string
	NetUID            int
	WalletSeed        string
	GithubToken       string
	GistAPIURL        string
	GistRawTimeout    time.Duration
	VerifierServerURL string
	ReportingURL      string
	DataDir           string
	HeldoutPath       string

	TrialsPerAgent    int
	CycleDelay        time.Duration
	WatchdogTimeout   time.Duration
	RevealDelayBlocks uint64
	MembershipMaxAge  time.Duration

	AgentPort        int
	SandboxCPUs      int64
	SandboxMemory    int64
	ReadinessRetries int
	InvokeTimeout    time.Duration
}

// Load reads settings from the environment. Only CHAIN_ENDPOINT is required
// unconditionally; key material and tokens are validated by the commands that
// actually need them.
func Load() (*Settings, error) {
	s := &Settings{
		ChainEndpoint:     os.Getenv("CHAIN_ENDPOINT"),
		NetUID:            envInt("NETUID", 1),
		WalletSeed:        os.Getenv("WALLET_SEED"),
		GithubToken:       os.Getenv("GITHUB_TOKEN"),
		GistAPIURL:        envString("GIST_API_URL", "https://api.github.com"),
		GistRawTimeout:    envDuration("GIST_RAW_TIMEOUT", 30*time.Second),
		VerifierServerURL: envString("VERIFIER_SERVER_URL", "http://localhost:8000"),
		ReportingURL:      os.Getenv("REPORTING_URL"),
		DataDir:           envString("DATA_DIR", "./data"),
		HeldoutPath:       os.Getenv("HELDOUT_PATH"),

		TrialsPerAgent:    envInt("TRIALS_PER_AGENT", 10),
		CycleDelay:        envDuration("CYCLE_DELAY", 30*time.Second),
		WatchdogTimeout:   envDuration("WATCHDOG_TIMEOUT", 30*time.Minute),
		RevealDelayBlocks: uint64(envInt("REVEAL_DELAY_BLOCKS", 10)),
		MembershipMaxAge:  envDuration("MEMBERSHIP_MAX_AGE", 300*time.Second),

		AgentPort:        envInt("AGENT_PORT", 8080),
		SandboxCPUs:      int64(envInt("SANDBOX_CPUS", 8)),
		SandboxMemory:    int64(envInt("SANDBOX_MEMORY_GB", 32)) << 30,
		ReadinessRetries: envInt("READINESS_RETRIES", 30),
		InvokeTimeout:    envDuration("INVOKE_TIMEOUT", 300*time.Second),
	}

	if s.ChainEndpoint == "" {
		return nil, errors.New("CHAIN_ENDPOINT must be set")
	}
	if s.TrialsPerAgent <= 0 {
		return nil, errors.Errorf("TRIALS_PER_AGENT must be positive, got %d", s.TrialsPerAgent)
	}

	log.Debugln("Loaded settings: chain=", s.ChainEndpoint, " netuid=", s.NetUID,
		" verifier=", s.VerifierServerURL, " trials=", s.TrialsPerAgent)

	return s, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Errorf("Invalid integer for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Errorf("Invalid duration for %s: %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
