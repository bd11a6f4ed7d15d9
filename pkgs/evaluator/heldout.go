package evaluator

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/sandbox"
)

// Statement is one held-out trial: the text handed to the agent and the
// verdict it is expected to return.
type Statement struct {
	Text     string `json:"statement"`
	Expected string `json:"expected_verdict"`
}

// HeldoutSet is the statement pool trials are drawn from, uniformly at random
// with replacement.
type HeldoutSet struct {
	statements []Statement
	rng        *rand.Rand
}

// LoadHeldout reads the held-out set from a JSON file, or falls back to the
// built-in set when path is empty.
func LoadHeldout(path string, seed int64) (*HeldoutSet, error) {
	statements := defaultStatements
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading held-out set")
		}
		var loaded []Statement
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, errors.Wrap(err, "parsing held-out set")
		}
		if len(loaded) == 0 {
			return nil, errors.New("held-out set is empty")
		}
		statements = loaded
	}

	for _, s := range statements {
		switch s.Expected {
		case sandbox.VerdictCorroborates, sandbox.VerdictRefutes, sandbox.VerdictNeutral:
		default:
			return nil, errors.Errorf("held-out statement %q has unknown expected verdict %q", s.Text, s.Expected)
		}
	}

	log.Infof("Loaded held-out set with %d statements", len(statements))
	return &HeldoutSet{
		statements: statements,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Sample draws one statement, uniform with replacement.
func (h *HeldoutSet) Sample() Statement {
	return h.statements[h.rng.Intn(len(h.statements))]
}

func (h *HeldoutSet) Len() int {
	return len(h.statements)
}

var defaultStatements = []Statement{
	{Text: "The capital of France is Paris", Expected: sandbox.VerdictCorroborates},
	{Text: "Water freezes at 0 degrees Celsius", Expected: sandbox.VerdictCorroborates},
	{Text: "Python is a programming language", Expected: sandbox.VerdictCorroborates},
	{Text: "Gravity exists", Expected: sandbox.VerdictCorroborates},
	{Text: "1 + 1 = 2", Expected: sandbox.VerdictCorroborates},
	{Text: "The Earth is flat", Expected: sandbox.VerdictRefutes},
	{Text: "2 + 2 = 5", Expected: sandbox.VerdictRefutes},
	{Text: "The Sun orbits the Earth", Expected: sandbox.VerdictRefutes},
	{Text: "1 + 1 = 3", Expected: sandbox.VerdictRefutes},
	{Text: "The sky is blue", Expected: sandbox.VerdictNeutral},
}
