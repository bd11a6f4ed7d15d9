package evaluator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/sandbox"
)

func TestLoadHeldoutBuiltinSet(t *testing.T) {
	set, err := LoadHeldout("", 1)
	require.NoError(t, err)
	assert.Equal(t, len(defaultStatements), set.Len())
}

func TestLoadHeldoutFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heldout.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"statement": "Go compiles to native code", "expected_verdict": "corroborates"},
		{"statement": "The Moon is made of cheese", "expected_verdict": "refutes"}
	]`), 0644))

	set, err := LoadHeldout(path, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	stmt := set.Sample()
	assert.Contains(t, []string{sandbox.VerdictCorroborates, sandbox.VerdictRefutes}, stmt.Expected)
}

func TestLoadHeldoutRejectsUnknownVerdict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heldout.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"statement": "x", "expected_verdict": "maybe"}
	]`), 0644))

	_, err := LoadHeldout(path, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maybe")
}

func TestLoadHeldoutRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heldout.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0644))

	_, err := LoadHeldout(path, 1)
	assert.Error(t, err)
}

func TestSampleIsDeterministicForSeed(t *testing.T) {
	a, err := LoadHeldout("", 42)
	require.NoError(t, err)
	b, err := LoadHeldout("", 42)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Sample(), b.Sample())
	}
}
