package gist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBareIdentifier(t *testing.T) {
	got, err := Normalize("aa5a315d61ae9438b18d")
	require.NoError(t, err)
	assert.Equal(t, "https://gist.github.com/aa5a315d61ae9438b18d", got)
}

func TestNormalizeCanonicalUnchanged(t *testing.T) {
	canonical := "https://gist.github.com/octocat/aa5a315d61ae9438b18d"
	got, err := Normalize(canonical)
	require.NoError(t, err)
	assert.Equal(t, canonical, got)
}

func TestNormalizeIdempotent(t *testing.T) {
	once, err := Normalize("aa5a315d61ae9438b18d")
	require.NoError(t, err)
	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeSchemeless(t *testing.T) {
	got, err := Normalize("gist.github.com/octocat/aa5a315d61ae9438b18d")
	require.NoError(t, err)
	assert.Equal(t, "https://gist.github.com/octocat/aa5a315d61ae9438b18d", got)
}

func TestNormalizeRejectsForeignURL(t *testing.T) {
	_, err := Normalize("https://example.com/not-a-gist")
	assert.Error(t, err)
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	_, err := Normalize("   ")
	assert.Error(t, err)
}

func TestIDFromLocatorForms(t *testing.T) {
	for _, input := range []string{
		"aa5a315d61ae9438b18d",
		"https://gist.github.com/octocat/aa5a315d61ae9438b18d",
		"gist.github.com/octocat/aa5a315d61ae9438b18d",
	} {
		id, err := ID(input)
		require.NoError(t, err, input)
		assert.Equal(t, "aa5a315d61ae9438b18d", id, input)
	}
}
