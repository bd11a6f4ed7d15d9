package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/chain"
)

type fakeRegistry struct {
	chain.Registry
	members []chain.Member
	err     error
	calls   int
}

func (f *fakeRegistry) Members(ctx context.Context, netuid int) ([]chain.Member, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.members, nil
}

func TestVerifyMembership(t *testing.T) {
	reg := &fakeRegistry{members: []chain.Member{
		{UID: 0, Hotkey: "addr-a"},
		{UID: 1, Hotkey: "addr-b"},
	}}
	v := NewMembershipVerifier(reg, 1, 300*time.Second)

	got, err := v.VerifyMembership(context.Background(), "addr-a")
	require.NoError(t, err)
	assert.Equal(t, "addr-a", got)

	_, err = v.VerifyMembership(context.Background(), "addr-z")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestMembershipRefreshBounded(t *testing.T) {
	reg := &fakeRegistry{members: []chain.Member{{UID: 0, Hotkey: "addr-a"}}}
	v := NewMembershipVerifier(reg, 1, 300*time.Second)

	now := time.Unix(1000, 0)
	v.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, err := v.VerifyMembership(context.Background(), "addr-a")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reg.calls, "list must be fetched at most once per refresh interval")

	// Past the interval, the next check refreshes.
	now = now.Add(301 * time.Second)
	_, err := v.VerifyMembership(context.Background(), "addr-a")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.calls)
}

func TestMembershipStaleListOnRefreshError(t *testing.T) {
	reg := &fakeRegistry{members: []chain.Member{{UID: 0, Hotkey: "addr-a"}}}
	v := NewMembershipVerifier(reg, 1, 300*time.Second)

	now := time.Unix(1000, 0)
	v.now = func() time.Time { return now }

	_, err := v.VerifyMembership(context.Background(), "addr-a")
	require.NoError(t, err)

	// A refresh failure falls back to the cached list.
	reg.err = errors.New("chain hiccup")
	now = now.Add(301 * time.Second)
	_, err = v.VerifyMembership(context.Background(), "addr-a")
	require.NoError(t, err)
}

func TestMembershipInitialFetchError(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("chain down")}
	v := NewMembershipVerifier(reg, 1, 300*time.Second)

	_, err := v.VerifyMembership(context.Background(), "addr-a")
	assert.Error(t, err)
}
