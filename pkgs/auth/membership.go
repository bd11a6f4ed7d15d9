package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dfusionai/vericore-statement-verifier-agent/pkgs/chain"
)

// ErrUnauthorized marks an address that is not a registered member.
var ErrUnauthorized = errors.New("address is not a registered member")

// MembershipVerifier answers whether an address is currently registered on the
// subnet. The membership list is refreshed from the chain at most once per
// maxAge to bound chain load, so authorization decisions may lag true
// membership by up to that interval.
type MembershipVerifier struct {
	registry chain.Registry
	netuid   int
	maxAge   time.Duration
	now      func() time.Time

	mu          sync.Mutex
	members     map[string]struct{}
	refreshedAt time.Time
}

func NewMembershipVerifier(registry chain.Registry, netuid int, maxAge time.Duration) *MembershipVerifier {
	return &MembershipVerifier{
		registry: registry,
		netuid:   netuid,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// VerifyMembership returns the address unchanged when it is a registered
// member, or ErrUnauthorized otherwise.
func (v *MembershipVerifier) VerifyMembership(ctx context.Context, address string) (string, error) {
	members, err := v.currentMembers(ctx)
	if err != nil {
		return "", err
	}
	if _, ok := members[address]; !ok {
		return "", errors.Wrap(ErrUnauthorized, address)
	}
	return address, nil
}

func (v *MembershipVerifier) currentMembers(ctx context.Context) (map[string]struct{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.members != nil && v.now().Sub(v.refreshedAt) < v.maxAge {
		return v.members, nil
	}

	fetched, err := v.registry.Members(ctx, v.netuid)
	if err != nil {
		if v.members != nil {
			// Keep serving the stale list rather than failing authorization
			// on a transient chain error; it is at most maxAge old.
			log.Warnln("Membership refresh failed, using cached list: ", err)
			return v.members, nil
		}
		return nil, errors.Wrap(err, "loading membership list")
	}

	members := make(map[string]struct{}, len(fetched))
	for _, m := range fetched {
		members[m.Hotkey] = struct{}{}
	}
	v.members = members
	v.refreshedAt = v.now()
	log.Debugf("Refreshed membership list: %d members", len(members))
	return v.members, nil
}
