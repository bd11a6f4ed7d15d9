package chain

import "github.com/pkg/errors"

// Member is one registered identity on a subnet: a stable uid plus the
// hotkey address that signs on its behalf.
type Member struct {
	UID    int    `json:"uid"`
	Hotkey string `json:"hotkey"`
}

// Commitment is a revealed commit-reveal slot: the block the commitment was
// made at and the opaque payload string that was revealed.
type Commitment struct {
	Block uint64 `json:"block"`
	Data  string `json:"data"`
}

var (
	// ErrNoCommitment is returned when nothing has been revealed yet for a
	// given identity and reveal window.
	ErrNoCommitment = errors.New("no revealed commitment")

	// ErrChainUnavailable is returned when a connection to the chain cannot
	// be established. Callers treat this as fatal: no evaluation or commit can
	// proceed without chain state.
	ErrChainUnavailable = errors.New("chain unavailable")
)
