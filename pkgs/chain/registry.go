package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Registry is the commit-reveal registry surface the rest of the node
// consumes. The chain's own internals stay behind this boundary.
type Registry interface {
	// Members returns the currently registered identities in uid order. The
	// order is stable within one evaluation cycle and defines iteration order.
	Members(ctx context.Context, netuid int) ([]Member, error)

	// RevealedCommitment returns the earliest unconsumed reveal for the uid,
	// or ErrNoCommitment when nothing has been revealed for the current window.
	RevealedCommitment(ctx context.Context, netuid, uid int) (Commitment, error)

	// Commit publishes a pending commitment that becomes visible after
	// revealDelayBlocks. A connection failure surfaces as ErrChainUnavailable.
	Commit(ctx context.Context, netuid int, address, payload string, revealDelayBlocks uint64) error

	// SubmitWeights writes the score vector. Best-effort: it does not wait for
	// finalization and is never retried internally.
	SubmitWeights(ctx context.Context, netuid int, uids []int, weights []float64) error
}

// RPCRegistry talks JSON-RPC 2.0 to a chain endpoint. The connection is
// established lazily and at most once per process; a second caller observing
// an in-progress connect waits on the mutex rather than dialing again.
type RPCRegistry struct {
	endpoint      string
	client        *http.Client
	connectWindow time.Duration

	mu        sync.Mutex
	connected bool

	nextID atomic.Uint64
}

var _ Registry = (*RPCRegistry)(nil)

func NewRPCRegistry(endpoint string) *RPCRegistry {
	return &RPCRegistry{
		endpoint:      endpoint,
		client:        &http.Client{Timeout: 30 * time.Second},
		connectWindow: 30 * time.Second,
	}
}

// ensureConnected probes the endpoint once, with exponential backoff over a
// bounded window. Failure is terminal for the process: the caller is expected
// to exit rather than continue with stale state.
func (r *RPCRegistry) ensureConnected(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return nil
	}

	operation := func() error {
		var health struct {
			Peers int `json:"peers"`
		}
		if err := r.call(ctx, "system_health", nil, &health); err != nil {
			log.Warnf("Chain health check failed: %v. Retrying...", err)
			return err
		}
		return nil
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.MaxElapsedTime = r.connectWindow

	if err := backoff.Retry(operation, backoff.WithContext(backOff, ctx)); err != nil {
		return errors.Wrapf(ErrChainUnavailable, "connecting to %s: %v", r.endpoint, err)
	}

	log.Infoln("Connected to chain endpoint: ", r.endpoint)
	r.connected = true
	return nil
}

func (r *RPCRegistry) Members(ctx context.Context, netuid int) ([]Member, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return nil, err
	}

	var members []Member
	if err := r.call(ctx, "subnet_members", []interface{}{netuid}, &members); err != nil {
		return nil, errors.Wrap(err, "fetching subnet members")
	}
	log.Debugf("Fetched %d members for netuid %d", len(members), netuid)
	return members, nil
}

func (r *RPCRegistry) RevealedCommitment(ctx context.Context, netuid, uid int) (Commitment, error) {
	if err := r.ensureConnected(ctx); err != nil {
		return Commitment{}, err
	}

	var result *Commitment
	if err := r.call(ctx, "commitments_revealed", []interface{}{netuid, uid}, &result); err != nil {
		return Commitment{}, errors.Wrapf(err, "fetching revealed commitment for uid %d", uid)
	}
	if result == nil || result.Data == "" {
		return Commitment{}, errors.Wrapf(ErrNoCommitment, "uid %d", uid)
	}
	return *result, nil
}

func (r *RPCRegistry) Commit(ctx context.Context, netuid int, address, payload string, revealDelayBlocks uint64) error {
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}

	var accepted bool
	params := []interface{}{netuid, address, payload, revealDelayBlocks}
	if err := r.call(ctx, "commitments_set", params, &accepted); err != nil {
		return errors.Wrap(err, "publishing commitment")
	}
	if !accepted {
		return errors.New("chain rejected commitment")
	}
	log.Infof("Committed payload for %s, revealed after %d blocks", address, revealDelayBlocks)
	return nil
}

func (r *RPCRegistry) SubmitWeights(ctx context.Context, netuid int, uids []int, weights []float64) error {
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}
	if len(uids) != len(weights) {
		return errors.Errorf("uid/weight length mismatch: %d != %d", len(uids), len(weights))
	}

	var accepted bool
	params := []interface{}{netuid, uids, weights}
	if err := r.call(ctx, "weights_set", params, &accepted); err != nil {
		return errors.Wrap(err, "submitting weights")
	}
	if !accepted {
		return errors.New("chain rejected weights")
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (r *RPCRegistry) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      r.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d from chain: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return errors.Wrap(err, "decoding rpc response")
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result != nil && len(decoded.Result) > 0 {
		return json.Unmarshal(decoded.Result, result)
	}
	return nil
}
