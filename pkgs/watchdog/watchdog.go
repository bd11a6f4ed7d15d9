// Package watchdog monitors liveness of the evaluation loop. If the loop's
// heartbeat stalls beyond the configured timeout, the watchdog cancels the
// root context with a typed stall cause; the process layer interprets that as
// "exit now" so an external supervisor restarts it. Loud failures are handled
// by the loop itself; the watchdog exists only for silent stalls.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// StallError is the cancellation cause recorded when the heartbeat stalls.
type StallError struct {
	Elapsed time.Duration
	Timeout time.Duration
}

func (e StallError) Error() string {
	return fmt.Sprintf("evaluation loop stalled: no heartbeat for %s (timeout %s)", e.Elapsed, e.Timeout)
}

// IsStall reports whether the context was cancelled by the watchdog.
func IsStall(ctx context.Context) bool {
	cause := context.Cause(ctx)
	if cause == nil {
		return false
	}
	var stall StallError
	return errors.As(cause, &stall)
}

// Watchdog checks the heartbeat every timeout/3. A loop that beats at least
// once per check interval is never terminated; a silent loop is terminated
// within one check interval of the deadline passing.
type Watchdog struct {
	hb      *Heartbeat
	timeout time.Duration
	cancel  context.CancelCauseFunc

	wg sync.WaitGroup
}

// New returns a watchdog and a context derived from ctx that is cancelled
// with a StallError cause when the heartbeat stalls.
func New(ctx context.Context, hb *Heartbeat, timeout time.Duration) (*Watchdog, context.Context) {
	wCtx, cancel := context.WithCancelCause(ctx)
	w := &Watchdog{
		hb:      hb,
		timeout: timeout,
		cancel:  cancel,
	}
	w.wg.Add(1)
	go w.run(wCtx)
	return w, wCtx
}

// Wait blocks until the monitoring goroutine stops, which happens when the
// watchdog context is cancelled by any party.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

func (w *Watchdog) run(ctx context.Context) {
	defer w.wg.Done()

	interval := w.timeout / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("Watchdog armed: timeout %s, check interval %s", w.timeout, interval)

	for {
		select {
		case <-ctx.Done():
			removeHealthFile()
			return
		case <-ticker.C:
			elapsed := w.hb.Elapsed()
			if elapsed > w.timeout {
				removeHealthFile()
				log.Errorf("No heartbeat for %s, terminating", elapsed)
				w.cancel(StallError{Elapsed: elapsed, Timeout: w.timeout})
				return
			}
			createHealthFile()
			log.Debugf("Heartbeat ok: last progress %s ago", elapsed)
		}
	}
}
