package watchdog

import (
	"sync/atomic"
	"time"
)

// Heartbeat is a process-wide clock of forward progress. The evaluation loop
// beats it at every progress point; the watchdog reads the elapsed time since
// the last beat. The clock starts at construction, so process start counts as
// the first beat.
type Heartbeat struct {
	last atomic.Int64
}

func NewHeartbeat() *Heartbeat {
	h := &Heartbeat{}
	h.Beat()
	return h
}

func (h *Heartbeat) Beat() {
	h.last.Store(time.Now().UnixNano())
}

func (h *Heartbeat) Elapsed() time.Duration {
	return time.Duration(time.Now().UnixNano() - h.last.Load())
}
