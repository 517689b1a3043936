// Package metrics keeps process-wide counters and reports them as JSON.
package metrics

import (
	"context"
	"io"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Counter names.
const (
	SessionsOpen     = "sessions.open"
	SessionsTotal    = "sessions.total"
	FramesRecv       = "frames.recv"
	FramesSent       = "frames.sent"
	RepliesEnqueued  = "replies.enqueued"
	BroadcastDropped = "broadcast.dropped"
	KeysPublished    = "keys.published"
)

// Metrics wraps a go-metrics registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	log  io.Writer
	reg  gometrics.Registry
	tick time.Duration

	// mu keeps a periodic report from interleaving with the final one.
	mu sync.Mutex
}

// New creates a Metrics with its own registry, reporting to w every tick.
func New(w io.Writer, tick time.Duration) *Metrics {
	return &Metrics{
		log:  w,
		reg:  gometrics.NewRegistry(),
		tick: tick,
	}
}

// Incr adds i to the named counter.
func (m *Metrics) Incr(name string, i int64) {
	if m == nil {
		return
	}
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

// Decr subtracts i from the named counter.
func (m *Metrics) Decr(name string, i int64) {
	if m == nil {
		return
	}
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

// Count returns the current value of the named counter.
func (m *Metrics) Count(name string) int64 {
	if m == nil {
		return 0
	}
	return gometrics.GetOrRegisterCounter(name, m.reg).Count()
}

// Start writes a JSON report every tick until ctx is done. A non-positive tick
// disables periodic reports. The final report is the caller's WriteOnce.
func (m *Metrics) Start(ctx context.Context) {
	if m == nil || m.tick <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.WriteOnce()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// WriteOnce writes the current registry as JSON.
func (m *Metrics) WriteOnce() {
	if m == nil || m.log == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gometrics.WriteJSONOnce(m.reg, m.log)
}
