package engagement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/metrics"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInFlight = 256
)

// Tracker runs fire-and-forget work detached from the caller's context.
// When the in-flight limit is reached new work is dropped, never queued.
type Tracker struct {
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

// NewTracker creates a tracker. Zero values select the defaults.
func NewTracker(timeout time.Duration, inFlight int) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if inFlight <= 0 {
		inFlight = DefaultInFlight
	}
	return &Tracker{timeout: timeout, slots: make(chan struct{}, inFlight)}
}

// Go runs fn on its own goroutine with a fresh timeout context. Errors and
// panics are logged and counted.
func (t *Tracker) Go(kind string, fn func(ctx context.Context) error) {
	select {
	case t.slots <- struct{}{}:
	default:
		metrics.TrackingEvents.WithLabelValues(kind, "dropped").Inc()
		logger.Warn("tracking work dropped", "kind", kind)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.slots }()
		defer func() {
			if p := recover(); p != nil {
				metrics.TrackingEvents.WithLabelValues(kind, "error").Inc()
				logger.Error("tracking work panicked", "kind", kind, "panic", fmt.Sprint(p))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			logger.Error("tracking work failed", "kind", kind, "error", err)
		}
	}()
}

// Wait blocks until all started work has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
