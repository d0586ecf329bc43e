// Package countdown implements the countdown aggregator: an independent
// one-second loop that renders a live status for every active unlock grant.
//
// The aggregator stops itself on the first tick at which no grant is active
// and is restarted externally after every successful purchase, so its
// lifecycle is exactly "as long as something is unlocked". It reads the
// unlock ledger only and shares no state with the foreground monitor.
package countdown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/models"
)

// DefaultInterval is the aggregation cadence.
const DefaultInterval = time.Second

// Sink receives the rendered grant statuses each tick. The countdown UI
// collaborator implements this.
type Sink interface {
	Update(grants []models.GrantStatus)
}

// LogSink writes countdown lines to the structured log. Default sink when no
// UI collaborator is attached.
type LogSink struct{}

func (LogSink) Update(grants []models.GrantStatus) {
	for _, g := range grants {
		slog.Debug("countdown", "status", g.Render())
	}
}

// Aggregator is the self-terminating countdown loop.
type Aggregator struct {
	ledger   *ledger.Ledger
	sink     Sink
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates an Aggregator.
func New(led *ledger.Ledger, sink Sink) *Aggregator {
	if sink == nil {
		sink = LogSink{}
	}
	return &Aggregator{ledger: led, sink: sink, interval: DefaultInterval}
}

// SetInterval overrides the tick cadence. Intended for tests.
func (a *Aggregator) SetInterval(d time.Duration) {
	a.interval = d
}

// Start launches the aggregation loop. Starting while already running is a
// no-op, so purchase handlers can call it unconditionally.
func (a *Aggregator) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		slog.Debug("Aggregator.Start: already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancel = cancel
	slog.Info("Aggregator.Start: countdown loop started", "interval", a.interval)
	go a.loop(loopCtx)
}

// Stop cancels the loop if it is running.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running && a.cancel != nil {
		a.cancel()
	}
}

// Running reports whether the loop is active.
func (a *Aggregator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Aggregator) loop(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	defer a.markStopped()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Aggregator.loop: cancelled")
			return
		case <-ticker.C:
			if !a.Tick() {
				slog.Info("Aggregator.loop: no active grants, terminating")
				return
			}
		}
	}
}

// Tick performs one aggregation pass. It returns false when the active set
// is empty, which terminates the loop.
func (a *Aggregator) Tick() bool {
	grants, err := a.ledger.ActiveGrants()
	if err != nil {
		// Keep running on transient store errors; termination is only for
		// an empty active set.
		slog.Warn("Aggregator.Tick: failed to read grants", "error", err)
		return true
	}
	if len(grants) == 0 {
		return false
	}
	a.sink.Update(grants)
	return true
}

func (a *Aggregator) markStopped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.cancel = nil
}
