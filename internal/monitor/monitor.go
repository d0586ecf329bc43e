// Package monitor implements the foreground enforcement loop: poll the
// foreground-application signal once per second, warn shortly before a grant
// expires, and block targets with no valid grant.
//
// The per-target "warned" flags live in memory and are owned exclusively by
// this loop; nothing else reads or writes them. A flag is set when the
// warning fires and cleared only when the target transitions into block, so
// a later purchase re-arms the warning.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepfence/StepFence/internal/config"
	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/notify"
)

// DefaultPollInterval is the enforcement tick cadence.
const DefaultPollInterval = time.Second

// ForegroundQuerier is the OS collaborator reporting the most-recently-used
// application over a bounded trailing window. ok is false when no data is
// available for this tick (the tick is then skipped: blocking requires
// positive evidence).
type ForegroundQuerier interface {
	ForegroundApp(ctx context.Context) (target string, ok bool, err error)
}

// Blocker is the enforcement surface collaborator: it redirects the user to
// the lock screen for the given target.
type Blocker interface {
	Block(ctx context.Context, target string) error
}

// Monitor runs the enforcement loop.
type Monitor struct {
	cfg      *config.Config
	ledger   *ledger.Ledger
	querier  ForegroundQuerier
	blocker  Blocker
	notifier notify.Notifier

	selfID     string
	launcherID string
	interval   time.Duration

	// warned tracks which targets were warned in the current grant window.
	// Owned solely by the monitor loop.
	warned map[string]bool

	now func() time.Time
}

// New creates a Monitor. selfID is the engine's own identifier and
// launcherID the active home screen; both are always exempt.
func New(cfg *config.Config, led *ledger.Ledger, querier ForegroundQuerier, blocker Blocker, notifier notify.Notifier, selfID, launcherID string) *Monitor {
	return &Monitor{
		cfg:        cfg,
		ledger:     led,
		querier:    querier,
		blocker:    blocker,
		notifier:   notifier,
		selfID:     selfID,
		launcherID: launcherID,
		interval:   DefaultPollInterval,
		warned:     make(map[string]bool),
		now:        time.Now,
	}
}

// SetInterval overrides the poll cadence. Intended for tests.
func (m *Monitor) SetInterval(d time.Duration) {
	m.interval = d
}

// SetNowFunc overrides the clock. Intended for tests.
func (m *Monitor) SetNowFunc(now func() time.Time) {
	m.now = now
}

// Run executes the enforcement loop until the context is cancelled.
// Cancellation is first-class: disabling protection in settings stops the
// loop's effects immediately via the per-tick check, and the hosting process
// can stop the loop entirely through ctx.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("Monitor.Run: starting foreground monitor", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Monitor.Run: stopping")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				slog.Warn("Monitor.Run: tick skipped", "error", err)
			}
		}
	}
}

// Tick performs one enforcement evaluation. Errors mean the tick was skipped,
// never that enforcement failed fatally.
func (m *Monitor) Tick(ctx context.Context) error {
	setupDone, err := m.cfg.SetupComplete()
	if err != nil {
		return fmt.Errorf("failed to read setup flag: %w", err)
	}
	if !setupDone {
		return nil
	}
	protection, err := m.cfg.ProtectionEnabled()
	if err != nil {
		return fmt.Errorf("failed to read protection flag: %w", err)
	}
	if !protection {
		return nil
	}

	target, ok, err := m.querier.ForegroundApp(ctx)
	if err != nil {
		return fmt.Errorf("foreground query failed: %w", err)
	}
	if !ok || target == "" {
		// Unknown is not blocked; skip the tick.
		return nil
	}

	if target == m.selfID || target == m.launcherID || config.IsSystemSafe(target) {
		return nil
	}

	remaining, err := m.ledger.RemainingMillis(target)
	if err != nil {
		return fmt.Errorf("failed to read unlock grant: %w", err)
	}

	warnMillis := models.WarnWindow.Milliseconds()
	if remaining > 0 && remaining <= warnMillis && !m.warned[target] {
		m.warned[target] = true
		slog.Info("Monitor.Tick: expiry warning", "target", target, "remaining_ms", remaining)
		n := models.Notification{
			Title:    "Time almost up",
			Body:     fmt.Sprintf("%s locks again in less than a minute.", target),
			Priority: models.PriorityDefault,
		}
		if err := m.notifier.Send(ctx, n); err != nil {
			slog.Warn("Monitor.Tick: warning notification failed", "error", err)
		}
	}

	if remaining <= 0 {
		whitelisted, err := m.cfg.IsWhitelisted(target)
		if err != nil {
			return fmt.Errorf("failed to read whitelist: %w", err)
		}
		if whitelisted {
			return nil
		}
		// Clear the warned flag so the next purchase re-arms the warning.
		delete(m.warned, target)
		slog.Info("Monitor.Tick: blocking target", "target", target)
		if err := m.blocker.Block(ctx, target); err != nil {
			slog.Error("Monitor.Tick: block action failed", "target", target, "error", err)
		}
	}
	return nil
}
