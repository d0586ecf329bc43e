package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stepfence/StepFence/internal/config"
	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/notify"
	"github.com/stepfence/StepFence/internal/store"
)

type fakeQuerier struct {
	target string
	ok     bool
}

func (f *fakeQuerier) ForegroundApp(ctx context.Context) (string, bool, error) {
	return f.target, f.ok, nil
}

type fakeBlocker struct {
	blocked []string
}

func (f *fakeBlocker) Block(ctx context.Context, target string) error {
	f.blocked = append(f.blocked, target)
	return nil
}

type monitorFixture struct {
	monitor  *Monitor
	store    *store.InMemoryStore
	cfg      *config.Config
	ledger   *ledger.Ledger
	querier  *fakeQuerier
	blocker  *fakeBlocker
	notifier *notify.MockNotifier
	now      time.Time
}

func newFixture(t *testing.T) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		store:    store.NewInMemoryStore(),
		querier:  &fakeQuerier{},
		blocker:  &fakeBlocker{},
		notifier: notify.NewMockNotifier(),
		now:      time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	f.cfg = config.New(f.store)
	f.ledger = ledger.New(f.store)
	f.ledger.SetNowFunc(func() time.Time { return f.now })
	f.monitor = New(f.cfg, f.ledger, f.querier, f.blocker, f.notifier, "com.stepfence.app", "com.android.launcher")
	f.monitor.SetNowFunc(func() time.Time { return f.now })

	if err := f.cfg.SetSetupComplete(true); err != nil {
		t.Fatalf("failed to complete setup: %v", err)
	}
	return f
}

func (f *monitorFixture) setGrant(target string, expiresIn time.Duration) {
	f.store.SetInt64(store.UnlockKey(target), f.now.Add(expiresIn).UnixMilli())
}

func (f *monitorFixture) tick(t *testing.T) {
	t.Helper()
	if err := f.monitor.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
}

func TestTickBlocksExpiredTarget(t *testing.T) {
	f := newFixture(t)
	f.querier.target, f.querier.ok = "com.example.game", true

	f.tick(t)

	if len(f.blocker.blocked) != 1 || f.blocker.blocked[0] != "com.example.game" {
		t.Errorf("expected block of com.example.game, got %v", f.blocker.blocked)
	}
}

func TestTickAllowsActiveGrant(t *testing.T) {
	f := newFixture(t)
	f.querier.target, f.querier.ok = "com.example.game", true
	f.setGrant("com.example.game", 10*time.Minute)

	f.tick(t)

	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no block, got %v", f.blocker.blocked)
	}
	if len(f.notifier.Sent()) != 0 {
		t.Errorf("expected no warning outside the window, got %v", f.notifier.Sent())
	}
}

func TestWarningFiresOncePerGrantWindow(t *testing.T) {
	f := newFixture(t)
	f.querier.target, f.querier.ok = "com.example.game", true
	f.setGrant("com.example.game", 45*time.Second)

	// Remaining decreases through the window across several ticks.
	for i := 0; i < 5; i++ {
		f.tick(t)
		f.now = f.now.Add(5 * time.Second)
	}

	if got := len(f.notifier.Sent()); got != 1 {
		t.Errorf("expected exactly one warning, got %d", got)
	}
	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no block while grant active, got %v", f.blocker.blocked)
	}
}

func TestWarningReArmsAfterBlockAndRepurchase(t *testing.T) {
	f := newFixture(t)
	f.querier.target, f.querier.ok = "com.example.game", true
	f.setGrant("com.example.game", 30*time.Second)

	f.tick(t) // warns
	if got := len(f.notifier.Sent()); got != 1 {
		t.Fatalf("expected one warning, got %d", got)
	}

	f.now = f.now.Add(time.Minute) // grant expired
	f.tick(t)                      // blocks, clears warned flag
	if len(f.blocker.blocked) != 1 {
		t.Fatalf("expected one block, got %d", len(f.blocker.blocked))
	}

	// New purchase puts the target back in the warning window.
	f.setGrant("com.example.game", 30*time.Second)
	f.tick(t)

	warnings := 0
	for _, n := range f.notifier.Sent() {
		if n.Title == "Time almost up" {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("expected warning to re-arm after block, got %d warnings", warnings)
	}
}

func TestWhitelistedTargetNeverBlocked(t *testing.T) {
	f := newFixture(t)
	f.querier.target, f.querier.ok = "com.example.mail", true
	if _, err := f.cfg.ToggleWhitelist("com.example.mail"); err != nil {
		t.Fatalf("failed to whitelist: %v", err)
	}

	f.tick(t)

	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no block for whitelisted target, got %v", f.blocker.blocked)
	}
}

func TestSystemSafeTargetSkipped(t *testing.T) {
	f := newFixture(t)
	f.querier.target, f.querier.ok = "com.android.settings", true

	f.tick(t)

	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no block for system-safe target, got %v", f.blocker.blocked)
	}
}

func TestSelfAndLauncherSkipped(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"com.stepfence.app", "com.android.launcher"} {
		f.querier.target, f.querier.ok = target, true
		f.tick(t)
	}
	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no block for self/launcher, got %v", f.blocker.blocked)
	}
}

func TestNoForegroundDataSkipsTick(t *testing.T) {
	f := newFixture(t)
	f.querier.ok = false

	f.tick(t)

	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no block without foreground evidence, got %v", f.blocker.blocked)
	}
}

func TestSetupIncompleteDisablesEnforcement(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.SetSetupComplete(false); err != nil {
		t.Fatalf("failed to reset setup: %v", err)
	}
	f.querier.target, f.querier.ok = "com.example.game", true

	f.tick(t)

	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no enforcement during onboarding, got %v", f.blocker.blocked)
	}
}

func TestProtectionDisabledShortCircuits(t *testing.T) {
	f := newFixture(t)
	if err := f.cfg.SetProtectionEnabled(false); err != nil {
		t.Fatalf("failed to disable protection: %v", err)
	}
	f.querier.target, f.querier.ok = "com.example.game", true

	f.tick(t)

	if len(f.blocker.blocked) != 0 {
		t.Errorf("expected no enforcement while protection disabled, got %v", f.blocker.blocked)
	}
}

func TestReportedQuerierTrailingWindow(t *testing.T) {
	q := NewReportedQuerier(5 * time.Second)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	q.SetNowFunc(func() time.Time { return now })

	if _, ok, _ := q.ForegroundApp(context.Background()); ok {
		t.Error("expected no data before any report")
	}

	q.Report("com.example.game")
	target, ok, _ := q.ForegroundApp(context.Background())
	if !ok || target != "com.example.game" {
		t.Errorf("expected fresh report to be visible, got %q ok=%v", target, ok)
	}

	now = now.Add(10 * time.Second)
	if _, ok, _ := q.ForegroundApp(context.Background()); ok {
		t.Error("expected stale report to read as no data")
	}
}
