package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/notify"
)

// DefaultForegroundMaxAge bounds the trailing window of the reported
// foreground signal: older reports count as "no data".
const DefaultForegroundMaxAge = 5 * time.Second

// ReportedQuerier is a ForegroundQuerier fed by an external reporter (the
// platform agent POSTs the current foreground application to the engine).
// Reports expire after maxAge so a stalled reporter reads as unknown rather
// than as the last seen application.
type ReportedQuerier struct {
	mu         sync.RWMutex
	target     string
	reportedAt time.Time
	maxAge     time.Duration
	now        func() time.Time
}

// NewReportedQuerier creates a ReportedQuerier with the given trailing window.
func NewReportedQuerier(maxAge time.Duration) *ReportedQuerier {
	if maxAge <= 0 {
		maxAge = DefaultForegroundMaxAge
	}
	return &ReportedQuerier{maxAge: maxAge, now: time.Now}
}

// SetNowFunc overrides the clock. Intended for tests.
func (q *ReportedQuerier) SetNowFunc(now func() time.Time) {
	q.now = now
}

// Report records the currently foregrounded application.
func (q *ReportedQuerier) Report(target string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.target = target
	q.reportedAt = q.now()
	slog.Debug("ReportedQuerier.Report", "target", target)
}

// ForegroundApp returns the last reported application if it is within the
// trailing window.
func (q *ReportedQuerier) ForegroundApp(ctx context.Context) (string, bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.target == "" || q.now().Sub(q.reportedAt) > q.maxAge {
		return "", false, nil
	}
	return q.target, true, nil
}

// NotifierBlocker is the default enforcement surface: it emits a
// high-priority block notification that the lock screen collaborator
// consumes, carrying the blocked target's identifier.
type NotifierBlocker struct {
	notifier notify.Notifier
}

// NewNotifierBlocker creates a NotifierBlocker.
func NewNotifierBlocker(notifier notify.Notifier) *NotifierBlocker {
	return &NotifierBlocker{notifier: notifier}
}

func (b *NotifierBlocker) Block(ctx context.Context, target string) error {
	n := models.Notification{
		Title:    "Blocked",
		Body:     fmt.Sprintf("Time is up for %s. Earn more diamonds to unlock it again.", target),
		Priority: models.PriorityHigh,
	}
	if err := b.notifier.Send(ctx, n); err != nil {
		return fmt.Errorf("failed to deliver block event for %s: %w", target, err)
	}
	return nil
}
