package models

import "time"

// Timer abstracts one-shot scheduled execution so that wake triggers can be
// started, cancelled and inspected explicitly instead of via ad-hoc sleeps.
type Timer interface {
	// ScheduleAfter schedules fn to run once after delay. Returns a timer ID.
	ScheduleAfter(delay time.Duration, fn func()) (string, error)

	// ScheduleAt schedules fn to run once at the given time. A time in the
	// past executes fn immediately.
	ScheduleAt(when time.Time, fn func()) (string, error)

	// Cancel cancels a scheduled timer by ID. Cancelling an unknown ID is a no-op.
	Cancel(id string) error

	// Stop cancels all scheduled timers.
	Stop()

	// ListActive returns information about all pending timers.
	ListActive() []TimerInfo
}

// TimerInfo describes one pending timer for diagnostics.
type TimerInfo struct {
	ID          string    `json:"id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Remaining   string    `json:"remaining"`
	Description string    `json:"description"`
}
