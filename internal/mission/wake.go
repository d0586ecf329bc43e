package mission

import (
	"time"

	"github.com/stepfence/StepFence/internal/models"
)

// WakeScheduler is the one-shot wake-trigger collaborator. The platform may
// deny exact scheduling, so capability must be checked before registering.
type WakeScheduler interface {
	// CanScheduleExact reports whether exact one-shot scheduling is permitted.
	CanScheduleExact() bool
	// ScheduleExact registers fn to fire once at the given time.
	ScheduleExact(at time.Time, fn func()) (string, error)
	// Cancel drops a previously registered trigger.
	Cancel(id string) error
}

// TimerWake adapts a models.Timer into a WakeScheduler. The exact-scheduling
// capability is fixed at construction, mirroring a platform permission that
// the engine can check but not change.
type TimerWake struct {
	timer        models.Timer
	exactAllowed bool
}

// NewTimerWake creates a WakeScheduler over the given timer.
func NewTimerWake(timer models.Timer, exactAllowed bool) *TimerWake {
	return &TimerWake{timer: timer, exactAllowed: exactAllowed}
}

func (w *TimerWake) CanScheduleExact() bool {
	return w.exactAllowed
}

func (w *TimerWake) ScheduleExact(at time.Time, fn func()) (string, error) {
	if !w.exactAllowed {
		return "", models.ErrExactWakeDenied
	}
	return w.timer.ScheduleAt(at, fn)
}

func (w *TimerWake) Cancel(id string) error {
	return w.timer.Cancel(id)
}
