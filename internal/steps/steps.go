// Package steps converts a monotonic step-sensor total into "steps today".
//
// The sensor reports a cumulative count since device boot. The tracker keeps
// a per-day baseline in the state store and derives today's steps by
// subtraction. The baseline resets when the calendar day changes, and
// re-bases when the sensor total drops (device reboot) so that steps already
// walked today are not lost.
package steps

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stepfence/StepFence/internal/store"
)

// DateLayout is the calendar-day format used across the engine.
const DateLayout = "20060102"

// Tracker maintains the step baseline over the state store.
type Tracker struct {
	store store.Store
	now   func() time.Time
}

// New creates a Tracker over the given store.
func New(st store.Store) *Tracker {
	return &Tracker{store: st, now: time.Now}
}

// SetNowFunc overrides the clock. Intended for tests.
func (t *Tracker) SetNowFunc(now func() time.Time) {
	t.now = now
}

// Record ingests a new cumulative sensor reading and returns the derived
// steps-today count.
func (t *Tracker) Record(reading int64) (int64, error) {
	if reading < 0 {
		return 0, fmt.Errorf("sensor reading cannot be negative: %d", reading)
	}
	today := t.now().Format(DateLayout)

	lastDate, err := t.store.GetString(store.KeyLastDate, "")
	if err != nil {
		return 0, fmt.Errorf("failed to read step baseline date: %w", err)
	}

	if lastDate != today {
		// New day: today's steps start from this reading.
		if err := t.store.SetString(store.KeyLastDate, today); err != nil {
			return 0, fmt.Errorf("failed to write step baseline date: %w", err)
		}
		if err := t.store.SetInt64(store.KeyInitialSteps, reading); err != nil {
			return 0, fmt.Errorf("failed to write step baseline: %w", err)
		}
		if err := t.store.SetInt64(store.KeyLastKnownTotalSteps, reading); err != nil {
			return 0, fmt.Errorf("failed to write last known steps: %w", err)
		}
		slog.Debug("Tracker.Record: baseline reset for new day", "date", today, "reading", reading)
		return 0, nil
	}

	initial, err := t.store.GetInt64(store.KeyInitialSteps, reading)
	if err != nil {
		return 0, fmt.Errorf("failed to read step baseline: %w", err)
	}
	lastKnown, err := t.store.GetInt64(store.KeyLastKnownTotalSteps, reading)
	if err != nil {
		return 0, fmt.Errorf("failed to read last known steps: %w", err)
	}

	if reading < lastKnown {
		// Sensor total dropped: the device rebooted and the cumulative
		// counter restarted. Re-base so steps already walked today survive.
		walked := lastKnown - initial
		initial = reading - walked
		if err := t.store.SetInt64(store.KeyInitialSteps, initial); err != nil {
			return 0, fmt.Errorf("failed to re-base step baseline: %w", err)
		}
		slog.Info("Tracker.Record: sensor reset detected, re-based baseline", "reading", reading, "walked_today", walked)
	}

	if err := t.store.SetInt64(store.KeyLastKnownTotalSteps, reading); err != nil {
		return 0, fmt.Errorf("failed to write last known steps: %w", err)
	}
	return reading - initial, nil
}

// Today returns the steps walked today based on the last recorded reading,
// without ingesting a new one. Returns 0 when no reading has arrived today.
func (t *Tracker) Today() (int64, error) {
	today := t.now().Format(DateLayout)
	lastDate, err := t.store.GetString(store.KeyLastDate, "")
	if err != nil {
		return 0, fmt.Errorf("failed to read step baseline date: %w", err)
	}
	if lastDate != today {
		return 0, nil
	}
	initial, err := t.store.GetInt64(store.KeyInitialSteps, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to read step baseline: %w", err)
	}
	lastKnown, err := t.store.GetInt64(store.KeyLastKnownTotalSteps, initial)
	if err != nil {
		return 0, fmt.Errorf("failed to read last known steps: %w", err)
	}
	return lastKnown - initial, nil
}
