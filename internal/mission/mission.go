// Package mission implements the randomized daily time mission: a time-boxed
// step challenge created by a self-rescheduling wake trigger.
//
// Invariant: at most one mission is active at a time. The firing handler is
// idempotent against duplicate delivery because Create is a no-op while a
// mission is active.
package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/notify"
	"github.com/stepfence/StepFence/internal/steps"
	"github.com/stepfence/StepFence/internal/store"
)

// Mission parameter bounds.
const (
	MinStepsGoal    = 500
	MaxStepsGoal    = 3000
	MinLimitMinutes = 30
	MaxLimitMinutes = 90

	// Daily firing window: between 12:00 and 20:00 local time.
	windowStartHour = 12
	windowEndHour   = 20
)

// Manager owns the mission lifecycle: creation, evaluation, and the daily
// wake trigger.
type Manager struct {
	store    store.Store
	ledger   *ledger.Ledger
	tracker  *steps.Tracker
	notifier notify.Notifier
	wake     WakeScheduler
	now      func() time.Time
	randIntN func(n int64) int64
}

// NewManager creates a mission Manager.
func NewManager(st store.Store, led *ledger.Ledger, tracker *steps.Tracker, notifier notify.Notifier, wake WakeScheduler) *Manager {
	return &Manager{
		store:    st,
		ledger:   led,
		tracker:  tracker,
		notifier: notifier,
		wake:     wake,
		now:      time.Now,
		randIntN: rand.Int64N,
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (m *Manager) SetNowFunc(now func() time.Time) {
	m.now = now
}

// SetRandFunc overrides the random source. Intended for tests.
func (m *Manager) SetRandFunc(randIntN func(n int64) int64) {
	m.randIntN = randIntN
}

// Active returns the current mission, or nil when none is active.
func (m *Manager) Active() (*models.TimeMission, error) {
	active, err := m.store.GetBool(store.KeyMissionActive, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission flag: %w", err)
	}
	if !active {
		return nil, nil
	}
	goal, err := m.store.GetInt64(store.KeyMissionStepsGoal, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission goal: %w", err)
	}
	endMillis, err := m.store.GetInt64(store.KeyMissionEndTime, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission end time: %w", err)
	}
	reward, err := m.store.GetInt64(store.KeyMissionReward, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission reward: %w", err)
	}
	startSteps, err := m.store.GetInt64(store.KeyMissionStartSteps, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission start steps: %w", err)
	}
	return &models.TimeMission{
		Active:     true,
		StepsGoal:  goal,
		EndTime:    time.UnixMilli(endMillis),
		Reward:     reward,
		StartSteps: startSteps,
	}, nil
}

// Create starts a new mission: random goal and time limit, reward derived
// from both, start steps anchored at today's current count. It is a no-op
// returning false while a mission is already active.
func (m *Manager) Create(ctx context.Context) (bool, error) {
	active, err := m.store.GetBool(store.KeyMissionActive, false)
	if err != nil {
		return false, fmt.Errorf("failed to read mission flag: %w", err)
	}
	if active {
		slog.Debug("Manager.Create: mission already active, skipping")
		return false, nil
	}

	goal := MinStepsGoal + m.randIntN(MaxStepsGoal-MinStepsGoal+1)
	limit := MinLimitMinutes + m.randIntN(MaxLimitMinutes-MinLimitMinutes+1)
	reward := goal/100 + limit/5
	end := m.now().Add(time.Duration(limit) * time.Minute)

	startSteps, err := m.tracker.Today()
	if err != nil {
		return false, fmt.Errorf("failed to read current steps: %w", err)
	}

	if err := m.store.SetInt64(store.KeyMissionStepsGoal, goal); err != nil {
		return false, fmt.Errorf("failed to write mission goal: %w", err)
	}
	if err := m.store.SetInt64(store.KeyMissionEndTime, end.UnixMilli()); err != nil {
		return false, fmt.Errorf("failed to write mission end time: %w", err)
	}
	if err := m.store.SetInt64(store.KeyMissionReward, reward); err != nil {
		return false, fmt.Errorf("failed to write mission reward: %w", err)
	}
	if err := m.store.SetInt64(store.KeyMissionStartSteps, startSteps); err != nil {
		return false, fmt.Errorf("failed to write mission start steps: %w", err)
	}
	if err := m.store.SetBool(store.KeyMissionActive, true); err != nil {
		return false, fmt.Errorf("failed to write mission flag: %w", err)
	}

	slog.Info("Manager.Create: mission started", "steps_goal", goal, "limit_minutes", limit, "reward", reward)
	n := models.Notification{
		Title:    "Time mission!",
		Body:     fmt.Sprintf("Walk %d steps in the next %d minutes to earn %d diamonds.", goal, limit, reward),
		Priority: models.PriorityHigh,
	}
	if err := m.notifier.Send(ctx, n); err != nil {
		slog.Warn("Manager.Create: mission notification failed", "error", err)
	}
	return true, nil
}

// Evaluate checks the active mission against today's step count. It credits
// the reward and deactivates on success, and deactivates without credit once
// the time limit has passed. Returns true only on a successful completion.
func (m *Manager) Evaluate(ctx context.Context) (bool, error) {
	mission, err := m.Active()
	if err != nil {
		return false, err
	}
	if mission == nil {
		return false, nil
	}

	stepsToday, err := m.tracker.Today()
	if err != nil {
		return false, fmt.Errorf("failed to read current steps: %w", err)
	}
	walked := stepsToday - mission.StartSteps

	now := m.now()
	if walked >= mission.StepsGoal && !now.After(mission.EndTime) {
		if err := m.ledger.Credit(mission.Reward); err != nil {
			return false, fmt.Errorf("failed to credit mission reward: %w", err)
		}
		if err := m.store.SetBool(store.KeyMissionActive, false); err != nil {
			return false, fmt.Errorf("failed to clear mission flag: %w", err)
		}
		slog.Info("Manager.Evaluate: mission completed", "walked", walked, "goal", mission.StepsGoal, "reward", mission.Reward)
		n := models.Notification{
			Title:    "Mission complete!",
			Body:     fmt.Sprintf("You walked %d steps and earned %d diamonds.", walked, mission.Reward),
			Priority: models.PriorityHigh,
		}
		if err := m.notifier.Send(ctx, n); err != nil {
			slog.Warn("Manager.Evaluate: completion notification failed", "error", err)
		}
		return true, nil
	}

	if now.After(mission.EndTime) {
		if err := m.store.SetBool(store.KeyMissionActive, false); err != nil {
			return false, fmt.Errorf("failed to clear mission flag: %w", err)
		}
		slog.Info("Manager.Evaluate: mission expired", "walked", walked, "goal", mission.StepsGoal)
		n := models.Notification{
			Title:    "Mission expired",
			Body:     fmt.Sprintf("Time ran out at %d of %d steps. Another mission is coming tomorrow.", walked, mission.StepsGoal),
			Priority: models.PriorityDefault,
		}
		if err := m.notifier.Send(ctx, n); err != nil {
			slog.Warn("Manager.Evaluate: expiry notification failed", "error", err)
		}
	}
	return false, nil
}

// ScheduleNext picks a uniformly random instant in today's 12:00-20:00
// window (rolling to tomorrow once past 20:00) and registers the wake
// trigger for it. When exact scheduling is denied the degradation is logged
// and scheduling is skipped; there is no inexact fallback.
func (m *Manager) ScheduleNext(ctx context.Context) (time.Time, error) {
	fireAt := m.nextFireTime()

	if !m.wake.CanScheduleExact() {
		slog.Warn("Manager.ScheduleNext: exact wake scheduling denied, skipping daily mission trigger", "wanted", fireAt)
		return time.Time{}, models.ErrExactWakeDenied
	}

	if err := m.store.SetInt64(store.KeyMissionNextFire, fireAt.UnixMilli()); err != nil {
		return time.Time{}, fmt.Errorf("failed to persist next fire time: %w", err)
	}
	if _, err := m.wake.ScheduleExact(fireAt, func() { m.onFire(ctx) }); err != nil {
		return time.Time{}, fmt.Errorf("failed to register wake trigger: %w", err)
	}
	slog.Info("Manager.ScheduleNext: wake trigger registered", "fire_at", fireAt)
	return fireAt, nil
}

// RescheduleFromStore re-arms the wake trigger after a restart. A persisted
// future fire time is re-registered as-is; a past or missing one leads to a
// fresh ScheduleNext.
func (m *Manager) RescheduleFromStore(ctx context.Context) error {
	millis, err := m.store.GetInt64(store.KeyMissionNextFire, 0)
	if err != nil {
		return fmt.Errorf("failed to read next fire time: %w", err)
	}
	if millis > 0 {
		fireAt := time.UnixMilli(millis)
		if fireAt.After(m.now()) {
			if !m.wake.CanScheduleExact() {
				slog.Warn("Manager.RescheduleFromStore: exact wake scheduling denied, skipping")
				return nil
			}
			if _, err := m.wake.ScheduleExact(fireAt, func() { m.onFire(ctx) }); err != nil {
				return fmt.Errorf("failed to re-register wake trigger: %w", err)
			}
			slog.Info("Manager.RescheduleFromStore: wake trigger restored", "fire_at", fireAt)
			return nil
		}
		// The trigger came due while the engine was down; fire the handler
		// path now. Create is idempotent so a duplicate is harmless.
		slog.Info("Manager.RescheduleFromStore: missed wake trigger, firing now", "was_due", fireAt)
		m.onFire(ctx)
		return nil
	}

	_, err = m.ScheduleNext(ctx)
	if errors.Is(err, models.ErrExactWakeDenied) {
		return nil
	}
	return err
}

// onFire is the wake-trigger handler: create a mission, then immediately
// schedule the next firing, producing a self-sustaining daily cadence.
func (m *Manager) onFire(ctx context.Context) {
	if _, err := m.Create(ctx); err != nil {
		slog.Error("Manager.onFire: mission creation failed", "error", err)
	}
	if _, err := m.ScheduleNext(ctx); err != nil && !errors.Is(err, models.ErrExactWakeDenied) {
		slog.Error("Manager.onFire: rescheduling failed", "error", err)
	}
}

// nextFireTime draws a uniform instant in the daily window. At or after the
// window's end the target day rolls to tomorrow.
func (m *Manager) nextFireTime() time.Time {
	now := m.now()
	day := now
	if now.Hour() >= windowEndHour {
		day = now.Add(24 * time.Hour)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), windowStartHour, 0, 0, 0, day.Location())
	windowMillis := int64((windowEndHour - windowStartHour) * int(time.Hour/time.Millisecond))
	return start.Add(time.Duration(m.randIntN(windowMillis)) * time.Millisecond)
}
