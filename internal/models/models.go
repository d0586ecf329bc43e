// Package models defines the core data structures for StepFence.
//
// It includes types for unlock grants, daily tasks, time missions and
// notifications, which are shared across the engine's modules.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Limits applied when validating collaborator input.
const (
	// MaxTargetIDLength defines the maximum allowed length for a target identifier
	MaxTargetIDLength = 256
	// MaxUnlockMinutes defines the maximum duration of a single unlock purchase
	MaxUnlockMinutes = 24 * 60
	// WarnWindow is how close to expiry a grant must be before the monitor warns
	WarnWindow = 60 * time.Second
)

// Error variables for better error handling and testability
var (
	ErrEmptyTarget         = errors.New("target cannot be empty")
	ErrTargetTooLong       = errors.New("target exceeds maximum length")
	ErrInvalidDuration     = errors.New("unlock duration must be between 1 minute and 24 hours")
	ErrInvalidCost         = errors.New("cost cannot be negative")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExactWakeDenied     = errors.New("exact wake scheduling not permitted")
)

// GrantStatus describes one active unlock grant as seen by the countdown
// aggregator and the unlock-status endpoint.
type GrantStatus struct {
	Target    string        `json:"target"`
	ExpiresAt time.Time     `json:"expires_at"`
	Remaining time.Duration `json:"remaining"`
}

// Render formats the grant as a short human-readable countdown line.
func (g GrantStatus) Render() string {
	r := g.Remaining
	if r < 0 {
		r = 0
	}
	return fmt.Sprintf("%s: %02d:%02d", g.Target, int(r.Minutes()), int(r.Seconds())%60)
}

// Task is one entry of the deterministic daily task list. Ids are stable
// (1..5) across days; only magnitudes change with the date seed.
type Task struct {
	ID            int   `json:"id"`
	RequiredSteps int64 `json:"required_steps"`
	Reward        int64 `json:"reward"`
}

// TimeMission is the single randomized step challenge. At most one mission
// may be active at a time.
type TimeMission struct {
	Active     bool      `json:"active"`
	StepsGoal  int64     `json:"steps_goal"`
	EndTime    time.Time `json:"end_time"`
	Reward     int64     `json:"reward"`
	StartSteps int64     `json:"start_steps"`
}

// NotificationPriority indicates delivery urgency to the notification channel.
type NotificationPriority string

const (
	// PriorityDefault is used for routine notices such as expiry warnings.
	PriorityDefault NotificationPriority = "default"
	// PriorityHigh is used for mission announcements and block events.
	PriorityHigh NotificationPriority = "high"
)

// Notification is a message handed to the configured notification channel.
type Notification struct {
	Title    string               `json:"title"`
	Body     string               `json:"body"`
	Priority NotificationPriority `json:"priority"`
}

// ValidatePurchase checks purchase parameters before any state is touched.
func ValidatePurchase(target string, minutes int, cost int64) error {
	if target == "" {
		return ErrEmptyTarget
	}
	if len(target) > MaxTargetIDLength {
		return ErrTargetTooLong
	}
	if minutes <= 0 || minutes > MaxUnlockMinutes {
		return ErrInvalidDuration
	}
	if cost < 0 {
		return ErrInvalidCost
	}
	return nil
}
