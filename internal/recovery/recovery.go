// Package recovery restores the engine's scheduled surface after a restart:
// the countdown aggregator is restarted when grants are still active, and
// the mission wake trigger is re-armed from its persisted fire time.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stepfence/StepFence/internal/countdown"
	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/mission"
)

// Manager orchestrates startup recovery of the engine's loops and triggers.
type Manager struct {
	ledger    *ledger.Ledger
	countdown *countdown.Aggregator
	mission   *mission.Manager
}

// NewManager creates a recovery Manager.
func NewManager(led *ledger.Ledger, agg *countdown.Aggregator, mis *mission.Manager) *Manager {
	return &Manager{ledger: led, countdown: agg, mission: mis}
}

// RecoverAll performs all recovery steps. Individual failures are collected;
// recovery never prevents the engine from starting.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting engine recovery")
	errorCount := 0

	grants, err := m.ledger.ActiveGrants()
	if err != nil {
		slog.Error("Recovery: failed to read active grants", "error", err)
		errorCount++
	} else if len(grants) > 0 {
		slog.Info("Recovery: restarting countdown aggregator", "active_grants", len(grants))
		m.countdown.Start(ctx)
	}

	if err := m.mission.RescheduleFromStore(ctx); err != nil {
		slog.Error("Recovery: failed to re-arm mission trigger", "error", err)
		errorCount++
	}

	slog.Info("Engine recovery completed", "errors", errorCount)
	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors", errorCount)
	}
	return nil
}
