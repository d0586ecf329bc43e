// Package tasks implements the deterministic daily task list and the
// claim flow that credits the reward currency.
//
// Generation is a pure function of the date seed so that every process (and
// every restart) sees the identical list for a given day. Claims are
// idempotent: a second claim of the same id is a no-op returning false.
package tasks

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/steps"
	"github.com/stepfence/StepFence/internal/store"
)

// taskBases are the fixed (steps, reward) pairs scaled each day. Ids are the
// 1-based positions and stay stable across days.
var taskBases = []struct {
	Steps  int64
	Reward int64
}{
	{1000, 10},
	{2500, 25},
	{4000, 40},
	{6000, 65},
	{8000, 90},
}

// Scaling bounds for the daily variation factor.
const (
	scaleMin  = 0.9
	scaleSpan = 0.2
	stepGrain = 50
)

// Generate produces the task list for the given date seed. The same seed
// always yields the identical list in length, order and magnitudes.
func Generate(dateSeed string) []models.Task {
	h := fnv.New64a()
	h.Write([]byte(dateSeed))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0))

	list := make([]models.Task, 0, len(taskBases))
	for i, base := range taskBases {
		f := scaleMin + rng.Float64()*scaleSpan
		list = append(list, models.Task{
			ID:            i + 1,
			RequiredSteps: int64(math.Floor(float64(base.Steps)*f/stepGrain)) * stepGrain,
			Reward:        int64(math.Floor(float64(base.Reward) * f)),
		})
	}
	return list
}

// Manager owns the claim flow and the day-rollover of the claimed set.
type Manager struct {
	store  store.Store
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewManager creates a task Manager.
func NewManager(st store.Store, led *ledger.Ledger) *Manager {
	return &Manager{store: st, ledger: led, now: time.Now}
}

// SetNowFunc overrides the clock. Intended for tests.
func (m *Manager) SetNowFunc(now func() time.Time) {
	m.now = now
}

// DailyTasks returns today's task list, rolling the day over first if needed.
func (m *Manager) DailyTasks() ([]models.Task, error) {
	if err := m.Rollover(); err != nil {
		return nil, err
	}
	return Generate(m.today()), nil
}

// ClaimedIDs returns the task ids already claimed today.
func (m *Manager) ClaimedIDs() ([]int, error) {
	if err := m.Rollover(); err != nil {
		return nil, err
	}
	raw, err := m.store.GetString(store.KeyClaimedTasks, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed tasks: %w", err)
	}
	return parseIDList(raw), nil
}

// Claim credits the reward for taskID. It returns false without mutating
// anything when the id was already claimed today or does not exist.
func (m *Manager) Claim(taskID int) (bool, error) {
	if err := m.Rollover(); err != nil {
		return false, err
	}

	raw, err := m.store.GetString(store.KeyClaimedTasks, "")
	if err != nil {
		return false, fmt.Errorf("failed to read claimed tasks: %w", err)
	}
	claimed := parseIDList(raw)
	for _, id := range claimed {
		if id == taskID {
			slog.Debug("Manager.Claim: already claimed", "task_id", taskID)
			return false, nil
		}
	}

	var task *models.Task
	for _, t := range Generate(m.today()) {
		if t.ID == taskID {
			task = &t
			break
		}
	}
	if task == nil {
		slog.Warn("Manager.Claim: unknown task id", "task_id", taskID)
		return false, nil
	}

	if err := m.ledger.Credit(task.Reward); err != nil {
		return false, fmt.Errorf("failed to credit task reward: %w", err)
	}
	claimed = append(claimed, taskID)
	if err := m.store.SetString(store.KeyClaimedTasks, joinIDList(claimed)); err != nil {
		return false, fmt.Errorf("failed to write claimed tasks: %w", err)
	}
	slog.Info("Manager.Claim: task claimed", "task_id", taskID, "reward", task.Reward)
	return true, nil
}

// Rollover clears the claimed set once when the calendar day changes. It is
// called before every read/claim so a stale process cannot act on
// yesterday's state; the midnight cron job also calls it eagerly.
func (m *Manager) Rollover() error {
	today := m.today()
	last, err := m.store.GetString(store.KeyLastTaskDate, "")
	if err != nil {
		return fmt.Errorf("failed to read last task date: %w", err)
	}
	if last == today {
		return nil
	}
	if err := m.store.SetString(store.KeyClaimedTasks, ""); err != nil {
		return fmt.Errorf("failed to clear claimed tasks: %w", err)
	}
	if err := m.store.SetString(store.KeyLastTaskDate, today); err != nil {
		return fmt.Errorf("failed to write last task date: %w", err)
	}
	slog.Info("Manager.Rollover: new task day", "date", today, "previous", last)
	return nil
}

func (m *Manager) today() string {
	return m.now().Format(steps.DateLayout)
}

func parseIDList(raw string) []int {
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			slog.Warn("tasks: malformed claimed id, skipping", "value", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func joinIDList(ids []int) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}
