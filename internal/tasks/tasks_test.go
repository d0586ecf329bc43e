package tasks

import (
	"testing"
	"time"

	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/store"
)

func newTestManager(t *testing.T, now time.Time) (*Manager, *ledger.Ledger, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	led := ledger.New(st)
	led.SetNowFunc(func() time.Time { return now })
	m := NewManager(st, led)
	m.SetNowFunc(func() time.Time { return now })
	return m, led, st
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate("20250101")
	b := Generate("20250101")

	if len(a) != len(taskBases) {
		t.Fatalf("expected %d tasks, got %d", len(taskBases), len(a))
	}
	if len(a) != len(b) {
		t.Fatalf("lists differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("task %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerateMagnitudes(t *testing.T) {
	for _, task := range Generate("20250115") {
		base := taskBases[task.ID-1]
		if task.RequiredSteps%stepGrain != 0 {
			t.Errorf("task %d: steps %d not a multiple of %d", task.ID, task.RequiredSteps, stepGrain)
		}
		minSteps := int64(float64(base.Steps) * scaleMin)
		maxSteps := int64(float64(base.Steps) * (scaleMin + scaleSpan))
		if task.RequiredSteps < minSteps-stepGrain || task.RequiredSteps > maxSteps {
			t.Errorf("task %d: steps %d outside scaled range [%d, %d]", task.ID, task.RequiredSteps, minSteps, maxSteps)
		}
		minReward := int64(float64(base.Reward) * scaleMin)
		maxReward := int64(float64(base.Reward) * (scaleMin + scaleSpan))
		if task.Reward < minReward-1 || task.Reward > maxReward {
			t.Errorf("task %d: reward %d outside scaled range [%d, %d]", task.ID, task.Reward, minReward, maxReward)
		}
	}
}

func TestGenerateStableIDs(t *testing.T) {
	for _, seed := range []string{"20250101", "20250102", "20251231"} {
		list := Generate(seed)
		for i, task := range list {
			if task.ID != i+1 {
				t.Errorf("seed %s: expected id %d at position %d, got %d", seed, i+1, i, task.ID)
			}
		}
	}
}

func TestClaimCreditsOnce(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m, led, _ := newTestManager(t, now)

	task := Generate("20250101")[0]

	credited, err := m.Claim(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !credited {
		t.Fatal("expected first claim to credit")
	}
	balance, _ := led.Balance()
	if balance != task.Reward {
		t.Errorf("expected balance %d after claim, got %d", task.Reward, balance)
	}

	credited, err = m.Claim(task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credited {
		t.Error("expected second claim to be a no-op")
	}
	balance, _ = led.Balance()
	if balance != task.Reward {
		t.Errorf("expected balance unchanged at %d, got %d", task.Reward, balance)
	}
}

func TestClaimUnknownTaskID(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m, led, _ := newTestManager(t, now)

	credited, err := m.Claim(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credited {
		t.Error("expected claim of unknown id to fail")
	}
	balance, _ := led.Balance()
	if balance != 0 {
		t.Errorf("expected balance 0, got %d", balance)
	}
}

func TestDayRolloverClearsClaimedSet(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m, _, st := newTestManager(t, now)

	if _, err := m.Claim(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Claim(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	claimed, _ := m.ClaimedIDs()
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed ids, got %v", claimed)
	}

	// Next calendar day: claimed set resets and the same id credits again.
	nextDay := now.Add(24 * time.Hour)
	m.SetNowFunc(func() time.Time { return nextDay })

	claimed, err := m.ClaimedIDs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("expected empty claimed set after rollover, got %v", claimed)
	}
	lastDate, _ := st.GetString(store.KeyLastTaskDate, "")
	if lastDate != "20250102" {
		t.Errorf("expected last task date 20250102, got %s", lastDate)
	}

	credited, err := m.Claim(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !credited {
		t.Error("expected claim to credit again after rollover")
	}
}

func TestDifferentSeedsVaryMagnitudes(t *testing.T) {
	a := Generate("20250101")
	b := Generate("20250102")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("expected different seeds to produce different magnitudes")
	}
}
