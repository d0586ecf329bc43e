package countdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stepfence/StepFence/internal/ledger"
	"github.com/stepfence/StepFence/internal/models"
	"github.com/stepfence/StepFence/internal/store"
)

type captureSink struct {
	mu      sync.Mutex
	updates [][]models.GrantStatus
}

func (s *captureSink) Update(grants []models.GrantStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, grants)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func newTestAggregator(t *testing.T) (*Aggregator, *captureSink, *ledger.Ledger, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	led := ledger.New(st)
	sink := &captureSink{}
	agg := New(led, sink)
	return agg, sink, led, st
}

func TestTickTerminatesOnEmptyActiveSet(t *testing.T) {
	agg, sink, _, _ := newTestAggregator(t)

	if agg.Tick() {
		t.Error("expected tick to report termination with no grants")
	}
	if sink.count() != 0 {
		t.Errorf("expected no sink updates, got %d", sink.count())
	}
}

func TestTickRendersActiveGrants(t *testing.T) {
	agg, sink, led, st := newTestAggregator(t)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	led.SetNowFunc(func() time.Time { return now })
	st.SetInt64(store.UnlockKey("com.example.game"), now.Add(5*time.Minute).UnixMilli())

	if !agg.Tick() {
		t.Fatal("expected tick to keep running with an active grant")
	}
	if sink.count() != 1 {
		t.Fatalf("expected one sink update, got %d", sink.count())
	}
	grants := sink.updates[0]
	if len(grants) != 1 || grants[0].Target != "com.example.game" {
		t.Errorf("expected status for com.example.game, got %+v", grants)
	}
}

func TestLoopStopsItselfWhenGrantsExpire(t *testing.T) {
	agg, _, led, st := newTestAggregator(t)
	agg.SetInterval(time.Millisecond)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	led.SetNowFunc(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	st.SetInt64(store.UnlockKey("x"), now.Add(time.Hour).UnixMilli())

	agg.Start(context.Background())
	if !agg.Running() {
		t.Fatal("expected aggregator to be running")
	}

	// Expire the grant; the loop should observe the empty set and terminate.
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for agg.Running() {
		if time.Now().After(deadline) {
			t.Fatal("aggregator did not terminate after grants expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	agg, _, led, st := newTestAggregator(t)
	agg.SetInterval(10 * time.Millisecond)
	defer agg.Stop()

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	led.SetNowFunc(func() time.Time { return now })
	st.SetInt64(store.UnlockKey("x"), now.Add(time.Hour).UnixMilli())

	ctx := context.Background()
	agg.Start(ctx)
	agg.Start(ctx)
	agg.Start(ctx)

	if !agg.Running() {
		t.Error("expected aggregator to be running")
	}
}

func TestStopCancelsLoop(t *testing.T) {
	agg, _, led, st := newTestAggregator(t)
	agg.SetInterval(time.Millisecond)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	led.SetNowFunc(func() time.Time { return now })
	st.SetInt64(store.UnlockKey("x"), now.Add(time.Hour).UnixMilli())

	agg.Start(context.Background())
	agg.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for agg.Running() {
		if time.Now().After(deadline) {
			t.Fatal("aggregator did not stop after cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTickSurvivesStoreErrors(t *testing.T) {
	st := store.NewInMemoryStore()
	led := ledger.New(st)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	led.SetNowFunc(func() time.Time { return now })
	st.SetInt64(store.UnlockKey("x"), now.Add(time.Hour).UnixMilli())

	agg := New(led, nil) // nil sink falls back to the log sink
	if !agg.Tick() {
		t.Error("expected tick with the default sink to keep running")
	}
}
