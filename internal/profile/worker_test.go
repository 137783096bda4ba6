package profile

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/warden/internal/session"
)

// fakeHistory is a canned HistorySource.
type fakeHistory struct {
	histories map[string][]*session.Archived
}

func (f *fakeHistory) Users() []string {
	out := make([]string, 0, len(f.histories))
	for id := range f.histories {
		out = append(out, id)
	}
	return out
}

func (f *fakeHistory) History(userID string) []*session.Archived {
	return f.histories[userID]
}

func newTestTimer(store BaselineStore, source HistorySource) (*Timer, *Profiler) {
	p := NewProfiler()
	tm := NewTimer(store, p, source, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tm.now = func() time.Time { return profileEpoch }
	return tm, p
}

func TestComputeLearnsBaselines(t *testing.T) {
	source := &fakeHistory{histories: map[string][]*session.Archived{
		"alice": {archived(20, 10, 1), archived(30, 10, 1), archived(40, 10, 1)},
		"bob":   {archived(50, 10, 0)}, // below the session floor
	}}
	store := NewMemoryBaselineStore()
	tm, p := newTestTimer(store, source)

	tm.compute(context.Background())

	if p.Size() != 1 {
		t.Fatalf("expected 1 learned baseline, got %d", p.Size())
	}

	b := p.Baseline("alice")
	if b == nil {
		t.Fatal("expected a baseline for alice")
	}
	if b.MeanRisk != 30 {
		t.Errorf("expected mean 30, got %f", b.MeanRisk)
	}

	if p.Baseline("bob") != nil {
		t.Error("bob has too few sessions for a baseline")
	}

	// The batch is persisted too.
	all, _ := store.GetAllBaselines(context.Background())
	if len(all) != 1 || all[0].UserID != "alice" {
		t.Errorf("unexpected persisted baselines: %+v", all)
	}
}

func TestComputeWithNilStoreStaysInMemory(t *testing.T) {
	source := &fakeHistory{histories: map[string][]*session.Archived{
		"alice": {archived(20, 10, 0), archived(30, 10, 0), archived(40, 10, 0)},
	}}
	tm, p := newTestTimer(nil, source)

	tm.compute(context.Background())

	if p.Baseline("alice") == nil {
		t.Error("expected an in-memory baseline without a store")
	}
}

func TestLoadBaselinesSeedsCache(t *testing.T) {
	store := NewMemoryBaselineStore()
	store.SaveBaselineBatch(context.Background(), []*UserBaseline{
		{UserID: "alice", MeanRisk: 42, StddevRisk: 7, SessionCount: 5},
	})

	tm, p := newTestTimer(store, &fakeHistory{})
	tm.loadBaselines(context.Background())

	b := p.Baseline("alice")
	if b == nil || b.MeanRisk != 42 {
		t.Fatalf("expected persisted baseline in cache, got %+v", b)
	}
}

func TestTimerStartStop(t *testing.T) {
	tm, _ := newTestTimer(nil, &fakeHistory{})

	done := make(chan struct{})
	go func() {
		tm.Start(context.Background())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !tm.Running() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !tm.Running() {
		t.Fatal("timer never started")
	}

	tm.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not stop")
	}
	if tm.Running() {
		t.Error("timer still reports running after stop")
	}
}
