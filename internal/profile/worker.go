package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/warden/internal/session"
)

// baselineMinSessions is the archive floor below which no baseline is learned.
const baselineMinSessions = 3

// HistorySource exposes the archived sessions baselines are learned from.
// *session.Manager satisfies it.
type HistorySource interface {
	Users() []string
	History(userID string) []*session.Archived
}

// Timer periodically recomputes per-user baselines.
type Timer struct {
	store    BaselineStore
	profiler *Profiler
	source   HistorySource
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool
	now      func() time.Time
}

// NewTimer creates the baseline recomputation worker. A nil store keeps
// baselines memory-only.
func NewTimer(store BaselineStore, profiler *Profiler, source HistorySource, logger *slog.Logger) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		store:    store,
		profiler: profiler,
		source:   source,
		logger:   logger,
		interval: 15 * time.Minute,
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Running reports whether the timer loop is active.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start loads persisted baselines, then runs periodic recomputation.
// It blocks until ctx is cancelled or Stop is called.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	t.safeDoWork(ctx, t.loadBaselines)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeDoWork(ctx, t.compute)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeDoWork(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in baseline worker", "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx)
}

// loadBaselines fetches persisted baselines into the profiler's cache.
func (t *Timer) loadBaselines(ctx context.Context) {
	if t.store == nil {
		return
	}

	baselines, err := t.store.GetAllBaselines(ctx)
	if err != nil {
		t.logger.Error("failed to load baselines", "error", err)
		return
	}

	cache := make(map[string]*UserBaseline, len(baselines))
	for _, b := range baselines {
		cache[b.UserID] = b
	}
	t.profiler.Refresh(cache)
	t.logger.Info("baselines loaded into cache", "count", len(cache))
}

// compute recomputes baselines for every user with enough archived sessions.
func (t *Timer) compute(ctx context.Context) {
	now := t.now()

	var batch []*UserBaseline
	for _, id := range t.source.Users() {
		archives := t.source.History(id)
		if len(archives) < baselineMinSessions {
			continue
		}

		b := computeBaseline(id, archives, now)
		if b == nil || b.SessionCount < baselineMinSessions {
			continue
		}
		batch = append(batch, b)
	}

	if len(batch) == 0 {
		return
	}

	if t.store != nil {
		if err := t.store.SaveBaselineBatch(ctx, batch); err != nil {
			t.logger.Error("baseline compute: failed to save batch", "error", err)
			return
		}
	}

	cache := make(map[string]*UserBaseline, len(batch))
	for _, b := range batch {
		cache[b.UserID] = b
	}
	t.profiler.Refresh(cache)
	t.logger.Info("baselines recomputed", "users", len(batch))
}
