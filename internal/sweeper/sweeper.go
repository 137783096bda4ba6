// Package sweeper runs the periodic maintenance pass: idle sessions are
// archived, stale archive history is compacted, and expired user blocks are
// pruned. All of it is housekeeping the hot path also performs lazily; the
// sweep keeps quiet deployments from accumulating state between requests.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Maintenance is the set of sweep operations. *engine.Engine satisfies it.
type Maintenance interface {
	EndIdleSessions(ctx context.Context) int
	CompactArchives() int
	PruneBlocklist() int
}

// Sweeper periodically drives the maintenance operations.
type Sweeper struct {
	target   Maintenance
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// New creates a sweeper. interval <= 0 falls back to one minute.
func New(target Maintenance, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	return s.running.Load()
}

// Start begins the sweep loop. Call in a goroutine; it returns when ctx is
// cancelled or Stop is called, after finishing any pass in progress.
func (s *Sweeper) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSweep(ctx)
		}
	}
}

// Stop signals the sweeper to stop.
func (s *Sweeper) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in maintenance sweep", "panic", fmt.Sprint(r))
		}
	}()
	s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) {
	ended := s.target.EndIdleSessions(ctx)
	compacted := s.target.CompactArchives()
	pruned := s.target.PruneBlocklist()
	if ended > 0 || compacted > 0 || pruned > 0 {
		s.logger.Info("maintenance sweep",
			"sessions_ended", ended,
			"archives_compacted", compacted,
			"blocks_pruned", pruned)
	}
}
