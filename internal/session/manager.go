package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/warden/internal/behavior"
	"github.com/mbd888/warden/internal/idgen"
)

// Config bounds session lifetime and memory.
type Config struct {
	// Timeout is the idle age past which a session is rotated: the stale
	// session is archived and the triggering event opens a fresh one.
	Timeout time.Duration

	// CleanupInterval is the minimum spacing between archive-history prunes.
	CleanupInterval time.Duration

	// MaxEvents caps each per-modality event buffer (oldest dropped first).
	MaxEvents int

	// ArchiveKeep is how many archived sessions to retain per user.
	ArchiveKeep int
}

// DefaultConfig returns the standard bounds.
func DefaultConfig() Config {
	return Config{
		Timeout:         time.Hour,
		CleanupInterval: time.Hour,
		MaxEvents:       1000,
		ArchiveKeep:     10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.ArchiveKeep <= 0 {
		c.ArchiveKeep = d.ArchiveKeep
	}
	return c
}

// ArchiveStore persists archived-session summaries beyond process lifetime.
type ArchiveStore interface {
	SaveArchive(ctx context.Context, a *Archived) error
	ListArchives(ctx context.Context, userID string, limit int) ([]*Archived, error)
}

// Manager tracks one live session per user plus a bounded in-memory history
// of archived sessions. An optional ArchiveStore mirrors archives durably;
// mirror writes are asynchronous and best-effort.
type Manager struct {
	cfg    Config
	store  ArchiveStore
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	history  map[string][]*Archived

	compactMu   sync.Mutex
	lastCompact time.Time
}

// NewManager creates a session manager. store may be nil for memory-only
// operation.
func NewManager(cfg Config, store ArchiveStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg.withDefaults(),
		store:    store,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		history:  make(map[string][]*Archived),
	}
}

// Config returns the effective bounds.
func (m *Manager) Config() Config { return m.cfg }

// Ingest validates the event and applies it to the user's live session,
// creating one if needed. If the prior session idled past the timeout it is
// archived first and returned as rotated; the event then lands in a fresh
// session whose start time is the ingest time.
//
// The returned *Session is live state: the caller must hold its per-user
// serialization for as long as it reads or mutates it.
func (m *Manager) Ingest(userID string, ev behavior.Event) (sess *Session, rotated *Archived, err error) {
	if userID == "" {
		return nil, nil, &behavior.ValidationError{Field: "userId", Message: "is required"}
	}
	if err := ev.Validate(); err != nil {
		return nil, nil, err
	}
	now := m.now()

	var idle time.Duration
	m.mu.Lock()
	sess = m.sessions[userID]
	if sess != nil && now.Sub(sess.LastActivity) > m.cfg.Timeout {
		idle = now.Sub(sess.LastActivity)
		rotated = m.archiveLocked(sess, ReasonTimeout, now)
		sess = nil
	}
	if sess == nil {
		sess = NewSession(userID, now)
		m.sessions[userID] = sess
	}
	m.mu.Unlock()

	switch e := ev.(type) {
	case behavior.KeystrokeEvent:
		sess.AppendKeystroke(e, m.cfg.MaxEvents)
	case behavior.PointerEvent:
		sess.AppendPointer(e, m.cfg.MaxEvents)
	}
	sess.LastActivity = now

	if rotated != nil {
		m.logger.Info("session rotated after idle timeout",
			"user_id", userID,
			"archive_id", rotated.ID,
			"idle", idle.String())
	}
	m.maybeCompact(now)
	return sess, rotated, nil
}

// Get returns the user's live session, or nil. The per-user serialization
// contract from Ingest applies to the returned pointer.
func (m *Manager) Get(userID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID]
}

// End archives and removes the user's live session. It returns nil without
// error when no session exists, so ending twice is a no-op.
func (m *Manager) End(userID string, reason EndReason) *Archived {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[userID]
	if sess == nil {
		return nil
	}
	return m.archiveLocked(sess, reason, now)
}

// EndIdle archives the user's session only if it is still idle past the
// timeout, for sweeper use. Returns nil when the session is gone or active.
func (m *Manager) EndIdle(userID string) *Archived {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.sessions[userID]
	if sess == nil || now.Sub(sess.LastActivity) <= m.cfg.Timeout {
		return nil
	}
	return m.archiveLocked(sess, ReasonTimeout, now)
}

// IdleUsers lists users whose live sessions have idled past the timeout.
func (m *Manager) IdleUsers() []string {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []string
	for id, sess := range m.sessions {
		if now.Sub(sess.LastActivity) > m.cfg.Timeout {
			users = append(users, id)
		}
	}
	return users
}

// History returns the user's archived sessions, newest last.
func (m *Manager) History(userID string) []*Archived {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Archived, len(m.history[userID]))
	copy(out, m.history[userID])
	return out
}

// Users lists users with a live session or archived history.
func (m *Manager) Users() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{}, len(m.sessions)+len(m.history))
	for id := range m.sessions {
		seen[id] = struct{}{}
	}
	for id := range m.history {
		seen[id] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	return users
}

// ActiveCount is the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Compact prunes archived history older than the session timeout. It returns
// the number of archives dropped.
func (m *Manager) Compact() int {
	now := m.now()
	cutoff := now.Add(-m.cfg.Timeout)
	m.mu.Lock()
	defer m.mu.Unlock()
	pruned := 0
	for id, archives := range m.history {
		kept := archives[:0]
		for _, a := range archives {
			if a.EndTime.After(cutoff) {
				kept = append(kept, a)
			} else {
				pruned++
			}
		}
		if len(kept) == 0 {
			delete(m.history, id)
		} else {
			m.history[id] = kept
		}
	}
	return pruned
}

// maybeCompact runs Compact at most once per cleanup interval.
func (m *Manager) maybeCompact(now time.Time) {
	m.compactMu.Lock()
	due := now.Sub(m.lastCompact) >= m.cfg.CleanupInterval
	if due {
		m.lastCompact = now
	}
	m.compactMu.Unlock()
	if !due {
		return
	}
	if pruned := m.Compact(); pruned > 0 {
		m.logger.Debug("pruned archived sessions", "count", pruned)
	}
}

// archiveLocked summarizes sess, removes it from the live map, and appends
// the summary to the user's bounded history. Caller holds m.mu.
func (m *Manager) archiveLocked(sess *Session, reason EndReason, now time.Time) *Archived {
	a := summarize(idgen.WithPrefix("arc_"), sess, reason, now)
	delete(m.sessions, sess.UserID)
	archives := append(m.history[sess.UserID], a)
	if len(archives) > m.cfg.ArchiveKeep {
		archives = archives[len(archives)-m.cfg.ArchiveKeep:]
	}
	m.history[sess.UserID] = archives
	if m.store != nil {
		go m.mirror(a)
	}
	return a
}

// mirror writes an archive summary to the durable store.
func (m *Manager) mirror(a *Archived) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.SaveArchive(ctx, a); err != nil {
		m.logger.Error("failed to persist session archive",
			"archive_id", a.ID,
			"user_id", a.UserID,
			"error", err)
	}
}
