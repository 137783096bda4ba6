package response

import (
	"sync"
	"time"
)

// Blocklist tracks temporarily blocked users. Expiry is evaluated lazily:
// a stale record is pruned on the next check rather than by a timer, so the
// Prune sweep is an optimization, not a correctness requirement.
type Blocklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewBlocklist creates an empty blocklist.
func NewBlocklist() *Blocklist {
	return &Blocklist{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Block records the user as blocked for the given duration and returns the
// unblock time. Re-blocking an already blocked user extends the record when
// the new expiry is later.
func (b *Blocklist) Block(userID string, d time.Duration) time.Time {
	until := b.now().Add(d)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.entries[userID]; ok && existing.After(until) {
		return existing
	}
	b.entries[userID] = until
	blockedUsers.Set(float64(len(b.entries)))
	return until
}

// Check returns a UserBlocked error if the user is currently blocked,
// pruning the record first if it has expired.
func (b *Blocklist) Check(userID string) *UserBlocked {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.entries[userID]
	if !ok {
		return nil
	}
	if !b.now().Before(until) {
		delete(b.entries, userID)
		blockedUsers.Set(float64(len(b.entries)))
		return nil
	}
	return &UserBlocked{UserID: userID, Until: until}
}

// IsBlocked reports whether the user is currently blocked.
func (b *Blocklist) IsBlocked(userID string) bool {
	return b.Check(userID) != nil
}

// Unblock removes the user's block record before it expires, reporting
// whether one existed.
func (b *Blocklist) Unblock(userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entries[userID]; !ok {
		return false
	}
	delete(b.entries, userID)
	blockedUsers.Set(float64(len(b.entries)))
	return true
}

// Snapshot returns the live block records keyed by user.
func (b *Blocklist) Snapshot() map[string]time.Time {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]time.Time, len(b.entries))
	for id, until := range b.entries {
		if now.Before(until) {
			out[id] = until
		}
	}
	return out
}

// Prune drops expired records and returns how many were removed.
func (b *Blocklist) Prune() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	pruned := 0
	for id, until := range b.entries {
		if !now.Before(until) {
			delete(b.entries, id)
			pruned++
		}
	}
	if pruned > 0 {
		blockedUsers.Set(float64(len(b.entries)))
	}
	return pruned
}
