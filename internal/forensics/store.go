package forensics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/warden/internal/pagination"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("forensic record not found")
	// ErrDuplicateRecord indicates a write reused an existing record ID.
	// Records are append-only and never overwritten.
	ErrDuplicateRecord = errors.New("forensic record already exists")
)

// Store persists forensic records. Implementations must be append-only:
// Write never replaces an existing record.
type Store interface {
	Write(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// ListByUser returns the user's records newest first. cursor is an
	// opaque position from a previous page, empty for the first page.
	ListByUser(ctx context.Context, userID string, limit int, cursor string) ([]*Record, string, error)
	// ListSince returns records across all users captured at or after
	// since, newest first, capped at limit.
	ListSince(ctx context.Context, since time.Time, limit int) ([]*Record, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	byUser  map[string][]*Record
}

// NewMemoryStore creates a new in-memory forensic store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byUser:  make(map[string][]*Record),
	}
}

func (s *MemoryStore) Write(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicateRecord
	}
	cp := copyRecord(rec)
	s.records[cp.ID] = cp
	s.byUser[cp.UserID] = append(s.byUser[cp.UserID], cp)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int, cursor string) ([]*Record, string, error) {
	if limit <= 0 {
		limit = 50
	}
	c, err := pagination.Decode(cursor)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	all := make([]*Record, 0, len(s.byUser[userID]))
	for _, rec := range s.byUser[userID] {
		all = append(all, copyRecord(rec))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CapturedAt.Equal(all[j].CapturedAt) {
			return all[i].CapturedAt.After(all[j].CapturedAt)
		}
		return all[i].ID > all[j].ID
	})

	// keep records strictly past the cursor position
	if c != nil {
		filtered := all[:0]
		for _, rec := range all {
			if rec.CapturedAt.Before(c.At) ||
				(rec.CapturedAt.Equal(c.At) && rec.ID < c.ID) {
				filtered = append(filtered, rec)
			}
		}
		all = filtered
	}

	if len(all) > limit+1 {
		all = all[:limit+1]
	}
	page, next, _ := pagination.ComputePage(all, limit, func(r *Record) (time.Time, string) {
		return r.CapturedAt, r.ID
	})
	return page, next, nil
}

func (s *MemoryStore) ListSince(_ context.Context, since time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 1000
	}

	s.mu.RLock()
	all := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.CapturedAt.Before(since) {
			all = append(all, copyRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CapturedAt.Equal(all[j].CapturedAt) {
			return all[i].CapturedAt.After(all[j].CapturedAt)
		}
		return all[i].ID > all[j].ID
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(rec *Record) *Record {
	cp := *rec
	if rec.BlockedPatterns != nil {
		cp.BlockedPatterns = make([]string, len(rec.BlockedPatterns))
		copy(cp.BlockedPatterns, rec.BlockedPatterns)
	}
	if rec.PatternCounts != nil {
		cp.PatternCounts = make(map[string]int, len(rec.PatternCounts))
		for k, v := range rec.PatternCounts {
			cp.PatternCounts[k] = v
		}
	}
	return &cp
}
