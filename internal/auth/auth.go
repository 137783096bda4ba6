// Package auth provides API key authentication for warden's analyst surface.
//
// Authentication model:
// - Event ingestion and read endpoints: no auth required
// - Analyst mutations (ending sessions, forensic capture, webhook management):
//   require an analyst key once an admin secret locks the instance
// - Keys are minted and revoked by the operator holding the admin secret
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// Errors
var (
	ErrNoAPIKey      = errors.New("API key required")
	ErrInvalidAPIKey = errors.New("invalid or expired API key")
	ErrKeyNotFound   = errors.New("API key not found")
)

// APIKey represents an analyst API key
type APIKey struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"`     // SHA256 hash of key (stored)
	Owner     string     `json:"owner"` // The analyst this key belongs to
	Name      string     `json:"name"`  // Friendly name
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Store persists API keys
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	GetByHash(ctx context.Context, hash string) (*APIKey, error)
	GetByID(ctx context.Context, id string) (*APIKey, error)
	GetByOwner(ctx context.Context, owner string) ([]*APIKey, error)
	Update(ctx context.Context, key *APIKey) error
	Delete(ctx context.Context, id string) error
}

// Manager handles authentication
type Manager struct {
	store Store
}

// NewManager creates a new auth manager
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// GenerateKey creates a new API key for an analyst.
// Returns the raw key (shown once) and the stored metadata.
// A ttl of zero means the key never expires.
func (m *Manager) GenerateKey(ctx context.Context, owner, name string, ttl time.Duration) (rawKey string, key *APIKey, err error) {
	// Generate 32 random bytes
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	// Create raw key with prefix
	rawKey = "wk_" + hex.EncodeToString(b)

	// Create key record
	key = &APIKey{
		ID:        "ak_" + hex.EncodeToString(b[:8]),
		Hash:      hashKey(rawKey),
		Owner:     strings.TrimSpace(owner),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		expires := key.CreatedAt.Add(ttl)
		key.ExpiresAt = &expires
	}

	if err := m.store.Create(ctx, key); err != nil {
		return "", nil, err
	}

	return rawKey, key, nil
}

// ValidateKey validates an API key and returns the key metadata
func (m *Manager) ValidateKey(ctx context.Context, rawKey string) (*APIKey, error) {
	if rawKey == "" {
		return nil, ErrNoAPIKey
	}

	// Clean the key
	rawKey = strings.TrimPrefix(rawKey, "Bearer ")
	rawKey = strings.TrimSpace(rawKey)

	if !strings.HasPrefix(rawKey, "wk_") {
		return nil, ErrInvalidAPIKey
	}

	// Look up by hash
	hash := hashKey(rawKey)
	key, err := m.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidAPIKey
	}

	// Check revoked
	if key.Revoked {
		return nil, ErrInvalidAPIKey
	}

	// Check expired
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}

	// Update last used (fire and forget)
	go func() {
		key.LastUsed = time.Now()
		m.store.Update(context.Background(), key)
	}()

	return key, nil
}

// ListKeys returns all keys for an analyst
func (m *Manager) ListKeys(ctx context.Context, owner string) ([]*APIKey, error) {
	return m.store.GetByOwner(ctx, strings.TrimSpace(owner))
}

// RevokeKey revokes an API key by ID
func (m *Manager) RevokeKey(ctx context.Context, keyID string) error {
	key, err := m.store.GetByID(ctx, keyID)
	if err != nil {
		return ErrKeyNotFound
	}
	if key.Revoked {
		return ErrKeyNotFound
	}

	key.Revoked = true
	return m.store.Update(ctx, key)
}

// RegenerateKey revokes a key and mints a replacement for the same analyst
func (m *Manager) RegenerateKey(ctx context.Context, keyID string) (string, *APIKey, error) {
	old, err := m.store.GetByID(ctx, keyID)
	if err != nil {
		return "", nil, ErrKeyNotFound
	}

	old.Revoked = true
	if err := m.store.Update(ctx, old); err != nil {
		return "", nil, err
	}

	return m.GenerateKey(ctx, old.Owner, old.Name, 0)
}

func hashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey // by ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*APIKey),
	}
}

func (s *MemoryStore) Create(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if k.Hash == hash {
			return k, nil
		}
	}
	return nil, ErrKeyNotFound
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

func (s *MemoryStore) GetByOwner(ctx context.Context, owner string) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*APIKey
	for _, k := range s.keys {
		if k.Owner == owner {
			result = append(result, k)
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, id)
	return nil
}
