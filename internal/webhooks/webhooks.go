// Package webhooks delivers risk events to external endpoints.
//
// Security teams register webhook URLs to receive notifications about:
// - Risk alerts raised by high and critical assessments
// - Users blocked for repeated anomalous behavior
// - Session lifecycle changes
//
// Payloads are signed with HMAC-SHA256 using the per-subscription secret.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mbd888/warden/internal/retry"
	"github.com/mbd888/warden/internal/security"
)

// ErrNotFound is returned when a subscription does not exist.
var ErrNotFound = errors.New("subscription not found")

// EventType represents the type of webhook event
type EventType string

const (
	EventRiskAlert      EventType = "risk.alert"
	EventRiskAssessment EventType = "risk.assessment"
	EventUserBlocked    EventType = "user.blocked"
	EventPatternBlocked EventType = "pattern.blocked"
	EventSessionEnded   EventType = "session.ended"
)

// KnownEventTypes lists every event type a subscription may request.
var KnownEventTypes = []EventType{
	EventRiskAlert,
	EventRiskAssessment,
	EventUserBlocked,
	EventPatternBlocked,
	EventSessionEnded,
}

// ValidEventType reports whether et is a deliverable event type.
func ValidEventType(et EventType) bool {
	for _, known := range KnownEventTypes {
		if et == known {
			return true
		}
	}
	return false
}

// Event represents a webhook event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a webhook subscription
type Subscription struct {
	ID          string      `json:"id"`
	Owner       string      `json:"owner"`
	URL         string      `json:"url"`
	Secret      string      `json:"-"` // Used for HMAC signing
	Events      []EventType `json:"events"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastSuccess *time.Time  `json:"lastSuccess,omitempty"`
	LastError   string      `json:"lastError,omitempty"`

	// ConsecutiveFailures counts delivery failures since the last success.
	// Subscriptions are disabled once it reaches RetryConfig.MaxFailures.
	ConsecutiveFailures int `json:"-"`
}

// Store persists webhook subscriptions
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByOwner(ctx context.Context, owner string) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// RetryConfig controls delivery retries and automatic deactivation.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxFailures int
}

// DefaultRetryConfig returns the delivery policy used by NewDispatcher.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxFailures: 10,
	}
}

// Dispatcher sends webhook events
type Dispatcher struct {
	store  Store
	client *http.Client
	retry  RetryConfig

	// urlValidator rejects unsafe endpoints before any request is made.
	// Tests override it to allow loopback servers.
	urlValidator func(string) error
}

// NewDispatcher creates a dispatcher with the default retry policy.
func NewDispatcher(store Store) *Dispatcher {
	return NewDispatcherWithRetry(store, DefaultRetryConfig())
}

// NewDispatcherWithRetry creates a dispatcher with an explicit retry policy.
func NewDispatcherWithRetry(store Store, rc RetryConfig) *Dispatcher {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = 1
	}
	if rc.BaseDelay <= 0 {
		rc.BaseDelay = 500 * time.Millisecond
	}
	if rc.MaxFailures <= 0 {
		rc.MaxFailures = 10
	}
	return &Dispatcher{
		store:        store,
		client:       &http.Client{Timeout: 10 * time.Second},
		retry:        rc,
		urlValidator: security.ValidateEndpointURL,
	}
}

// Dispatch sends an event to all active subscribers of its type
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Send async to avoid blocking
		go d.send(ctx, sub, event)
	}

	return nil
}

// DispatchToOwner sends an event to a specific owner's webhooks
func (d *Dispatcher) DispatchToOwner(ctx context.Context, owner string, event *Event) error {
	subs, err := d.store.GetByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}

		// Check if subscribed to this event type
		for _, et := range sub.Events {
			if et == event.Type {
				go d.send(ctx, sub, event)
				break
			}
		}
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if err := d.urlValidator(sub.URL); err != nil {
		d.updateError(ctx, sub, fmt.Sprintf("endpoint rejected: %v", err))
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	err = retry.Do(ctx, d.retry.MaxAttempts, d.retry.BaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Warden-Event", string(event.Type))
		req.Header.Set("X-Warden-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

		// Sign the payload if secret is set
		if sub.Secret != "" {
			req.Header.Set("X-Warden-Signature", d.sign(payload, sub.Secret))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	})
	if err != nil {
		d.updateError(ctx, sub, err.Error())
		return
	}

	d.updateSuccess(ctx, sub)
}

func (d *Dispatcher) sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	sub.ConsecutiveFailures = 0
	_ = d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	sub.ConsecutiveFailures++
	if sub.ConsecutiveFailures >= d.retry.MaxFailures {
		sub.Active = false
	}
	_ = d.store.Update(ctx, sub)
}

// MemoryStore is an in-memory implementation for testing
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs: make(map[string]*Subscription),
	}
}

func copySubscription(sub *Subscription) *Subscription {
	cp := *sub
	cp.Events = append([]EventType(nil), sub.Events...)
	if sub.LastSuccess != nil {
		t := *sub.LastSuccess
		cp.LastSuccess = &t
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = copySubscription(sub)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return copySubscription(sub), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetByOwner(ctx context.Context, owner string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.Owner == owner {
			result = append(result, copySubscription(sub))
		}
	}
	return result, nil
}

func (m *MemoryStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		for _, et := range sub.Events {
			if et == eventType {
				result = append(result, copySubscription(sub))
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	m.subs[sub.ID] = copySubscription(sub)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
