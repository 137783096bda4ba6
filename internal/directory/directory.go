// Package directory looks up user identity attributes for alert enrichment.
//
// Lookups are best-effort: an unreachable directory never blocks risk
// processing, it only leaves alerts without identity context. Results are
// cached with a TTL so repeated escalations for the same user do not hammer
// the directory service.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/warden/internal/security"
)

// UserInfo carries the directory attributes attached to alerts.
type UserInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"title,omitempty"`
	Manager     string `json:"manager,omitempty"`

	fetchedAt time.Time
}

// Client fetches user records from an identity directory over HTTP.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]*UserInfo

	now func() time.Time
}

// NewClient validates the directory endpoint and builds a client.
// cacheTTL <= 0 uses the default of 5 minutes.
func NewClient(baseURL, token string, cacheTTL time.Duration) (*Client, error) {
	if err := security.ValidateEndpointURL(baseURL); err != nil {
		return nil, fmt.Errorf("invalid directory endpoint: %w", err)
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
		ttl:     cacheTTL,
		cache:   make(map[string]*UserInfo),
		now:     time.Now,
	}, nil
}

// Lookup returns directory attributes for userID. An unknown user yields
// (nil, nil); only transport and server failures are errors.
func (c *Client) Lookup(ctx context.Context, userID string) (*UserInfo, error) {
	c.mu.RLock()
	if info, ok := c.cache[userID]; ok && c.now().Sub(info.fetchedAt) < c.ttl {
		cp := *info
		c.mu.RUnlock()
		return &cp, nil
	}
	c.mu.RUnlock()

	info, err := c.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	info.fetchedAt = c.now()
	c.mu.Lock()
	c.cache[userID] = info
	c.mu.Unlock()

	cp := *info
	return &cp, nil
}

func (c *Client) fetch(ctx context.Context, userID string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	info := &UserInfo{}
	if err := json.NewDecoder(resp.Body).Decode(info); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	if info.UserID == "" {
		info.UserID = userID
	}
	return info, nil
}

// Static serves lookups from a fixed user table. It backs deployments that
// export their directory to a file instead of exposing a lookup service.
type Static struct {
	users map[string]*UserInfo
}

// NewStatic builds a static directory from a user list. Records without a
// user ID are skipped.
func NewStatic(users []*UserInfo) *Static {
	s := &Static{users: make(map[string]*UserInfo, len(users))}
	for _, u := range users {
		if u == nil || u.UserID == "" {
			continue
		}
		cp := *u
		s.users[u.UserID] = &cp
	}
	return s
}

// LoadStatic reads a JSON array of user records from path.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	var users []*UserInfo
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}
	return NewStatic(users), nil
}

// Size returns the number of users in the table.
func (s *Static) Size() int { return len(s.users) }

// Lookup returns the stored attributes for userID, (nil, nil) when absent.
func (s *Static) Lookup(_ context.Context, userID string) (*UserInfo, error) {
	info, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}
