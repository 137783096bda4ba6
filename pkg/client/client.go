package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a warden instance over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string

	// APIKey is sent as a Bearer token when set. Open deployments accept
	// requests without one.
	APIKey string

	// OnAssessment, if set, is called with every assessment returned by a
	// submit call. Collectors use it as a single choke point for reacting
	// to escalations.
	OnAssessment func(*Assessment)
}

// New creates a client for the warden instance at baseURL.
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// do performs one API request, decoding the response into out when it is
// non-nil. Error responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// SubmitKeystroke submits one keystroke event and returns the engine's
// assessment.
func (c *Client) SubmitKeystroke(ctx context.Context, ev KeystrokeEvent) (*Assessment, error) {
	var a Assessment
	if err := c.do(ctx, http.MethodPost, "/api/v1/events/keystroke", ev, &a); err != nil {
		return nil, err
	}
	if c.OnAssessment != nil {
		c.OnAssessment(&a)
	}
	return &a, nil
}

// SubmitMouse submits one pointer event and returns the engine's
// assessment.
func (c *Client) SubmitMouse(ctx context.Context, ev MouseEvent) (*Assessment, error) {
	var a Assessment
	if err := c.do(ctx, http.MethodPost, "/api/v1/events/mouse", ev, &a); err != nil {
		return nil, err
	}
	if c.OnAssessment != nil {
		c.OnAssessment(&a)
	}
	return &a, nil
}

// SessionStatus returns the live status of a user's session.
func (c *Client) SessionStatus(ctx context.Context, userID string) (*SessionStatus, error) {
	var st SessionStatus
	path := "/api/v1/sessions/" + url.PathEscape(userID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// EndSession ends a user's session. Ending an absent session is not an
// error; check Ended on the result.
func (c *Client) EndSession(ctx context.Context, userID string) (*EndSessionResult, error) {
	var res EndSessionResult
	path := "/api/v1/sessions/" + url.PathEscape(userID) + "/end"
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RiskLevels returns the instance's escalation policy.
func (c *Client) RiskLevels(ctx context.Context) (*RiskLevels, error) {
	var rl RiskLevels
	if err := c.do(ctx, http.MethodGet, "/api/v1/risk-levels", nil, &rl); err != nil {
		return nil, err
	}
	return &rl, nil
}

// BlockedUsers returns the users currently held by the blocklist.
func (c *Client) BlockedUsers(ctx context.Context) ([]BlockedUser, error) {
	var resp struct {
		BlockedUsers []BlockedUser `json:"blockedUsers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/blocked-users", nil, &resp); err != nil {
		return nil, err
	}
	return resp.BlockedUsers, nil
}

// Baseline returns the learned behavioral baseline for a user.
func (c *Client) Baseline(ctx context.Context, userID string) (*Baseline, error) {
	var b Baseline
	path := "/api/v1/users/" + url.PathEscape(userID) + "/baseline"
	if err := c.do(ctx, http.MethodGet, path, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
