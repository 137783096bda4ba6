package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the warden API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Analyst API key; optional for open deployments
}

// WardenClient is a pure HTTP client for the warden management API.
type WardenClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewWardenClient creates a new client for the warden API.
func NewWardenClient(cfg Config) *WardenClient {
	return &WardenClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *WardenClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetSessionStatus returns the live risk status for a user's session.
func (c *WardenClient) GetSessionStatus(ctx context.Context, userID string) (json.RawMessage, error) {
	path := "/api/v1/sessions/" + userID + "/status"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// EndSession ends a user's session and returns the archived summary.
func (c *WardenClient) EndSession(ctx context.Context, userID string) (json.RawMessage, error) {
	path := "/api/v1/sessions/" + userID + "/end"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// GetRiskLevels returns the escalation thresholds and action table.
func (c *WardenClient) GetRiskLevels(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/risk-levels", nil, nil)
}

// ListBlockedUsers returns the currently blocked users.
func (c *WardenClient) ListBlockedUsers(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/blocked-users", nil, nil)
}

// ListForensicReports lists forensic records captured for a user.
func (c *WardenClient) ListForensicReports(ctx context.Context, userID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/users/" + userID + "/forensics"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// GetForensicReport returns a single forensic record by ID.
func (c *WardenClient) GetForensicReport(ctx context.Context, recordID string) (json.RawMessage, error) {
	path := "/api/v1/forensics/" + recordID
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// CaptureForensics captures a forensic snapshot of a user's live session.
func (c *WardenClient) CaptureForensics(ctx context.Context, userID string) (json.RawMessage, error) {
	path := "/api/v1/users/" + userID + "/forensics"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// GetBaseline returns the learned behavioral baseline for a user.
func (c *WardenClient) GetBaseline(ctx context.Context, userID string) (json.RawMessage, error) {
	path := "/api/v1/users/" + userID + "/baseline"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// GetPlatformStats returns instance-wide session and response statistics.
func (c *WardenClient) GetPlatformStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/v1/stats", nil, nil)
}
