package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL: ts.URL,
		APIKey: "wk_test_key",
	}
	client := NewWardenClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_secret123"})
	_, err := client.GetRiskLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer wk_secret123", gotAuth)
}

func TestClient_DoRequest_NoAuthHeaderWithoutKey(t *testing.T) {
	var sawAuth bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL})
	_, err := client.GetRiskLevels(context.Background())
	require.NoError(t, err)
	assert.False(t, sawAuth, "no Authorization header expected for open deployments")
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "user_blocked",
			"message": "User is blocked",
		})
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.GetSessionStatus(context.Background(), "mallory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "User is blocked")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.GetRiskLevels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewWardenClient(Config{APIURL: "http://127.0.0.1:1", APIKey: "wk_k"})
	_, err := client.GetRiskLevels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	_, err := client.GetRiskLevels(ctx)
	require.Error(t, err)
}

func TestClient_GetSessionStatus_Path(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/sessions/alice/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"userId":"alice"}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.GetSessionStatus(context.Background(), "alice")
	require.NoError(t, err)
}

func TestClient_EndSession_Method(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/sessions/bob/end", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ended"}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.EndSession(context.Background(), "bob")
	require.NoError(t, err)
}

func TestClient_ListForensicReports_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/alice/forensics", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.ListForensicReports(context.Background(), "alice", 5)
	require.NoError(t, err)
}

func TestClient_ListForensicReports_ZeroLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"), "limit=0 should not be sent")
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.ListForensicReports(context.Background(), "alice", 0)
	require.NoError(t, err)
}

func TestClient_CaptureForensics_Method(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/users/carol/forensics", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"fr_1"}`))
	}))
	defer ts.Close()

	client := NewWardenClient(Config{APIURL: ts.URL, APIKey: "wk_k"})
	_, err := client.CaptureForensics(context.Background(), "carol")
	require.NoError(t, err)
}

// ============================================================
// Handler: get_session_status
// ============================================================

func TestHandleGetSessionStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/alice/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer wk_test_key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId":               "alice",
			"startTime":            "2026-06-01T10:00:00Z",
			"lastActivity":         "2026-06-01T10:30:00Z",
			"eventCount":           120,
			"currentRiskScore":     34.2,
			"riskLevel":            "medium",
			"hasDrift":             false,
			"anomalyCount":         3,
			"consecutiveAnomalies": 1,
			"monitoring":           "",
			"isBlocked":            false,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSessionStatus(context.Background(), makeRequest(map[string]any{
		"user_id": "alice",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Session: alice")
	assert.Contains(t, text, "34.2 (medium)")
	assert.Contains(t, text, "Events: 120")
	assert.Contains(t, text, "Anomalies: 3 (1 consecutive)")
	assert.NotContains(t, text, "BLOCKED")
	assert.NotContains(t, text, "Drift")
}

func TestHandleGetSessionStatus_MissingUserID(t *testing.T) {
	h := NewHandlers(NewWardenClient(Config{}))
	result, err := h.HandleGetSessionStatus(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

func TestHandleGetSessionStatus_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/ghost/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "session_not_found",
			"message": "No active session for user",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSessionStatus(context.Background(), makeRequest(map[string]any{
		"user_id": "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No active session for user")
}

func TestHandleGetSessionStatus_BlockedWithDrift(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/mallory/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId":               "mallory",
			"eventCount":           300,
			"currentRiskScore":     93.5,
			"riskLevel":            "critical",
			"hasDrift":             true,
			"anomalyCount":         12,
			"consecutiveAnomalies": 5,
			"monitoring":           "increased",
			"isBlocked":            true,
			"blockedUntil":         "2026-06-01T12:00:00Z",
			"baselineDeviation":    3.4,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSessionStatus(context.Background(), makeRequest(map[string]any{
		"user_id": "mallory",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "93.5 (critical)")
	assert.Contains(t, text, "drift detected")
	assert.Contains(t, text, "Monitoring: increased")
	assert.Contains(t, text, "BLOCKED until 2026-06-01T12:00:00Z")
	assert.Contains(t, text, "+3.4 sd")
}

func TestHandleGetSessionStatus_WithDirectoryUser(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/asmith/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId":           "asmith",
			"currentRiskScore": 12.0,
			"riskLevel":        "low",
			"user": map[string]any{
				"userId":      "asmith",
				"displayName": "Alice Smith",
				"department":  "Engineering",
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetSessionStatus(context.Background(), makeRequest(map[string]any{
		"user_id": "asmith",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Alice Smith (Engineering)")
}

// ============================================================
// Handler: get_risk_levels
// ============================================================

func TestHandleGetRiskLevels(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/risk-levels", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"thresholds": map[string]float64{
				"critical": 90, "high": 75, "medium": 50, "low": 25,
			},
			"actions": map[string][]string{
				"critical": {"lock_session", "collect_forensics", "notify_admin", "block_user"},
				"high":     {"notify_admin", "increase_monitoring"},
				"medium":   {"monitor"},
				"low":      {"normal_monitoring"},
			},
			"blockDuration": "1h0m0s",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetRiskLevels(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "critical")
	assert.Contains(t, text, "score >= 90")
	assert.Contains(t, text, "lock_session, collect_forensics, notify_admin, block_user")
	assert.Contains(t, text, "score >= 25")
	assert.Contains(t, text, "1h0m0s")

	// Levels appear in severity order.
	assert.Less(t, strings.Index(text, "critical"), strings.Index(text, "low"))
}

func TestHandleGetRiskLevels_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/risk-levels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "internal", "message": "db down"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetRiskLevels(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "db down")
}

// ============================================================
// Handler: list_blocked_users
// ============================================================

func TestHandleListBlockedUsers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/blocked-users", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"blockedUsers": []map[string]any{
				{"userId": "bob", "blockedUntil": "2026-06-01T12:00:00Z"},
				{"userId": "mallory", "blockedUntil": "2026-06-01T13:30:00Z"},
			},
			"count": 2,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListBlockedUsers(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 blocked user(s)")
	assert.Contains(t, text, "bob")
	assert.Contains(t, text, "mallory")
	assert.Contains(t, text, "2026-06-01T13:30:00Z")
}

func TestHandleListBlockedUsers_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/blocked-users", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"blockedUsers": []map[string]any{}, "count": 0})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListBlockedUsers(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No users are currently blocked")
}

// ============================================================
// Handler: list_forensic_reports
// ============================================================

func TestHandleListForensicReports(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/mallory/forensics", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId": "mallory",
			"records": []map[string]any{
				{
					"id": "fr_abc123", "userId": "mallory", "reason": "critical_risk",
					"capturedAt":  "2026-06-01T11:00:00Z",
					"riskMetrics": map[string]any{"currentCompositeRisk": 92.1},
				},
				{
					"id": "fr_def456", "userId": "mallory", "reason": "pattern_detected",
					"capturedAt":  "2026-06-01T10:45:00Z",
					"riskMetrics": map[string]any{"currentCompositeRisk": 78.0},
				},
			},
			"hasMore": false,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListForensicReports(context.Background(), makeRequest(map[string]any{
		"user_id": "mallory",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 forensic record(s)")
	assert.Contains(t, text, "fr_abc123")
	assert.Contains(t, text, "critical_risk")
	assert.Contains(t, text, "92.1")
	assert.Contains(t, text, "fr_def456")
	assert.NotContains(t, text, "More records exist")
}

func TestHandleListForensicReports_MissingUserID(t *testing.T) {
	h := NewHandlers(NewWardenClient(Config{}))
	result, err := h.HandleListForensicReports(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

func TestHandleListForensicReports_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/alice/forensics", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId": "alice", "records": []map[string]any{}, "hasMore": false,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListForensicReports(context.Background(), makeRequest(map[string]any{
		"user_id": "alice",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No forensic records found")
}

func TestHandleListForensicReports_HasMore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/mallory/forensics", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId": "mallory",
			"records": []map[string]any{
				{"id": "fr_1", "reason": "critical_risk", "capturedAt": "2026-06-01T11:00:00Z"},
			},
			"hasMore": true,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListForensicReports(context.Background(), makeRequest(map[string]any{
		"user_id": "mallory",
		"limit":   1,
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "More records exist")
}

// ============================================================
// Handler: get_forensic_report
// ============================================================

func TestHandleGetForensicReport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/forensics/fr_abc123", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                     "fr_abc123",
			"userId":                 "mallory",
			"reason":                 "pattern_detected",
			"capturedAt":             "2026-06-01T11:00:00Z",
			"sessionStart":           "2026-06-01T10:00:00Z",
			"sessionDurationSeconds": 3600.0,
			"eventCounts":            map[string]any{"keystrokes": 900, "pointerEvents": 450},
			"riskMetrics": map[string]any{
				"currentCompositeRisk": 88.4,
				"keystrokeRisk":        95.0,
				"pointerRisk":          78.5,
				"riskTrend":            "increasing",
			},
			"behavioralIndicators": map[string]any{
				"hasDrift": true,
				"eventFrequency": map[string]any{
					"keystrokes": 0.25, "pointerEvents": 0.125,
				},
			},
			"blockedPatterns": []string{"a1b2c3d4"},
			"patternCounts":   map[string]int{"a1b2c3d4": 3},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetForensicReport(context.Background(), makeRequest(map[string]any{
		"record_id": "fr_abc123",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Forensic record fr_abc123")
	assert.Contains(t, text, "User: mallory | Reason: pattern_detected")
	assert.Contains(t, text, "900 keystrokes, 450 pointer")
	assert.Contains(t, text, "88.4 composite")
	assert.Contains(t, text, "trend increasing")
	assert.Contains(t, text, "drift present")
	assert.Contains(t, text, "Blocked patterns: a1b2c3d4")
	assert.Contains(t, text, "a1b2c3d4 (x3)")
}

func TestHandleGetForensicReport_MissingRecordID(t *testing.T) {
	h := NewHandlers(NewWardenClient(Config{}))
	result, err := h.HandleGetForensicReport(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "record_id is required")
}

func TestHandleGetForensicReport_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/forensics/fr_missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_found",
			"message": "Forensic record not found",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetForensicReport(context.Background(), makeRequest(map[string]any{
		"record_id": "fr_missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Forensic record not found")
}

// ============================================================
// Handler: end_session
// ============================================================

func TestHandleEndSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/mallory/end", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ended",
			"session": map[string]any{
				"id":             "arc_123",
				"userId":         "mallory",
				"keystrokeCount": 900,
				"pointerCount":   450,
				"anomalyCount":   12,
				"meanRisk":       64.2,
				"maxRisk":        93.5,
				"finalRisk":      88.0,
			},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleEndSession(context.Background(), makeRequest(map[string]any{
		"user_id": "mallory",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Session ended for mallory")
	assert.Contains(t, text, "900 keystrokes, 450 pointer")
	assert.Contains(t, text, "mean 64.2, max 93.5, final 88.0")
	assert.Contains(t, text, "arc_123")
}

func TestHandleEndSession_NoActiveSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sessions/ghost/end", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "no_active_session"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleEndSession(context.Background(), makeRequest(map[string]any{
		"user_id": "ghost",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No active session for ghost")
}

func TestHandleEndSession_MissingUserID(t *testing.T) {
	h := NewHandlers(NewWardenClient(Config{}))
	result, err := h.HandleEndSession(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

// ============================================================
// Handler: capture_forensics
// ============================================================

func TestHandleCaptureForensics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/mallory/forensics", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "fr_new1",
			"userId":     "mallory",
			"reason":     "manual",
			"capturedAt": "2026-06-01T11:05:00Z",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCaptureForensics(context.Background(), makeRequest(map[string]any{
		"user_id": "mallory",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Forensic snapshot captured")
	assert.Contains(t, text, "fr_new1")
}

func TestHandleCaptureForensics_NoSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/ghost/forensics", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "session_not_found",
			"message": "No active session for user",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleCaptureForensics(context.Background(), makeRequest(map[string]any{
		"user_id": "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No active session for user")
}

func TestHandleCaptureForensics_MissingUserID(t *testing.T) {
	h := NewHandlers(NewWardenClient(Config{}))
	result, err := h.HandleCaptureForensics(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

// ============================================================
// Handler: get_user_baseline
// ============================================================

func TestHandleGetUserBaseline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/alice/baseline", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"userId":       "alice",
			"meanRisk":     32.5,
			"stddevRisk":   7.8,
			"sessionCount": 14,
			"sampleCount":  5321,
			"anomalyRate":  0.021,
			"lastUpdated":  "2026-06-01T09:00:00Z",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetUserBaseline(context.Background(), makeRequest(map[string]any{
		"user_id": "alice",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Baseline for alice")
	assert.Contains(t, text, "mean 32.5, stddev 7.8")
	assert.Contains(t, text, "14 session(s)")
	assert.Contains(t, text, "2.1%")
	assert.Contains(t, text, "2026-06-01T09:00:00Z")
}

func TestHandleGetUserBaseline_NotLearned(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/newbie/baseline", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "baseline_not_found",
			"message": "No baseline learned for user yet",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetUserBaseline(context.Background(), makeRequest(map[string]any{
		"user_id": "newbie",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No baseline learned")
}

func TestHandleGetUserBaseline_MissingUserID(t *testing.T) {
	h := NewHandlers(NewWardenClient(Config{}))
	result, err := h.HandleGetUserBaseline(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

// ============================================================
// Handler: get_platform_stats
// ============================================================

func TestHandleGetPlatformStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"activeSessions": 42,
			"blockedUsers":   2,
			"baselines":      117,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetPlatformStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "activeSessions")
	assert.Contains(t, text, "42")
}

func TestHandleGetPlatformStats_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "unavailable", "message": "shutting down"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetPlatformStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "shutting down")
}
