package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *WardenClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *WardenClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetSessionStatus returns the live risk status for a user.
func (h *Handlers) HandleGetSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetSessionStatus(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get session status: %v", err)), nil
	}

	text, err := formatStatus(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse status: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetRiskLevels returns the escalation policy.
func (h *Handlers) HandleGetRiskLevels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetRiskLevels(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get risk levels: %v", err)), nil
	}

	text, err := formatRiskLevels(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse risk levels: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListBlockedUsers lists users currently held by the blocklist.
func (h *Handlers) HandleListBlockedUsers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListBlockedUsers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list blocked users: %v", err)), nil
	}

	text, err := formatBlockedUsers(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse blocked users: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListForensicReports lists forensic records for a user.
func (h *Handlers) HandleListForensicReports(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListForensicReports(ctx, userID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list forensic reports: %v", err)), nil
	}

	text, err := formatForensicList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse forensic reports: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetForensicReport returns the full detail of one forensic record.
func (h *Handlers) HandleGetForensicReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordID := req.GetString("record_id", "")
	if recordID == "" {
		return mcp.NewToolResultError("record_id is required"), nil
	}

	raw, err := h.client.GetForensicReport(ctx, recordID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get forensic report: %v", err)), nil
	}

	text, err := formatForensicRecord(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse forensic report: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleEndSession ends a user's session and reports the archived summary.
func (h *Handlers) HandleEndSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.EndSession(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to end session: %v", err)), nil
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	if getString(resp, "status") == "no_active_session" {
		return mcp.NewToolResultText(fmt.Sprintf("No active session for %s. Nothing to end.", userID)), nil
	}

	session, _ := resp["session"].(map[string]any)
	if session == nil {
		return mcp.NewToolResultText(fmt.Sprintf("Session ended for %s.", userID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session ended for %s and archived.\n", userID)
	keystrokes, _ := getFloat(session, "keystrokeCount")
	pointer, _ := getFloat(session, "pointerCount")
	fmt.Fprintf(&sb, "  Events: %.0f keystrokes, %.0f pointer\n", keystrokes, pointer)
	if v, ok := getFloat(session, "anomalyCount"); ok {
		fmt.Fprintf(&sb, "  Anomalies: %.0f\n", v)
	}
	mean, _ := getFloat(session, "meanRisk")
	max, _ := getFloat(session, "maxRisk")
	final, _ := getFloat(session, "finalRisk")
	fmt.Fprintf(&sb, "  Risk: mean %.1f, max %.1f, final %.1f\n", mean, max, final)
	fmt.Fprintf(&sb, "  Archive ID: %s", getString(session, "id"))

	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCaptureForensics snapshots a live session on demand.
func (h *Handlers) HandleCaptureForensics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.CaptureForensics(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Forensic capture failed: %v", err)), nil
	}

	text, err := formatForensicRecord(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse forensic record: %v", err)), nil
	}

	return mcp.NewToolResultText("Forensic snapshot captured.\n\n" + text), nil
}

// HandleGetUserBaseline returns the learned baseline for a user.
func (h *Handlers) HandleGetUserBaseline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}

	raw, err := h.client.GetBaseline(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get baseline: %v", err)), nil
	}

	text, err := formatBaseline(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse baseline: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetPlatformStats returns instance-wide statistics.
func (h *Handlers) HandleGetPlatformStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetPlatformStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get platform stats: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// --- Formatting helpers ---

func formatStatus(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", getString(m, "userId"))

	score, _ := getFloat(m, "currentRiskScore")
	fmt.Fprintf(&sb, "  Risk: %.1f (%s)\n", score, getString(m, "riskLevel"))

	events, _ := getFloat(m, "eventCount")
	anomalies, _ := getFloat(m, "anomalyCount")
	consecutive, _ := getFloat(m, "consecutiveAnomalies")
	fmt.Fprintf(&sb, "  Events: %.0f | Anomalies: %.0f (%.0f consecutive)\n", events, anomalies, consecutive)

	if getBool(m, "hasDrift") {
		sb.WriteString("  Drift: behavioral drift detected\n")
	}
	if v := getString(m, "monitoring"); v != "" {
		fmt.Fprintf(&sb, "  Monitoring: %s\n", v)
	}
	if getBool(m, "isBlocked") {
		fmt.Fprintf(&sb, "  BLOCKED until %s\n", getString(m, "blockedUntil"))
	}
	if v, ok := getFloat(m, "baselineDeviation"); ok {
		fmt.Fprintf(&sb, "  Baseline deviation: %+.1f sd from this user's historical mean\n", v)
	}
	if u, ok := m["user"].(map[string]any); ok {
		name := getString(u, "displayName")
		if name == "" {
			name = getString(u, "userId")
		}
		if dept := getString(u, "department"); dept != "" {
			fmt.Fprintf(&sb, "  User: %s (%s)\n", name, dept)
		} else if name != "" {
			fmt.Fprintf(&sb, "  User: %s\n", name)
		}
	}
	fmt.Fprintf(&sb, "  Started: %s | Last activity: %s\n", getString(m, "startTime"), getString(m, "lastActivity"))

	return sb.String(), nil
}

func formatRiskLevels(raw json.RawMessage) (string, error) {
	var resp struct {
		Thresholds    map[string]float64  `json:"thresholds"`
		Actions       map[string][]string `json:"actions"`
		BlockDuration string              `json:"blockDuration"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if resp.Thresholds == nil {
		return "", fmt.Errorf("unexpected risk-levels response format")
	}

	var sb strings.Builder
	sb.WriteString("Escalation policy:\n")
	for _, level := range []string{"critical", "high", "medium", "low"} {
		threshold, ok := resp.Thresholds[level]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "  %-8s score >= %.0f", level, threshold)
		if actions := resp.Actions[level]; len(actions) > 0 {
			fmt.Fprintf(&sb, "  ->  %s", strings.Join(actions, ", "))
		}
		sb.WriteString("\n")
	}
	if resp.BlockDuration != "" {
		fmt.Fprintf(&sb, "\nCritical-level blocks last %s.\n", resp.BlockDuration)
	}
	return sb.String(), nil
}

func formatBlockedUsers(raw json.RawMessage) (string, error) {
	var resp struct {
		BlockedUsers []map[string]any `json:"blockedUsers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.BlockedUsers) == 0 {
		return "No users are currently blocked.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d blocked user(s):\n\n", len(resp.BlockedUsers))
	for i, u := range resp.BlockedUsers {
		fmt.Fprintf(&sb, "%d. %s (blocked until %s)\n", i+1, getString(u, "userId"), getString(u, "blockedUntil"))
	}
	return sb.String(), nil
}

func formatForensicList(raw json.RawMessage) (string, error) {
	var resp struct {
		Records []map[string]any `json:"records"`
		HasMore bool             `json:"hasMore"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Records) == 0 {
		return "No forensic records found for this user.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d forensic record(s):\n\n", len(resp.Records))
	for i, rec := range resp.Records {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, getString(rec, "id"), getString(rec, "reason"))
		fmt.Fprintf(&sb, "   Captured: %s", getString(rec, "capturedAt"))
		if metrics, ok := rec["riskMetrics"].(map[string]any); ok {
			if v, ok := getFloat(metrics, "currentCompositeRisk"); ok {
				fmt.Fprintf(&sb, " | Risk at capture: %.1f", v)
			}
		}
		sb.WriteString("\n")
	}
	if resp.HasMore {
		sb.WriteString("\nMore records exist. Raise the limit to fetch them.\n")
	}
	return sb.String(), nil
}

func formatForensicRecord(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	if getString(m, "id") == "" {
		return "", fmt.Errorf("unexpected forensic record format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Forensic record %s\n", getString(m, "id"))
	fmt.Fprintf(&sb, "  User: %s | Reason: %s\n", getString(m, "userId"), getString(m, "reason"))
	fmt.Fprintf(&sb, "  Captured: %s\n", getString(m, "capturedAt"))
	if v, ok := getFloat(m, "sessionDurationSeconds"); ok {
		fmt.Fprintf(&sb, "  Session: started %s, %.0fs old at capture\n", getString(m, "sessionStart"), v)
	}

	if counts, ok := m["eventCounts"].(map[string]any); ok {
		keystrokes, _ := getFloat(counts, "keystrokes")
		pointer, _ := getFloat(counts, "pointerEvents")
		fmt.Fprintf(&sb, "  Events: %.0f keystrokes, %.0f pointer\n", keystrokes, pointer)
	}

	if metrics, ok := m["riskMetrics"].(map[string]any); ok {
		composite, _ := getFloat(metrics, "currentCompositeRisk")
		keystroke, _ := getFloat(metrics, "keystrokeRisk")
		pointer, _ := getFloat(metrics, "pointerRisk")
		fmt.Fprintf(&sb, "  Risk: %.1f composite (keystroke %.1f, pointer %.1f)", composite, keystroke, pointer)
		if trend := getString(metrics, "riskTrend"); trend != "" {
			fmt.Fprintf(&sb, ", trend %s", trend)
		}
		sb.WriteString("\n")
	}

	if ind, ok := m["behavioralIndicators"].(map[string]any); ok {
		if getBool(ind, "hasDrift") {
			sb.WriteString("  Drift: behavioral drift present at capture\n")
		}
		if freq, ok := ind["eventFrequency"].(map[string]any); ok {
			keystrokes, _ := getFloat(freq, "keystrokes")
			pointer, _ := getFloat(freq, "pointerEvents")
			fmt.Fprintf(&sb, "  Rates: %.2f keystrokes/s, %.2f pointer/s\n", keystrokes, pointer)
		}
	}

	if patterns, ok := m["blockedPatterns"].([]any); ok && len(patterns) > 0 {
		names := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if s, ok := p.(string); ok {
				names = append(names, s)
			}
		}
		fmt.Fprintf(&sb, "  Blocked patterns: %s\n", strings.Join(names, ", "))
	}
	if counts, ok := m["patternCounts"].(map[string]any); ok && len(counts) > 0 {
		parts := make([]string, 0, len(counts))
		for sig, n := range counts {
			if v, ok := n.(float64); ok {
				parts = append(parts, fmt.Sprintf("%s (x%.0f)", sig, v))
			}
		}
		sort.Strings(parts)
		fmt.Fprintf(&sb, "  Pattern counts: %s\n", strings.Join(parts, ", "))
	}

	return sb.String(), nil
}

func formatBaseline(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	userID := getString(m, "userId")
	if userID == "" {
		return "", fmt.Errorf("unexpected baseline response format")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Baseline for %s:\n", userID)
	mean, _ := getFloat(m, "meanRisk")
	stddev, _ := getFloat(m, "stddevRisk")
	fmt.Fprintf(&sb, "  Historical risk: mean %.1f, stddev %.1f\n", mean, stddev)
	sessions, _ := getFloat(m, "sessionCount")
	samples, _ := getFloat(m, "sampleCount")
	fmt.Fprintf(&sb, "  Learned from %.0f session(s), %.0f sample(s)\n", sessions, samples)
	if v, ok := getFloat(m, "anomalyRate"); ok {
		fmt.Fprintf(&sb, "  Anomaly rate: %.1f%%\n", v*100)
	}
	if v := getString(m, "lastUpdated"); v != "" {
		fmt.Fprintf(&sb, "  Last updated: %s\n", v)
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// getBool extracts a bool value from a map.
func getBool(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return false
}
