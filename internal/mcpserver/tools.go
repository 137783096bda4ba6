package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the warden MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetSessionStatus = mcp.NewTool("get_session_status",
	mcp.WithDescription(
		"Get the live risk status of a user's behavioral authentication session. "+
			"Shows the current composite risk score and level, event and anomaly counts, "+
			"drift state, monitoring mode, and whether the user is blocked. "+
			"Use this first when investigating a user."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user identifier (e.g. 'alice' or 'alice@corp.example')")),
)

var ToolGetRiskLevels = mcp.NewTool("get_risk_levels",
	mcp.WithDescription(
		"Get the escalation policy: the score thresholds for each risk level "+
			"(critical/high/medium/low) and the response actions taken at each level, "+
			"plus the block duration applied to critical sessions."),
)

var ToolListBlockedUsers = mcp.NewTool("list_blocked_users",
	mcp.WithDescription(
		"List all users currently blocked by the response system, with the time "+
			"each block expires. Blocks are applied when a session escalates to "+
			"critical risk."),
)

var ToolListForensicReports = mcp.NewTool("list_forensic_reports",
	mcp.WithDescription(
		"List forensic records captured for a user, newest first. Records are "+
			"written automatically on critical escalations and anomaly patterns, "+
			"and on demand via capture_forensics."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user identifier to list records for")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of records to return (default 20)")),
)

var ToolGetForensicReport = mcp.NewTool("get_forensic_report",
	mcp.WithDescription(
		"Get the full detail of a single forensic record: session timeline, event "+
			"counts, risk metrics at capture time, behavioral indicators, and any "+
			"blocked anomaly patterns."),
	mcp.WithString("record_id",
		mcp.Required(),
		mcp.Description("The forensic record ID from a previous list_forensic_reports result (e.g. 'fr_...')")),
)

var ToolEndSession = mcp.NewTool("end_session",
	mcp.WithDescription(
		"End a user's active session and archive it. Use this to force a "+
			"re-authentication after investigating a suspicious session. "+
			"Returns the archived session summary."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user whose session should be ended")),
)

var ToolCaptureForensics = mcp.NewTool("capture_forensics",
	mcp.WithDescription(
		"Capture a forensic snapshot of a user's live session on demand, without "+
			"waiting for an automatic escalation. Returns the new record."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user whose session should be snapshotted")),
)

var ToolGetUserBaseline = mcp.NewTool("get_user_baseline",
	mcp.WithDescription(
		"Get the learned behavioral baseline for a user: mean and standard "+
			"deviation of their historical session risk, session and sample counts, "+
			"and anomaly rate. Useful for judging whether a current score is "+
			"unusual for this particular user."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user identifier to fetch the baseline for")),
)

var ToolGetPlatformStats = mcp.NewTool("get_platform_stats",
	mcp.WithDescription(
		"Get instance-wide statistics: active and idle session counts, blocked "+
			"users, learned baselines, and realtime stream clients."),
)
