package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all warden analyst tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("warden", "1.0.0")
	client := NewWardenClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetSessionStatus, h.HandleGetSessionStatus)
	s.AddTool(ToolGetRiskLevels, h.HandleGetRiskLevels)
	s.AddTool(ToolListBlockedUsers, h.HandleListBlockedUsers)
	s.AddTool(ToolListForensicReports, h.HandleListForensicReports)
	s.AddTool(ToolGetForensicReport, h.HandleGetForensicReport)
	s.AddTool(ToolEndSession, h.HandleEndSession)
	s.AddTool(ToolCaptureForensics, h.HandleCaptureForensics)
	s.AddTool(ToolGetUserBaseline, h.HandleGetUserBaseline)
	s.AddTool(ToolGetPlatformStats, h.HandleGetPlatformStats)

	return s
}
