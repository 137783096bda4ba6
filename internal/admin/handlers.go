package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warden/internal/forensics"
)

// Maintenance is the set of sweep operations. *engine.Engine satisfies it.
type Maintenance interface {
	EndIdleSessions(ctx context.Context) int
	CompactArchives() int
	PruneBlocklist() int
}

// Unblocker lifts user blocks before their expiry. *response.Blocklist
// satisfies it.
type Unblocker interface {
	Unblock(userID string) bool
}

// ForensicExporter lists forensic records for offline analysis.
type ForensicExporter interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]*forensics.Record, error)
}

// Handler provides operator HTTP endpoints.
type Handler struct {
	maintenance Maintenance
	unblocker   Unblocker
	exporter    ForensicExporter
}

// NewHandler creates a new admin handler.
func NewHandler() *Handler {
	return &Handler{}
}

// WithMaintenance sets the sweep target for on-demand maintenance passes.
func (h *Handler) WithMaintenance(m Maintenance) *Handler {
	h.maintenance = m
	return h
}

// WithUnblocker sets the blocklist for manual unblocks.
func (h *Handler) WithUnblocker(u Unblocker) *Handler {
	h.unblocker = u
	return h
}

// WithForensicExporter sets the forensic store for record export.
func (h *Handler) WithForensicExporter(e ForensicExporter) *Handler {
	h.exporter = e
	return h
}

// RegisterRoutes sets up admin routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/admin/users/:userId/unblock", h.unblockUser)
	r.POST("/admin/sweep", h.triggerSweep)
	r.GET("/admin/forensics/export", h.exportForensics)
}

// unblockUser lifts an active block ahead of its expiry.
func (h *Handler) unblockUser(c *gin.Context) {
	if h.unblocker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "blocklist not configured"})
		return
	}

	userID := c.Param("userId")
	if !h.unblocker.Unblock(userID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_blocked",
			"message": "User has no active block",
			"userId":  userID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unblocked": true, "userId": userID})
}

// triggerSweep runs an on-demand maintenance pass.
func (h *Handler) triggerSweep(c *gin.Context) {
	if h.maintenance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "maintenance not configured"})
		return
	}

	report := SweepReport{
		IdleSessionsEnded: h.maintenance.EndIdleSessions(c.Request.Context()),
		ArchivesCompacted: h.maintenance.CompactArchives(),
		BlocksPruned:      h.maintenance.PruneBlocklist(),
		Timestamp:         time.Now().UTC(),
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// exportForensics exports forensic records captured since a cutoff.
func (h *Handler) exportForensics(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "forensic export not configured"})
		return
	}

	since := time.Now().AddDate(0, 0, -30) // Default: last 30 days
	if s := c.Query("since"); s != "" {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			since = parsed
		}
	}

	limit := 1000
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 10000 {
			limit = parsed
		}
	}

	records, err := h.exporter.ListSince(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export forensics", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records), "since": since})
}
