package response

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes the escalation policy over HTTP.
type Handler struct {
	responder *Responder
}

// NewHandler creates a policy handler.
func NewHandler(r *Responder) *Handler {
	return &Handler{responder: r}
}

// RegisterRoutes registers policy routes on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/risk-levels", h.getRiskLevels)
	r.GET("/blocked-users", h.listBlockedUsers)
}

// getRiskLevels returns the classification thresholds and the action table.
func (h *Handler) getRiskLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"thresholds": h.responder.Thresholds(),
		"actions": gin.H{
			string(LevelCritical): ActionsFor(LevelCritical),
			string(LevelHigh):     ActionsFor(LevelHigh),
			string(LevelMedium):   ActionsFor(LevelMedium),
			string(LevelLow):      ActionsFor(LevelLow),
		},
		"blockDuration": h.responder.BlockDuration().String(),
	})
}

type blockedUser struct {
	UserID       string    `json:"userId"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// listBlockedUsers returns the live blocklist sorted by user ID.
func (h *Handler) listBlockedUsers(c *gin.Context) {
	snapshot := h.responder.Blocklist().Snapshot()
	users := make([]blockedUser, 0, len(snapshot))
	for id, until := range snapshot {
		users = append(users, blockedUser{UserID: id, BlockedUntil: until})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	c.JSON(http.StatusOK, gin.H{
		"blockedUsers": users,
		"count":        len(users),
	})
}
