package forensics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warden/internal/pagination"
)

// Handler exposes forensic records over HTTP.
type Handler struct {
	store Store
}

// NewHandler creates a forensic record handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers forensic routes on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/forensics/:recordId", h.GetRecord)
	r.GET("/users/:userId/forensics", h.ListRecords)
}

// GetRecord handles GET /forensics/:recordId
func (h *Handler) GetRecord(c *gin.Context) {
	rec, err := h.store.Get(c.Request.Context(), c.Param("recordId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Forensic record not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "get_failed",
			"message": "Failed to load forensic record",
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListRecords handles GET /users/:userId/forensics
func (h *Handler) ListRecords(c *gin.Context) {
	userID := c.Param("userId")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	cursor := c.Query("cursor")
	if _, err := pagination.Decode(cursor); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "Invalid pagination cursor",
		})
		return
	}

	records, next, err := h.store.ListByUser(c.Request.Context(), userID, limit, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list forensic records",
		})
		return
	}
	if records == nil {
		records = []*Record{}
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":     userID,
		"records":    records,
		"nextCursor": next,
		"hasMore":    next != "",
	})
}
