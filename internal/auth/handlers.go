package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for key management
type Handler struct {
	manager *Manager
}

// NewHandler creates a new auth handler
func NewHandler(m *Manager) *Handler {
	return &Handler{manager: m}
}

// RegisterRoutes sets up public auth routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/auth/info", h.Info)
	r.GET("/auth/me", h.GetCurrentAnalyst)
}

// RegisterAdminRoutes sets up operator-only key management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/admin/keys", h.CreateKey)
	r.GET("/admin/keys", h.ListKeys)
	r.DELETE("/admin/keys/:keyId", h.RevokeKey)
	r.POST("/admin/keys/:keyId/regenerate", h.RegenerateKey)
}

// Info returns auth configuration info
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"type":      "api_key",
		"header":    "Authorization: Bearer wk_...",
		"altHeader": "X-API-Key: wk_...",
		"note":      "Analyst keys are minted by the instance operator.",
		"publicEndpoints": []string{
			"POST /api/v1/events/keystroke",
			"POST /api/v1/events/mouse",
			"GET /api/v1/sessions/:userId/status",
			"GET /api/v1/users/:userId/baseline",
			"GET /api/v1/risk-levels",
			"GET /api/v1/blocked-users",
		},
		"protectedEndpoints": []string{
			"POST /api/v1/sessions/:userId/end",
			"POST /api/v1/users/:userId/forensics",
			"POST /api/v1/webhooks",
			"DELETE /api/v1/webhooks/:webhookId",
		},
	})
}

// CreateKeyRequest is the request body for minting a key
type CreateKeyRequest struct {
	Owner   string `json:"owner" binding:"required"`
	Name    string `json:"name"`
	TTLDays int    `json:"ttlDays"`
}

// CreateKey mints a new analyst API key
func (h *Handler) CreateKey(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Field 'owner' is required",
		})
		return
	}
	if req.Name == "" {
		req.Name = "Analyst key"
	}

	var ttl time.Duration
	if req.TTLDays > 0 {
		ttl = time.Duration(req.TTLDays) * 24 * time.Hour
	}

	rawKey, newKey, err := h.manager.GenerateKey(c.Request.Context(), req.Owner, req.Name, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to create key",
			"message": "Failed to create API key",
		})
		return
	}

	resp := gin.H{
		"apiKey":  rawKey,
		"keyId":   newKey.ID,
		"owner":   newKey.Owner,
		"name":    newKey.Name,
		"warning": "Store this key securely. It will not be shown again.",
	}
	if newKey.ExpiresAt != nil {
		resp["expiresAt"] = newKey.ExpiresAt
	}

	c.JSON(http.StatusCreated, resp)
}

// ListKeys returns API keys for an analyst
func (h *Handler) ListKeys(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_owner",
			"message": "Query parameter 'owner' is required",
		})
		return
	}

	keys, err := h.manager.ListKeys(c.Request.Context(), owner)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list keys",
		})
		return
	}

	// Don't expose hashes
	safeKeys := make([]gin.H, len(keys))
	for i, k := range keys {
		safeKeys[i] = gin.H{
			"id":        k.ID,
			"name":      k.Name,
			"createdAt": k.CreatedAt,
			"lastUsed":  k.LastUsed,
			"expiresAt": k.ExpiresAt,
			"revoked":   k.Revoked,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"owner": owner,
		"keys":  safeKeys,
		"count": len(safeKeys),
	})
}

// RevokeKey revokes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	keyID := c.Param("keyId")

	if err := h.manager.RevokeKey(c.Request.Context(), keyID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "Key not found or already revoked",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Key revoked",
		"keyId":   keyID,
	})
}

// RegenerateKey revokes old key and mints a replacement
func (h *Handler) RegenerateKey(c *gin.Context) {
	keyID := c.Param("keyId")

	rawKey, newKey, err := h.manager.RegenerateKey(c.Request.Context(), keyID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "Key not found",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"apiKey":   rawKey,
		"keyId":    newKey.ID,
		"oldKeyId": keyID,
		"owner":    newKey.Owner,
		"warning":  "Store this key securely. It will not be shown again.",
	})
}

// GetCurrentAnalyst returns info about the authenticated analyst
func (h *Handler) GetCurrentAnalyst(c *gin.Context) {
	key, ok := GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"analyst":   key.Owner,
		"keyId":     key.ID,
		"keyName":   key.Name,
		"createdAt": key.CreatedAt,
		"lastUsed":  key.LastUsed,
	})
}
