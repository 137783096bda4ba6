package engine

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warden/internal/behavior"
	"github.com/mbd888/warden/internal/profile"
	"github.com/mbd888/warden/internal/response"
)

// Handler exposes the event-processing pipeline over HTTP.
type Handler struct {
	engine   *Engine
	profiler *profile.Profiler
}

// NewHandler creates the pipeline handler. profiler may be nil when baseline
// learning is disabled.
func NewHandler(e *Engine, profiler *profile.Profiler) *Handler {
	return &Handler{engine: e, profiler: profiler}
}

// RegisterRoutes registers event ingestion and read routes on the router group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events/keystroke", h.ProcessKeystroke)
	r.POST("/events/mouse", h.ProcessMouse)
	r.GET("/sessions/:userId/status", h.GetSessionStatus)
	r.GET("/users/:userId/baseline", h.GetBaseline)
}

// RegisterProtectedRoutes sets up protected (auth-required) session routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/sessions/:userId/end", h.EndSession)
	r.POST("/users/:userId/forensics", h.CaptureForensics)
}

// KeystrokeEventRequest mirrors the collector wire format: snake_case keys,
// epoch-second timestamps.
type KeystrokeEventRequest struct {
	UserID      string  `json:"user_id" binding:"required"`
	Key         string  `json:"key" binding:"required"`
	PressTime   float64 `json:"press_time" binding:"required"`
	ReleaseTime float64 `json:"release_time" binding:"required"`
	Pressure    float64 `json:"pressure"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Timestamp   float64 `json:"timestamp" binding:"required"`
}

func (r KeystrokeEventRequest) event() behavior.KeystrokeEvent {
	return behavior.KeystrokeEvent{
		Key:         r.Key,
		PressTime:   epochTime(r.PressTime),
		ReleaseTime: epochTime(r.ReleaseTime),
		Pressure:    r.Pressure,
		X:           r.X,
		Y:           r.Y,
		Timestamp:   epochTime(r.Timestamp),
	}
}

// MouseEventRequest mirrors the collector wire format. Older collectors send
// the pointer kind as "type"; both are accepted, and a missing kind means a
// plain move.
type MouseEventRequest struct {
	UserID       string  `json:"user_id" binding:"required"`
	Kind         string  `json:"kind"`
	Type         string  `json:"type"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Pressure     float64 `json:"pressure"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	Timestamp    float64 `json:"timestamp" binding:"required"`
}

func (r MouseEventRequest) event() behavior.PointerEvent {
	kind := r.Kind
	if kind == "" {
		kind = r.Type
	}
	if kind == "" {
		kind = string(behavior.PointerMove)
	}
	return behavior.PointerEvent{
		Kind:         behavior.PointerKind(kind),
		X:            r.X,
		Y:            r.Y,
		Pressure:     r.Pressure,
		Velocity:     r.Velocity,
		Acceleration: r.Acceleration,
		Timestamp:    epochTime(r.Timestamp),
	}
}

// ProcessKeystroke handles POST /events/keystroke
func (h *Handler) ProcessKeystroke(c *gin.Context) {
	var req KeystrokeEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	h.process(c, req.UserID, req.event())
}

// ProcessMouse handles POST /events/mouse
func (h *Handler) ProcessMouse(c *gin.Context) {
	var req MouseEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	h.process(c, req.UserID, req.event())
}

func (h *Handler) process(c *gin.Context, userID string, ev behavior.Event) {
	assessment, err := h.engine.ProcessEvent(c.Request.Context(), userID, ev)
	if err != nil {
		writeProcessError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// GetSessionStatus handles GET /sessions/:userId/status
func (h *Handler) GetSessionStatus(c *gin.Context) {
	st, err := h.engine.Status(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "status_failed",
			"message": "Failed to load session status",
		})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "No active session for this user",
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

// EndSession handles POST /sessions/:userId/end
func (h *Handler) EndSession(c *gin.Context) {
	archived, err := h.engine.EndSession(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "end_failed",
			"message": "Failed to end session",
		})
		return
	}
	if archived == nil {
		// Ending an absent session is a deliberate no-op.
		c.JSON(http.StatusOK, gin.H{"status": "no_active_session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ended",
		"session": archived,
	})
}

// CaptureForensics handles POST /users/:userId/forensics
func (h *Handler) CaptureForensics(c *gin.Context) {
	rec, err := h.engine.CaptureForensics(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "capture_failed",
			"message": "Failed to capture forensic record",
		})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "session_not_found",
			"message": "No active session for this user",
		})
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetBaseline handles GET /users/:userId/baseline
func (h *Handler) GetBaseline(c *gin.Context) {
	if h.profiler == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "baseline_not_found",
			"message": "Baseline learning is disabled",
		})
		return
	}
	b := h.profiler.Baseline(c.Param("userId"))
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "baseline_not_found",
			"message": "No baseline learned for this user yet",
		})
		return
	}
	c.JSON(http.StatusOK, b)
}

// processErrorBody maps a pipeline error to its HTTP status and wire shape.
// The WebSocket path reuses the body without the status.
func processErrorBody(err error) (int, gin.H) {
	var verr *behavior.ValidationError
	var blocked *response.UserBlocked
	var unavailable *response.ServiceUnavailable
	var internal *response.InternalFailure
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, gin.H{
			"error":   "invalid_event",
			"message": verr.Error(),
			"field":   verr.Field,
		}
	case errors.As(err, &blocked):
		return http.StatusForbidden, gin.H{
			"error":        "user_blocked",
			"message":      "User is blocked",
			"blockedUntil": blocked.Until.UTC().Format(time.RFC3339),
		}
	case errors.As(err, &unavailable):
		retry := int(unavailable.RetryAfter.Seconds() + 0.5)
		if retry < 1 {
			retry = 1
		}
		return http.StatusServiceUnavailable, gin.H{
			"error":             "service_unavailable",
			"message":           "Escalation temporarily suspended for this user",
			"retryAfterSeconds": retry,
		}
	case errors.As(err, &internal):
		return http.StatusInternalServerError, gin.H{
			"error":   "internal_failure",
			"message": "A response action failed; the event was scored",
		}
	default:
		return http.StatusInternalServerError, gin.H{
			"error":   "processing_failed",
			"message": "Failed to process event",
		}
	}
}

func writeProcessError(c *gin.Context, err error) {
	status, body := processErrorBody(err)
	if retry, ok := body["retryAfterSeconds"].(int); ok {
		c.Header("Retry-After", strconv.Itoa(retry))
	}
	c.JSON(status, body)
}

// epochTime converts collector epoch seconds to a wall-clock time. A zero or
// negative value maps to the zero time so validation rejects it.
func epochTime(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	s := int64(sec)
	ns := int64((sec - float64(s)) * 1e9)
	return time.Unix(s, ns)
}
