package engine

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	ingestReadLimit    = 512 * 1024
	ingestReadTimeout  = 60 * time.Second
	ingestWriteTimeout = 10 * time.Second
)

var ingestCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var ingestUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser collectors
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// IngestSocket serves the bidirectional event stream: collectors push
// keystroke and mouse messages, each answered with its assessment. One
// goroutine per connection; messages on a connection are processed in order.
type IngestSocket struct {
	engine *Engine
	logger *slog.Logger
}

// NewIngestSocket creates the WebSocket ingest endpoint.
func NewIngestSocket(e *Engine, logger *slog.Logger) *IngestSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestSocket{engine: e, logger: logger}
}

type ingestMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handle upgrades the request and runs the read-process-respond loop until
// the client disconnects or goes silent past the read timeout.
func (s *IngestSocket) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ingestUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(ingestReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(ingestReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(ingestReadTimeout))
		return nil
	})

	for {
		var msg ingestMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, ingestCloseCodes...) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(ingestReadTimeout))

		if msg.Type == "disconnect" {
			_ = conn.SetWriteDeadline(time.Now().Add(ingestWriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		s.write(conn, s.dispatch(r, msg))
	}
}

// dispatch processes one message and returns the wire response.
func (s *IngestSocket) dispatch(r *http.Request, msg ingestMessage) interface{} {
	switch msg.Type {
	case "keystroke":
		var req KeystrokeEventRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.UserID == "" {
			return gin.H{
				"error":   "invalid_request",
				"message": "Malformed keystroke event",
			}
		}
		assessment, err := s.engine.ProcessEvent(r.Context(), req.UserID, req.event())
		if err != nil {
			_, body := processErrorBody(err)
			return body
		}
		return assessment
	case "mouse":
		var req MouseEventRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.UserID == "" {
			return gin.H{
				"error":   "invalid_request",
				"message": "Malformed mouse event",
			}
		}
		assessment, err := s.engine.ProcessEvent(r.Context(), req.UserID, req.event())
		if err != nil {
			_, body := processErrorBody(err)
			return body
		}
		return assessment
	default:
		return gin.H{
			"error":   "invalid_event_type",
			"message": "Unknown event type: " + msg.Type,
		}
	}
}

func (s *IngestSocket) write(conn *websocket.Conn, v interface{}) {
	_ = conn.SetWriteDeadline(time.Now().Add(ingestWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Warn("websocket write error", "error", err)
	}
}
