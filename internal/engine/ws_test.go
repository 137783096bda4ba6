package engine

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/warden/internal/anomaly"
)

func testSocket(t *testing.T) (*IngestSocket, *testEngine) {
	t.Helper()
	te := newTestEngine(t, anomaly.DefaultConfig())
	return NewIngestSocket(te.engine, discardLogger()), te
}

func ingestMsg(t *testing.T, typ string, data interface{}) ingestMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	return ingestMessage{Type: typ, Data: raw}
}

func TestIngestDispatch_Keystroke(t *testing.T) {
	s, te := testSocket(t)
	r := httptest.NewRequest("GET", "/ws", nil)

	resp := s.dispatch(r, ingestMsg(t, "keystroke", keystrokeBody("alice", baseEpoch)))
	a, ok := resp.(*Assessment)
	if !ok {
		t.Fatalf("Expected assessment, got %T: %v", resp, resp)
	}
	if a.UserID != "alice" {
		t.Errorf("Expected userId alice, got %s", a.UserID)
	}
	if te.sessions.Get("alice") == nil {
		t.Error("Expected session opened by socket ingest")
	}
}

func TestIngestDispatch_MouseTypeAlias(t *testing.T) {
	s, te := testSocket(t)
	r := httptest.NewRequest("GET", "/ws", nil)

	resp := s.dispatch(r, ingestMsg(t, "mouse", gin.H{
		"user_id":   "bob",
		"type":      "drag",
		"x":         5.0,
		"y":         6.0,
		"timestamp": baseEpoch,
	}))
	if _, ok := resp.(*Assessment); !ok {
		t.Fatalf("Expected assessment, got %T: %v", resp, resp)
	}
	sess := te.sessions.Get("bob")
	if sess == nil || string(sess.PointerEvents[0].Kind) != "drag" {
		t.Error("Expected drag pointer event ingested")
	}
}

func TestIngestDispatch_MalformedData(t *testing.T) {
	s, _ := testSocket(t)
	r := httptest.NewRequest("GET", "/ws", nil)

	resp := s.dispatch(r, ingestMessage{Type: "keystroke", Data: json.RawMessage(`"not an object"`)})
	body, ok := resp.(gin.H)
	if !ok || body["error"] != "invalid_request" {
		t.Errorf("Expected invalid_request, got %v", resp)
	}

	resp = s.dispatch(r, ingestMsg(t, "keystroke", gin.H{"key": "a", "timestamp": baseEpoch}))
	body, ok = resp.(gin.H)
	if !ok || body["error"] != "invalid_request" {
		t.Errorf("Expected invalid_request for missing user, got %v", resp)
	}
}

func TestIngestDispatch_InvalidEvent(t *testing.T) {
	s, _ := testSocket(t)
	r := httptest.NewRequest("GET", "/ws", nil)

	body := keystrokeBody("carol", baseEpoch)
	body["release_time"] = baseEpoch - 1
	resp := s.dispatch(r, ingestMsg(t, "keystroke", body))
	h, ok := resp.(gin.H)
	if !ok || h["error"] != "invalid_event" {
		t.Errorf("Expected invalid_event, got %v", resp)
	}
}

func TestIngestDispatch_UnknownType(t *testing.T) {
	s, _ := testSocket(t)
	r := httptest.NewRequest("GET", "/ws", nil)

	resp := s.dispatch(r, ingestMessage{Type: "scroll"})
	body, ok := resp.(gin.H)
	if !ok || body["error"] != "invalid_event_type" {
		t.Errorf("Expected invalid_event_type, got %v", resp)
	}
	if msg, _ := body["message"].(string); msg != fmt.Sprintf("Unknown event type: %s", "scroll") {
		t.Errorf("Unexpected message: %v", body["message"])
	}
}

func TestIngestDispatch_BlockedUser(t *testing.T) {
	s, te := testSocket(t)
	r := httptest.NewRequest("GET", "/ws", nil)
	te.keystroke.score = 95
	te.pointer.score = 95

	mustProcess(t, te, "mallory", keyEvent("m"))
	mustProcess(t, te, "mallory", keyEvent("a"))
	mustProcess(t, te, "mallory", mouseEvent("move"))
	mustProcess(t, te, "mallory", mouseEvent("click"))

	resp := s.dispatch(r, ingestMsg(t, "keystroke", keystrokeBody("mallory", baseEpoch)))
	body, ok := resp.(gin.H)
	if !ok || body["error"] != "user_blocked" {
		t.Errorf("Expected user_blocked, got %v", resp)
	}
}
