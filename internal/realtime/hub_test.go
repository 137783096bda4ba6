package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventAssessment, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventAlert},
	}}

	alert := &Event{Type: EventAlert}
	assessment := &Event{Type: EventAssessment}

	if !h.shouldSend(client, alert) {
		t.Error("Should receive alert events")
	}
	if h.shouldSend(client, assessment) {
		t.Error("Should NOT receive assessment events")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"alice"},
	}}

	matching := &Event{
		Type: EventAssessment,
		Data: map[string]interface{}{"userId": "alice", "riskScore": 12.0},
	}
	notMatching := &Event{
		Type: EventAssessment,
		Data: map[string]interface{}{"userId": "bob", "riskScore": 80.0},
	}
	matchingAlert := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"kind": "user_blocked", "userId": "alice"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on userId")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other users")
	}
	if !h.shouldSend(client, matchingAlert) {
		t.Error("Should match alerts for the watched user")
	}
}

func TestShouldSend_RiskLevelFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		RiskLevels: []string{"high", "critical"},
	}}

	critical := &Event{
		Type: EventAssessment,
		Data: map[string]interface{}{"riskLevel": "critical"},
	}
	low := &Event{
		Type: EventAssessment,
		Data: map[string]interface{}{"riskLevel": "low"},
	}
	noLevel := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"kind": "session_ended"},
	}

	if !h.shouldSend(client, critical) {
		t.Error("Should receive critical assessments")
	}
	if h.shouldSend(client, low) {
		t.Error("Should NOT receive low assessments")
	}
	if !h.shouldSend(client, noLevel) {
		t.Error("Events without a level should pass the level filter")
	}
}

func TestShouldSend_MinRiskScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinRiskScore: 50.0,
	}}

	elevated := &Event{
		Type: EventAssessment,
		Data: map[string]interface{}{"riskScore": 75.0},
	}
	quiet := &Event{
		Type: EventAssessment,
		Data: map[string]interface{}{"riskScore": 10.0},
	}
	alert := &Event{
		Type: EventAlert,
		Data: map[string]interface{}{"kind": "pattern_blocked", "riskScore": 10.0},
	}

	if !h.shouldSend(client, elevated) {
		t.Error("Should receive elevated assessment")
	}
	if h.shouldSend(client, quiet) {
		t.Error("Should NOT receive quiet assessment")
	}
	if !h.shouldSend(client, alert) {
		t.Error("MinRiskScore filter should only apply to assessments")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventAssessment}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"alice"},
	}}

	// Event with non-map data should not crash
	event := &Event{
		Type: EventAlert,
		Data: "string data not a map",
	}

	// User filter skips non-map data (can't extract the user), so event passes through
	if !h.shouldSend(client, event) {
		t.Error("Non-map data should pass through when user filter can't extract the user")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventAssessment, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastAssessmentToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastAssessment(map[string]interface{}{
		"userId":    "alice",
		"riskScore": 42.0,
		"riskLevel": "medium",
	})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if event.Type != EventAssessment {
			t.Errorf("Expected assessment event, got %s", event.Type)
		}
		data := event.Data.(map[string]interface{})
		if data["userId"] != "alice" {
			t.Errorf("Expected userId alice, got %v", data["userId"])
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_BroadcastAlertKinds(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventAlert}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastAssessment(map[string]interface{}{"userId": "bob"})
	h.BroadcastAlert(map[string]interface{}{
		"kind":      "user_blocked",
		"userId":    "bob",
		"riskLevel": "critical",
	})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if event.Type != EventAlert {
			t.Errorf("Expected the alert only, got %s", event.Type)
		}
		data := event.Data.(map[string]interface{})
		if data["kind"] != "user_blocked" {
			t.Errorf("Expected user_blocked kind, got %v", data["kind"])
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for alert")
	}
}

func TestHub_SlowClientEviction(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Unbuffered send channel: the first broadcast cannot be delivered.
	client := &Client{
		hub:  h,
		send: make(chan []byte),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{Type: EventAssessment, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected slow client evicted, got %v connected", stats["connectedClients"])
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Expected send channel closed on shutdown")
		}
	default:
		t.Error("Expected send channel closed, still open")
	}

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 clients after shutdown, got %v", stats["connectedClients"])
	}
}
