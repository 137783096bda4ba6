package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbd888/warden/internal/webhooks"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// captureSink records every notification it receives.
type captureSink struct {
	mu  sync.Mutex
	got []*Notification
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Emit(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *captureSink) last() *Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) == 0 {
		return nil
	}
	return s.got[len(s.got)-1]
}

// gatedSink signals when a delivery starts and holds it until released.
type gatedSink struct {
	entered   chan struct{}
	release   chan struct{}
	delivered atomic.Int32
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *gatedSink) Name() string { return "gated" }

func (s *gatedSink) Emit(_ context.Context, _ *Notification) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	s.delivered.Add(1)
	return nil
}

// ---------------------------------------------------------------------------
// Queue and drain tests
// ---------------------------------------------------------------------------

func TestEnqueueDrainDelivers(t *testing.T) {
	sink := &captureSink{}
	n := New(8, discardLogger(), sink)

	n.Start(context.Background())
	defer n.Stop()

	n.AdminAlert("alice", "critical", 92.5)

	waitFor(t, 2*time.Second, func() bool { return sink.count() == 1 })

	got := sink.last()
	if got.Kind != KindAdminAlert {
		t.Errorf("expected kind admin_alert, got %s", got.Kind)
	}
	if got.UserID != "alice" || got.RiskLevel != "critical" || got.RiskScore != 92.5 {
		t.Errorf("unexpected notification fields: %+v", got)
	}
	if !strings.HasPrefix(got.ID, "ntf_") {
		t.Errorf("expected generated ntf_ id, got %q", got.ID)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestEnqueueFansOutToAllSinks(t *testing.T) {
	first := &captureSink{}
	second := &captureSink{}
	n := New(8, discardLogger(), first, second)

	n.Start(context.Background())
	defer n.Stop()

	n.Assessment("bob", "low", 12.0, nil)

	waitFor(t, 2*time.Second, func() bool {
		return first.count() == 1 && second.count() == 1
	})
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	// Not started, so nothing drains the single-slot queue.
	n := New(1, discardLogger())

	if !n.Enqueue(&Notification{Kind: KindAssessment, UserID: "u1"}) {
		t.Fatal("first enqueue should succeed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- n.Enqueue(&Notification{Kind: KindAssessment, UserID: "u2"})
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("second enqueue should report a drop")
		}
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
}

func TestStopCompletesInFlightDelivery(t *testing.T) {
	sink := newGatedSink()
	n := New(4, discardLogger(), sink)

	n.Start(context.Background())
	n.AdminAlert("alice", "high", 80)

	// Wait until the delivery is in flight.
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery never started")
	}

	stopped := make(chan struct{})
	go func() {
		n.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the delivery finished")
	}

	if sink.delivered.Load() != 1 {
		t.Errorf("expected the in-flight delivery to complete, got %d", sink.delivered.Load())
	}
}

func TestStopAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := New(4, discardLogger(), &captureSink{})

	n.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		n.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop deadlocked after context cancellation")
	}
}

// ---------------------------------------------------------------------------
// Convenience builder tests
// ---------------------------------------------------------------------------

func TestBuilders(t *testing.T) {
	n := New(16, discardLogger())
	until := time.Now().Add(time.Hour)

	n.AdminAlert("alice", "critical", 95)
	n.UserBlocked("alice", until)
	n.PatternBlocked("alice", "k:a|m:click", 3)
	n.SessionEnded("alice", map[string]interface{}{"reason": "timeout"})
	n.Assessment("alice", "medium", 55, map[string]interface{}{"isAnomaly": true})

	alert := <-n.queue
	if alert.Kind != KindAdminAlert || alert.RiskLevel != "critical" || alert.RiskScore != 95 {
		t.Errorf("unexpected admin alert: %+v", alert)
	}

	blocked := <-n.queue
	if blocked.Kind != KindUserBlocked {
		t.Errorf("expected user_blocked, got %s", blocked.Kind)
	}
	if got, ok := blocked.Data["blockedUntil"].(time.Time); !ok || !got.Equal(until) {
		t.Errorf("expected blockedUntil %v, got %v", until, blocked.Data["blockedUntil"])
	}

	pattern := <-n.queue
	if pattern.Kind != KindPatternBlocked {
		t.Errorf("expected pattern_blocked, got %s", pattern.Kind)
	}
	if pattern.Data["signature"] != "k:a|m:click" || pattern.Data["occurrences"] != 3 {
		t.Errorf("unexpected pattern data: %+v", pattern.Data)
	}

	ended := <-n.queue
	if ended.Kind != KindSessionEnded || ended.Data["reason"] != "timeout" {
		t.Errorf("unexpected session_ended: %+v", ended)
	}

	assessment := <-n.queue
	if assessment.Kind != KindAssessment || assessment.RiskLevel != "medium" {
		t.Errorf("unexpected assessment: %+v", assessment)
	}
	if assessment.Data["isAnomaly"] != true {
		t.Errorf("expected assessment data passthrough, got %+v", assessment.Data)
	}
}

// ---------------------------------------------------------------------------
// Sink tests
// ---------------------------------------------------------------------------

func TestSiemSinkPostsNotification(t *testing.T) {
	var mu sync.Mutex
	var gotAuth, gotPath string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	// Constructed directly: NewSiemSink rejects loopback endpoints.
	sink := &SiemSink{endpoint: server.URL, apiKey: "key123", client: server.Client()}

	err := sink.Emit(context.Background(), &Notification{
		ID:        "ntf_1",
		Kind:      KindAssessment,
		UserID:    "alice",
		RiskLevel: "high",
		RiskScore: 80,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if gotAuth != "Bearer key123" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/events" {
		t.Errorf("expected POST to /events, got %s", gotPath)
	}

	var parsed Notification
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("failed to parse SIEM payload: %v", err)
	}
	if parsed.UserID != "alice" || parsed.Kind != KindAssessment {
		t.Errorf("unexpected payload: %+v", parsed)
	}
}

func TestSiemSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	sink := &SiemSink{endpoint: server.URL, client: server.Client()}

	err := sink.Emit(context.Background(), &Notification{ID: "ntf_1", Kind: KindAssessment})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSiemSinkDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(400)
	}))
	defer server.Close()

	sink := &SiemSink{endpoint: server.URL, client: server.Client()}

	err := sink.Emit(context.Background(), &Notification{ID: "ntf_1", Kind: KindAssessment})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt for a client error, got %d", calls.Load())
	}
}

func TestNewSiemSinkRejectsUnsafeEndpoint(t *testing.T) {
	if _, err := NewSiemSink("http://127.0.0.1:9/collector", ""); err == nil {
		t.Error("expected loopback endpoint to be rejected")
	}
}

func TestEventTypeFor(t *testing.T) {
	cases := []struct {
		kind Kind
		want webhooks.EventType
	}{
		{KindAdminAlert, webhooks.EventRiskAlert},
		{KindUserBlocked, webhooks.EventUserBlocked},
		{KindPatternBlocked, webhooks.EventPatternBlocked},
		{KindSessionEnded, webhooks.EventSessionEnded},
		{KindAssessment, webhooks.EventRiskAssessment},
	}
	for _, tc := range cases {
		if got := eventTypeFor(tc.kind); got != tc.want {
			t.Errorf("eventTypeFor(%s) = %s, want %s", tc.kind, got, tc.want)
		}
	}
}

func TestWebhookSinkRoutesByKind(t *testing.T) {
	store := webhooks.NewMemoryStore()
	ctx := context.Background()

	// Loopback URL: the dispatcher's validator rejects it, which records a
	// delivery attempt without needing a live endpoint.
	store.Create(ctx, &webhooks.Subscription{
		ID:     "wh1",
		Owner:  "ops",
		URL:    "http://127.0.0.1:9/hook",
		Events: []webhooks.EventType{webhooks.EventUserBlocked},
		Active: true,
	})

	sink := NewWebhookSink(webhooks.NewDispatcher(store))

	// Unsubscribed kind: no delivery attempted.
	if err := sink.Emit(ctx, &Notification{ID: "ntf_1", Kind: KindAdminAlert, UserID: "alice", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	sub, _ := store.Get(ctx, "wh1")
	if sub.LastError != "" {
		t.Errorf("expected no attempt for unsubscribed kind, got %q", sub.LastError)
	}

	// Subscribed kind: the dispatcher attempts delivery.
	if err := sink.Emit(ctx, &Notification{ID: "ntf_2", Kind: KindUserBlocked, UserID: "alice", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		sub, _ := store.Get(ctx, "wh1")
		return sub.LastError != ""
	})
}
