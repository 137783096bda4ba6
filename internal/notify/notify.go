// Package notify delivers admin notifications and SIEM events.
//
// Escalations enqueue notifications; a background drain loop fans each one
// out to the configured sinks. Delivery is fire-and-forget from the caller's
// perspective: the queue is bounded, enqueueing never blocks event
// processing, and sink failures are logged, never propagated. On stop the
// loop finishes the notification currently in hand before returning.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/warden/internal/idgen"
)

// Kind classifies a notification.
type Kind string

const (
	// KindAdminAlert is a direct admin notification from a high or
	// critical escalation.
	KindAdminAlert Kind = "admin_alert"
	// KindUserBlocked reports a user entering the blocklist.
	KindUserBlocked Kind = "user_blocked"
	// KindPatternBlocked reports a pattern signature crossing the block
	// threshold, or a recurrence of an already blocked one.
	KindPatternBlocked Kind = "pattern_blocked"
	// KindSessionEnded reports an archived session.
	KindSessionEnded Kind = "session_ended"
	// KindAssessment is the per-event risk stream consumed by SIEM sinks.
	KindAssessment Kind = "assessment"
)

// Notification is one unit of delivery.
type Notification struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	UserID    string                 `json:"userId"`
	RiskLevel string                 `json:"riskLevel,omitempty"`
	RiskScore float64                `json:"riskScore,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Sink receives notifications. Implementations must be safe for concurrent
// use; a slow or failing sink must not wedge the others.
type Sink interface {
	Name() string
	Emit(ctx context.Context, n *Notification) error
}

// Notifier owns the bounded queue and the drain loop.
type Notifier struct {
	queue  chan *Notification
	sinks  []Sink
	logger *slog.Logger

	deliverTimeout time.Duration

	stop chan struct{}
	done chan struct{}
}

// New creates a notifier. queueSize <= 0 uses the default of 256.
func New(queueSize int, logger *slog.Logger, sinks ...Sink) *Notifier {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		queue:          make(chan *Notification, queueSize),
		sinks:          sinks,
		logger:         logger,
		deliverTimeout: 30 * time.Second,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the drain loop. Call once.
func (n *Notifier) Start(ctx context.Context) {
	n.logger.Info("notification drain started", "sinks", len(n.sinks), "queue", cap(n.queue))
	go n.drainLoop(ctx)
}

// Stop signals the loop and waits for the in-flight delivery to finish.
// Queued but undelivered notifications are discarded.
func (n *Notifier) Stop() {
	close(n.stop)
	<-n.done
}

// Enqueue queues a notification for delivery. When the queue is full the
// notification is dropped and counted rather than blocking the caller.
func (n *Notifier) Enqueue(notification *Notification) bool {
	if notification.ID == "" {
		notification.ID = idgen.WithPrefix("ntf_")
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}
	select {
	case n.queue <- notification:
		notifyQueueDepth.Set(float64(len(n.queue)))
		return true
	default:
		notifyDropped.WithLabelValues(string(notification.Kind)).Inc()
		n.logger.Warn("notification queue full, dropping",
			"kind", notification.Kind,
			"user_id", notification.UserID)
		return false
	}
}

// AdminAlert enqueues a direct admin notification for an escalation.
func (n *Notifier) AdminAlert(userID, riskLevel string, riskScore float64) {
	n.Enqueue(&Notification{
		Kind:      KindAdminAlert,
		UserID:    userID,
		RiskLevel: riskLevel,
		RiskScore: riskScore,
	})
}

// UserBlocked enqueues a blocklist notification.
func (n *Notifier) UserBlocked(userID string, until time.Time) {
	n.Enqueue(&Notification{
		Kind:   KindUserBlocked,
		UserID: userID,
		Data:   map[string]interface{}{"blockedUntil": until},
	})
}

// PatternBlocked enqueues a pattern-registry notification.
func (n *Notifier) PatternBlocked(userID, signature string, occurrences int) {
	n.Enqueue(&Notification{
		Kind:   KindPatternBlocked,
		UserID: userID,
		Data: map[string]interface{}{
			"signature":   signature,
			"occurrences": occurrences,
		},
	})
}

// SessionEnded enqueues an archive notification.
func (n *Notifier) SessionEnded(userID string, data map[string]interface{}) {
	n.Enqueue(&Notification{
		Kind:   KindSessionEnded,
		UserID: userID,
		Data:   data,
	})
}

// Assessment enqueues one risk-stream event for SIEM consumers.
func (n *Notifier) Assessment(userID, riskLevel string, riskScore float64, data map[string]interface{}) {
	n.Enqueue(&Notification{
		Kind:      KindAssessment,
		UserID:    userID,
		RiskLevel: riskLevel,
		RiskScore: riskScore,
		Data:      data,
	})
}

func (n *Notifier) drainLoop(ctx context.Context) {
	defer close(n.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case item := <-n.queue:
			notifyQueueDepth.Set(float64(len(n.queue)))
			n.deliver(item)
		}
	}
}

// deliver fans one notification out to every sink. It runs under its own
// timeout so that a stop signal does not abort the unit in flight.
func (n *Notifier) deliver(item *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), n.deliverTimeout)
	defer cancel()

	for _, sink := range n.sinks {
		if err := sink.Emit(ctx, item); err != nil {
			notifyFailures.WithLabelValues(sink.Name(), string(item.Kind)).Inc()
			n.logger.Error("notification delivery failed",
				"sink", sink.Name(),
				"kind", item.Kind,
				"notification_id", item.ID,
				"error", err)
			continue
		}
		notifyDelivered.WithLabelValues(sink.Name(), string(item.Kind)).Inc()
	}
}
