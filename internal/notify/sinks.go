package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbd888/warden/internal/retry"
	"github.com/mbd888/warden/internal/security"
	"github.com/mbd888/warden/internal/webhooks"
)

// LogSink writes notifications to the structured log. It is the default
// sink when no external collaborators are configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Emit(_ context.Context, n *Notification) error {
	s.logger.Info("notification",
		"kind", n.Kind,
		"user_id", n.UserID,
		"risk_level", n.RiskLevel,
		"risk_score", n.RiskScore)
	return nil
}

// SiemSink posts notifications to a SIEM collector. Transient failures are
// retried with backoff; client errors are not.
type SiemSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSiemSink validates the collector URL and builds the sink.
func NewSiemSink(endpoint, apiKey string) (*SiemSink, error) {
	if err := security.ValidateEndpointURL(endpoint); err != nil {
		return nil, fmt.Errorf("invalid SIEM endpoint: %w", err)
	}
	return &SiemSink{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *SiemSink) Name() string { return "siem" }

func (s *SiemSink) Emit(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/events", bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("siem responded %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return retry.Permanent(fmt.Errorf("siem responded %d", resp.StatusCode))
		}
		return nil
	})
}

// WebhookSink fans notifications out to registered webhook subscriptions.
type WebhookSink struct {
	dispatcher *webhooks.Dispatcher
}

// NewWebhookSink creates a sink backed by the webhook dispatcher.
func NewWebhookSink(d *webhooks.Dispatcher) *WebhookSink {
	return &WebhookSink{dispatcher: d}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Emit(ctx context.Context, n *Notification) error {
	data := map[string]interface{}{
		"userId":    n.UserID,
		"riskLevel": n.RiskLevel,
		"riskScore": n.RiskScore,
	}
	for k, v := range n.Data {
		data[k] = v
	}
	return s.dispatcher.Dispatch(ctx, &webhooks.Event{
		ID:        n.ID,
		Type:      eventTypeFor(n.Kind),
		Timestamp: n.Timestamp,
		Data:      data,
	})
}

func eventTypeFor(kind Kind) webhooks.EventType {
	switch kind {
	case KindAdminAlert:
		return webhooks.EventRiskAlert
	case KindUserBlocked:
		return webhooks.EventUserBlocked
	case KindPatternBlocked:
		return webhooks.EventPatternBlocked
	case KindSessionEnded:
		return webhooks.EventSessionEnded
	default:
		return webhooks.EventRiskAssessment
	}
}
