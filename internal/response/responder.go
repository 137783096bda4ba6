package response

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/warden/internal/circuitbreaker"
)

// Actions are the side-effecting collaborators a dispatch may invoke.
// Implementations decide what locking, capture, and notification mean for
// the deployment; errors are returned so the responder can count them
// against the user's circuit breaker.
type Actions interface {
	LockSession(ctx context.Context, userID string) error
	CollectForensics(ctx context.Context, userID string) error
	NotifyAdmin(ctx context.Context, userID string, level Level, score float64) error
	IncreaseMonitoring(ctx context.Context, userID string) error
}

// Response summarizes one dispatch: which actions ran and, for critical
// escalations, when the resulting block expires.
type Response struct {
	UserID       string     `json:"userId"`
	Timestamp    time.Time  `json:"timestamp"`
	RiskLevel    Level      `json:"riskLevel"`
	RiskScore    float64    `json:"riskScore"`
	ActionsTaken []Action   `json:"actionsTaken"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
}

// Responder executes the escalation policy for one process.
type Responder struct {
	thresholds    Thresholds
	blocklist     *Blocklist
	breaker       *circuitbreaker.Breaker
	actions       Actions
	blockDuration time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewResponder creates a responder with default thresholds, a fresh
// blocklist, and a default circuit breaker.
func NewResponder(actions Actions, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		thresholds:    DefaultThresholds(),
		blocklist:     NewBlocklist(),
		breaker:       circuitbreaker.New(0, 0),
		actions:       actions,
		blockDuration: time.Hour,
		logger:        logger,
		now:           time.Now,
	}
}

// WithThresholds overrides the classification cutoffs. The caller validates
// ordering before wiring.
func (r *Responder) WithThresholds(t Thresholds) *Responder {
	r.thresholds = t
	return r
}

// WithBlockDuration overrides how long a critical escalation block-lists
// the user.
func (r *Responder) WithBlockDuration(d time.Duration) *Responder {
	if d > 0 {
		r.blockDuration = d
	}
	return r
}

// WithBreaker substitutes a configured circuit breaker.
func (r *Responder) WithBreaker(b *circuitbreaker.Breaker) *Responder {
	if b != nil {
		r.breaker = b
	}
	return r
}

// Thresholds returns the classification cutoffs.
func (r *Responder) Thresholds() Thresholds { return r.thresholds }

// Blocklist returns the shared user blocklist.
func (r *Responder) Blocklist() *Blocklist { return r.blocklist }

// Breaker returns the shared per-user circuit breaker.
func (r *Responder) Breaker() *circuitbreaker.Breaker { return r.breaker }

// LevelFor classifies a composite score.
func (r *Responder) LevelFor(score float64) Level { return r.thresholds.LevelFor(score) }

// BlockDuration returns how long a critical escalation blocks the user.
func (r *Responder) BlockDuration() time.Duration { return r.blockDuration }

// Handle runs the pre-checks and then the level's action list in order.
//
// A block-listed user fails fast with UserBlocked; an open breaker fails
// fast with ServiceUnavailable. Action errors do not abort the remaining
// actions: each failure is logged and recorded against the breaker, and the
// first is surfaced as an InternalFailure alongside the partial Response.
func (r *Responder) Handle(ctx context.Context, userID string, level Level, score float64) (*Response, error) {
	if ub := r.blocklist.Check(userID); ub != nil {
		responsesTotal.WithLabelValues(string(level), "blocked").Inc()
		return nil, ub
	}
	if ok, retry := r.breaker.Allow(userID); !ok {
		responsesTotal.WithLabelValues(string(level), "breaker_open").Inc()
		return nil, &ServiceUnavailable{UserID: userID, RetryAfter: retry}
	}

	resp := &Response{
		UserID:       userID,
		Timestamp:    r.now(),
		RiskLevel:    level,
		RiskScore:    score,
		ActionsTaken: []Action{},
	}
	var failure *InternalFailure
	for _, action := range ActionsFor(level) {
		if err := r.execute(ctx, action, resp); err != nil {
			r.breaker.RecordFailure(userID)
			actionFailures.WithLabelValues(string(action)).Inc()
			r.logger.Error("response action failed",
				"user_id", userID,
				"level", level,
				"action", action,
				"error", err)
			if failure == nil {
				failure = &InternalFailure{UserID: userID, Action: action}
			}
			continue
		}
		resp.ActionsTaken = append(resp.ActionsTaken, action)
	}
	if failure != nil {
		responsesTotal.WithLabelValues(string(level), "action_failed").Inc()
		return resp, failure
	}
	responsesTotal.WithLabelValues(string(level), "ok").Inc()
	return resp, nil
}

func (r *Responder) execute(ctx context.Context, action Action, resp *Response) error {
	switch action {
	case ActionLockSession:
		return r.actions.LockSession(ctx, resp.UserID)
	case ActionCollectForensics:
		return r.actions.CollectForensics(ctx, resp.UserID)
	case ActionNotifyAdmin:
		return r.actions.NotifyAdmin(ctx, resp.UserID, resp.RiskLevel, resp.RiskScore)
	case ActionBlockUser:
		until := r.blocklist.Block(resp.UserID, r.blockDuration)
		resp.BlockedUntil = &until
		return nil
	case ActionIncreaseMonitoring:
		return r.actions.IncreaseMonitoring(ctx, resp.UserID)
	}
	// monitor and normal_monitoring are advisory, no side effects
	return nil
}
