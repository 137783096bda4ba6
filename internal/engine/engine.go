// Package engine wires the behavioral-authentication pipeline end to end:
// ingestion, scoring, anomaly and drift detection, pattern analysis, and the
// escalating response.
//
// One event flows one direction: session store (append/create), risk
// aggregator, detector, escalation policy, side effects, assessment back to
// the caller. All mutation of a user's session happens under that user's
// lock; different users proceed fully in parallel. Forensic and archive
// writes are asynchronous so no I/O runs under the lock.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/warden/internal/anomaly"
	"github.com/mbd888/warden/internal/behavior"
	"github.com/mbd888/warden/internal/directory"
	"github.com/mbd888/warden/internal/forensics"
	"github.com/mbd888/warden/internal/metrics"
	"github.com/mbd888/warden/internal/notify"
	"github.com/mbd888/warden/internal/profile"
	"github.com/mbd888/warden/internal/response"
	"github.com/mbd888/warden/internal/risk"
	"github.com/mbd888/warden/internal/session"
	"github.com/mbd888/warden/internal/syncutil"
	"github.com/mbd888/warden/internal/traces"
)

// Directory resolves user identities, best effort. A lookup failure costs
// only the enrichment, never the assessment.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*directory.UserInfo, error)
}

// Broadcaster pushes live assessments and alerts to streaming clients.
type Broadcaster interface {
	BroadcastAssessment(data map[string]interface{})
	BroadcastAlert(data map[string]interface{})
}

// Assessment is the per-event result returned to the caller.
type Assessment struct {
	UserID               string              `json:"userId"`
	Timestamp            time.Time           `json:"timestamp"`
	RiskScore            float64             `json:"riskScore"`
	KeystrokeRisk        float64             `json:"keystrokeRisk"`
	PointerRisk          float64             `json:"pointerRisk"`
	RiskLevel            response.Level      `json:"riskLevel"`
	IsAnomaly            bool                `json:"isAnomaly"`
	HasDrift             bool                `json:"hasDrift"`
	ConsecutiveAnomalies int                 `json:"consecutiveAnomalies"`
	SessionRotated       bool                `json:"sessionRotated,omitempty"`
	Pattern              *anomaly.Evaluation `json:"pattern,omitempty"`
	ActionsTaken         []response.Action   `json:"actionsTaken"`
	BlockedUntil         *time.Time          `json:"blockedUntil,omitempty"`
}

// Status is the session snapshot served to analysts.
type Status struct {
	UserID               string              `json:"userId"`
	StartTime            time.Time           `json:"startTime"`
	LastActivity         time.Time           `json:"lastActivity"`
	EventCount           int                 `json:"eventCount"`
	CurrentRiskScore     float64             `json:"currentRiskScore"`
	RiskLevel            response.Level      `json:"riskLevel"`
	HasDrift             bool                `json:"hasDrift"`
	AnomalyCount         int                 `json:"anomalyCount"`
	ConsecutiveAnomalies int                 `json:"consecutiveAnomalies"`
	Monitoring           string              `json:"monitoring"`
	IsBlocked            bool                `json:"isBlocked"`
	BlockedUntil         *time.Time          `json:"blockedUntil,omitempty"`
	BaselineDeviation    *float64            `json:"baselineDeviation,omitempty"`
	User                 *directory.UserInfo `json:"user,omitempty"`
}

// Engine orchestrates the pipeline and implements the response actions.
type Engine struct {
	sessions   *session.Manager
	aggregator *risk.Aggregator
	detector   *anomaly.Detector
	responder  *response.Responder
	store      forensics.Store
	notifier   *notify.Notifier

	profiler  *profile.Profiler
	directory Directory
	hub       Broadcaster

	locks  *syncutil.ContextShardedMutex
	logger *slog.Logger
	now    func() time.Time

	// inFlight pins the session being processed per user so that response
	// actions dispatched mid-pipeline still reach it after LockSession
	// archives it.
	mu        sync.Mutex
	inFlight  map[string]*session.Session
	monitored map[string]time.Time
}

// New assembles an engine. The responder is built here because the engine
// itself implements the response actions; configure it through Responder().
func New(sessions *session.Manager, aggregator *risk.Aggregator, detector *anomaly.Detector, store forensics.Store, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		sessions:   sessions,
		aggregator: aggregator,
		detector:   detector,
		store:      store,
		notifier:   notifier,
		locks:      syncutil.NewContextShardedMutex(),
		logger:     logger,
		now:        time.Now,
		inFlight:   make(map[string]*session.Session),
		monitored:  make(map[string]time.Time),
	}
	e.responder = response.NewResponder(e, logger)
	return e
}

// WithProfiler attaches per-user baseline enrichment.
func (e *Engine) WithProfiler(p *profile.Profiler) *Engine {
	e.profiler = p
	return e
}

// WithDirectory attaches identity enrichment for status responses.
func (e *Engine) WithDirectory(d Directory) *Engine {
	e.directory = d
	return e
}

// WithBroadcaster attaches the realtime hub.
func (e *Engine) WithBroadcaster(b Broadcaster) *Engine {
	e.hub = b
	return e
}

// Responder exposes the escalation policy for configuration and for the
// risk-levels endpoint.
func (e *Engine) Responder() *response.Responder { return e.responder }

// Sessions exposes the session manager for the sweeper and analyst tools.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Detector exposes the anomaly detector, read-only use.
func (e *Engine) Detector() *anomaly.Detector { return e.detector }

// ProcessEvent runs one event through the full pipeline and returns the
// assessment.
//
// The error, when non-nil, is one of the boundary types: a
// behavior.ValidationError rejects the event outright, response.UserBlocked
// and response.ServiceUnavailable fail the dispatch fast, and
// response.InternalFailure reports a partially executed action list. For the
// dispatch failures the assessment is still returned so callers can log the
// scoring that did happen.
func (e *Engine) ProcessEvent(ctx context.Context, userID string, ev behavior.Event) (*Assessment, error) {
	ctx, span := traces.StartSpan(ctx, "engine.ProcessEvent",
		traces.UserID(userID),
		traces.Modality(string(ev.EventModality())))
	defer span.End()

	unlock, err := e.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, rotated, err := e.sessions.Ingest(userID, ev)
	if err != nil {
		metrics.EventsRejectedTotal.WithLabelValues(string(ev.EventModality())).Inc()
		return nil, err
	}
	metrics.EventsIngestedTotal.WithLabelValues(string(ev.EventModality())).Inc()
	metrics.ActiveSessions.Set(float64(e.sessions.ActiveCount()))
	if rotated != nil {
		e.afterArchive(rotated)
	}

	e.setInFlight(userID, sess)
	defer e.clearInFlight(userID)

	now := e.now()
	sample := e.aggregator.Score(sess.KeystrokeEvents, sess.PointerEvents, now)
	sample.IsAnomaly = e.detector.IsPointAnomaly(sess.RiskSamples, sample.Composite)
	sess.AppendSample(sample, e.sessions.Config().MaxEvents)
	run := sess.ObserveAnomaly(sample.IsAnomaly)
	hasDrift := e.detector.HasDrift(sess.RiskSamples)
	level := e.responder.LevelFor(sample.Composite)

	metrics.RiskScoreObserved.Observe(sample.Composite)
	if sample.IsAnomaly {
		metrics.AnomaliesTotal.Inc()
	}
	if hasDrift {
		metrics.DriftDetectedTotal.Inc()
	}
	span.SetAttributes(traces.RiskScore(sample.Composite), traces.RiskLevel(string(level)))

	assessment := &Assessment{
		UserID:               userID,
		Timestamp:            now,
		RiskScore:            sample.Composite,
		KeystrokeRisk:        sample.KeystrokeRisk,
		PointerRisk:          sample.PointerRisk,
		RiskLevel:            level,
		IsAnomaly:            sample.IsAnomaly,
		HasDrift:             hasDrift,
		ConsecutiveAnomalies: run,
		SessionRotated:       rotated != nil,
		ActionsTaken:         []response.Action{},
	}

	// Pattern analysis fires once per run, at the threshold crossing.
	if run == e.detector.Config().ConsecutiveAnomalyThreshold {
		eval := e.detector.EvaluatePattern(sess.KeystrokeEvents, sess.PointerEvents, now)
		assessment.Pattern = &eval
		switch eval.Outcome {
		case anomaly.PatternAlreadyBlocked:
			// Recurrence of a blocked shape: capture and report, skip the
			// score-based escalation entirely.
			e.logger.Warn("blocked pattern recurred",
				"user_id", userID,
				"occurrences", eval.Occurrences)
			e.captureForensics(sess, forensics.ReasonBlockedPattern, now)
			e.notifier.PatternBlocked(userID, eval.Signature, eval.Occurrences)
			e.broadcastAlert(userID, level, sample.Composite, "blocked_pattern")
			e.emitAssessment(assessment)
			return assessment, nil
		case anomaly.PatternBlocked:
			metrics.PatternsBlockedTotal.Inc()
			e.logger.Warn("pattern signature blocked",
				"user_id", userID,
				"occurrences", eval.Occurrences)
			e.captureForensics(sess, forensics.ReasonPatternBlocked, now)
			e.notifier.PatternBlocked(userID, eval.Signature, eval.Occurrences)
			e.broadcastAlert(userID, level, sample.Composite, "pattern_blocked")
		}
	}

	resp, err := e.responder.Handle(ctx, userID, level, sample.Composite)
	if resp != nil {
		assessment.ActionsTaken = resp.ActionsTaken
		assessment.BlockedUntil = resp.BlockedUntil
	}
	if err != nil {
		return assessment, err
	}
	if resp.BlockedUntil != nil {
		metrics.BlockedUsers.Set(float64(len(e.responder.Blocklist().Snapshot())))
		e.notifier.UserBlocked(userID, *resp.BlockedUntil)
		e.broadcastAlert(userID, level, sample.Composite, "user_blocked")
	} else if level == response.LevelHigh || level == response.LevelCritical {
		e.broadcastAlert(userID, level, sample.Composite, "escalation")
	}
	e.emitAssessment(assessment)
	return assessment, nil
}

// EndSession archives the user's live session, capturing a final forensic
// record first. Ending an absent session is a no-op returning nil.
func (e *Engine) EndSession(ctx context.Context, userID string) (*session.Archived, error) {
	ctx, span := traces.StartSpan(ctx, "engine.EndSession", traces.UserID(userID))
	defer span.End()

	unlock, err := e.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess := e.sessions.Get(userID)
	if sess == nil {
		return nil, nil
	}
	e.captureForensics(sess, forensics.ReasonSessionEnd, e.now())
	archived := e.sessions.End(userID, session.ReasonEnded)
	if archived != nil {
		e.afterArchive(archived)
	}
	e.mu.Lock()
	delete(e.monitored, userID)
	e.mu.Unlock()
	metrics.ActiveSessions.Set(float64(e.sessions.ActiveCount()))
	return archived, nil
}

// Status snapshots the user's live session. Returns nil when the user has no
// active session. The directory lookup happens after the user lock is
// released; its failure only drops the enrichment.
func (e *Engine) Status(ctx context.Context, userID string) (*Status, error) {
	unlock, err := e.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess := e.sessions.Get(userID)
	if sess == nil {
		unlock()
		return nil, nil
	}
	st := &Status{
		UserID:               userID,
		StartTime:            sess.StartTime,
		LastActivity:         sess.LastActivity,
		EventCount:           sess.EventCount(),
		CurrentRiskScore:     sess.CurrentRisk(),
		RiskLevel:            e.responder.LevelFor(sess.CurrentRisk()),
		HasDrift:             e.detector.HasDrift(sess.RiskSamples),
		AnomalyCount:         sess.AnomalyCount,
		ConsecutiveAnomalies: sess.ConsecutiveAnomalies,
		Monitoring:           "normal",
	}
	unlock()

	e.mu.Lock()
	if _, ok := e.monitored[userID]; ok {
		st.Monitoring = "increased"
	}
	e.mu.Unlock()

	if ub := e.responder.Blocklist().Check(userID); ub != nil {
		st.IsBlocked = true
		st.BlockedUntil = &ub.Until
	}
	if e.profiler != nil {
		if dev, ok := e.profiler.Deviation(userID, st.CurrentRiskScore); ok {
			st.BaselineDeviation = &dev
		}
	}
	if e.directory != nil {
		info, err := e.directory.Lookup(ctx, userID)
		if err != nil {
			e.logger.Warn("directory lookup failed", "user_id", userID, "error", err)
		} else {
			st.User = info
		}
	}
	return st, nil
}

// LockSession implements response.Actions: a critical escalation force-ends
// the session.
func (e *Engine) LockSession(_ context.Context, userID string) error {
	archived := e.sessions.End(userID, session.ReasonLocked)
	if archived != nil {
		e.afterArchive(archived)
		metrics.ActiveSessions.Set(float64(e.sessions.ActiveCount()))
	}
	e.logger.Info("session locked", "user_id", userID)
	return nil
}

// CollectForensics implements response.Actions. It prefers the in-flight
// session so the capture still works right after LockSession archived it.
func (e *Engine) CollectForensics(_ context.Context, userID string) error {
	sess := e.pipelineSession(userID)
	if sess == nil {
		e.logger.Debug("forensic capture skipped, no session", "user_id", userID)
		return nil
	}
	e.captureForensics(sess, forensics.ReasonCriticalRisk, e.now())
	return nil
}

// NotifyAdmin implements response.Actions.
func (e *Engine) NotifyAdmin(_ context.Context, userID string, level response.Level, score float64) error {
	e.notifier.AdminAlert(userID, string(level), score)
	return nil
}

// IncreaseMonitoring implements response.Actions. The flag is advisory and
// clears when the session ends.
func (e *Engine) IncreaseMonitoring(_ context.Context, userID string) error {
	e.mu.Lock()
	e.monitored[userID] = e.now()
	e.mu.Unlock()
	return nil
}

// EndIdleSessions archives sessions idle past the timeout. Each candidate is
// re-checked under its user lock, so a user whose event arrives between the
// listing and the lock stays live. Returns the number of sessions archived.
func (e *Engine) EndIdleSessions(ctx context.Context) int {
	ended := 0
	for _, userID := range e.sessions.IdleUsers() {
		unlock, err := e.locks.LockContext(ctx, userID)
		if err != nil {
			break
		}
		archived := e.sessions.EndIdle(userID)
		unlock()
		if archived == nil {
			continue
		}
		e.afterArchive(archived)
		e.mu.Lock()
		delete(e.monitored, userID)
		e.mu.Unlock()
		ended++
	}
	if ended > 0 {
		metrics.ActiveSessions.Set(float64(e.sessions.ActiveCount()))
	}
	return ended
}

// CompactArchives prunes stale archived history.
func (e *Engine) CompactArchives() int {
	return e.sessions.Compact()
}

// PruneBlocklist drops expired blocks and refreshes the gauge.
func (e *Engine) PruneBlocklist() int {
	pruned := e.responder.Blocklist().Prune()
	metrics.BlockedUsers.Set(float64(len(e.responder.Blocklist().Snapshot())))
	return pruned
}

// CaptureForensics takes an analyst-requested snapshot of the user's live
// session. Returns nil when there is no session to capture.
func (e *Engine) CaptureForensics(ctx context.Context, userID string) (*forensics.Record, error) {
	unlock, err := e.locks.LockContext(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sess := e.sessions.Get(userID)
	if sess == nil {
		return nil, nil
	}
	rec := forensics.Build(e.detector, sess, forensics.ReasonManual, e.now())
	if err := e.store.Write(ctx, rec); err != nil {
		return nil, err
	}
	metrics.ForensicRecordsTotal.WithLabelValues(string(forensics.ReasonManual)).Inc()
	return rec, nil
}

func (e *Engine) setInFlight(userID string, sess *session.Session) {
	e.mu.Lock()
	e.inFlight[userID] = sess
	e.mu.Unlock()
}

func (e *Engine) clearInFlight(userID string) {
	e.mu.Lock()
	delete(e.inFlight, userID)
	e.mu.Unlock()
}

// pipelineSession returns the session response actions should capture: the
// in-flight one when dispatch happens mid-pipeline, else the live one.
func (e *Engine) pipelineSession(userID string) *session.Session {
	e.mu.Lock()
	sess := e.inFlight[userID]
	e.mu.Unlock()
	if sess != nil {
		return sess
	}
	return e.sessions.Get(userID)
}

// captureForensics builds the record under the caller's lock and persists it
// off the hot path.
func (e *Engine) captureForensics(sess *session.Session, reason forensics.Reason, now time.Time) {
	rec := forensics.Build(e.detector, sess, reason, now)
	go e.writeForensic(rec)
}

func (e *Engine) writeForensic(rec *forensics.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.Write(ctx, rec); err != nil {
		e.logger.Error("failed to persist forensic record",
			"record_id", rec.ID,
			"user_id", rec.UserID,
			"reason", rec.Reason,
			"error", err)
		return
	}
	metrics.ForensicRecordsTotal.WithLabelValues(string(rec.Reason)).Inc()
	e.logger.Info("forensic record captured",
		"record_id", rec.ID,
		"user_id", rec.UserID,
		"reason", rec.Reason)
}

// afterArchive reports an archived session to metrics, notifications, and
// the stream.
func (e *Engine) afterArchive(a *session.Archived) {
	metrics.SessionsArchivedTotal.WithLabelValues(string(a.Reason)).Inc()
	e.notifier.SessionEnded(a.UserID, map[string]interface{}{
		"sessionId":       a.ID,
		"reason":          string(a.Reason),
		"durationSeconds": a.Duration().Seconds(),
		"eventCount":      a.KeystrokeCount + a.PointerCount,
		"anomalyCount":    a.AnomalyCount,
		"meanRisk":        a.MeanRisk,
		"maxRisk":         a.MaxRisk,
		"finalRisk":       a.FinalRisk,
	})
	if e.hub != nil {
		e.hub.BroadcastAlert(map[string]interface{}{
			"kind":      "session_ended",
			"userId":    a.UserID,
			"sessionId": a.ID,
			"reason":    string(a.Reason),
		})
	}
}

func (e *Engine) emitAssessment(a *Assessment) {
	e.notifier.Assessment(a.UserID, string(a.RiskLevel), a.RiskScore, map[string]interface{}{
		"isAnomaly":            a.IsAnomaly,
		"hasDrift":             a.HasDrift,
		"consecutiveAnomalies": a.ConsecutiveAnomalies,
		"actionsTaken":         a.ActionsTaken,
	})
	if e.hub != nil {
		e.hub.BroadcastAssessment(map[string]interface{}{
			"userId":    a.UserID,
			"riskScore": a.RiskScore,
			"riskLevel": string(a.RiskLevel),
			"isAnomaly": a.IsAnomaly,
			"hasDrift":  a.HasDrift,
		})
	}
}

func (e *Engine) broadcastAlert(userID string, level response.Level, score float64, kind string) {
	if e.hub == nil {
		return
	}
	e.hub.BroadcastAlert(map[string]interface{}{
		"kind":      kind,
		"userId":    userID,
		"riskLevel": string(level),
		"riskScore": score,
	})
}
