// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/mbd888/warden/internal/admin"
	"github.com/mbd888/warden/internal/anomaly"
	"github.com/mbd888/warden/internal/auth"
	"github.com/mbd888/warden/internal/circuitbreaker"
	"github.com/mbd888/warden/internal/config"
	"github.com/mbd888/warden/internal/directory"
	"github.com/mbd888/warden/internal/engine"
	"github.com/mbd888/warden/internal/forensics"
	"github.com/mbd888/warden/internal/health"
	"github.com/mbd888/warden/internal/logging"
	"github.com/mbd888/warden/internal/metrics"
	"github.com/mbd888/warden/internal/notify"
	"github.com/mbd888/warden/internal/profile"
	"github.com/mbd888/warden/internal/ratelimit"
	"github.com/mbd888/warden/internal/realtime"
	"github.com/mbd888/warden/internal/response"
	"github.com/mbd888/warden/internal/risk"
	"github.com/mbd888/warden/internal/scoring"
	"github.com/mbd888/warden/internal/security"
	"github.com/mbd888/warden/internal/session"
	"github.com/mbd888/warden/internal/sweeper"
	"github.com/mbd888/warden/internal/validation"
	"github.com/mbd888/warden/internal/webhooks"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	sessions     *session.Manager
	engine       *engine.Engine
	store        forensics.Store
	notifier     *notify.Notifier
	webhooks     *webhooks.Dispatcher
	webhookStore webhooks.Store
	profiler     *profile.Profiler
	profileTimer *profile.Timer
	realtimeHub  *realtime.Hub
	ingest       *engine.IngestSocket
	sweep        *sweeper.Sweeper
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	authMgr      *auth.Manager

	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		archiveStore  session.ArchiveStore
		forensicStore forensics.Store
		baselineStore profile.BaselineStore
		authStore     auth.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Forensic records with Postgres
		fs := forensics.NewPostgresStore(db)
		if err := fs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate forensic store", "error", err)
		}
		forensicStore = fs

		// Session archives with Postgres
		as := session.NewPostgresStore(db)
		if err := as.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate archive store", "error", err)
		}
		archiveStore = as

		// Risk baselines with Postgres
		bs := profile.NewPostgresBaselineStore(db)
		if err := bs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate baseline store", "error", err)
		}
		baselineStore = bs

		// Webhooks with Postgres
		ws := webhooks.NewPostgresStore(db)
		if err := ws.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		s.webhookStore = ws

		// Analyst API keys with Postgres
		ks := auth.NewPostgresStore(db)
		if err := ks.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		authStore = ks
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		forensicStore = forensics.NewMemoryStore()
		baselineStore = profile.NewMemoryBaselineStore()
		s.webhookStore = webhooks.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		// archiveStore stays nil: the session manager keeps history in memory
	}
	s.store = forensicStore
	s.authMgr = auth.NewManager(authStore)

	// Session manager
	s.sessions = session.NewManager(session.Config{
		Timeout:         cfg.SessionTimeout,
		CleanupInterval: cfg.CleanupInterval,
		MaxEvents:       cfg.MaxEventsPerSession,
		ArchiveKeep:     cfg.ArchiveKeep,
	}, archiveStore, s.logger)

	// Webhook dispatcher (alert fan-out to external receivers)
	s.webhooks = webhooks.NewDispatcher(s.webhookStore)
	s.logger.Info("webhooks enabled")

	// Notification pipeline: structured log always, SIEM when configured,
	// webhooks last so receivers see the same stream
	sinks := []notify.Sink{notify.NewLogSink(s.logger)}
	if cfg.SiemURL != "" {
		siem, err := notify.NewSiemSink(cfg.SiemURL, cfg.SiemAPIKey)
		if err != nil {
			s.logger.Warn("failed to configure SIEM sink", "error", err)
		} else {
			sinks = append(sinks, siem)
			s.logger.Info("SIEM forwarding enabled", "endpoint", cfg.SiemURL)
		}
	}
	sinks = append(sinks, notify.NewWebhookSink(s.webhooks))
	s.notifier = notify.New(cfg.NotifyQueueSize, s.logger, sinks...)

	// Risk pipeline
	aggregator := risk.NewAggregator(scoring.Keystroke{}, scoring.Pointer{}).
		WithWeights(cfg.WeightKeystroke, cfg.WeightPointer)
	detector := anomaly.NewDetector(anomaly.Config{
		ConsecutiveAnomalyThreshold: cfg.ConsecutiveAnomalyThreshold,
		PatternBlockThreshold:       cfg.PatternBlockThreshold,
		SignatureMaxAge:             cfg.SignatureMaxAge,
	})

	s.engine = engine.New(s.sessions, aggregator, detector, forensicStore, s.notifier, s.logger)
	s.engine.Responder().
		WithThresholds(cfg.Thresholds()).
		WithBlockDuration(cfg.BlockDuration).
		WithBreaker(circuitbreaker.New(cfg.BreakerThreshold, cfg.BreakerTimeout))

	// Baseline profiling
	s.profiler = profile.NewProfiler()
	s.engine.WithProfiler(s.profiler)
	s.profileTimer = profile.NewTimer(baselineStore, s.profiler, s.sessions, s.logger)
	s.logger.Info("baseline profiling enabled")

	// Identity directory enrichment (optional)
	switch {
	case cfg.DirectoryURL != "":
		dir, err := directory.NewClient(cfg.DirectoryURL, cfg.DirectoryToken, 0)
		if err != nil {
			s.logger.Warn("failed to configure directory client", "error", err)
		} else {
			s.engine.WithDirectory(dir)
			s.logger.Info("identity directory enabled", "url", cfg.DirectoryURL)
		}
	case cfg.DirectoryFile != "":
		dir, err := directory.LoadStatic(cfg.DirectoryFile)
		if err != nil {
			s.logger.Warn("failed to load directory file", "error", err)
		} else {
			s.engine.WithDirectory(dir)
			s.logger.Info("identity directory loaded",
				"file", cfg.DirectoryFile,
				"users", dir.Size())
		}
	}

	// Realtime hub for WebSocket alert streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.engine.WithBroadcaster(s.realtimeHub)
	s.logger.Info("realtime streaming enabled")

	// WebSocket event ingest
	s.ingest = engine.NewIngestSocket(s.engine, s.logger)

	// Maintenance sweeper (idle sessions, archive compaction, blocklist)
	s.sweep = sweeper.New(s.engine, cfg.CleanupInterval, s.logger)

	// Subsystem health checks
	s.checks = health.NewRegistry()
	s.registerHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) registerHealthChecks() {
	if s.db != nil {
		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}
	s.checks.Register("sessions", func(ctx context.Context) health.Status {
		return health.Status{
			Name:    "sessions",
			Healthy: true,
			Detail:  fmt.Sprintf("%d active", s.sessions.ActiveCount()),
		}
	})
	s.checks.Register("realtime", func(ctx context.Context) health.Status {
		stats := s.realtimeHub.Stats()
		return health.Status{
			Name:    "realtime",
			Healthy: true,
			Detail:  fmt.Sprintf("%v clients", stats["connectedClients"]),
		}
	})
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitPerMinute > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitPerMinute
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context, with the monitored user when the route names one
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		if userID := c.Param("userId"); userID != "" {
			ctx = logging.WithUser(ctx, userID)
		}
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/ready", s.readinessHandler) // collector agents poll this path
	s.router.GET("/metrics", metrics.Handler())

	// Ops dashboard
	s.router.GET("/", dashboardHandler)

	// WebSocket endpoints: event ingest, alert streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.ingest.Handle(c.Writer, c.Request)
	})
	s.router.GET("/ws/alerts", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/api/v1")
	// Validate :userId URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.UserIDParamMiddleware())
	// Soft analyst identification; enforcement is per route group below
	v1.Use(auth.Middleware(s.authMgr))

	// Event ingestion and session lifecycle
	engineHandler := engine.NewHandler(s.engine, s.profiler)
	engineHandler.RegisterRoutes(v1)

	// Forensic record retrieval
	forensicsHandler := forensics.NewHandler(s.store)
	forensicsHandler.RegisterRoutes(v1)

	// Escalation policy introspection
	responseHandler := response.NewHandler(s.engine.Responder())
	responseHandler.RegisterRoutes(v1)

	// Webhook subscription management
	webhookHandler := webhooks.NewHandler(s.webhookStore)
	webhookHandler.RegisterRoutes(v1)

	// Analyst identity and key info
	authHandler := auth.NewHandler(s.authMgr)
	authHandler.RegisterRoutes(v1)

	// Analyst mutations: open by default, key-gated once an admin secret
	// locks the instance
	protected := v1.Group("")
	if s.cfg.AdminSecret != "" {
		protected.Use(auth.RequireAuth(s.authMgr))
	}
	engineHandler.RegisterProtectedRoutes(protected)
	webhookHandler.RegisterProtectedRoutes(protected)

	// Operator surface: key management plus manual intervention
	adminGroup := v1.Group("", auth.RequireAdmin(s.cfg.AdminSecret))
	authHandler.RegisterAdminRoutes(adminGroup)

	adminHandler := admin.NewHandler().
		WithMaintenance(s.engine).
		WithUnblocker(s.engine.Responder().Blocklist()).
		WithForensicExporter(s.store)
	adminHandler.RegisterRoutes(adminGroup)

	// Operational overview for the dashboard
	v1.GET("/stats", s.statsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		v := "healthy"
		if !st.Healthy {
			v = "unhealthy"
		}
		if st.Detail != "" {
			v = v + ": " + st.Detail
		}
		checks[st.Name] = v
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Warden",
		"description": "Continuous behavioral authentication risk engine",
		"version":     "0.1.0",
	})
}

// statsHandler returns an operational overview aggregated from the engine's
// collaborators. The dashboard polls it.
func (s *Server) statsHandler(c *gin.Context) {
	blocked := s.engine.Responder().Blocklist().Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"activeSessions": s.sessions.ActiveCount(),
		"idleSessions":   len(s.sessions.IdleUsers()),
		"blockedUsers":   len(blocked),
		"baselines":      s.profiler.Size(),
		"realtime":       s.realtimeHub.Stats(),
		"updatedAt":      time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start notification drain
	s.notifier.Start(runCtx)

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start baseline recomputation worker
	go s.profileTimer.Start(runCtx)

	// Start maintenance sweeper
	go s.sweep.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop maintenance sweeper
	if s.sweep != nil {
		s.sweep.Stop()
		s.logger.Info("maintenance sweeper stopped")
	}

	// Stop baseline worker
	if s.profileTimer != nil {
		s.profileTimer.Stop()
		s.logger.Info("baseline worker stopped")
	}

	// Stop notification drain (waits for the in-flight delivery)
	if s.notifier != nil {
		s.notifier.Stop()
		s.logger.Info("notifier stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Engine returns the risk engine, used by analyst tooling.
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
