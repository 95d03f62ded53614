package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/api/handlers"
	"github.com/arc-sentinel/sentinel-core/internal/api/middleware"
	"github.com/arc-sentinel/sentinel-core/internal/api/websocket"
	"github.com/arc-sentinel/sentinel-core/internal/auth"
	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/llm"
	"github.com/arc-sentinel/sentinel-core/internal/ml"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/internal/pipeline"
	"github.com/arc-sentinel/sentinel-core/internal/response"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
	"github.com/arc-sentinel/sentinel-core/internal/telemetry"
	"github.com/arc-sentinel/sentinel-core/pkg/cache"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// Deps carries the composed subsystems the HTTP surface exposes.
type Deps struct {
	Gateway      *storage.Gateway
	Cache        cache.Cache
	Detector     *ml.Detector
	Hub          *websocket.Hub
	Materializer *pipeline.Materializer
	Responder    *response.Engine
	Summarizer   llm.Summarizer
	AuthProvider auth.Provider
	Chains       *telemetry.ChainGenerator
	Runner       *telemetry.Runner
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	deps       Deps
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(cfg *config.Config, log logger.Logger, deps Deps) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		logger: log,
		deps:   deps,
		router: gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(s.config.CORS))
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(middleware.Metrics())

	monitoring.SetupPrometheusMetrics(s.router)
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(handlers.HealthProbes{
		Store:          s.deps.Gateway.HealthCheck,
		ModelTrained:   s.deps.Detector.Trained,
		LLMConfigured:  s.llmConfigured,
		Subscribers:    s.deps.Hub.ClientCount,
		TelemetryAlive: s.telemetryAlive,
	}, s.logger)

	s.router.GET("/", healthHandler.Root)
	s.router.GET("/health", healthHandler.Health)

	authHandler := handlers.NewAuthHandler(s.deps.AuthProvider, s.deps.Cache, s.deps.Gateway, s.logger)
	authLimit := middleware.AuthRateLimit(s.deps.Cache, s.config.Auth.MaxAttemptsMin, s.logger)

	authGroup := s.router.Group("/api/auth")
	authGroup.POST("/signup", authLimit, authHandler.SignUp)
	authGroup.POST("/login", authLimit, authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/reset-password", authLimit, authHandler.ResetPassword)

	requireAuth := middleware.Auth(s.deps.AuthProvider, s.deps.Cache, s.config.Auth, s.logger)
	optionalAuth := middleware.OptionalAuth(s.deps.AuthProvider, s.deps.Cache, s.config.Auth, s.logger)

	authGroup.POST("/logout", requireAuth, authHandler.Logout)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	api := s.router.Group("/api")
	api.Use(requireAuth)

	eventHandler := handlers.NewEventHandler(s.deps.Gateway, s.logger)
	api.GET("/events", eventHandler.List)

	incidentHandler := handlers.NewIncidentHandler(s.deps.Gateway, s.deps.Hub, s.logger)
	api.GET("/incidents", incidentHandler.List)
	api.GET("/incidents/counts", incidentHandler.Stats)
	api.GET("/incident/:id", incidentHandler.Get)
	api.POST("/incident/:id/resolve", incidentHandler.Resolve)
	api.POST("/incident/:id/investigate", incidentHandler.Investigate)
	api.GET("/stats", incidentHandler.Stats)

	reportHandler := handlers.NewReportHandler(s.deps.Gateway, s.logger)
	api.GET("/reports", reportHandler.List)
	api.GET("/report/:incident_id", reportHandler.GetByIncident)

	mlHandler := handlers.NewMLHandler(s.deps.Detector, s.deps.Gateway, s.logger)
	api.POST("/ml/train", mlHandler.Train)
	api.GET("/ml/status", mlHandler.Status)

	summaryHandler := handlers.NewSummaryHandler(s.deps.Summarizer, s.deps.Gateway, s.logger)
	api.POST("/gemini/summarize/:incident_id", summaryHandler.Summarize)

	responseHandler := handlers.NewResponseHandler(s.deps.Responder, s.logger)
	api.POST("/response/isolate-process/:pid", responseHandler.IsolateProcess)
	api.POST("/response/quarantine-device", responseHandler.QuarantineDevice)
	api.POST("/response/revoke-session/:user_id", responseHandler.RevokeSession)
	api.GET("/response/quarantined-devices", responseHandler.QuarantinedDevices)
	api.GET("/response/isolated-processes", responseHandler.IsolatedProcesses)
	api.GET("/response/action-log", responseHandler.ActionLog)

	simulationHandler := handlers.NewSimulationHandler(s.deps.Chains, s.deps.Materializer, s.logger)
	s.router.POST("/api/simulate/attack", optionalAuth, simulationHandler.Attack)

	// Live event stream. Browsers cannot set headers on WebSocket upgrades,
	// so the token rides in the query string and auth stays optional.
	wsUpgrade := func(c *gin.Context) {
		s.deps.Hub.HandleConnection(c.Writer, c.Request)
	}
	s.router.GET("/api/events/live", optionalAuth, wsUpgrade)
	s.router.GET("/ws", optionalAuth, wsUpgrade)
}

func (s *Server) llmConfigured() bool {
	if c, ok := s.deps.Summarizer.(*llm.GeminiClient); ok {
		return c.Configured()
	}
	return s.deps.Summarizer != nil
}

func (s *Server) telemetryAlive() bool {
	return s.deps.Runner != nil && s.deps.Runner.Running()
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("sentinel-core API server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests and embedders.
func (s *Server) Handler() http.Handler {
	return s.router
}
