package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/api"
	"github.com/arc-sentinel/sentinel-core/internal/api/websocket"
	"github.com/arc-sentinel/sentinel-core/internal/auth"
	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/detect"
	"github.com/arc-sentinel/sentinel-core/internal/forensics"
	"github.com/arc-sentinel/sentinel-core/internal/llm"
	"github.com/arc-sentinel/sentinel-core/internal/ml"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/pipeline"
	"github.com/arc-sentinel/sentinel-core/internal/response"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
	"github.com/arc-sentinel/sentinel-core/internal/telemetry"
	"github.com/arc-sentinel/sentinel-core/pkg/cache"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting SENTINEL-CORE", "version", "1.0.0", "environment", cfg.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionCache := cache.NewRedisCache(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, logger)

	gateway, err := storage.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := gateway.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply database schema", "error", err)
	}

	deriver := ml.NewDeriver(gateway, logger)
	detector := ml.NewDetector(deriver, cfg.ML.AnomalyThreshold, cfg.ML.Contamination, logger)
	if blob, trainedAt, err := gateway.LoadModelBlob(ctx); err == nil {
		if err := detector.Restore(blob); err != nil {
			logger.Warn("Persisted model could not be restored", "error", err)
		} else {
			logger.Info("Restored anomaly model", "trained_at", trainedAt.Format(time.RFC3339))
		}
	}

	rules := detect.NewEngine()
	capturer := forensics.NewEngine(cfg.DemoMode, logger)
	hub := websocket.NewHub(logger)
	responder := response.NewEngine(gateway, hub, cfg.Email, logger)
	materializer := pipeline.NewMaterializer(deriver, detector, rules, capturer, gateway, hub, responder, logger.With("component", "pipeline"))

	var summarizer llm.Summarizer = llm.NewGeminiClient(cfg.Gemini, logger)
	if cfg.DemoMode {
		summarizer = llm.NewStaticSummarizer(forensics.DemoSummary)
	}
	authProvider := auth.NewClient(cfg.Auth, logger)

	var runner *telemetry.Runner
	if cfg.Telemetry.Enabled {
		interval := time.Duration(cfg.Telemetry.IntervalSeconds) * time.Second
		runner = telemetry.NewRunner(telemetry.NewGenerator(), interval, func(event *models.Event) {
			materializer.Process(ctx, event)
		}, logger)
		runner.Start()
	}

	apiServer := api.NewServer(cfg, logger, api.Deps{
		Gateway:      gateway,
		Cache:        sessionCache,
		Detector:     detector,
		Hub:          hub,
		Materializer: materializer,
		Responder:    responder,
		Summarizer:   summarizer,
		AuthProvider: authProvider,
		Chains:       telemetry.NewChainGenerator(),
		Runner:       runner,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed", "error", err)
	}

	if runner != nil {
		runner.Stop()
	}
	hub.Close()
	if err := gateway.Close(); err != nil {
		logger.Warn("Database close failed", "error", err)
	}
	if err := sessionCache.Close(); err != nil {
		logger.Warn("Cache close failed", "error", err)
	}
	logger.Info("SENTINEL-CORE shutdown complete")
}
