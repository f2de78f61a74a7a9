package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minhqng/weather-risk-alerts/internal/advisory"
	"github.com/minhqng/weather-risk-alerts/internal/analysis"
	httpapi "github.com/minhqng/weather-risk-alerts/internal/api/http"
	"github.com/minhqng/weather-risk-alerts/internal/config"
	"github.com/minhqng/weather-risk-alerts/internal/geocode"
	"github.com/minhqng/weather-risk-alerts/internal/inference"
	"github.com/minhqng/weather-risk-alerts/internal/ingest"
	"github.com/minhqng/weather-risk-alerts/internal/observability"
	"github.com/minhqng/weather-risk-alerts/internal/scheduler"
	"github.com/minhqng/weather-risk-alerts/internal/store"
	"github.com/minhqng/weather-risk-alerts/internal/tracking"
	"github.com/minhqng/weather-risk-alerts/internal/weather/source"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Persistent store shared by every component.
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	metrics := observability.NewMetrics()

	// External collaborators: a seconds-scale weather source and a
	// minutes-scale inference service.
	weatherClient := source.NewClient(&http.Client{Timeout: cfg.WeatherTimeout}, cfg.WeatherAPIKey, cfg.WeatherBaseURL)
	inferClient := inference.NewClient(cfg.OllamaURL, cfg.OllamaModel, cfg.InferenceTimeout)

	// Core services.
	engine := ingest.NewEngine(weatherClient, db, db, metrics, cfg.HistoryDays, cfg.ForecastDays)
	orchestrator := analysis.NewOrchestrator(db, db, db, inferClient, metrics, cfg.AnalysisWindow, cfg.AnalysisWorkers)
	advisor := advisory.NewService(weatherClient, inferClient, db, db, metrics, clockwork.NewRealClock(), advisory.Config{
		HistoryDays:    cfg.AdviceHistoryDays,
		ForecastDays:   cfg.AdviceForecastDays,
		HotTTL:         cfg.HotCacheTTL,
		Freshness:      cfg.AdviceFreshness,
		CoordTolerance: cfg.CoordTolerance,
	})

	// Scheduler owned by this composition root; the recurring jobs
	// catch, log and summarize so a failed run never prevents the next.
	sched := scheduler.New()
	if err := sched.ScheduleRecurring("data-ingestion", cfg.IngestionCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		engine.IngestAll(ctx)
	}); err != nil {
		log.Fatalf("failed to schedule ingestion job: %v", err)
	}
	if err := sched.ScheduleRecurring("risk-analysis", cfg.AnalysisCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Minute)
		defer cancel()
		orchestrator.AnalyzeAll(ctx)
	}); err != nil {
		log.Fatalf("failed to schedule analysis job: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	tracker := tracking.NewService(db, sched, engine, orchestrator,
		geocode.New(cfg.GeocoderAPIKey), cfg.OnboardIngestDelay, cfg.OnboardAnalyzeDelay)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-risk-alerts",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Minute, // advice misses wait on inference
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-risk-alerts",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Tracker:     tracker,
		Advisor:     advisor,
		Ingestion:   engine,
		Analysis:    orchestrator,
		Locations:   db,
		Alerts:      db,
		AdminSecret: cfg.AdminSecret,
	})

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
