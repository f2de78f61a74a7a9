package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the full runtime configuration, read from environment
// with sensible defaults.
type AppConfig struct {
	// Weather source.
	WeatherAPIKey  string
	WeatherBaseURL string
	WeatherTimeout time.Duration // seconds-scale

	// Inference service.
	OllamaURL        string
	OllamaModel      string
	InferenceTimeout time.Duration // minutes-scale

	// Persistence.
	DBPath string

	// Ingestion windows.
	HistoryDays  int
	ForecastDays int

	// Analysis.
	AnalysisWindow  int
	AnalysisWorkers int

	// Advisory cache.
	AdviceHistoryDays  int
	AdviceForecastDays int
	HotCacheTTL        time.Duration
	AdviceFreshness    time.Duration
	CoordTolerance     float64

	// Recurring jobs (cron expressions, UTC).
	IngestionCron string
	AnalysisCron  string

	// Onboarding one-shot delays.
	OnboardIngestDelay  time.Duration
	OnboardAnalyzeDelay time.Duration

	// Boundary.
	Port        string
	AdminSecret string

	// Optional geocoding for tracked names without coordinates.
	GeocoderAPIKey string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		WeatherAPIKey:  os.Getenv("WEATHER_API_KEY"),
		WeatherBaseURL: getenvDefault("WEATHER_BASE_URL", "https://api.weatherapi.com/v1"),

		OllamaURL:   getenvDefault("OLLAMA_API_URL", "http://localhost:11434/api/generate"),
		OllamaModel: getenvDefault("OLLAMA_MODEL", "gemma3"),

		DBPath: getenvDefault("DB_PATH", "weather-risk.db"),

		HistoryDays:  getenvInt("INGEST_HISTORY_DAYS", 6),
		ForecastDays: getenvInt("INGEST_FORECAST_DAYS", 7),

		AnalysisWindow:  getenvInt("ANALYSIS_WINDOW", 14),
		AnalysisWorkers: getenvInt("ANALYSIS_WORKERS", 3),

		AdviceHistoryDays:  getenvInt("ADVICE_HISTORY_DAYS", 3),
		AdviceForecastDays: getenvInt("ADVICE_FORECAST_DAYS", 4),

		IngestionCron: getenvDefault("INGESTION_CRON", "1 0 * * *"),
		AnalysisCron:  getenvDefault("ANALYSIS_CRON", "1 3 * * *"),

		Port:        getenvDefault("PORT", "8080"),
		AdminSecret: os.Getenv("ADMIN_SECRET"),

		GeocoderAPIKey: os.Getenv("GEOCODER_API_KEY"),
	}

	var err error
	if cfg.WeatherTimeout, err = getenvDuration("WEATHER_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.InferenceTimeout, err = getenvDuration("INFERENCE_TIMEOUT", "5m"); err != nil {
		return nil, err
	}
	if cfg.HotCacheTTL, err = getenvDuration("HOT_CACHE_TTL", "3h"); err != nil {
		return nil, err
	}
	if cfg.AdviceFreshness, err = getenvDuration("ADVICE_FRESHNESS", "1h"); err != nil {
		return nil, err
	}
	if cfg.OnboardIngestDelay, err = getenvDuration("ONBOARD_INGEST_DELAY", "10s"); err != nil {
		return nil, err
	}
	if cfg.OnboardAnalyzeDelay, err = getenvDuration("ONBOARD_ANALYZE_DELAY", "2m"); err != nil {
		return nil, err
	}
	cfg.CoordTolerance = getenvFloat("COORD_TOLERANCE", 0.001)

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
