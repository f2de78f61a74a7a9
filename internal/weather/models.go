package weather

import (
	"encoding/json"
	"time"
)

// RecordKind marks whether a record was observed in the past or predicted.
type RecordKind string

const (
	KindHistory  RecordKind = "HISTORY"
	KindForecast RecordKind = "FORECAST"
)

// AdvisoryKind distinguishes a routine recommendation from a warning.
type AdvisoryKind string

const (
	AdvisoryAdvice  AdvisoryKind = "advice"
	AdvisoryWarning AdvisoryKind = "warning"
)

// Location is a geographic point tracked by at least one subscriber.
// Locations are created on first tracking request or on advisory
// auto-registration and are never hard-deleted.
type Location struct {
	ID          int64     `json:"location_id"`
	Name        string    `json:"name"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Active      bool      `json:"is_active"`
	Subscribers []int64   `json:"subscribers,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is one day of weather data for a location. Records are unique
// per (location, record time); conflicting inserts are dropped.
type Record struct {
	LocationID int64           `json:"location_id"`
	RecordTime time.Time       `json:"record_time"`
	Kind       RecordKind      `json:"kind"`
	TempC      float64         `json:"temp_c"`
	Humidity   float64         `json:"humidity"`
	UVIndex    float64         `json:"uv_index"`
	WindKPH    float64         `json:"wind_kph"`
	Raw        json.RawMessage `json:"-"`
}

// Alert is a structured multi-day risk finding produced by analysis.
// Only alerts that passed full schema validation are ever persisted.
type Alert struct {
	ID              int64           `json:"alert_id"`
	LocationID      int64           `json:"location_id"`
	DetectedAt      time.Time       `json:"detected_at"`
	Severity        string          `json:"severity"`
	ImpactField     string          `json:"impact_field"`
	ForecastDetails string          `json:"forecast_details"`
	Advice          string          `json:"actionable_advice"`
	Raw             json.RawMessage `json:"-"`
}

// Advisory is a single near-term natural-language recommendation or
// warning, distinct from a structured Alert. The durable advisory log
// is append-only and queried by recency.
type Advisory struct {
	ID          int64        `json:"advisory_id"`
	LocationID  int64        `json:"location_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Kind        AdvisoryKind `json:"kind"`
	Message     string       `json:"message"`
}

// RunSummary aggregates the outcome of a fleet-wide job. Skipped counts
// locations that lacked enough data; skips never flip the success flag.
type RunSummary struct {
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	AlertsCreated int `json:"alerts_created,omitempty"`
}

// Success reports whether the run completed without a single failure.
func (s RunSummary) Success() bool {
	return s.Failed == 0
}
