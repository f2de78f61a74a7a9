// Package ingest fetches history and forecast windows from the weather
// source and merges them idempotently into the time-series store.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/minhqng/weather-risk-alerts/internal/observability"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
	"github.com/minhqng/weather-risk-alerts/internal/weather/source"
)

// Source is the slice of the weather data source this engine consumes.
type Source interface {
	History(ctx context.Context, query string, start, end time.Time) (*source.Response, error)
	Forecast(ctx context.Context, query string, days int) (*source.Response, error)
}

// Engine performs idempotent ingestion of fixed history and forecast
// windows for one or all tracked locations.
type Engine struct {
	src       Source
	locations weather.LocationStore
	records   weather.RecordStore
	metrics   *observability.Metrics

	historyDays  int
	forecastDays int
}

// NewEngine creates an ingestion engine. historyDays is the backward
// window size in full days ending yesterday; forecastDays the forward
// window size.
func NewEngine(src Source, locations weather.LocationStore, records weather.RecordStore, metrics *observability.Metrics, historyDays, forecastDays int) *Engine {
	return &Engine{
		src:          src,
		locations:    locations,
		records:      records,
		metrics:      metrics,
		historyDays:  historyDays,
		forecastDays: forecastDays,
	}
}

// Ingest fetches both windows for one location and set-inserts the
// mapped records. Partial source failure is non-fatal: whichever window
// was obtained is still stored. An error is returned only when no
// usable data was produced at all.
func (e *Engine) Ingest(ctx context.Context, loc weather.Location) error {
	var (
		records     []weather.Record
		fetchErrors int
	)

	end := weather.Day(time.Now()).AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(e.historyDays - 1))

	hist, err := e.src.History(ctx, loc.Name, start, end)
	if err != nil {
		fetchErrors++
		log.Printf("ingest: history fetch failed for %s: %v", loc.Name, err)
	} else {
		records = append(records, e.mapDays(loc, hist.Days, weather.KindHistory)...)
	}

	fc, err := e.src.Forecast(ctx, loc.Name, e.forecastDays)
	if err != nil {
		fetchErrors++
		log.Printf("ingest: forecast fetch failed for %s: %v", loc.Name, err)
	} else {
		records = append(records, e.mapDays(loc, fc.Days, weather.KindForecast)...)
	}

	if len(records) == 0 {
		if fetchErrors > 0 {
			return fmt.Errorf("ingest %s: %w", loc.Name, weather.ErrSourceUnavailable)
		}
		log.Printf("ingest: source returned no records for %s", loc.Name)
		return nil
	}

	inserted, err := e.records.InsertRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("ingest %s: storing records: %w", loc.Name, err)
	}
	e.metrics.RecordsStored.Add(float64(inserted))
	log.Printf("ingest: stored %d new unique records for %s (%d fetched)", inserted, loc.Name, len(records))
	return nil
}

// IngestAll runs Ingest for every active location. One location's
// failure never stops processing of the others.
func (e *Engine) IngestAll(ctx context.Context) weather.RunSummary {
	log.Println("ingest: running full data ingestion")
	var summary weather.RunSummary

	locs, err := e.locations.ActiveLocations(ctx)
	if err != nil {
		log.Printf("ingest: listing active locations: %v", err)
		summary.Failed++
		e.metrics.IngestRuns.WithLabelValues("failure").Inc()
		return summary
	}
	if len(locs) == 0 {
		log.Println("ingest: no active locations")
		e.metrics.IngestRuns.WithLabelValues("success").Inc()
		return summary
	}

	for _, loc := range locs {
		if err := e.Ingest(ctx, loc); err != nil {
			summary.Failed++
			log.Printf("ingest: failed for %s: %v", loc.Name, err)
			continue
		}
		summary.Succeeded++
	}

	outcome := "success"
	if !summary.Success() {
		outcome = "failure"
	}
	e.metrics.IngestRuns.WithLabelValues(outcome).Inc()
	log.Printf("ingest: completed, succeeded=%d failed=%d", summary.Succeeded, summary.Failed)
	return summary
}

// mapDays converts upstream day entries to records, skipping malformed
// entries with a warning instead of aborting the batch.
func (e *Engine) mapDays(loc weather.Location, days []source.Day, kind weather.RecordKind) []weather.Record {
	records := make([]weather.Record, 0, len(days))
	for _, d := range days {
		ts, err := time.ParseInLocation("2006-01-02", d.Date, time.UTC)
		if err != nil {
			log.Printf("ingest: skipping invalid %s record for %s on %q: %v", kind, loc.Name, d.Date, err)
			continue
		}

		raw, err := json.Marshal(d)
		if err != nil {
			log.Printf("ingest: skipping unencodable %s record for %s on %s: %v", kind, loc.Name, d.Date, err)
			continue
		}

		records = append(records, weather.Record{
			LocationID: loc.ID,
			RecordTime: ts,
			Kind:       kind,
			TempC:      deref(d.Day.AvgTempC),
			Humidity:   deref(d.Day.AvgHumidity),
			UVIndex:    deref(d.Day.UV),
			WindKPH:    deref(d.Day.MaxWindKPH),
			Raw:        raw,
		})
	}
	return records
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
