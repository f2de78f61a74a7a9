// Package analysis runs stored time series through the inference
// service and persists validated risk alerts.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/minhqng/weather-risk-alerts/internal/common"
	"github.com/minhqng/weather-risk-alerts/internal/observability"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

// InferenceClient is the slice of the inference service the
// orchestrator consumes.
type InferenceClient interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// Orchestrator fans risk analysis out across active locations with a
// fixed concurrency ceiling on in-flight inference calls.
type Orchestrator struct {
	locations weather.LocationStore
	records   weather.RecordStore
	alerts    weather.AlertStore
	infer     InferenceClient
	metrics   *observability.Metrics
	validate  *validator.Validate

	window  int // records required per analysis
	workers int // max concurrent inference calls
}

// NewOrchestrator creates an analysis orchestrator. window is the
// number of records a location must have (newest first); workers caps
// simultaneous inference calls, protecting a resource-constrained
// backend.
func NewOrchestrator(locations weather.LocationStore, records weather.RecordStore, alerts weather.AlertStore, infer InferenceClient, metrics *observability.Metrics, window, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 3
	}
	return &Orchestrator{
		locations: locations,
		records:   records,
		alerts:    alerts,
		infer:     infer,
		metrics:   metrics,
		validate:  validator.New(),
		window:    window,
		workers:   workers,
	}
}

// Analyze reads the most recent window of records for one location,
// submits the ordered series to the inference service and returns the
// schema-validated alerts. Fewer than window records yields
// weather.ErrInsufficientData without calling the inference service.
func (o *Orchestrator) Analyze(ctx context.Context, loc weather.Location) ([]weather.Alert, error) {
	series, err := o.records.LatestRecords(ctx, loc.ID, o.window)
	if err != nil {
		return nil, fmt.Errorf("analysis %s: reading records: %w", loc.Name, err)
	}
	if len(series) < o.window {
		log.Printf("analysis: not enough data for %s (%d/%d), skipping", loc.Name, len(series), o.window)
		return nil, fmt.Errorf("analysis %s: %w", loc.Name, weather.ErrInsufficientData)
	}

	prompt, err := buildRiskPrompt(series)
	if err != nil {
		return nil, fmt.Errorf("analysis %s: building prompt: %w", loc.Name, err)
	}

	start := time.Now()
	raw, err := o.infer.Infer(ctx, prompt)
	o.metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("analysis %s: %w: %v", loc.Name, weather.ErrInferenceUnavailable, err)
	}

	verdict := Classify(raw)
	switch verdict.Kind {
	case VerdictInvalid:
		log.Printf("analysis: unusable inference response for %s: %s", loc.Name, common.Truncate(raw, 500))
		return nil, fmt.Errorf("analysis %s: %w: invalid response structure", loc.Name, weather.ErrInferenceUnavailable)
	case VerdictEmpty:
		return nil, nil
	case VerdictSingle:
		log.Printf("analysis: single alert object for %s, wrapping into list", loc.Name)
	}

	now := time.Now().UTC()
	alerts := make([]weather.Alert, 0, len(verdict.Alerts))
	for _, p := range verdict.Alerts {
		if err := o.validate.Struct(p); err != nil {
			log.Printf("analysis: dropping invalid alert for %s: %v", loc.Name, err)
			continue
		}
		payload, _ := json.Marshal(p)
		alerts = append(alerts, weather.Alert{
			LocationID:      loc.ID,
			DetectedAt:      now,
			Severity:        p.Severity,
			ImpactField:     p.ImpactField,
			ForecastDetails: p.ForecastDetails,
			Advice:          p.Advice,
			Raw:             payload,
		})
	}
	return alerts, nil
}

// AnalyzeAndStore analyzes one location and persists the validated
// alerts as a single atomic unit. Returns the number stored.
func (o *Orchestrator) AnalyzeAndStore(ctx context.Context, loc weather.Location) (int, error) {
	alerts, err := o.Analyze(ctx, loc)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}
	if err := o.alerts.InsertAlerts(ctx, alerts); err != nil {
		return 0, fmt.Errorf("analysis %s: storing alerts: %w", loc.Name, err)
	}
	o.metrics.AlertsCreated.Add(float64(len(alerts)))
	log.Printf("analysis: stored %d alert(s) for %s", len(alerts), loc.Name)
	return len(alerts), nil
}

type outcome struct {
	loc    weather.Location
	alerts []weather.Alert
	err    error
}

// AnalyzeAll dispatches one analysis task per active location onto a
// bounded worker pool and joins results as they complete. Workers
// report structured outcomes on a completion channel; the summary is
// aggregated only from returned values. Insufficient-data outcomes are
// tracked separately and never flip the success flag.
func (o *Orchestrator) AnalyzeAll(ctx context.Context) weather.RunSummary {
	log.Println("analysis: running concurrent risk analysis")
	var summary weather.RunSummary

	locs, err := o.locations.ActiveLocations(ctx)
	if err != nil {
		log.Printf("analysis: listing active locations: %v", err)
		summary.Failed++
		o.metrics.AnalysisRuns.WithLabelValues("failure").Inc()
		return summary
	}
	if len(locs) == 0 {
		log.Println("analysis: no active locations")
		o.metrics.AnalysisRuns.WithLabelValues("success").Inc()
		return summary
	}

	sem := make(chan struct{}, o.workers)
	results := make(chan outcome)

	for _, loc := range locs {
		loc := loc
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			alerts, err := o.Analyze(ctx, loc)
			results <- outcome{loc: loc, alerts: alerts, err: err}
		}()
	}

	// Join in completion order; persistence stays out of the worker
	// pool so one location's write never delays another's inference.
	for range locs {
		res := <-results
		switch {
		case res.err == nil:
			if len(res.alerts) > 0 {
				if err := o.alerts.InsertAlerts(ctx, res.alerts); err != nil {
					log.Printf("analysis: storing alerts for %s: %v", res.loc.Name, err)
					summary.Failed++
					continue
				}
				o.metrics.AlertsCreated.Add(float64(len(res.alerts)))
				summary.AlertsCreated += len(res.alerts)
				log.Printf("analysis: stored %d alert(s) for %s", len(res.alerts), res.loc.Name)
			}
			summary.Succeeded++
		case isInsufficientData(res.err):
			summary.Skipped++
		default:
			log.Printf("analysis: failed for %s: %v", res.loc.Name, res.err)
			summary.Failed++
		}
	}

	outcomeLabel := "success"
	if !summary.Success() {
		outcomeLabel = "failure"
	}
	o.metrics.AnalysisRuns.WithLabelValues(outcomeLabel).Inc()
	log.Printf("analysis: completed, succeeded=%d failed=%d skipped=%d alerts=%d",
		summary.Succeeded, summary.Failed, summary.Skipped, summary.AlertsCreated)
	return summary
}

func isInsufficientData(err error) bool {
	return errors.Is(err, weather.ErrInsufficientData)
}
