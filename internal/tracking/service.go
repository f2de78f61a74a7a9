// Package tracking handles location tracking requests and the
// decoupled onboarding of newly tracked locations.
package tracking

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

// JobScheduler is the slice of the scheduler this service consumes.
type JobScheduler interface {
	ScheduleOnce(id string, fireAt time.Time, replace bool, job func()) error
}

// Ingestor runs ingestion for a single location.
type Ingestor interface {
	Ingest(ctx context.Context, loc weather.Location) error
}

// Analyzer runs analysis and persistence for a single location.
type Analyzer interface {
	AnalyzeAndStore(ctx context.Context, loc weather.Location) (int, error)
}

// Geocoder resolves coordinates for a location name.
type Geocoder interface {
	Configured() bool
	Resolve(name string) (float64, float64, error)
}

// Request is a tracking request from the boundary layer.
type Request struct {
	Name      string
	Latitude  *float64
	Longitude *float64
	UserID    int64
}

// Service creates or updates tracked locations. A new location's first
// ingestion and analysis run as delayed one-shot jobs so the tracking
// request never blocks on an external service.
type Service struct {
	locations weather.LocationStore
	sched     JobScheduler
	ingestor  Ingestor
	analyzer  Analyzer
	geocoder  Geocoder

	ingestDelay  time.Duration
	analyzeDelay time.Duration
	jobTimeout   time.Duration
}

// NewService creates a tracking service. analyzeDelay should be long
// enough to follow the onboarding ingestion's completion.
func NewService(locations weather.LocationStore, sched JobScheduler, ingestor Ingestor, analyzer Analyzer, geocoder Geocoder, ingestDelay, analyzeDelay time.Duration) *Service {
	return &Service{
		locations:    locations,
		sched:        sched,
		ingestor:     ingestor,
		analyzer:     analyzer,
		geocoder:     geocoder,
		ingestDelay:  ingestDelay,
		analyzeDelay: analyzeDelay,
		jobTimeout:   10 * time.Minute,
	}
}

// Track registers interest in a location. Existing locations gain the
// subscriber and are reactivated; new locations are created and their
// onboarding jobs scheduled. Returns whether a location was created.
func (s *Service) Track(ctx context.Context, req Request) (bool, error) {
	loc, err := s.locations.LocationByName(ctx, req.Name)
	if err == nil {
		if err := s.locations.AddSubscriber(ctx, loc.ID, req.UserID); err != nil {
			return false, fmt.Errorf("tracking %q: %w", req.Name, err)
		}
		log.Printf("tracking: user %d subscribed to existing location %q", req.UserID, req.Name)
		return false, nil
	}
	if err != weather.ErrNotFound {
		return false, fmt.Errorf("tracking %q: %w", req.Name, err)
	}

	lat, lon := s.coordinates(req)
	created, err := s.locations.CreateLocation(ctx, weather.Location{
		Name:        req.Name,
		Latitude:    lat,
		Longitude:   lon,
		Active:      true,
		Subscribers: []int64{req.UserID},
	})
	if err != nil {
		return false, fmt.Errorf("tracking %q: %w", req.Name, err)
	}
	log.Printf("tracking: created location %q (id=%d)", created.Name, created.ID)

	s.scheduleOnboarding(created)
	return true, nil
}

// scheduleOnboarding queues the short-delay ingestion job and the
// longer-delay analysis job for a new location. Scheduling failures are
// logged only; the next recurring cycle catches up on missed work.
func (s *Service) scheduleOnboarding(loc weather.Location) {
	now := time.Now()

	ingestID := fmt.Sprintf("ingest-%d", loc.ID)
	err := s.sched.ScheduleOnce(ingestID, now.Add(s.ingestDelay), true, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if err := s.ingestor.Ingest(ctx, loc); err != nil {
			log.Printf("tracking: onboarding ingestion failed for %q: %v", loc.Name, err)
		}
	})
	if err != nil {
		log.Printf("tracking: scheduling %s: %v", ingestID, err)
	}

	analyzeID := fmt.Sprintf("analyze-%d", loc.ID)
	err = s.sched.ScheduleOnce(analyzeID, now.Add(s.analyzeDelay), true, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if _, err := s.analyzer.AnalyzeAndStore(ctx, loc); err != nil {
			log.Printf("tracking: onboarding analysis failed for %q: %v", loc.Name, err)
		}
	})
	if err != nil {
		log.Printf("tracking: scheduling %s: %v", analyzeID, err)
	}
}

func (s *Service) coordinates(req Request) (float64, float64) {
	if req.Latitude != nil && req.Longitude != nil {
		return *req.Latitude, *req.Longitude
	}
	if s.geocoder != nil && s.geocoder.Configured() {
		lat, lon, err := s.geocoder.Resolve(req.Name)
		if err != nil {
			log.Printf("tracking: geocoding %q failed, storing zero coordinates: %v", req.Name, err)
			return 0, 0
		}
		return lat, lon
	}
	return 0, 0
}
