package weather

import (
	"context"
	"time"
)

// LocationStore is the contract for the tracked-location registry.
type LocationStore interface {
	CreateLocation(ctx context.Context, loc Location) (Location, error)
	LocationByID(ctx context.Context, id int64) (Location, error)
	LocationByName(ctx context.Context, name string) (Location, error)
	ActiveLocations(ctx context.Context) ([]Location, error)
	// AddSubscriber records a subscriber for an existing location and
	// reactivates it if it was inactive.
	AddSubscriber(ctx context.Context, locationID, userID int64) error
	UpdateCoordinates(ctx context.Context, locationID int64, lat, lon float64) error
}

// RecordStore persists the deduplicating weather time series.
type RecordStore interface {
	// InsertRecords performs a set-insert: rows already present for a
	// (location, record time) key are silently skipped. Returns the
	// number of rows actually inserted.
	InsertRecords(ctx context.Context, records []Record) (int, error)
	// LatestRecords returns up to limit most recent records for a
	// location, ordered by record time ascending.
	LatestRecords(ctx context.Context, locationID int64, limit int) ([]Record, error)
	CountRecords(ctx context.Context, locationID int64) (int, error)
}

// AlertStore persists validated risk alerts. InsertAlerts for one
// location is a single atomic unit.
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []Alert) error
	AlertsForLocation(ctx context.Context, locationID int64, limit int) ([]Alert, error)
}

// AdvisoryStore is the append-only durable advisory log.
type AdvisoryStore interface {
	AppendAdvisory(ctx context.Context, adv Advisory) (Advisory, error)
	// LatestAdvisory returns the most recent advisory for a location,
	// or ErrNotFound when none exists.
	LatestAdvisory(ctx context.Context, locationID int64) (Advisory, error)
}

// Day truncates t to midnight UTC; record times and cache keys are
// bucketed by calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
