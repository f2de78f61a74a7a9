// Package store provides the sqlite-backed persistent store behind the
// time-series, alert and advisory interfaces declared in internal/weather.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	location_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE COLLATE NOCASE,
	latitude    REAL NOT NULL DEFAULT 0,
	longitude   REAL NOT NULL DEFAULT 0,
	is_active   INTEGER NOT NULL DEFAULT 1,
	subscribers TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS weather_records (
	record_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL REFERENCES locations(location_id) ON DELETE CASCADE,
	record_time DATETIME NOT NULL,
	kind        TEXT NOT NULL,
	temp_c      REAL,
	humidity    REAL,
	uv_index    REAL,
	wind_kph    REAL,
	raw_json    TEXT,
	UNIQUE (location_id, record_time)
);
CREATE INDEX IF NOT EXISTS idx_weather_records_time ON weather_records (record_time);

CREATE TABLE IF NOT EXISTS risk_alerts (
	alert_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id       INTEGER NOT NULL REFERENCES locations(location_id) ON DELETE CASCADE,
	detected_at       DATETIME NOT NULL,
	severity          TEXT NOT NULL,
	impact_field      TEXT NOT NULL,
	forecast_details  TEXT NOT NULL,
	actionable_advice TEXT,
	raw_json          TEXT
);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_location ON risk_alerts (location_id);

CREATE TABLE IF NOT EXISTS advisories (
	advisory_id  INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id  INTEGER NOT NULL REFERENCES locations(location_id) ON DELETE CASCADE,
	generated_at DATETIME NOT NULL,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_advisories_location_time ON advisories (location_id, generated_at DESC);
`

// SQLiteStore implements weather.LocationStore, weather.RecordStore,
// weather.AlertStore and weather.AdvisoryStore on a single sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and
// ensures the schema exists.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one
	// so tests see a single database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- LocationStore ---

func (s *SQLiteStore) CreateLocation(ctx context.Context, loc weather.Location) (weather.Location, error) {
	subs, err := json.Marshal(loc.Subscribers)
	if err != nil {
		return weather.Location{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locations (name, latitude, longitude, is_active, subscribers) VALUES (?, ?, ?, 1, ?)`,
		loc.Name, loc.Latitude, loc.Longitude, string(subs),
	)
	if err != nil {
		return weather.Location{}, fmt.Errorf("creating location %q: %w", loc.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return weather.Location{}, err
	}
	return s.LocationByID(ctx, id)
}

func (s *SQLiteStore) LocationByID(ctx context.Context, id int64) (weather.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT location_id, name, latitude, longitude, is_active, subscribers, created_at
		 FROM locations WHERE location_id = ?`, id)
	return scanLocation(row)
}

func (s *SQLiteStore) LocationByName(ctx context.Context, name string) (weather.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT location_id, name, latitude, longitude, is_active, subscribers, created_at
		 FROM locations WHERE name = ? COLLATE NOCASE`, name)
	return scanLocation(row)
}

func (s *SQLiteStore) ActiveLocations(ctx context.Context) ([]weather.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, name, latitude, longitude, is_active, subscribers, created_at
		 FROM locations WHERE is_active = 1 ORDER BY location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locs []weather.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

func (s *SQLiteStore) AddSubscriber(ctx context.Context, locationID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRowContext(ctx,
		`SELECT subscribers FROM locations WHERE location_id = ?`, locationID).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return weather.ErrNotFound
		}
		return err
	}

	var subs []int64
	if err := json.Unmarshal([]byte(raw), &subs); err != nil {
		subs = nil
	}
	found := false
	for _, id := range subs {
		if id == userID {
			found = true
			break
		}
	}
	if !found {
		subs = append(subs, userID)
	}

	updated, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE locations SET subscribers = ?, is_active = 1 WHERE location_id = ?`,
		string(updated), locationID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateCoordinates(ctx context.Context, locationID int64, lat, lon float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET latitude = ?, longitude = ? WHERE location_id = ?`,
		lat, lon, locationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return weather.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row rowScanner) (weather.Location, error) {
	var loc weather.Location
	var subs string
	err := row.Scan(&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude, &loc.Active, &subs, &loc.CreatedAt)
	if err == sql.ErrNoRows {
		return weather.Location{}, weather.ErrNotFound
	}
	if err != nil {
		return weather.Location{}, err
	}
	if err := json.Unmarshal([]byte(subs), &loc.Subscribers); err != nil {
		loc.Subscribers = nil
	}
	return loc, nil
}

// --- RecordStore ---

// InsertRecords inserts records with INSERT OR IGNORE so a re-run over
// the same window never duplicates or corrupts data.
func (s *SQLiteStore) InsertRecords(ctx context.Context, records []weather.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO weather_records
		 (location_id, record_time, kind, temp_c, humidity, uv_index, wind_kph, raw_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx,
			r.LocationID, r.RecordTime.UTC(), string(r.Kind),
			r.TempC, r.Humidity, r.UVIndex, r.WindKPH, string(r.Raw))
		if err != nil {
			return 0, fmt.Errorf("inserting record for location %d at %s: %w",
				r.LocationID, r.RecordTime.Format("2006-01-02"), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// LatestRecords returns the newest limit records in ascending time order.
func (s *SQLiteStore) LatestRecords(ctx context.Context, locationID int64, limit int) ([]weather.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT location_id, record_time, kind, temp_c, humidity, uv_index, wind_kph, raw_json
		 FROM weather_records WHERE location_id = ?
		 ORDER BY record_time DESC LIMIT ?`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []weather.Record
	for rows.Next() {
		var r weather.Record
		var kind, raw string
		if err := rows.Scan(&r.LocationID, &r.RecordTime, &kind, &r.TempC, &r.Humidity, &r.UVIndex, &r.WindKPH, &raw); err != nil {
			return nil, err
		}
		r.Kind = weather.RecordKind(kind)
		r.Raw = json.RawMessage(raw)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first; callers want chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *SQLiteStore) CountRecords(ctx context.Context, locationID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weather_records WHERE location_id = ?`, locationID).Scan(&n)
	return n, err
}

// --- AlertStore ---

// InsertAlerts persists all alerts in a single transaction; one
// location's batch is its own atomic unit.
func (s *SQLiteStore) InsertAlerts(ctx context.Context, alerts []weather.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO risk_alerts
		 (location_id, detected_at, severity, impact_field, forecast_details, actionable_advice, raw_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx,
			a.LocationID, a.DetectedAt.UTC(), a.Severity, a.ImpactField,
			a.ForecastDetails, a.Advice, string(a.Raw)); err != nil {
			return fmt.Errorf("inserting alert for location %d: %w", a.LocationID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AlertsForLocation(ctx context.Context, locationID int64, limit int) ([]weather.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT alert_id, location_id, detected_at, severity, impact_field, forecast_details, actionable_advice, raw_json
		 FROM risk_alerts WHERE location_id = ?
		 ORDER BY detected_at DESC LIMIT ?`, locationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []weather.Alert
	for rows.Next() {
		var a weather.Alert
		var raw string
		if err := rows.Scan(&a.ID, &a.LocationID, &a.DetectedAt, &a.Severity, &a.ImpactField, &a.ForecastDetails, &a.Advice, &raw); err != nil {
			return nil, err
		}
		a.Raw = json.RawMessage(raw)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// --- AdvisoryStore ---

func (s *SQLiteStore) AppendAdvisory(ctx context.Context, adv weather.Advisory) (weather.Advisory, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO advisories (location_id, generated_at, kind, message) VALUES (?, ?, ?, ?)`,
		adv.LocationID, adv.GeneratedAt.UTC(), string(adv.Kind), adv.Message)
	if err != nil {
		return weather.Advisory{}, fmt.Errorf("appending advisory for location %d: %w", adv.LocationID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return weather.Advisory{}, err
	}
	adv.ID = id
	return adv, nil
}

func (s *SQLiteStore) LatestAdvisory(ctx context.Context, locationID int64) (weather.Advisory, error) {
	var adv weather.Advisory
	var kind string
	err := s.db.QueryRowContext(ctx,
		`SELECT advisory_id, location_id, generated_at, kind, message
		 FROM advisories WHERE location_id = ?
		 ORDER BY generated_at DESC LIMIT 1`, locationID).
		Scan(&adv.ID, &adv.LocationID, &adv.GeneratedAt, &kind, &adv.Message)
	if err == sql.ErrNoRows {
		return weather.Advisory{}, weather.ErrNotFound
	}
	if err != nil {
		return weather.Advisory{}, err
	}
	adv.Kind = weather.AdvisoryKind(kind)
	return adv, nil
}
