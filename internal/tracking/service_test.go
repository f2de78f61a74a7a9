package tracking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhqng/weather-risk-alerts/internal/store"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

type scheduledJob struct {
	id      string
	fireAt  time.Time
	replace bool
}

// fakeScheduler records registrations without ever running the jobs.
type fakeScheduler struct {
	jobs []scheduledJob
	err  error
}

func (f *fakeScheduler) ScheduleOnce(id string, fireAt time.Time, replace bool, _ func()) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, scheduledJob{id: id, fireAt: fireAt, replace: replace})
	return nil
}

type fakeIngestor struct{ calls int }

func (f *fakeIngestor) Ingest(_ context.Context, _ weather.Location) error {
	f.calls++
	return nil
}

type fakeAnalyzer struct{ calls int }

func (f *fakeAnalyzer) AnalyzeAndStore(_ context.Context, _ weather.Location) (int, error) {
	f.calls++
	return 0, nil
}

type fakeGeocoder struct {
	configured bool
	lat, lon   float64
	err        error
}

func (f *fakeGeocoder) Configured() bool { return f.configured }

func (f *fakeGeocoder) Resolve(_ string) (float64, float64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.lat, f.lon, nil
}

func setupTracking(t *testing.T, geo Geocoder) (*Service, *store.SQLiteStore, *fakeScheduler, *fakeIngestor, *fakeAnalyzer) {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sched := &fakeScheduler{}
	ingestor := &fakeIngestor{}
	analyzer := &fakeAnalyzer{}
	svc := NewService(db, sched, ingestor, analyzer, geo, 10*time.Second, 2*time.Minute)
	return svc, db, sched, ingestor, analyzer
}

func ptr(f float64) *float64 { return &f }

func TestTrackNewLocationSchedulesOnboarding(t *testing.T) {
	svc, db, sched, ingestor, analyzer := setupTracking(t, &fakeGeocoder{})
	ctx := context.Background()

	before := time.Now()
	created, err := svc.Track(ctx, Request{Name: "Hue", Latitude: ptr(16.46), Longitude: ptr(107.59), UserID: 7})
	require.NoError(t, err)
	assert.True(t, created)

	loc, err := db.LocationByName(ctx, "Hue")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, loc.Subscribers)
	assert.InDelta(t, 16.46, loc.Latitude, 1e-9)

	require.Len(t, sched.jobs, 2)
	assert.Equal(t, fmt.Sprintf("ingest-%d", loc.ID), sched.jobs[0].id)
	assert.Equal(t, fmt.Sprintf("analyze-%d", loc.ID), sched.jobs[1].id)
	assert.True(t, sched.jobs[0].replace)
	assert.True(t, sched.jobs[1].replace)
	assert.WithinDuration(t, before.Add(10*time.Second), sched.jobs[0].fireAt, time.Second)
	assert.WithinDuration(t, before.Add(2*time.Minute), sched.jobs[1].fireAt, time.Second)

	// Nothing runs on the request path itself.
	assert.Zero(t, ingestor.calls)
	assert.Zero(t, analyzer.calls)
}

func TestTrackExistingLocationAddsSubscriberOnly(t *testing.T) {
	svc, db, sched, _, _ := setupTracking(t, &fakeGeocoder{})
	ctx := context.Background()

	seeded, err := db.CreateLocation(ctx, weather.Location{Name: "Hue", Active: true, Subscribers: []int64{1}})
	require.NoError(t, err)

	created, err := svc.Track(ctx, Request{Name: "Hue", UserID: 2})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, sched.jobs, "existing locations must not re-run onboarding")

	loc, err := db.LocationByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, loc.Subscribers)
}

func TestTrackFallsBackToGeocoder(t *testing.T) {
	svc, db, _, _, _ := setupTracking(t, &fakeGeocoder{configured: true, lat: 10.82, lon: 106.63})
	ctx := context.Background()

	_, err := svc.Track(ctx, Request{Name: "Ho Chi Minh City", UserID: 3})
	require.NoError(t, err)

	loc, err := db.LocationByName(ctx, "Ho Chi Minh City")
	require.NoError(t, err)
	assert.InDelta(t, 10.82, loc.Latitude, 1e-9)
	assert.InDelta(t, 106.63, loc.Longitude, 1e-9)
}

func TestTrackGeocoderFailureStoresZeroCoordinates(t *testing.T) {
	svc, db, _, _, _ := setupTracking(t, &fakeGeocoder{configured: true, err: fmt.Errorf("quota exceeded")})
	ctx := context.Background()

	created, err := svc.Track(ctx, Request{Name: "Vinh", UserID: 4})
	require.NoError(t, err)
	assert.True(t, created)

	loc, err := db.LocationByName(ctx, "Vinh")
	require.NoError(t, err)
	assert.Zero(t, loc.Latitude)
	assert.Zero(t, loc.Longitude)
}

func TestTrackSchedulingFailureDoesNotFailRequest(t *testing.T) {
	svc, db, sched, _, _ := setupTracking(t, &fakeGeocoder{})
	sched.err = fmt.Errorf("scheduler full")
	ctx := context.Background()

	created, err := svc.Track(ctx, Request{Name: "Hue", UserID: 5})
	require.NoError(t, err)
	assert.True(t, created)

	_, err = db.LocationByName(ctx, "Hue")
	require.NoError(t, err)
}
