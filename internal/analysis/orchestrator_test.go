package analysis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minhqng/weather-risk-alerts/internal/observability"
	"github.com/minhqng/weather-risk-alerts/internal/store"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

// fakeInference records call pressure and serves a canned response.
type fakeInference struct {
	response string
	err      error
	delay    time.Duration

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func (f *fakeInference) Infer(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)

	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if current <= max || f.maxSeen.CompareAndSwap(max, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func setupOrchestrator(t *testing.T, infer InferenceClient, workers int) (*Orchestrator, *store.SQLiteStore) {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	o := NewOrchestrator(db, db, db, infer, observability.NewMetricsForTesting(), 14, workers)
	return o, db
}

func seedLocation(t *testing.T, db *store.SQLiteStore, name string, records int) weather.Location {
	t.Helper()
	ctx := context.Background()

	loc, err := db.CreateLocation(ctx, weather.Location{Name: name, Active: true})
	require.NoError(t, err)

	base := weather.Day(time.Now()).AddDate(0, 0, -records)
	var batch []weather.Record
	for i := 0; i < records; i++ {
		batch = append(batch, weather.Record{
			LocationID: loc.ID,
			RecordTime: base.AddDate(0, 0, i),
			Kind:       weather.KindHistory,
			TempC:      32,
			Humidity:   60,
			Raw:        []byte(`{}`),
		})
	}
	if len(batch) > 0 {
		_, err = db.InsertRecords(ctx, batch)
		require.NoError(t, err)
	}
	return loc
}

func TestAnalyzeInsufficientDataSkipsInference(t *testing.T) {
	infer := &fakeInference{response: `[]`}
	o, db := setupOrchestrator(t, infer, 3)
	loc := seedLocation(t, db, "Hanoi", 10)

	_, err := o.Analyze(context.Background(), loc)
	require.ErrorIs(t, err, weather.ErrInsufficientData)
	require.EqualValues(t, 0, infer.calls.Load(), "inference must never be called below the window")
}

func TestAnalyzeValidAlertsSurviveInvalidSiblings(t *testing.T) {
	infer := &fakeInference{response: `[
		{"severity":"HIGH","impact_field":"AGRICULTURE","forecast_details":"humidity above 90","actionable_advice":"drain fields"},
		{"severity":"HIGH","impact_field":"AGRICULTURE","forecast_details":"missing advice"}
	]`}
	o, db := setupOrchestrator(t, infer, 3)
	loc := seedLocation(t, db, "Hanoi", 14)

	alerts, err := o.Analyze(context.Background(), loc)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "drain fields", alerts[0].Advice)
}

func TestAnalyzeSingleObjectIsWrapped(t *testing.T) {
	infer := &fakeInference{response: `{"severity":"CRITICAL","impact_field":"INFRASTRUCTURE","forecast_details":"sustained heat","actionable_advice":"inspect power lines"}`}
	o, db := setupOrchestrator(t, infer, 3)
	loc := seedLocation(t, db, "Hanoi", 14)

	alerts, err := o.Analyze(context.Background(), loc)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, "CRITICAL", alerts[0].Severity)
}

func TestAnalyzeMalformedResponseIsError(t *testing.T) {
	infer := &fakeInference{response: `not json`}
	o, db := setupOrchestrator(t, infer, 3)
	loc := seedLocation(t, db, "Hanoi", 14)

	_, err := o.Analyze(context.Background(), loc)
	require.ErrorIs(t, err, weather.ErrInferenceUnavailable)
}

func TestAnalyzeAllHonorsConcurrencyCeiling(t *testing.T) {
	infer := &fakeInference{response: `[]`, delay: 30 * time.Millisecond}
	o, db := setupOrchestrator(t, infer, 3)

	names := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	for _, name := range names {
		seedLocation(t, db, name, 14)
	}

	summary := o.AnalyzeAll(context.Background())
	require.Equal(t, 10, summary.Succeeded)
	require.Equal(t, 0, summary.Failed)
	require.True(t, summary.Success())
	require.EqualValues(t, 10, infer.calls.Load())
	require.LessOrEqual(t, infer.maxSeen.Load(), int64(3), "more than 3 inference calls in flight")
}

func TestAnalyzeAllTracksSkipsSeparatelyFromFailures(t *testing.T) {
	infer := &fakeInference{response: `[{"severity":"HIGH","impact_field":"PUBLIC_HEALTH","forecast_details":"heat","actionable_advice":"hydrate"}]`}
	o, db := setupOrchestrator(t, infer, 3)

	full := seedLocation(t, db, "Full", 14)
	seedLocation(t, db, "Sparse", 5)

	summary := o.AnalyzeAll(context.Background())
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, summary.Failed)
	require.True(t, summary.Success(), "insufficient data must never flip the success flag")
	require.Equal(t, 1, summary.AlertsCreated)

	stored, err := db.AlertsForLocation(context.Background(), full.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestAnalyzeAllCountsInferenceFailures(t *testing.T) {
	infer := &fakeInference{err: context.DeadlineExceeded}
	o, db := setupOrchestrator(t, infer, 3)
	seedLocation(t, db, "Hanoi", 14)

	summary := o.AnalyzeAll(context.Background())
	require.Equal(t, 1, summary.Failed)
	require.False(t, summary.Success())
}
