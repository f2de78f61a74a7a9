package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/minhqng/weather-risk-alerts/internal/store"
	"github.com/minhqng/weather-risk-alerts/internal/tracking"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

type stubTracker struct {
	created bool
	err     error
	last    tracking.Request
}

func (s *stubTracker) Track(_ context.Context, req tracking.Request) (bool, error) {
	s.last = req
	return s.created, s.err
}

type stubAdvisor struct {
	adv   weather.Advisory
	fresh bool
	err   error
}

func (s *stubAdvisor) Advice(_ context.Context, _ string) (weather.Advisory, error) {
	return s.adv, s.err
}

func (s *stubAdvisor) CheckRecent(_ context.Context, _ string) (weather.Advisory, bool, error) {
	return s.adv, s.fresh, s.err
}

type stubRunner struct{ summary weather.RunSummary }

func (s *stubRunner) IngestAll(_ context.Context) weather.RunSummary  { return s.summary }
func (s *stubRunner) AnalyzeAll(_ context.Context) weather.RunSummary { return s.summary }

func setupApp(t *testing.T, deps Deps) *fiber.App {
	t.Helper()

	if deps.Locations == nil || deps.Alerts == nil {
		db, err := store.Open(":memory:")
		if err != nil {
			t.Fatalf("failed to open test store: %v", err)
		}
		t.Cleanup(func() { db.Close() })
		if deps.Locations == nil {
			deps.Locations = db
		}
		if deps.Alerts == nil {
			deps.Alerts = db
		}
	}

	app := fiber.New()
	RegisterRoutes(app, deps)
	return app
}

func TestTrackValidation(t *testing.T) {
	app := setupApp(t, Deps{Tracker: &stubTracker{created: true}})

	// Missing user_id should return 400.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/locations/track", strings.NewReader(`{"name":"Hanoi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	// Missing name should also return 400.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/locations/track", strings.NewReader(`{"user_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestTrackSuccess(t *testing.T) {
	tracker := &stubTracker{created: true}
	app := setupApp(t, Deps{Tracker: tracker})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/locations/track", strings.NewReader(`{"name":"Hanoi","user_id":7,"latitude":21.02,"longitude":105.85}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}

	var body struct {
		Created bool   `json:"created"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body.Created || !strings.Contains(body.Message, "Hanoi") {
		t.Fatalf("unexpected body: %+v", body)
	}
	if tracker.last.Name != "Hanoi" || tracker.last.UserID != 7 {
		t.Fatalf("request not forwarded: %+v", tracker.last)
	}
	if tracker.last.Latitude == nil || *tracker.last.Latitude != 21.02 {
		t.Fatalf("latitude not forwarded: %+v", tracker.last.Latitude)
	}
}

func TestAdviceFailureIsOpaque(t *testing.T) {
	app := setupApp(t, Deps{Advisor: &stubAdvisor{err: weather.ErrInferenceUnavailable}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/advice?q=Hanoi", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}

	raw := make([]byte, 512)
	n, _ := resp.Body.Read(raw)
	if strings.Contains(string(raw[:n]), "inference") {
		t.Fatalf("internal detail leaked: %s", raw[:n])
	}
}

func TestAdviceRequiresQuery(t *testing.T) {
	app := setupApp(t, Deps{Advisor: &stubAdvisor{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/advice", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestCheckAdviceStatuses(t *testing.T) {
	tests := []struct {
		name       string
		advisor    *stubAdvisor
		wantStatus int
		wantBody   string
	}{
		{
			name:       "fresh advisory",
			advisor:    &stubAdvisor{adv: weather.Advisory{Message: "fine"}, fresh: true},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"fresh"`,
		},
		{
			name:       "stale advisory",
			advisor:    &stubAdvisor{fresh: false},
			wantStatus: http.StatusOK,
			wantBody:   `"status":"stale"`,
		},
		{
			name:       "unknown location",
			advisor:    &stubAdvisor{err: weather.ErrNotFound},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(t, Deps{Advisor: tt.advisor})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/check-advice?q=Hanoi", nil)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantBody != "" {
				raw := make([]byte, 1024)
				n, _ := resp.Body.Read(raw)
				if !strings.Contains(string(raw[:n]), tt.wantBody) {
					t.Fatalf("expected body to contain %s, got %s", tt.wantBody, raw[:n])
				}
			}
		})
	}
}

func TestAlertsUnknownLocation(t *testing.T) {
	app := setupApp(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?q=Atlantis", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestAdminSecretGate(t *testing.T) {
	runner := &stubRunner{summary: weather.RunSummary{Succeeded: 1}}
	app := setupApp(t, Deps{Ingestion: runner, Analysis: runner, AdminSecret: "s3cret"})

	// Wrong secret.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/run-ingestion?secret=wrong", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
	}

	// Correct secret.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/run-analysis?secret=s3cret", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestAdminUnconfiguredSecretAlwaysForbidden(t *testing.T) {
	runner := &stubRunner{summary: weather.RunSummary{Succeeded: 1}}
	app := setupApp(t, Deps{Ingestion: runner, Analysis: runner})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/run-ingestion?secret=", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, resp.StatusCode)
	}
}

func TestAdminRunReflectsFailures(t *testing.T) {
	runner := &stubRunner{summary: weather.RunSummary{Succeeded: 1, Failed: 2}}
	app := setupApp(t, Deps{Ingestion: runner, Analysis: runner, AdminSecret: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/run-ingestion?secret=s3cret", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.StatusCode)
	}
}
