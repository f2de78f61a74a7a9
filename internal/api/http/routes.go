// Package httpapi is the mechanical boundary layer: it binds and
// validates requests, delegates to the core services, and translates
// their typed results into HTTP responses.
package httpapi

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/minhqng/weather-risk-alerts/internal/tracking"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

var validate = validator.New()

// IngestionRunner triggers a fleet-wide ingestion run.
type IngestionRunner interface {
	IngestAll(ctx context.Context) weather.RunSummary
}

// AnalysisRunner triggers a fleet-wide analysis run.
type AnalysisRunner interface {
	AnalyzeAll(ctx context.Context) weather.RunSummary
}

// Tracker handles location tracking requests.
type Tracker interface {
	Track(ctx context.Context, req tracking.Request) (bool, error)
}

// Advisor serves cached-or-fresh advice and freshness checks.
type Advisor interface {
	Advice(ctx context.Context, query string) (weather.Advisory, error)
	CheckRecent(ctx context.Context, query string) (weather.Advisory, bool, error)
}

// Deps bundles the core services the routes delegate to.
type Deps struct {
	Tracker     Tracker
	Advisor     Advisor
	Ingestion   IngestionRunner
	Analysis    AnalysisRunner
	Locations   weather.LocationStore
	Alerts      weather.AlertStore
	AdminSecret string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	v1 := app.Group("/api/v1")

	v1.Post("/locations/track", func(c *fiber.Ctx) error {
		var req trackRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		created, err := deps.Tracker.Track(c.Context(), tracking.Request{
			Name:      req.Name,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			UserID:    req.UserID,
		})
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to track location")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"created": created,
			"message": "Location '" + req.Name + "' activated for tracking.",
		})
	})

	v1.Get("/advice", func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return fiber.NewError(fiber.StatusBadRequest, "'q' is required")
		}

		adv, err := deps.Advisor.Advice(c.Context(), q)
		if err != nil {
			// Internal detail stays out of the user-visible response.
			return fiber.NewError(fiber.StatusServiceUnavailable, "advice temporarily unavailable, try again later")
		}
		return c.JSON(adv)
	})

	v1.Get("/check-advice", func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return fiber.NewError(fiber.StatusBadRequest, "'q' is required")
		}

		adv, fresh, err := deps.Advisor.CheckRecent(c.Context(), q)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "location is not tracked")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to check advice")
		}
		if !fresh {
			return c.JSON(fiber.Map{"status": "stale"})
		}
		return c.JSON(fiber.Map{"status": "fresh", "advisory": adv})
	})

	v1.Get("/alerts", func(c *fiber.Ctx) error {
		q := c.Query("q")
		if q == "" {
			return fiber.NewError(fiber.StatusBadRequest, "'q' is required")
		}

		loc, err := deps.Locations.LocationByName(c.Context(), q)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "location is not tracked")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load alerts")
		}

		alerts, err := deps.Alerts.AlertsForLocation(c.Context(), loc.ID, 50)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load alerts")
		}
		return c.JSON(fiber.Map{"location": loc.Name, "alerts": alerts})
	})

	admin := v1.Group("/admin", adminSecretRequired(deps.AdminSecret))

	admin.Post("/run-ingestion", func(c *fiber.Ctx) error {
		summary := deps.Ingestion.IngestAll(c.Context())
		return summaryResponse(c, summary)
	})

	admin.Post("/run-analysis", func(c *fiber.Ctx) error {
		summary := deps.Analysis.AnalyzeAll(c.Context())
		return summaryResponse(c, summary)
	})
}

// trackRequest holds the tracking request body.
type trackRequest struct {
	Name      string   `json:"name" validate:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	UserID    int64    `json:"user_id" validate:"required"`
}

func adminSecretRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" || c.Query("secret") != secret {
			return fiber.NewError(fiber.StatusForbidden, "forbidden - invalid secret")
		}
		return c.Next()
	}
}

// summaryResponse reflects whether any per-location failure occurred.
func summaryResponse(c *fiber.Ctx, summary weather.RunSummary) error {
	status := fiber.StatusOK
	if !summary.Success() {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{
		"success": summary.Success(),
		"summary": summary,
	})
}
