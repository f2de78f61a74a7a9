// Package advisory serves instantaneous natural-language advice from a
// two-tier cache: a hot TTL tier and a durable append-only log.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/minhqng/weather-risk-alerts/internal/common"
	"github.com/minhqng/weather-risk-alerts/internal/observability"
	"github.com/minhqng/weather-risk-alerts/internal/weather"
	"github.com/minhqng/weather-risk-alerts/internal/weather/source"
)

// WeatherSource is the slice of the weather data source this service
// consumes.
type WeatherSource interface {
	History(ctx context.Context, query string, start, end time.Time) (*source.Response, error)
	Forecast(ctx context.Context, query string, days int) (*source.Response, error)
}

// InferenceClient produces a single advice-or-warning verdict.
type InferenceClient interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// Config holds the advisory windows and cache policy.
type Config struct {
	HistoryDays    int           // hourly history days, fetched one day at a time
	ForecastDays   int           // forecast days, fetched in one call
	HotTTL         time.Duration // hot tier TTL
	Freshness      time.Duration // durable tier freshness horizon
	CoordTolerance float64       // degrees; smaller deltas never rewrite coordinates
}

// Service answers "what to do right now" for a location query.
type Service struct {
	src        WeatherSource
	infer      InferenceClient
	locations  weather.LocationStore
	advisories weather.AdvisoryStore
	hot        *HotCache
	clock      clockwork.Clock
	metrics    *observability.Metrics
	cfg        Config
}

// NewService creates an advisory service.
func NewService(src WeatherSource, infer InferenceClient, locations weather.LocationStore, advisories weather.AdvisoryStore, metrics *observability.Metrics, clock clockwork.Clock, cfg Config) *Service {
	return &Service{
		src:        src,
		infer:      infer,
		locations:  locations,
		advisories: advisories,
		hot:        NewHotCache(cfg.HotTTL, clock),
		clock:      clock,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// Advice returns the cached advisory for today when the hot tier has
// one, otherwise computes a fresh advisory and updates both tiers.
func (s *Service) Advice(ctx context.Context, query string) (weather.Advisory, error) {
	key := CacheKey(query, s.clock.Now())
	if adv, ok := s.hot.Get(key); ok {
		s.metrics.AdvisoryCache.WithLabelValues("hit").Inc()
		return adv, nil
	}
	s.metrics.AdvisoryCache.WithLabelValues("miss").Inc()

	adv, err := s.computeFresh(ctx, query)
	if err != nil {
		return weather.Advisory{}, err
	}
	s.hot.Put(key, adv)
	return adv, nil
}

// CheckRecent is a read-only freshness check against the durable log.
// It reports the most recent advisory and whether it is still fresh;
// a stale result means the caller should trigger fresh computation.
func (s *Service) CheckRecent(ctx context.Context, query string) (weather.Advisory, bool, error) {
	loc, err := s.locations.LocationByName(ctx, strings.TrimSpace(query))
	if err != nil {
		return weather.Advisory{}, false, err
	}

	adv, err := s.advisories.LatestAdvisory(ctx, loc.ID)
	if err != nil {
		if err == weather.ErrNotFound {
			return weather.Advisory{}, false, nil
		}
		return weather.Advisory{}, false, err
	}

	fresh := s.clock.Now().Sub(adv.GeneratedAt) < s.cfg.Freshness
	return adv, fresh, nil
}

func (s *Service) computeFresh(ctx context.Context, query string) (weather.Advisory, error) {
	today := weather.Day(s.clock.Now())

	var features []hourFeature
	for i := s.cfg.HistoryDays; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		resp, err := s.src.History(ctx, query, day, day)
		if err != nil {
			log.Printf("advisory: history fetch failed for %q on %s: %v", query, day.Format("2006-01-02"), err)
			continue
		}
		features = append(features, collectHours(resp.Days)...)
	}

	fc, err := s.src.Forecast(ctx, query, s.cfg.ForecastDays)
	if err != nil {
		return weather.Advisory{}, fmt.Errorf("advisory %q: %w: %v", query, weather.ErrSourceUnavailable, err)
	}
	features = append(features, collectHours(fc.Days)...)

	if len(features) == 0 {
		return weather.Advisory{}, fmt.Errorf("advisory %q: %w: no hourly data", query, weather.ErrSourceUnavailable)
	}

	sort.Slice(features, func(i, j int) bool { return features[i].epoch < features[j].epoch })

	prompt, err := buildAdvicePrompt(features)
	if err != nil {
		return weather.Advisory{}, err
	}

	raw, err := s.infer.Infer(ctx, prompt)
	if err != nil {
		return weather.Advisory{}, fmt.Errorf("advisory %q: %w: %v", query, weather.ErrInferenceUnavailable, err)
	}

	kind, message, err := parseVerdict(raw)
	if err != nil {
		log.Printf("advisory: unusable inference response for %q: %s", query, common.Truncate(raw, 500))
		return weather.Advisory{}, fmt.Errorf("advisory %q: %w: %v", query, weather.ErrInferenceUnavailable, err)
	}

	adv := weather.Advisory{
		GeneratedAt: s.clock.Now().UTC(),
		Kind:        kind,
		Message:     message,
	}

	// Registration failure never withholds the advisory from the caller;
	// without a location row the durable tier is simply skipped.
	if loc, ok := s.resolveLocation(ctx, query, fc); ok {
		adv.LocationID = loc.ID
		stored, err := s.advisories.AppendAdvisory(ctx, adv)
		if err != nil {
			log.Printf("advisory: appending durable record for %s: %v", loc.Name, err)
		} else {
			adv = stored
		}
	}

	return adv, nil
}

// resolveLocation finds or auto-registers the location behind a query,
// using the coordinates the upstream source reported. Coordinates must
// parse into a stable high-precision numeric form; a parse failure
// aborts registration only. Existing coordinates are rewritten only
// when the observed delta exceeds the configured tolerance.
func (s *Service) resolveLocation(ctx context.Context, query string, fc *source.Response) (weather.Location, bool) {
	name := strings.TrimSpace(fc.Location.Name)
	if name == "" {
		name = strings.TrimSpace(query)
	}

	loc, err := s.locations.LocationByName(ctx, name)
	if err == weather.ErrNotFound {
		lat, lon, perr := fc.Coordinates()
		if perr != nil {
			log.Printf("advisory: %v for %q, skipping auto-registration: %v", weather.ErrCoordinateParse, name, perr)
			return weather.Location{}, false
		}
		created, cerr := s.locations.CreateLocation(ctx, weather.Location{
			Name:      name,
			Latitude:  lat,
			Longitude: lon,
			Active:    true,
		})
		if cerr != nil {
			log.Printf("advisory: auto-registering %q: %v", name, cerr)
			return weather.Location{}, false
		}
		log.Printf("advisory: auto-registered location %q (id=%d)", name, created.ID)
		return created, true
	}
	if err != nil {
		log.Printf("advisory: looking up location %q: %v", name, err)
		return weather.Location{}, false
	}

	lat, lon, perr := fc.Coordinates()
	if perr != nil {
		log.Printf("advisory: %v for %q, keeping stored coordinates: %v", weather.ErrCoordinateParse, name, perr)
		return loc, true
	}
	if math.Abs(lat-loc.Latitude) > s.cfg.CoordTolerance || math.Abs(lon-loc.Longitude) > s.cfg.CoordTolerance {
		if uerr := s.locations.UpdateCoordinates(ctx, loc.ID, lat, lon); uerr != nil {
			log.Printf("advisory: updating coordinates for %q: %v", name, uerr)
		} else {
			log.Printf("advisory: corrected coordinates for %q to (%f, %f)", name, lat, lon)
			loc.Latitude, loc.Longitude = lat, lon
		}
	}
	return loc, true
}

func parseVerdict(raw string) (weather.AdvisoryKind, string, error) {
	var verdict struct {
		AdviceType string `json:"advice_type"`
		Message    string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return "", "", fmt.Errorf("parsing verdict: %w", err)
	}
	if verdict.Message == "" {
		return "", "", fmt.Errorf("verdict message missing")
	}
	if strings.EqualFold(verdict.AdviceType, string(weather.AdvisoryWarning)) {
		return weather.AdvisoryWarning, verdict.Message, nil
	}
	return weather.AdvisoryAdvice, verdict.Message, nil
}

func collectHours(days []source.Day) []hourFeature {
	var features []hourFeature
	for _, d := range days {
		for _, h := range d.Hour {
			features = append(features, hourFeature{
				Time:       time.Unix(h.TimeEpoch, 0).UTC().Format("2006-01-02 15:04"),
				epoch:      h.TimeEpoch,
				TempC:      h.TempC,
				Humidity:   h.Humidity,
				WindKPH:    h.WindKPH,
				Condition:  h.Condition.Text,
				UV:         h.UV,
				PrecipMM:   h.PrecipMM,
				RainChance: h.ChanceOfRain,
			})
		}
	}
	return features
}
