// Package geocode resolves coordinates for tracked location names when
// the tracking request does not carry them.
package geocode

import (
	"fmt"

	"github.com/kelvins/geocoder"
)

// Resolver wraps the Google geocoding API. The zero Resolver (no API
// key) reports itself as unconfigured and resolves nothing.
type Resolver struct {
	configured bool
}

// New creates a resolver; an empty apiKey leaves it unconfigured.
func New(apiKey string) *Resolver {
	if apiKey == "" {
		return &Resolver{}
	}
	geocoder.ApiKey = apiKey
	return &Resolver{configured: true}
}

// Configured reports whether coordinate resolution is available.
func (r *Resolver) Configured() bool {
	return r.configured
}

// Resolve returns the coordinates for a city name.
func (r *Resolver) Resolve(name string) (float64, float64, error) {
	if !r.configured {
		return 0, 0, fmt.Errorf("geocoder api key is not configured")
	}

	loc, err := geocoder.Geocoding(geocoder.Address{City: name})
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding %q: %w", name, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
