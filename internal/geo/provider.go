// Package geo contains one adapter per upstream geodata service. Each adapter
// makes exactly one HTTP call per invocation, normalizes the payload into the
// models types and reports every failure as a *ProviderError. Retries belong
// to the caller.
package geo

import (
	"context"

	"github.com/mr1hm/disaster-response/internal/models"
)

// WeatherProvider returns current conditions at a coordinate.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, q models.GeoQuery) (*models.WeatherSnapshot, error)
}

// SeismicProvider returns recent earthquakes within q.RadiusKm, at most q.Limit.
type SeismicProvider interface {
	RecentEarthquakes(ctx context.Context, q models.GeoQuery) ([]models.SeismicEvent, error)
}

// FacilityProvider returns medical facilities within q.RadiusMeters.
type FacilityProvider interface {
	NearbyFacilities(ctx context.Context, q models.GeoQuery) ([]models.Facility, error)
}

// Geocoder turns a coordinate into a city name. An empty name with a nil
// error means the provider had no match.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}
