package models

import "time"

const (
	DefaultSeismicRadiusKm  = 500
	DefaultSeismicLimit     = 5
	DefaultFacilityRadiusM  = 5000
	DefaultFacilityType     = "hospital"
	UnknownCity             = "Unknown City"
	DefaultAlertMessage     = "🚨 Disaster Alert! Stay safe!"
	EventNewDisaster        = "new_disaster"
	ProviderWeather         = "weather"
	ProviderSeismic         = "seismic"
	ProviderFacilities      = "facilities"
	ProviderReverseGeocoder = "geocoder"
)

// GeoQuery is built per aggregation request and never stored.
type GeoQuery struct {
	Lat          float64
	Lon          float64
	RadiusKm     float64
	Limit        int
	RadiusMeters int
	FacilityType string
}

// NewGeoQuery fills in the per-provider defaults.
func NewGeoQuery(lat, lon float64) GeoQuery {
	return GeoQuery{
		Lat:          lat,
		Lon:          lon,
		RadiusKm:     DefaultSeismicRadiusKm,
		Limit:        DefaultSeismicLimit,
		RadiusMeters: DefaultFacilityRadiusM,
		FacilityType: DefaultFacilityType,
	}
}

type FailureKind string

const (
	FailureUnreachable     FailureKind = "unreachable"
	FailureInvalidResponse FailureKind = "invalid_response"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureTimeout         FailureKind = "timeout"
)

type WeatherSnapshot struct {
	TempC       float64   `json:"tempC"`
	FeelsLikeC  float64   `json:"feelsLikeC"`
	Humidity    float64   `json:"humidity"`
	PressureHpa float64   `json:"pressureHpa"`
	WindSpeedMS float64   `json:"windSpeedMs"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
	City        string    `json:"city,omitempty"`
	ObservedAt  time.Time `json:"observedAt"`
}

type SeismicEvent struct {
	ID         string    `json:"id"`
	Magnitude  float64   `json:"magnitude"`
	Place      string    `json:"place"`
	Time       time.Time `json:"time"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	DepthKm    float64   `json:"depthKm"`
	DistanceKm float64   `json:"distanceKm"`
	URL        string    `json:"url,omitempty"`
	Tsunami    bool      `json:"tsunami"`
}

type Facility struct {
	PlaceID    string  `json:"placeId"`
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Rating     float64 `json:"rating,omitempty"`
	OpenNow    *bool   `json:"openNow,omitempty"`
	DistanceKm float64 `json:"distanceKm"`
}

// SlotError marks a provider slot as absent and says why.
type SlotError struct {
	Provider string      `json:"provider"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
}

type WeatherSlot struct {
	Data  *WeatherSnapshot `json:"data,omitempty"`
	Error *SlotError       `json:"error,omitempty"`
}

type SeismicSlot struct {
	Data  []SeismicEvent `json:"data,omitzero"`
	Error *SlotError     `json:"error,omitempty"`
}

type FacilitySlot struct {
	Data  []Facility `json:"data,omitzero"`
	Error *SlotError `json:"error,omitempty"`
}

// AggregatedGeoView merges the three provider results for one coordinate.
// Each slot has either data or an error, never both.
type AggregatedGeoView struct {
	Lat        float64      `json:"lat"`
	Lon        float64      `json:"lon"`
	Label      string       `json:"label,omitempty"`
	Weather    WeatherSlot  `json:"weather"`
	Seismic    SeismicSlot  `json:"seismic"`
	Facilities FacilitySlot `json:"facilities"`
}

// Complete reports whether every slot was populated.
func (v AggregatedGeoView) Complete() bool {
	return v.Weather.Error == nil && v.Seismic.Error == nil && v.Facilities.Error == nil
}
