package models

import (
	"math"
	"strings"
	"time"
)

type Category string

const (
	CategoryFire       Category = "Fire"
	CategoryFlood      Category = "Flood"
	CategoryTornado    Category = "Tornado"
	CategoryEarthquake Category = "Earthquake"
	CategoryHurricane  Category = "Hurricane"
	CategoryOther      Category = "Other"
)

var categories = []Category{
	CategoryFire,
	CategoryFlood,
	CategoryTornado,
	CategoryEarthquake,
	CategoryHurricane,
	CategoryOther,
}

// ParseCategory matches case-insensitively and returns the canonical spelling.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

func ParseSeverity(s string) (Severity, bool) {
	s = strings.TrimSpace(s)
	for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh} {
		if strings.EqualFold(s, string(sev)) {
			return sev, true
		}
	}
	return "", false
}

// Rank orders severities from Low (0) to High (2); unknown values rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	default:
		return -1
	}
}

// Report is a user-submitted hazard report. It is never mutated after the
// store assigns its ID.
type Report struct {
	ID           string    `json:"id"`
	Location     string    `json:"location"`
	DisasterType Category  `json:"disasterType"`
	Severity     Severity  `json:"severity"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (r *Report) Coordinates() Coordinates {
	return Coordinates{
		Latitude:  r.Lat,
		Longitude: r.Lon,
	}
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// ReportInput is the submission body. Lat/Lon are pointers so a missing
// coordinate can be told apart from 0.
type ReportInput struct {
	Location     string   `json:"location"`
	DisasterType string   `json:"disasterType"`
	Severity     string   `json:"severity"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	Lng          *float64 `json:"lng"` // older dashboards send lng
}

// Validate checks required fields and numeric ranges and returns the report
// ready to be stored. ID and CreatedAt are left for the store.
func (in ReportInput) Validate() (Report, error) {
	lon := in.Lon
	if lon == nil {
		lon = in.Lng
	}
	if in.Lat == nil || lon == nil {
		return Report{}, &ValidationError{Field: "lat/lon", Reason: "Latitude and Longitude are required"}
	}
	if err := ValidateCoordinates(*in.Lat, *lon); err != nil {
		return Report{}, err
	}

	category, ok := ParseCategory(in.DisasterType)
	if !ok {
		if strings.TrimSpace(in.DisasterType) == "" {
			return Report{}, &ValidationError{Field: "disasterType", Reason: "disasterType is required"}
		}
		return Report{}, &ValidationError{Field: "disasterType", Reason: "unknown disasterType " + in.DisasterType}
	}
	severity, ok := ParseSeverity(in.Severity)
	if !ok {
		if strings.TrimSpace(in.Severity) == "" {
			return Report{}, &ValidationError{Field: "severity", Reason: "severity is required"}
		}
		return Report{}, &ValidationError{Field: "severity", Reason: "unknown severity " + in.Severity}
	}

	return Report{
		Location:     strings.TrimSpace(in.Location),
		DisasterType: category,
		Severity:     severity,
		Lat:          *in.Lat,
		Lon:          *lon,
	}, nil
}

// ValidateCoordinates rejects non-finite values and values outside the
// WGS84 ranges.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Reason: "latitude must be a number between -90 and 90"}
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return &ValidationError{Field: "lon", Reason: "longitude must be a number between -180 and 180"}
	}
	return nil
}
