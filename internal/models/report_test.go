package models

import (
	"errors"
	"math"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestReportInput_Validate(t *testing.T) {
	in := ReportInput{
		Location:     "  Bay Area ",
		DisasterType: "earthquake",
		Severity:     "HIGH",
		Lat:          ptr(37.7749),
		Lon:          ptr(-122.4194),
	}

	r, err := in.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if r.Location != "Bay Area" {
		t.Errorf("expected trimmed location, got %q", r.Location)
	}
	if r.DisasterType != CategoryEarthquake || r.Severity != SeverityHigh {
		t.Errorf("expected canonical enums, got %s/%s", r.DisasterType, r.Severity)
	}
	if r.Lat != 37.7749 || r.Lon != -122.4194 {
		t.Errorf("unexpected coordinates %v,%v", r.Lat, r.Lon)
	}
	if r.ID != "" || !r.CreatedAt.IsZero() {
		t.Error("expected ID and CreatedAt to be left for the store")
	}
}

func TestReportInput_ZeroCoordinatesAreValid(t *testing.T) {
	in := ReportInput{DisasterType: "Flood", Severity: "Low", Lat: ptr(0), Lon: ptr(0)}
	if _, err := in.Validate(); err != nil {
		t.Errorf("expected 0,0 to be accepted, got %v", err)
	}
}

func TestReportInput_LngAlias(t *testing.T) {
	in := ReportInput{DisasterType: "Flood", Severity: "Low", Lat: ptr(35.68), Lng: ptr(139.69)}
	r, err := in.Validate()
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if r.Lon != 139.69 {
		t.Errorf("expected lon from lng, got %v", r.Lon)
	}

	in.Lon = ptr(1)
	r, _ = in.Validate()
	if r.Lon != 1 {
		t.Errorf("expected lon to win over lng, got %v", r.Lon)
	}
}

func TestReportInput_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		in    ReportInput
		field string
	}{
		{"missing lat", ReportInput{DisasterType: "Fire", Severity: "Low", Lon: ptr(1)}, "lat/lon"},
		{"missing lon", ReportInput{DisasterType: "Fire", Severity: "Low", Lat: ptr(1)}, "lat/lon"},
		{"lat too large", ReportInput{DisasterType: "Fire", Severity: "Low", Lat: ptr(90.1), Lon: ptr(1)}, "lat"},
		{"lat NaN", ReportInput{DisasterType: "Fire", Severity: "Low", Lat: ptr(math.NaN()), Lon: ptr(1)}, "lat"},
		{"lon infinite", ReportInput{DisasterType: "Fire", Severity: "Low", Lat: ptr(1), Lon: ptr(math.Inf(1))}, "lon"},
		{"missing type", ReportInput{Severity: "Low", Lat: ptr(1), Lon: ptr(1)}, "disasterType"},
		{"unknown type", ReportInput{DisasterType: "Meteor", Severity: "Low", Lat: ptr(1), Lon: ptr(1)}, "disasterType"},
		{"unknown severity", ReportInput{DisasterType: "Fire", Severity: "Extreme", Lat: ptr(1), Lon: ptr(1)}, "severity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	if !(SeverityLow.Rank() < SeverityMedium.Rank() && SeverityMedium.Rank() < SeverityHigh.Rank()) {
		t.Error("expected Low < Medium < High")
	}
	if Severity("Extreme").Rank() != -1 {
		t.Error("expected unknown severity to rank -1")
	}
}

func TestAggregatedGeoView_Complete(t *testing.T) {
	v := AggregatedGeoView{}
	if !v.Complete() {
		t.Error("expected view without error markers to be complete")
	}
	v.Facilities.Error = &SlotError{Provider: ProviderFacilities, Kind: FailureRateLimited}
	if v.Complete() {
		t.Error("expected view with a failed slot to be incomplete")
	}
}

func TestPersistenceError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&PersistenceError{Op: "append", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("expected PersistenceError to unwrap to its cause")
	}
	if err.Error() != "persistence append: disk full" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
