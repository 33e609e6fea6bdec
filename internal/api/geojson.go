package api

import (
	"strings"
	"time"

	"github.com/mr1hm/disaster-response/internal/models"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// toGeoJSON renders reports as map points. GeoJSON orders coordinates
// longitude first.
func toGeoJSON(reports []models.Report) FeatureCollection {
	features := make([]Feature, 0, len(reports))

	for _, r := range reports {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{r.Lon, r.Lat},
			},
			Properties: map[string]any{
				"id":            r.ID,
				"location":      r.Location,
				"disaster_type": strings.ToLower(string(r.DisasterType)),
				"severity":      strings.ToLower(string(r.Severity)),
				"created_at":    r.CreatedAt.UTC().Format(time.RFC3339),
			},
		})
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
