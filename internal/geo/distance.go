package geo

import (
	"cmp"
	"math"
	"slices"

	"github.com/golang/geo/s2"

	"github.com/mr1hm/disaster-response/internal/models"
)

const earthRadiusKm = 6371.0088

// DistanceKm is the great-circle distance between two WGS84 points, rounded
// to 10 m.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	km := a.Distance(b).Radians() * earthRadiusKm
	return math.Round(km*100) / 100
}

// SortByDistance orders facilities nearest first, keeping provider order
// among ties.
func SortByDistance(facilities []models.Facility) {
	slices.SortStableFunc(facilities, func(a, b models.Facility) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})
}
