package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/mr1hm/disaster-response/internal/models"
)

// NewGoogleClient builds the Maps client shared by GooglePlaces and
// GoogleGeocoder. An empty baseURL keeps the public endpoint.
func NewGoogleClient(apiKey, baseURL string, timeout time.Duration) (*maps.Client, error) {
	opts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(newHTTPClient(timeout)),
	}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	c, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return c, nil
}

// GooglePlaces implements FacilityProvider with the Places Nearby Search API.
type GooglePlaces struct {
	client *maps.Client
}

func NewGooglePlaces(client *maps.Client) *GooglePlaces {
	return &GooglePlaces{client: client}
}

func (g *GooglePlaces) NearbyFacilities(ctx context.Context, q models.GeoQuery) ([]models.Facility, error) {
	radius := q.RadiusMeters
	if radius <= 0 {
		radius = models.DefaultFacilityRadiusM
	}
	placeType := q.FacilityType
	if placeType == "" {
		placeType = models.DefaultFacilityType
	}

	resp, err := g.client.NearbySearch(ctx, &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: q.Lat, Lng: q.Lon},
		Radius:   uint(radius),
		Type:     maps.PlaceType(placeType),
	})
	if err != nil {
		return nil, googleError(models.ProviderFacilities, err)
	}

	facilities := make([]models.Facility, 0, len(resp.Results))
	for _, r := range resp.Results {
		f := models.Facility{
			PlaceID: r.PlaceID,
			Name:    r.Name,
			Address: r.Vicinity,
			Lat:     r.Geometry.Location.Lat,
			Lon:     r.Geometry.Location.Lng,
			// Ratings carry one decimal; float32 would leak noise digits.
			Rating: math.Round(float64(r.Rating)*10) / 10,
		}
		if r.OpeningHours != nil {
			f.OpenNow = r.OpeningHours.OpenNow
		}
		f.DistanceKm = DistanceKm(q.Lat, q.Lon, f.Lat, f.Lon)
		facilities = append(facilities, f)
	}

	SortByDistance(facilities)
	return facilities, nil
}

// GoogleGeocoder implements Geocoder with the Geocoding API. The label is the
// first result's locality component.
type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(client *maps.Client) *GoogleGeocoder {
	return &GoogleGeocoder{client: client}
}

func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lon},
	})
	if err != nil {
		return "", googleError(models.ProviderReverseGeocoder, err)
	}
	if len(results) == 0 {
		return "", nil
	}

	for _, c := range results[0].AddressComponents {
		if slices.Contains(c.Types, "locality") {
			return c.LongName, nil
		}
	}
	return "", nil
}

// googleError classifies an error from the maps client. Non-OK API statuses
// arrive as "maps: STATUS - message".
func googleError(provider string, err error) *ProviderError {
	if isTimeout(err) {
		return newError(provider, models.FailureTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return newError(provider, models.FailureUnreachable, err)
	}

	rest, ok := strings.CutPrefix(err.Error(), "maps: ")
	if !ok {
		return newError(provider, models.FailureInvalidResponse, err)
	}
	status, message, _ := strings.Cut(rest, " - ")
	return googleStatus(provider, strings.TrimSpace(status), message)
}
