package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mr1hm/disaster-response/internal/models"
)

// USGS implements SeismicProvider with the FDSN event query service.
type USGS struct {
	baseURL    string
	httpClient *http.Client
}

func NewUSGS(baseURL string, timeout time.Duration) *USGS {
	return &USGS{
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
	}
}

func (u *USGS) RecentEarthquakes(ctx context.Context, q models.GeoQuery) ([]models.SeismicEvent, error) {
	radius := q.RadiusKm
	if radius <= 0 {
		radius = models.DefaultSeismicRadiusKm
	}
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultSeismicLimit
	}

	params := url.Values{
		"format":      {"geojson"},
		"latitude":    {strconv.FormatFloat(q.Lat, 'f', -1, 64)},
		"longitude":   {strconv.FormatFloat(q.Lon, 'f', -1, 64)},
		"maxradiuskm": {strconv.FormatFloat(radius, 'f', -1, 64)},
		"limit":       {strconv.Itoa(limit)},
	}
	fullURL := fmt.Sprintf("%s/fdsnws/event/1/query?%s", u.baseURL, params.Encode())

	var data usgsResponse
	if err := getJSON(ctx, u.httpClient, models.ProviderSeismic, fullURL, &data); err != nil {
		return nil, err
	}
	if data.Features == nil {
		return nil, newError(models.ProviderSeismic, models.FailureInvalidResponse, fmt.Errorf("response has no features"))
	}

	events := make([]models.SeismicEvent, 0, len(data.Features))
	for _, f := range data.Features {
		// [lon, lat, depth]; features without a position are skipped
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		e := models.SeismicEvent{
			ID:      f.ID,
			Place:   f.Properties.Place,
			Time:    time.UnixMilli(f.Properties.Time).UTC(),
			Lon:     f.Geometry.Coordinates[0],
			Lat:     f.Geometry.Coordinates[1],
			URL:     f.Properties.URL,
			Tsunami: f.Properties.Tsunami == 1,
		}
		if f.Properties.Mag != nil {
			e.Magnitude = *f.Properties.Mag
		}
		if len(f.Geometry.Coordinates) > 2 {
			e.DepthKm = f.Geometry.Coordinates[2]
		}
		e.DistanceKm = DistanceKm(q.Lat, q.Lon, e.Lat, e.Lon)
		events = append(events, e)
	}

	return events, nil
}

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}

type usgsProperties struct {
	Mag     *float64 `json:"mag"` // null for some reviewed events
	Place   string   `json:"place"`
	Time    int64    `json:"time"` // unix millis
	URL     string   `json:"url"`
	Tsunami int      `json:"tsunami"` // 0 or 1
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"`
}
