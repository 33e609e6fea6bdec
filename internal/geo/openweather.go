package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mr1hm/disaster-response/internal/models"
)

// OpenWeather implements WeatherProvider using the OpenWeatherMap current
// weather API.
type OpenWeather struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewOpenWeather(apiKey, baseURL string, timeout time.Duration) *OpenWeather {
	return &OpenWeather{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
	}
}

func (o *OpenWeather) CurrentWeather(ctx context.Context, q models.GeoQuery) (*models.WeatherSnapshot, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(q.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(q.Lon, 'f', -1, 64)},
		"appid": {o.apiKey},
		"units": {"metric"},
	}
	u := fmt.Sprintf("%s/data/2.5/weather?%s", o.baseURL, params.Encode())

	var data owResponse
	if err := getJSON(ctx, o.httpClient, models.ProviderWeather, u, &data); err != nil {
		return nil, err
	}

	if data.Main == nil {
		return nil, newError(models.ProviderWeather, models.FailureInvalidResponse, errors.New("response has no main block"))
	}

	snap := &models.WeatherSnapshot{
		TempC:       data.Main.Temp,
		FeelsLikeC:  data.Main.FeelsLike,
		Humidity:    data.Main.Humidity,
		PressureHpa: data.Main.Pressure,
		City:        data.Name,
	}
	if data.Wind != nil {
		snap.WindSpeedMS = data.Wind.Speed
	}
	if len(data.Weather) > 0 {
		snap.Condition = data.Weather[0].Main
		snap.Description = data.Weather[0].Description
	}
	if data.Dt > 0 {
		snap.ObservedAt = time.Unix(data.Dt, 0).UTC()
	}
	return snap, nil
}

// OpenWeatherMap API response types.

type owResponse struct {
	Weather []owCondition `json:"weather"`
	Main    *owMain       `json:"main"`
	Wind    *owWind       `json:"wind"`
	Dt      int64         `json:"dt"`
	Name    string        `json:"name"`
}

type owCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type owMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

type owWind struct {
	Speed float64 `json:"speed"`
}
