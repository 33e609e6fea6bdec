// Package aggregator merges the weather, seismic and facility providers into
// one view per coordinate. A failing provider never fails the view; its slot
// carries a failure marker instead.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/disaster-response/internal/geo"
	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/observability"
)

// DefaultTimeout applies to each provider call independently.
const DefaultTimeout = 8 * time.Second

// cachePrecision 6 gives cells of roughly 1.2 km x 0.6 km.
const cachePrecision = 6

const cacheEntries = 4096

var errEmpty = errors.New("provider returned no data")

// Options configures an Aggregator. Nil providers are reported as
// unreachable slots.
type Options struct {
	Weather    geo.WeatherProvider
	Seismic    geo.SeismicProvider
	Facilities geo.FacilityProvider
	Geocoder   geo.Geocoder

	Timeout  time.Duration
	CacheTTL time.Duration // 0 disables the view cache
	Metrics  *observability.Metrics
}

type Aggregator struct {
	weather    geo.WeatherProvider
	seismic    geo.SeismicProvider
	facilities geo.FacilityProvider
	geocoder   geo.Geocoder

	timeout time.Duration
	cache   *expirable.LRU[string, models.AggregatedGeoView]
	metrics *observability.Metrics
}

func New(opts Options) *Aggregator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	a := &Aggregator{
		weather:    opts.Weather,
		seismic:    opts.Seismic,
		facilities: opts.Facilities,
		geocoder:   opts.Geocoder,
		timeout:    timeout,
		metrics:    opts.Metrics,
	}
	if opts.CacheTTL > 0 {
		a.cache = expirable.NewLRU[string, models.AggregatedGeoView](cacheEntries, nil, opts.CacheTTL)
	}
	return a
}

// Aggregate calls every provider concurrently and waits for all of them.
// It never fails.
//
// Complete views are cached per geohash cell without their label. A hit is
// rebased onto the query point: distances are recomputed, facilities
// re-sorted and the label resolved for the exact coordinate.
func (a *Aggregator) Aggregate(ctx context.Context, q models.GeoQuery) models.AggregatedGeoView {
	var key string
	if a.cache != nil {
		key = geohash.EncodeWithPrecision(q.Lat, q.Lon, cachePrecision)
		if view, ok := a.cache.Get(key); ok {
			a.countCache("hit")
			view = rebase(view, q)
			view.Label = a.Label(ctx, q.Lat, q.Lon)
			return view
		}
		a.countCache("miss")
	}

	view := models.AggregatedGeoView{Lat: q.Lat, Lon: q.Lon}

	// A plain Group: one slot failing must not cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		data, err := a.Weather(ctx, q)
		if err != nil {
			view.Weather.Error = geo.AsProviderError(models.ProviderWeather, err).SlotError()
			return nil
		}
		view.Weather.Data = data
		return nil
	})
	g.Go(func() error {
		data, err := a.Seismic(ctx, q)
		if err != nil {
			view.Seismic.Error = geo.AsProviderError(models.ProviderSeismic, err).SlotError()
			return nil
		}
		view.Seismic.Data = data
		return nil
	})
	g.Go(func() error {
		data, err := a.Facilities(ctx, q)
		if err != nil {
			view.Facilities.Error = geo.AsProviderError(models.ProviderFacilities, err).SlotError()
			return nil
		}
		view.Facilities.Data = data
		return nil
	})
	g.Go(func() error {
		view.Label = a.Label(ctx, q.Lat, q.Lon)
		return nil
	})
	_ = g.Wait()

	if a.cache != nil && view.Complete() {
		cached := view
		cached.Label = ""
		a.cache.Add(key, cached)
	}

	if !view.Complete() {
		slog.Debug("partial geo view", "lat", q.Lat, "lon", q.Lon,
			"weather_ok", view.Weather.Error == nil,
			"seismic_ok", view.Seismic.Error == nil,
			"facilities_ok", view.Facilities.Error == nil)
	}
	return view
}

// rebase copies a cached view onto q. The cached slices are never written.
func rebase(view models.AggregatedGeoView, q models.GeoQuery) models.AggregatedGeoView {
	view.Lat, view.Lon = q.Lat, q.Lon

	if view.Seismic.Data != nil {
		events := slices.Clone(view.Seismic.Data)
		for i := range events {
			events[i].DistanceKm = geo.DistanceKm(q.Lat, q.Lon, events[i].Lat, events[i].Lon)
		}
		view.Seismic.Data = events
	}

	if view.Facilities.Data != nil {
		facilities := slices.Clone(view.Facilities.Data)
		for i := range facilities {
			facilities[i].DistanceKm = geo.DistanceKm(q.Lat, q.Lon, facilities[i].Lat, facilities[i].Lon)
		}
		geo.SortByDistance(facilities)
		view.Facilities.Data = facilities
	}
	return view
}

// Weather calls the weather provider alone under the per-provider timeout.
func (a *Aggregator) Weather(ctx context.Context, q models.GeoQuery) (*models.WeatherSnapshot, error) {
	if a.weather == nil {
		return nil, notConfigured(models.ProviderWeather)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	data, err := a.weather.CurrentWeather(ctx, q)
	if err == nil && data == nil {
		err = &geo.ProviderError{Provider: models.ProviderWeather, Kind: models.FailureInvalidResponse, Err: errEmpty}
	}
	a.observe(models.ProviderWeather, start, err)
	if err != nil {
		return nil, geo.AsProviderError(models.ProviderWeather, err)
	}
	return data, nil
}

func (a *Aggregator) Seismic(ctx context.Context, q models.GeoQuery) ([]models.SeismicEvent, error) {
	if a.seismic == nil {
		return nil, notConfigured(models.ProviderSeismic)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	data, err := a.seismic.RecentEarthquakes(ctx, q)
	a.observe(models.ProviderSeismic, start, err)
	if err != nil {
		return nil, geo.AsProviderError(models.ProviderSeismic, err)
	}
	if data == nil {
		data = []models.SeismicEvent{}
	}
	return data, nil
}

func (a *Aggregator) Facilities(ctx context.Context, q models.GeoQuery) ([]models.Facility, error) {
	if a.facilities == nil {
		return nil, notConfigured(models.ProviderFacilities)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	data, err := a.facilities.NearbyFacilities(ctx, q)
	a.observe(models.ProviderFacilities, start, err)
	if err != nil {
		return nil, geo.AsProviderError(models.ProviderFacilities, err)
	}
	if data == nil {
		data = []models.Facility{}
	}
	return data, nil
}

// Label reverse geocodes a coordinate. Any failure or empty answer yields
// models.UnknownCity.
func (a *Aggregator) Label(ctx context.Context, lat, lon float64) string {
	if a.geocoder == nil {
		return models.UnknownCity
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	label, err := a.geocoder.ReverseGeocode(ctx, lat, lon)
	a.observe(models.ProviderReverseGeocoder, start, err)
	if err != nil {
		slog.Warn("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
		return models.UnknownCity
	}
	if label == "" {
		return models.UnknownCity
	}
	return label
}

func (a *Aggregator) observe(provider string, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(geo.AsProviderError(provider, err).Kind)
	}
	a.metrics.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	a.metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func (a *Aggregator) countCache(result string) {
	if a.metrics != nil {
		a.metrics.AggregateCache.WithLabelValues(result).Inc()
	}
}

func notConfigured(provider string) *geo.ProviderError {
	return &geo.ProviderError{Provider: provider, Kind: models.FailureUnreachable, Err: geo.ErrNotConfigured}
}
