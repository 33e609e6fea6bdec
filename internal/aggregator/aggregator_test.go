package aggregator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/disaster-response/internal/geo"
	"github.com/mr1hm/disaster-response/internal/models"
	"github.com/mr1hm/disaster-response/internal/observability"
)

type stubWeather struct {
	calls atomic.Int32
	snap  *models.WeatherSnapshot
	err   error
	delay time.Duration
}

func (s *stubWeather) CurrentWeather(ctx context.Context, _ models.GeoQuery) (*models.WeatherSnapshot, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.snap, s.err
}

type stubSeismic struct {
	calls  atomic.Int32
	events []models.SeismicEvent
	err    error
}

func (s *stubSeismic) RecentEarthquakes(_ context.Context, _ models.GeoQuery) ([]models.SeismicEvent, error) {
	s.calls.Add(1)
	return s.events, s.err
}

type stubFacilities struct {
	calls      atomic.Int32
	facilities []models.Facility
	err        error
}

func (s *stubFacilities) NearbyFacilities(_ context.Context, _ models.GeoQuery) ([]models.Facility, error) {
	s.calls.Add(1)
	return s.facilities, s.err
}

type stubGeocoder struct {
	label string
	err   error
}

func (s *stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	return s.label, s.err
}

func healthyProviders() (*stubWeather, *stubSeismic, *stubFacilities) {
	return &stubWeather{snap: &models.WeatherSnapshot{TempC: 18, Condition: "Clear"}},
		&stubSeismic{events: []models.SeismicEvent{{ID: "nc1", Magnitude: 3.1}}},
		&stubFacilities{facilities: []models.Facility{{PlaceID: "p1", Name: "SF General"}}}
}

var bayArea = models.NewGeoQuery(37.7749, -122.4194)

func TestAggregate_AllProvidersSucceed(t *testing.T) {
	w, s, f := healthyProviders()
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, Geocoder: &stubGeocoder{label: "San Francisco"}})

	view := agg.Aggregate(context.Background(), bayArea)

	assert.True(t, view.Complete())
	assert.Equal(t, 37.7749, view.Lat)
	assert.Equal(t, -122.4194, view.Lon)
	assert.Equal(t, "San Francisco", view.Label)
	require.NotNil(t, view.Weather.Data)
	assert.Equal(t, "Clear", view.Weather.Data.Condition)
	assert.Len(t, view.Seismic.Data, 1)
	assert.Len(t, view.Facilities.Data, 1)
}

func TestAggregate_OneProviderFails(t *testing.T) {
	w, s, f := healthyProviders()
	s.events = nil
	s.err = &geo.ProviderError{Provider: models.ProviderSeismic, Kind: models.FailureUnreachable, Err: errors.New("connection refused")}
	agg := New(Options{Weather: w, Seismic: s, Facilities: f})

	view := agg.Aggregate(context.Background(), bayArea)

	assert.False(t, view.Complete())
	assert.NotNil(t, view.Weather.Data)
	assert.Nil(t, view.Weather.Error)
	assert.NotEmpty(t, view.Facilities.Data)
	assert.Nil(t, view.Facilities.Error)

	assert.Nil(t, view.Seismic.Data)
	require.NotNil(t, view.Seismic.Error)
	assert.Equal(t, models.ProviderSeismic, view.Seismic.Error.Provider)
	assert.Equal(t, models.FailureUnreachable, view.Seismic.Error.Kind)
}

func TestAggregate_SlowProviderTimesOutAlone(t *testing.T) {
	w, s, f := healthyProviders()
	w.delay = time.Second
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, Timeout: 50 * time.Millisecond})

	start := time.Now()
	view := agg.Aggregate(context.Background(), bayArea)

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	require.NotNil(t, view.Weather.Error)
	assert.Equal(t, models.FailureTimeout, view.Weather.Error.Kind)
	assert.NotEmpty(t, view.Seismic.Data)
	assert.NotEmpty(t, view.Facilities.Data)
}

func TestAggregate_UnconfiguredProvider(t *testing.T) {
	_, s, f := healthyProviders()
	agg := New(Options{Seismic: s, Facilities: f})

	view := agg.Aggregate(context.Background(), bayArea)

	require.NotNil(t, view.Weather.Error)
	assert.Equal(t, models.FailureUnreachable, view.Weather.Error.Kind)
	assert.Equal(t, "provider not configured", view.Weather.Error.Message)
	assert.Equal(t, models.UnknownCity, view.Label)
}

func TestAggregate_PlainErrorIsClassified(t *testing.T) {
	w, s, f := healthyProviders()
	f.facilities = nil
	f.err = errors.New("boom")
	agg := New(Options{Weather: w, Seismic: s, Facilities: f})

	view := agg.Aggregate(context.Background(), bayArea)

	require.NotNil(t, view.Facilities.Error)
	assert.Equal(t, models.FailureUnreachable, view.Facilities.Error.Kind)
}

func TestAggregate_EmptyResultsAreData(t *testing.T) {
	w, s, f := healthyProviders()
	s.events = nil
	f.facilities = nil
	agg := New(Options{Weather: w, Seismic: s, Facilities: f})

	view := agg.Aggregate(context.Background(), bayArea)

	assert.True(t, view.Complete())
	assert.NotNil(t, view.Seismic.Data)
	assert.Empty(t, view.Seismic.Data)
	assert.NotNil(t, view.Facilities.Data)
}

func TestAggregate_CachesCompleteViews(t *testing.T) {
	w, s, f := healthyProviders()
	metrics := observability.NewMetricsForTesting()
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, CacheTTL: 50 * time.Millisecond, Metrics: metrics})

	agg.Aggregate(context.Background(), bayArea)
	// Same geohash cell.
	second := agg.Aggregate(context.Background(), models.NewGeoQuery(37.7750, -122.4195))

	assert.Equal(t, int32(1), w.calls.Load())
	assert.Equal(t, 37.7750, second.Lat)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AggregateCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AggregateCache.WithLabelValues("miss")))

	time.Sleep(100 * time.Millisecond)
	agg.Aggregate(context.Background(), bayArea)
	assert.Equal(t, int32(2), w.calls.Load())
}

func TestAggregate_CacheHitRebasedOntoQueryPoint(t *testing.T) {
	w, s, _ := healthyProviders()
	hospitalAt := models.NewGeoQuery(37.7760, -122.4200)
	f := &stubFacilities{facilities: []models.Facility{
		{PlaceID: "east", Lat: 37.7740, Lon: -122.4150, DistanceKm: geo.DistanceKm(hospitalAt.Lat, hospitalAt.Lon, 37.7740, -122.4150)},
		{PlaceID: "here", Lat: hospitalAt.Lat, Lon: hospitalAt.Lon, DistanceKm: 0},
	}}
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, CacheTTL: time.Minute})

	first := agg.Aggregate(context.Background(), hospitalAt)
	// 9q8yyk holds both points.
	nearby := models.NewGeoQuery(37.7745, -122.4160)
	second := agg.Aggregate(context.Background(), nearby)

	require.Equal(t, int32(1), f.calls.Load(), "second query should be served from the cache")
	require.Len(t, second.Facilities.Data, 2)

	assert.Equal(t, "east", second.Facilities.Data[0].PlaceID, "facilities re-sorted for the query point")
	here := second.Facilities.Data[1]
	assert.Equal(t, "here", here.PlaceID)
	assert.InDelta(t, 0.39, here.DistanceKm, 0.01)
	assert.Equal(t, geo.DistanceKm(nearby.Lat, nearby.Lon, s.events[0].Lat, s.events[0].Lon), second.Seismic.Data[0].DistanceKm)

	// The cached entry is not written through the rebased copy.
	assert.Equal(t, float64(0), first.Facilities.Data[1].DistanceKm)
	third := agg.Aggregate(context.Background(), hospitalAt)
	assert.Equal(t, "here", third.Facilities.Data[0].PlaceID)
	assert.Equal(t, float64(0), third.Facilities.Data[0].DistanceKm)
}

type pointGeocoder struct {
	calls  atomic.Int32
	labels map[[2]float64]string
	err    error
}

func (p *pointGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", p.err
	}
	return p.labels[[2]float64{lat, lon}], nil
}

func TestAggregate_CacheHitLabelsQueryPoint(t *testing.T) {
	w, s, f := healthyProviders()
	mission := models.NewGeoQuery(37.7760, -122.4200)
	nearby := models.NewGeoQuery(37.7745, -122.4160)
	gc := &pointGeocoder{labels: map[[2]float64]string{
		{mission.Lat, mission.Lon}: "Mission",
		{nearby.Lat, nearby.Lon}:   "SoMa",
	}}
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, Geocoder: gc, CacheTTL: time.Minute})

	assert.Equal(t, "Mission", agg.Aggregate(context.Background(), mission).Label)
	assert.Equal(t, "SoMa", agg.Aggregate(context.Background(), nearby).Label)
	assert.Equal(t, int32(1), w.calls.Load())
}

func TestAggregate_FailedLabelNotCached(t *testing.T) {
	w, s, f := healthyProviders()
	gc := &pointGeocoder{
		labels: map[[2]float64]string{{bayArea.Lat, bayArea.Lon}: "San Francisco"},
		err:    errors.New("geocoder down"),
	}
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, Geocoder: gc, CacheTTL: time.Minute})

	first := agg.Aggregate(context.Background(), bayArea)
	assert.Equal(t, models.UnknownCity, first.Label)
	assert.True(t, first.Complete())

	gc.err = nil
	second := agg.Aggregate(context.Background(), bayArea)
	assert.Equal(t, "San Francisco", second.Label)
	assert.Equal(t, int32(1), w.calls.Load(), "provider data still served from the cache")
}

func TestAggregate_PartialViewsNotCached(t *testing.T) {
	w, s, f := healthyProviders()
	s.err = errors.New("down")
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, CacheTTL: time.Minute})

	agg.Aggregate(context.Background(), bayArea)
	agg.Aggregate(context.Background(), bayArea)

	assert.Equal(t, int32(2), s.calls.Load())
}

func TestAggregate_RecordsProviderMetrics(t *testing.T) {
	w, s, f := healthyProviders()
	w.err = &geo.ProviderError{Provider: models.ProviderWeather, Kind: models.FailureRateLimited, Err: errors.New("429")}
	metrics := observability.NewMetricsForTesting()
	agg := New(Options{Weather: w, Seismic: s, Facilities: f, Metrics: metrics})

	agg.Aggregate(context.Background(), bayArea)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProviderRequests.WithLabelValues(models.ProviderWeather, "rate_limited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ProviderRequests.WithLabelValues(models.ProviderSeismic, "success")))
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name     string
		geocoder geo.Geocoder
		want     string
	}{
		{"match", &stubGeocoder{label: "Oakland"}, "Oakland"},
		{"empty answer", &stubGeocoder{}, models.UnknownCity},
		{"failure", &stubGeocoder{err: errors.New("denied")}, models.UnknownCity},
		{"not configured", nil, models.UnknownCity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New(Options{Geocoder: tt.geocoder})
			assert.Equal(t, tt.want, agg.Label(context.Background(), 37.8, -122.27))
		})
	}
}

func TestWeather_NilSnapshotIsInvalid(t *testing.T) {
	agg := New(Options{Weather: &stubWeather{}})

	_, err := agg.Weather(context.Background(), bayArea)

	var pe *geo.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.FailureInvalidResponse, pe.Kind)
}
