package geo

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by the
// coordinate rounded to four decimals (about 11 m). Place names do not
// expire.
type CachedGeocoder struct {
	inner Geocoder
	cache *expirable.LRU[string, string]
}

func NewCachedGeocoder(inner Geocoder, maxEntries int) *CachedGeocoder {
	return &CachedGeocoder{
		inner: inner,
		cache: expirable.NewLRU[string, string](maxEntries, nil, 0),
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if label, ok := c.cache.Get(key); ok {
		return label, nil
	}
	label, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	// Empty answers are not cached so a later lookup can still succeed.
	if label != "" {
		c.cache.Add(key, label)
	}
	return label, nil
}

// Len reports the number of cached labels.
func (c *CachedGeocoder) Len() int {
	return c.cache.Len()
}
