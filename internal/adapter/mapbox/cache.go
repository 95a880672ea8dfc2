package mapbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, []domain.Place]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) (*CachedGeocoder, error) {
	cache, err := lru.New[string, []domain.Place](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create geocode cache: %w", err)
	}
	return &CachedGeocoder{inner: inner, cache: cache, metrics: metrics}, nil
}

// Search answers repeated queries from the cache.
func (c *CachedGeocoder) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Place, error) {
	key := cacheKey(q)
	if places, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return places, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	places, err := c.inner.Search(ctx, q)
	if err != nil {
		return places, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if len(places) > 0 {
		c.cache.Add(key, places)
	}
	return places, nil
}

// cacheKey normalizes case and whitespace. Proximity is rounded to about a
// kilometre so small pans share entries.
func cacheKey(q domain.SearchQuery) string {
	text := strings.Join(strings.Fields(strings.ToLower(q.Text)), " ")
	key := fmt.Sprintf("%s|%d", text, clampLimit(q.Limit))
	if q.Proximity != nil {
		key += fmt.Sprintf("|%.2f,%.2f", q.Proximity.Lon(), q.Proximity.Lat())
	}
	return key
}
