//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_Search(t *testing.T) {
	c := smokeClient(t)

	places, err := c.Search(context.Background(), domain.SearchQuery{Text: "Austin, TX", Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, places)

	assert.InDelta(t, 30.27, places[0].Center.Lat(), 0.1, "lat should be near Austin")
	assert.InDelta(t, -97.74, places[0].Center.Lon(), 0.1, "lon should be near Austin")
	assert.Contains(t, places[0].Name, "Austin")
	assert.Greater(t, places[0].Relevance, 0.5)
}

func TestSmoke_SearchWithProximity(t *testing.T) {
	c := smokeClient(t)

	places, err := c.Search(context.Background(), domain.SearchQuery{
		Text:      "Springfield",
		Limit:     1,
		Proximity: &orb.Point{-89.65, 39.78},
	})
	require.NoError(t, err)
	require.NotEmpty(t, places)
	assert.Contains(t, places[0].Name, "Illinois")
}

func TestSmoke_Search_Nonsense(t *testing.T) {
	c := smokeClient(t)

	// Mapbox's fuzzy matching may still return results for nonsense queries,
	// so we verify the client handles any response gracefully (no error).
	_, err := c.Search(context.Background(), domain.SearchQuery{Text: "XYZNONEXISTENT99"})
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached, err := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())
	require.NoError(t, err)

	// First call: cache miss → real API call.
	r1, err := cached.Search(context.Background(), domain.SearchQuery{Text: "Dallas, TX"})
	require.NoError(t, err)
	require.NotEmpty(t, r1)

	// Second call: cache hit → no API call.
	r2, err := cached.Search(context.Background(), domain.SearchQuery{Text: "dallas, tx"})
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
