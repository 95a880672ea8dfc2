// Package mapbox implements place search against the Mapbox Geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/paulmach/orb"
)

// DefaultLimit is used when a query does not set one. Mapbox caps it at 10.
const (
	DefaultLimit = 5
	maxLimit     = 10
)

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// Search forward-geocodes free text into places, best match first.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Place, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(text))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {strconv.Itoa(clampLimit(q.Limit))},
	}
	if q.Proximity != nil {
		// Mapbox uses lon,lat order.
		params.Set("proximity", fmt.Sprintf("%.6f,%.6f", q.Proximity.Lon(), q.Proximity.Lat()))
	}

	places, err := c.doRequest(ctx, u+"?"+params.Encode())
	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		c.logger.Warn("place search failed", "query", text, "error", err)
	case len(places) == 0:
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	}
	return places, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.Place, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	places := make([]domain.Place, 0, len(mapboxResp.Features))
	for _, f := range mapboxResp.Features {
		if len(f.Center) != 2 {
			continue
		}
		places = append(places, domain.Place{
			Name:      f.PlaceName,
			Text:      f.Text,
			Center:    orb.Point{f.Center[0], f.Center[1]},
			Relevance: f.Relevance,
		})
	}
	return places, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > maxLimit:
		return maxLimit
	default:
		return n
	}
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
