// Package feed fetches CSV feeds over HTTP.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// maxFeedBytes bounds how much of a feed response is read.
const maxFeedBytes = 64 << 20

// ErrFeedTooLarge is returned for feed bodies over the size limit.
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// Client downloads feed bodies with plain GET requests.
type Client struct {
	httpClient *http.Client
	cacheBust  bool
	maxBytes   int64
	newToken   func() string
	logger     *slog.Logger
}

// NewClient creates a feed client. A zero timeout disables the request
// deadline. With cacheBust set every request carries a fresh "t" query
// parameter so intermediate caches never serve a stale feed.
func NewClient(timeout time.Duration, cacheBust bool, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cacheBust:  cacheBust,
		maxBytes:   maxFeedBytes,
		newToken:   uuid.NewString,
		logger:     logger,
	}
}

// Fetch returns the body of a successful GET on rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if c.cacheBust {
		q := u.Query()
		q.Set("t", c.newToken())
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed error: status %d: %s", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFeedTooLarge, c.maxBytes)
	}
	c.logger.Debug("feed fetched", "host", u.Host, "path", u.Path, "bytes", len(data))
	return data, nil
}
