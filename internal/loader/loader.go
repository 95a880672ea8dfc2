// Package loader fetches the POI feeds in order, builds an immutable
// dataset snapshot from them, and swaps it in for readers.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/poi-map/internal/cluster"
	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
)

// ErrNotLoaded is returned while no load has succeeded yet.
var ErrNotLoaded = errors.New("dataset not loaded")

// Fetcher downloads one feed body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Publisher receives the classified features of every successful load and
// reports how many it delivered.
type Publisher interface {
	Publish(ctx context.Context, loadID string, features []domain.ClassifiedFeature) (int, error)
}

// Feeds names the feed URLs and how each is parsed. Activated and Queued
// may be empty.
type Feeds struct {
	Primary         string
	Activated       string
	Queued          string
	PrimaryParser   domain.ParserStrategy
	SecondaryParser domain.ParserStrategy
}

// Dataset is one immutable load snapshot.
type Dataset struct {
	LoadID     string
	LoadedAt   time.Time
	Features   []domain.ClassifiedFeature
	Collection *geojson.FeatureCollection
	Index      *cluster.Index
	Counts     map[domain.Status]int
	Invalid    int
}

// Loader runs loads and holds the latest snapshot.
type Loader struct {
	fetcher   Fetcher
	publisher Publisher
	feeds     Feeds
	clusters  cluster.Options
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	current   atomic.Pointer[Dataset]
}

// New creates a Loader. publisher may be nil. A zero interval makes Run
// stop after the first successful load.
func New(f Fetcher, feeds Feeds, clusters cluster.Options, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		fetcher:  f,
		feeds:    feeds,
		clusters: clusters,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// WithPublisher sets the snapshot publisher and returns l.
func (l *Loader) WithPublisher(p Publisher) *Loader {
	l.publisher = p
	return l
}

// Current returns the latest snapshot or ErrNotLoaded.
func (l *Loader) Current() (*Dataset, error) {
	ds := l.current.Load()
	if ds == nil {
		return nil, ErrNotLoaded
	}
	return ds, nil
}

// CheckReadiness returns nil once a load has succeeded.
func (l *Loader) CheckReadiness(_ context.Context) error {
	if l.current.Load() == nil {
		return errors.New("no dataset has been loaded yet")
	}
	return nil
}

// Load fetches activated, queued and primary feeds strictly in that order.
// Any fetch failure aborts the load and the previous snapshot stays current.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	var activated, queued domain.KeySet
	if l.feeds.Activated != "" {
		records, err := l.fetch(ctx, "activated", l.feeds.Activated, l.feeds.SecondaryParser)
		if err != nil {
			return nil, l.abort(err)
		}
		activated = domain.NewKeySet(records)
	}
	if l.feeds.Queued != "" {
		records, err := l.fetch(ctx, "queued", l.feeds.Queued, l.feeds.SecondaryParser)
		if err != nil {
			return nil, l.abort(err)
		}
		queued = domain.NewKeySet(records)
	}
	primary, err := l.fetch(ctx, "primary", l.feeds.Primary, l.feeds.PrimaryParser)
	if err != nil {
		return nil, l.abort(err)
	}

	features := domain.Classify(primary, activated, queued)
	fc, invalid := domain.Project(features)
	ds := &Dataset{
		LoadID:     uuid.NewString(),
		LoadedAt:   l.clock.Now().UTC(),
		Features:   features,
		Collection: fc,
		Index:      cluster.Build(fc, l.clusters),
		Counts:     make(map[domain.Status]int, 3),
		Invalid:    invalid,
	}
	for _, f := range features {
		if f.Coordinate.Valid {
			ds.Counts[f.Status]++
		}
	}
	l.current.Store(ds)

	l.metrics.LoadsCompleted.Inc()
	l.metrics.InvalidFeatures.Set(float64(invalid))
	for _, s := range []domain.Status{domain.StatusDefault, domain.StatusActivated, domain.StatusQueued} {
		l.metrics.FeaturesLoaded.WithLabelValues(s.String()).Set(float64(ds.Counts[s]))
	}
	l.logger.Info("dataset loaded",
		"load_id", ds.LoadID,
		"features", len(fc.Features),
		"activated", ds.Counts[domain.StatusActivated],
		"queued", ds.Counts[domain.StatusQueued],
		"invalid", invalid,
	)

	l.publish(ctx, ds)
	return ds, nil
}

func (l *Loader) fetch(ctx context.Context, feed, url string, strategy domain.ParserStrategy) ([]domain.Record, error) {
	start := l.clock.Now()
	data, err := l.fetcher.Fetch(ctx, url)
	l.metrics.FeedFetchSeconds.WithLabelValues(feed).Observe(l.clock.Since(start).Seconds())
	if err != nil {
		l.metrics.FeedFetches.WithLabelValues(feed, "error").Inc()
		return nil, fmt.Errorf("fetch %s feed: %w", feed, err)
	}
	l.metrics.FeedFetches.WithLabelValues(feed, "success").Inc()

	records, rows := parse(data, strategy)
	dropped := max(rows-len(records), 0)
	l.metrics.RowsParsed.WithLabelValues(feed).Add(float64(len(records)))
	l.metrics.RowsDropped.WithLabelValues(feed).Add(float64(dropped))
	l.logger.Debug("feed parsed", "feed", feed, "parser", string(strategy), "records", len(records), "dropped", dropped)
	return records, nil
}

func (l *Loader) abort(err error) error {
	l.metrics.LoadErrors.Inc()
	l.logger.Error("load aborted, keeping previous dataset", "error", err)
	return err
}

func (l *Loader) publish(ctx context.Context, ds *Dataset) {
	if l.publisher == nil {
		return
	}
	n, err := l.publisher.Publish(ctx, ds.LoadID, ds.Features)
	l.metrics.PublishedFeatures.Add(float64(n))
	if err != nil {
		l.metrics.PublishErrors.Inc()
		l.logger.Warn("publish dataset failed", "load_id", ds.LoadID, "error", err)
	}
}

// parse returns the accepted records and the number of data rows seen.
func parse(data []byte, strategy domain.ParserStrategy) ([]domain.Record, int) {
	if strategy == domain.ParserQuoted {
		rows := domain.ScanQuoted(data)
		return domain.RecordsFromRows(rows), max(len(rows)-1, 0)
	}
	text := string(data)
	return domain.SplitNaive(text), strings.Count(text, "\n")
}
