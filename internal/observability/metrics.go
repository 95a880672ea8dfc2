package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the map service.
type Metrics struct {
	// Feed loading metrics.
	FeedFetches      *prometheus.CounterVec   // labels: feed={primary,activated,queued}, outcome={success,error}
	FeedFetchSeconds *prometheus.HistogramVec // labels: feed
	RowsParsed       *prometheus.CounterVec   // labels: feed
	RowsDropped      *prometheus.CounterVec   // labels: feed
	LoadsCompleted   prometheus.Counter
	LoadErrors       prometheus.Counter
	FeaturesLoaded   *prometheus.GaugeVec // labels: status={activated,queued,default}
	InvalidFeatures  prometheus.Gauge

	// Cluster recolor metrics.
	RecolorRuns       prometheus.Counter
	RecolorThrottled  prometheus.Counter
	ClusterLeafErrors prometheus.Counter
	ActiveSessions    prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Snapshot publishing metrics.
	PublishedFeatures prometheus.Counter
	PublishErrors     prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.FeedFetches,
		m.FeedFetchSeconds,
		m.RowsParsed,
		m.RowsDropped,
		m.LoadsCompleted,
		m.LoadErrors,
		m.FeaturesLoaded,
		m.InvalidFeatures,
		m.RecolorRuns,
		m.RecolorThrottled,
		m.ClusterLeafErrors,
		m.ActiveSessions,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.PublishedFeatures,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they like without "already registered" panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "feed_fetches_total",
			Help:      help("Feed fetches by feed and outcome."),
		}, []string{"feed", "outcome"}),
		FeedFetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "poimap",
			Name:      "feed_fetch_duration_seconds",
			Help:      help("Duration of a single feed fetch."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"feed"}),
		RowsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "rows_parsed_total",
			Help:      help("CSV rows accepted as records."),
		}, []string{"feed"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "rows_dropped_total",
			Help:      help("CSV lines that did not fit the header."),
		}, []string{"feed"}),
		LoadsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "loads_completed_total",
			Help:      help("Dataset loads that published a snapshot."),
		}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "load_errors_total",
			Help:      help("Dataset loads aborted by a fetch failure."),
		}),
		FeaturesLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "poimap",
			Name:      "features_loaded",
			Help:      help("Features in the current snapshot by status."),
		}, []string{"status"}),
		InvalidFeatures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poimap",
			Name:      "features_invalid_coordinates",
			Help:      help("Primary records left out of the map for lack of coordinates."),
		}),
		RecolorRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "cluster_recolor_runs_total",
			Help:      help("Cluster recolor passes executed."),
		}),
		RecolorThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "cluster_recolor_throttled_total",
			Help:      help("Viewport events dropped by the recolor throttle."),
		}),
		ClusterLeafErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "cluster_leaf_errors_total",
			Help:      help("Cluster leaf lookups that failed; the cluster kept its color."),
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "poimap",
			Name:      "sessions_active",
			Help:      help("Map sessions currently held."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "geocode_requests_total",
			Help:      help("Geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		PublishedFeatures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "published_features_total",
			Help:      help("Classified features written to Kafka."),
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "poimap",
			Name:      "publish_errors_total",
			Help:      help("Snapshot publishes that failed."),
		}),
	}
}
