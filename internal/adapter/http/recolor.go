package http

import (
	"log/slog"
	"maps"
	"sync"

	"github.com/couchcryptid/poi-map/internal/cluster"
	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/couchcryptid/poi-map/internal/session"
)

// clusterColors recolors clusters for requests made outside a session. All
// such requests share one throttle; throttled requests get the colors last
// computed for the same index.
type clusterColors struct {
	throttle *session.Throttle
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	of     *cluster.Index
	colors map[string]domain.ClusterColor
}

func newClusterColors(throttle *session.Throttle, logger *slog.Logger, metrics *observability.Metrics) *clusterColors {
	return &clusterColors{throttle: throttle, logger: logger, metrics: metrics}
}

// lookup returns the colors of clusters and whether they were recomputed.
func (c *clusterColors) lookup(idx *cluster.Index, clusters []cluster.Cluster) (map[string]domain.ClusterColor, bool) {
	var fresh map[string]domain.ClusterColor
	recolored := c.throttle.Allow()
	if recolored {
		fresh = cluster.Colors(idx, clusters, func(id string, err error) {
			c.metrics.ClusterLeafErrors.Inc()
			c.logger.Warn("cluster leaves lookup failed", "cluster_id", id, "error", err)
		})
		c.metrics.RecolorRuns.Inc()
	} else {
		c.metrics.RecolorThrottled.Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.of != idx {
		c.of, c.colors = idx, make(map[string]domain.ClusterColor)
	}
	maps.Copy(c.colors, fresh)

	out := make(map[string]domain.ClusterColor, len(clusters))
	for _, cl := range clusters {
		if color, ok := c.colors[cl.ID]; ok {
			out[cl.ID] = color
		}
	}
	return out, recolored
}
