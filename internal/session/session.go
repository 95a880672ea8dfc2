// Package session holds per-page map state: view options, the hovered
// feature, feature state, and the throttled cluster recolor.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/poi-map/internal/cluster"
	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrFeatureNotFound is returned for feature ids outside the dataset.
var ErrFeatureNotFound = errors.New("feature not found")

// FeatureState is the client-visible state of one feature.
type FeatureState struct {
	Hover bool `json:"hover"`
}

// Viewport is the result of a viewport change. RecolorPending is set when
// the recolor was throttled; the caller should ask again once the throttle
// window has passed.
type Viewport struct {
	Features       *geojson.FeatureCollection
	Recolored      bool
	RecolorPending bool
}

// Session is the state of one open map page.
type Session struct {
	ID      string
	Options domain.ViewOptions

	mu       sync.Mutex
	hovered  int
	hovering bool
	state    map[int]FeatureState

	throttle *Throttle
	colors   map[string]domain.ClusterColor
	colorsOf *cluster.Index

	logger  *slog.Logger
	metrics *observability.Metrics
}

// Hover marks id as hovered and clears the previous hover, if any. It
// returns the previously hovered id.
func (s *Session) Hover(id int) (prev int, hadPrev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev = s.hovered, s.hovering
	if hadPrev {
		s.setHover(prev, false)
	}
	s.hovered, s.hovering = id, true
	s.setHover(id, true)
	return prev, hadPrev
}

// Leave clears the current hover. It returns the id that was hovered.
func (s *Session) Leave() (prev int, hadPrev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hadPrev = s.hovered, s.hovering
	if hadPrev {
		s.setHover(prev, false)
	}
	s.hovered, s.hovering = 0, false
	return prev, hadPrev
}

// Hovered returns the hovered feature id.
func (s *Session) Hovered() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hovered, s.hovering
}

// State returns the feature state of id.
func (s *Session) State(id int) FeatureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[id]
}

func (s *Session) setHover(id int, on bool) {
	if on {
		s.state[id] = FeatureState{Hover: true}
		return
	}
	delete(s.state, id)
}

// Click hovers the feature and returns its popup.
func (s *Session) Click(idx *cluster.Index, id int) (domain.Popup, error) {
	f, ok := idx.Feature(id)
	if !ok {
		return domain.Popup{}, fmt.Errorf("%w: %d", ErrFeatureNotFound, id)
	}
	s.Hover(id)
	return domain.NewPopup(f)
}

// Viewport returns the clusters and points visible in bound at zoom. The
// cluster recolor runs at most once per throttle window; throttled calls
// reuse the last colors computed for the same dataset.
func (s *Session) Viewport(ctx context.Context, idx *cluster.Index, bound orb.Bound, zoom int) (Viewport, error) {
	if err := ctx.Err(); err != nil {
		return Viewport{}, err
	}
	clusters := idx.Clusters(bound, zoom, !s.Options.NoCluster)

	recolored := s.throttle.Allow()
	s.mu.Lock()
	defer s.mu.Unlock()

	if recolored {
		s.colors = cluster.Colors(idx, clusters, func(id string, err error) {
			s.metrics.ClusterLeafErrors.Inc()
			s.logger.Warn("cluster leaves lookup failed", "session", s.ID, "cluster_id", id, "error", err)
		})
		s.colorsOf = idx
		s.metrics.RecolorRuns.Inc()
	} else {
		s.metrics.RecolorThrottled.Inc()
		if s.colorsOf != idx {
			s.colors, s.colorsOf = nil, nil
		}
	}
	return Viewport{
		Features:       idx.Features(clusters, s.colors),
		Recolored:      recolored,
		RecolorPending: s.throttle.Pending(),
	}, nil
}
