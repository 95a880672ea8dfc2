package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// Registry holds open sessions. Idle sessions expire after the TTL and the
// least recently used are evicted at capacity.
type Registry struct {
	sessions        *expirable.LRU[string, *Session]
	recolorInterval time.Duration
	clock           clockwork.Clock
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewRegistry creates a registry.
func NewRegistry(capacity int, ttl, recolorInterval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Registry {
	r := &Registry{
		recolorInterval: recolorInterval,
		clock:           clock,
		logger:          logger,
		metrics:         metrics,
	}
	r.sessions = expirable.NewLRU[string, *Session](capacity, func(id string, _ *Session) {
		metrics.ActiveSessions.Dec()
		logger.Debug("session closed", "session", id)
	}, ttl)
	return r
}

// Create opens a session with the given view options.
func (r *Registry) Create(opts domain.ViewOptions) *Session {
	s := &Session{
		ID:       uuid.NewString(),
		Options:  opts,
		state:    make(map[int]FeatureState),
		throttle: NewThrottle(r.recolorInterval, r.clock),
		logger:   r.logger,
		metrics:  r.metrics,
	}
	r.sessions.Add(s.ID, s)
	r.metrics.ActiveSessions.Inc()
	r.logger.Debug("session opened", "session", s.ID)
	return s
}

// Get returns the session with id and refreshes its recency.
func (r *Registry) Get(id string) (*Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}
