package session

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r, metrics := newTestRegistry(clockwork.NewFakeClock())
	opts := domain.ViewOptions{Zoom: 7, Geocoder: true}

	s := r.Create(opts)
	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, opts, got.Options)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := newTestRegistry(clockwork.NewFakeClock())

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_EvictsAtCapacity(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	r := NewRegistry(2, time.Hour, time.Millisecond, clockwork.NewFakeClock(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)

	first := r.Create(domain.ViewOptions{})
	r.Create(domain.ViewOptions{})
	r.Create(domain.ViewOptions{})

	_, err := r.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestRegistry_Expires(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	r := NewRegistry(10, 20*time.Millisecond, time.Millisecond, clockwork.NewRealClock(),
		slog.New(slog.NewTextHandler(io.Discard, nil)), metrics)

	s := r.Create(domain.ViewOptions{})

	assert.Eventually(t, func() bool {
		_, err := r.Get(s.ID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}
