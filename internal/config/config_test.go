package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFeedURL     = "https://example.com/POIdb.csv"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PRIMARY_FEED_URL", testFeedURL)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, testFeedURL, cfg.PrimaryFeedURL)
	assert.Empty(t, cfg.ActivatedFeedURL)
	assert.Empty(t, cfg.QueuedFeedURL)
	assert.Equal(t, domain.ParserNaive, cfg.PrimaryParser)
	assert.Equal(t, domain.ParserNaive, cfg.SecondaryParser)
	assert.True(t, cfg.FeedCacheBust)
	assert.Equal(t, 30*time.Second, cfg.FeedTimeout)
	assert.Zero(t, cfg.RefreshInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.RecolorInterval)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10000, cfg.SessionCapacity)
	assert.False(t, cfg.MapboxEnabled)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "poi-features", cfg.KafkaTopic)
	assert.Equal(t, domain.DefaultMapDefaults(), cfg.Map)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("PRIMARY_FEED_URL", testFeedURL)
	t.Setenv("ACTIVATED_FEED_URL", "https://example.com/activated.csv")
	t.Setenv("QUEUED_FEED_URL", "https://example.com/queued.csv")
	t.Setenv("PRIMARY_PARSER", "quoted")
	t.Setenv("FEED_CACHE_BUST", "false")
	t.Setenv("FEED_TIMEOUT", "0s")
	t.Setenv("REFRESH_INTERVAL", "5m")
	t.Setenv("RECOLOR_INTERVAL", "100ms")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("PUBLIC_URL", "https://map.example.com/")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/activated.csv", cfg.ActivatedFeedURL)
	assert.Equal(t, "https://example.com/queued.csv", cfg.QueuedFeedURL)
	assert.Equal(t, domain.ParserQuoted, cfg.PrimaryParser)
	assert.False(t, cfg.FeedCacheBust)
	assert.Zero(t, cfg.FeedTimeout)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.RecolorInterval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "https://map.example.com", cfg.PublicURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_MissingPrimaryFeed(t *testing.T) {
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIMARY_FEED_URL")
}

func TestLoad_InvalidDurations(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"RECOLOR_INTERVAL", "0s"},
		{"FEED_TIMEOUT", "-5s"},
		{"REFRESH_INTERVAL", "soon"},
		{"MAPBOX_TIMEOUT", "bad"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("PRIMARY_FEED_URL", testFeedURL)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("PRIMARY_FEED_URL", testFeedURL)
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("PRIMARY_FEED_URL", testFeedURL)
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("PRIMARY_FEED_URL", testFeedURL)
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoadMapDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte("style: light-v10\ncenter: [2.35, 48.85]\nzoom: 6\n"), 0o600))

	m, err := LoadMapDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, "light-v10", m.Style)
	assert.Equal(t, orb.Point{2.35, 48.85}, m.Center)
	assert.Equal(t, 6.0, m.Zoom)
	assert.Equal(t, 22, m.ClusterRadius, "unset keys keep defaults")
	assert.Equal(t, 12, m.ClusterMaxZoom)
}

func TestLoadMapDefaults_Errors(t *testing.T) {
	_, err := LoadMapDefaults(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read map config")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("center: [1, 2, 3]\n"), 0o600))
	_, err = LoadMapDefaults(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse map config")
}

func TestLoad_MapConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cluster_radius: 40\n"), 0o600))
	t.Setenv("PRIMARY_FEED_URL", testFeedURL)
	t.Setenv("MAP_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Map.ClusterRadius)
}
