package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/poi-map/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	PublicURL       string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feeds. Activated and queued are optional.
	PrimaryFeedURL   string
	ActivatedFeedURL string
	QueuedFeedURL    string
	PrimaryParser    domain.ParserStrategy
	SecondaryParser  domain.ParserStrategy
	FeedCacheBust    bool
	FeedTimeout      time.Duration
	RefreshInterval  time.Duration

	// Map sessions.
	RecolorInterval time.Duration
	SessionTTL      time.Duration
	SessionCapacity int

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Load snapshot publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	MapConfigFile string
	Map           domain.MapDefaults
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s", false)
	if err != nil {
		return nil, err
	}
	feedTimeout, err := parseDuration("FEED_TIMEOUT", "30s", true)
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "0s", true)
	if err != nil {
		return nil, err
	}
	recolorInterval, err := parseDuration("RECOLOR_INTERVAL", "200ms", false)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parseDuration("SESSION_TTL", "30m", false)
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s", false)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		PublicURL:       strings.TrimRight(envOrDefault("PUBLIC_URL", "http://localhost:8080"), "/"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PrimaryFeedURL:   os.Getenv("PRIMARY_FEED_URL"),
		ActivatedFeedURL: os.Getenv("ACTIVATED_FEED_URL"),
		QueuedFeedURL:    os.Getenv("QUEUED_FEED_URL"),
		PrimaryParser:    domain.ParseParserStrategy(envOrDefault("PRIMARY_PARSER", "naive")),
		SecondaryParser:  domain.ParseParserStrategy(envOrDefault("SECONDARY_PARSER", "naive")),
		FeedCacheBust:    envOrDefault("FEED_CACHE_BUST", "true") == "true",
		FeedTimeout:      feedTimeout,
		RefreshInterval:  refreshInterval,

		RecolorInterval: recolorInterval,
		SessionTTL:      sessionTTL,
		SessionCapacity: parsePositiveInt("SESSION_CAPACITY", 10000),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parsePositiveInt("MAPBOX_CACHE_SIZE", 1000),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "poi-features"),

		MapConfigFile: os.Getenv("MAP_CONFIG_FILE"),
		Map:           domain.DefaultMapDefaults(),
	}

	if cfg.PrimaryFeedURL == "" {
		return nil, errors.New("PRIMARY_FEED_URL is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	if cfg.MapConfigFile != "" {
		m, err := LoadMapDefaults(cfg.MapConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Map = m
	}

	return cfg, nil
}

// LoadMapDefaults reads map presentation settings from a YAML file. Keys
// missing from the file keep the built-in defaults.
func LoadMapDefaults(path string) (domain.MapDefaults, error) {
	m := domain.DefaultMapDefaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read map config: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse map config: %w", err)
	}
	if m.ClusterMaxZoom < 0 || m.ClusterRadius <= 0 {
		return m, errors.New("map config: cluster_max_zoom must be >= 0 and cluster_radius > 0")
	}
	return m, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseDuration reads a duration variable. Negative values are rejected,
// and zero only when allowZero is false.
func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
