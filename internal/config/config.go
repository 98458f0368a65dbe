package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"HW_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"HW_DB_MAX_CONNS" default:"8"`

	// ClusterEpsilon is the bounding-box tolerance in degrees used to match
	// a submission against an existing pending cluster's anchor coordinate.
	ClusterEpsilon float64 `envconfig:"HW_CLUSTER_EPSILON" default:"0.001"`

	MediaDir        string `envconfig:"HW_MEDIA_DIR" default:"uploads"`
	MediaPathPrefix string `envconfig:"HW_MEDIA_PATH_PREFIX" default:"/uploads"`

	RateLimitWindow time.Duration `envconfig:"HW_RATE_LIMIT_WINDOW" default:"10m"`
	RateLimitMax    int           `envconfig:"HW_RATE_LIMIT_MAX" default:"5"`

	EnrichTimeout     time.Duration `envconfig:"HW_ENRICH_TIMEOUT" default:"15s"`
	EnrichRatePerSec  float64       `envconfig:"HW_ENRICH_RATE_PER_SEC" default:"4"`
	EnrichRateBurst   int           `envconfig:"HW_ENRICH_RATE_BURST" default:"8"`
	DisasterFeedTTL   time.Duration `envconfig:"HW_DISASTER_FEED_TTL" default:"10m"`
	SatelliteRadiusM  int           `envconfig:"HW_SATELLITE_RADIUS_M" default:"1000"`
	SatelliteBefore   string        `envconfig:"HW_SATELLITE_BEFORE" default:"-7d"`
	SatelliteAfter    string        `envconfig:"HW_SATELLITE_AFTER" default:"now"`
	SatelliteAPIKey   string        `envconfig:"SATELLITE_API_KEY" default:""`
	ConsistencyAPIURL string        `envconfig:"CONSISTENCY_API_URL" default:""`
	SatelliteAPIURL   string        `envconfig:"SATELLITE_API_URL" default:""`
	ChangeDetectURL   string        `envconfig:"CHANGE_DETECTION_API_URL" default:""`
	StylometryAPIURL  string        `envconfig:"STYLOMETRY_API_URL" default:""`
	DisasterFeedURL   string        `envconfig:"DISASTER_FEED_URL" default:""`
	ReasoningAPIURL   string        `envconfig:"REASONING_API_URL" default:""`

	KafkaBrokers    string `envconfig:"HW_KAFKA_BROKERS" default:""`
	KafkaEventTopic string `envconfig:"HW_KAFKA_EVENT_TOPIC" default:"hazard-report-events"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("HW_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("HW_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("HW_DB_MIN_CONNS (%d) cannot exceed HW_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ClusterEpsilon <= 0 {
		return fmt.Errorf("HW_CLUSTER_EPSILON must be > 0")
	}
	if strings.TrimSpace(c.MediaDir) == "" {
		return fmt.Errorf("HW_MEDIA_DIR is required")
	}
	if !strings.HasPrefix(c.MediaPathPrefix, "/") {
		return fmt.Errorf("HW_MEDIA_PATH_PREFIX must start with /")
	}
	if c.RateLimitWindow < time.Second {
		return fmt.Errorf("HW_RATE_LIMIT_WINDOW must be >= 1s")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("HW_RATE_LIMIT_MAX must be >= 1")
	}
	if c.EnrichTimeout < time.Second {
		return fmt.Errorf("HW_ENRICH_TIMEOUT must be >= 1s")
	}
	if c.EnrichRatePerSec <= 0 {
		return fmt.Errorf("HW_ENRICH_RATE_PER_SEC must be > 0")
	}
	if c.EnrichRateBurst < 1 {
		return fmt.Errorf("HW_ENRICH_RATE_BURST must be >= 1")
	}
	if c.SatelliteRadiusM < 1 {
		return fmt.Errorf("HW_SATELLITE_RADIUS_M must be >= 1")
	}
	return nil
}

// KafkaBrokerList splits HW_KAFKA_BROKERS into individual broker addresses.
// An empty list disables event publishing.
func (c *Config) KafkaBrokerList() []string {
	if c == nil {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		broker := strings.TrimSpace(part)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}
