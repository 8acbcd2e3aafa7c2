// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Store, Geocoder, Indexer, the
// index sources, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	Geocoder  GeocoderConfig  `yaml:"geocoder"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Sources   []SourceConfig  `yaml:"sources"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RPCPort         int           `yaml:"rpcPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	FeatureIngest   string `yaml:"featureIngest"`
	IndexComplete   string `yaml:"indexComplete"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
	QueryEvents     string `yaml:"queryEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// StoreConfig selects the shard store backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"` // memory | badger
	DataDir   string `yaml:"dataDir"`
	Shards    int    `yaml:"shards"`
	CacheSize int    `yaml:"cacheSize"`
}

// GeocoderConfig controls forward geocode limits and the coalesce path.
type GeocoderConfig struct {
	MaxQueryChars   int           `yaml:"maxQueryChars"`
	MaxQueryTokens  int           `yaml:"maxQueryTokens"`
	StackableLimit  int           `yaml:"stackableLimit"`
	StackLimit      int           `yaml:"stackLimit"`
	ProximityRadius float64       `yaml:"proximityRadius"`
	Concurrency     int           `yaml:"concurrency"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxLimit        int           `yaml:"maxLimit"`
	Timeout         time.Duration `yaml:"timeout"`
	// RemoteCoalesce is the gridserver address; empty coalesces in process.
	RemoteCoalesce string `yaml:"remoteCoalesce"`
}

// IndexerConfig controls the indexing worker pool and flush cadence.
type IndexerConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	MaxSynonyms   int           `yaml:"maxSynonyms"`
}

// SourceConfig describes one index.
type SourceConfig struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Zoom  int    `yaml:"zoom"`
	// Version is the housenumber token version; 0 means the current one.
	Version      int      `yaml:"version"`
	ScoreFactor  float64  `yaml:"scoreFactor"`
	Address      bool     `yaml:"address"`
	Intersection string   `yaml:"intersection"`
	Frequent     []string `yaml:"frequentWords"`
	// BMask lists source names this source never stacks with.
	BMask []string `yaml:"bmask"`
	// NMask groups sources that exclude each other.
	NMask uint32 `yaml:"nmask"`
}

// AnalyticsConfig controls query event batching and snapshotting.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	TopN             int           `yaml:"topN"`
}

// AuthConfig guards write and admin endpoints with API keys kept in
// PostgreSQL.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaxSources is the number of sources a deployment may index. A source
// index occupies the 7 bits above the 25-bit feature id of a coalesce TmpID.
const MaxSources = 128

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the source list and store selection.
func (c *Config) Validate() error {
	if len(c.Sources) > MaxSources {
		return apperrors.InvalidArgumentf("%d sources configured, limit %d", len(c.Sources), MaxSources)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return apperrors.InvalidArgumentf("unknown logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return apperrors.InvalidArgumentf("unknown logging format %q", c.Logging.Format)
	}
	switch c.Store.Backend {
	case "memory", "badger":
	default:
		return apperrors.InvalidArgumentf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "badger" && c.Store.DataDir == "" {
		return apperrors.InvalidArgumentf("store.dataDir is required for the badger backend")
	}
	if c.Auth.Enabled && !c.Postgres.Enabled {
		return apperrors.InvalidArgumentf("auth requires postgres")
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Name == "" {
			return apperrors.InvalidArgumentf("source %d has no name", i)
		}
		if seen[s.Name] {
			return apperrors.InvalidArgumentf("duplicate source %q", s.Name)
		}
		seen[s.Name] = true
		if s.Zoom < 0 || s.Zoom > 14 {
			return apperrors.InvalidArgumentf("source %q zoom %d outside 0-14", s.Name, s.Zoom)
		}
	}
	for _, s := range c.Sources {
		for _, other := range s.BMask {
			if !seen[other] {
				return apperrors.InvalidArgumentf("source %q bmask names unknown source %q", s.Name, other)
			}
		}
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			RPCPort:         9100,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "geocoder",
			User:            "geocoder",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "geocoder-indexer",
			Topics: KafkaTopics{
				FeatureIngest:   "feature-ingest",
				IndexComplete:   "index.complete",
				CacheInvalidate: "cache-invalidate",
				QueryEvents:     "geocode-queries",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Store: StoreConfig{
			Backend:   "memory",
			Shards:    16,
			CacheSize: 100_000,
		},
		Geocoder: GeocoderConfig{
			MaxQueryChars:   256,
			MaxQueryTokens:  20,
			StackableLimit:  100,
			StackLimit:      30,
			ProximityRadius: 200,
			Concurrency:     8,
			DefaultLimit:    5,
			MaxLimit:        10,
			Timeout:         5 * time.Second,
		},
		Indexer: IndexerConfig{
			Workers:       8,
			BatchSize:     500,
			FlushInterval: 10 * time.Second,
			MaxSynonyms:   10,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			TopN:             10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads GEO_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("GEO_SERVER_PORT", &cfg.Server.Port)
	setInt("GEO_SERVER_RPC_PORT", &cfg.Server.RPCPort)
	setInt("GEO_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	setBool("GEO_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setString("GEO_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("GEO_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("GEO_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("GEO_POSTGRES_USER", &cfg.Postgres.User)
	setString("GEO_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("GEO_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	setBool("GEO_KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := os.Getenv("GEO_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setBool("GEO_REDIS_ENABLED", &cfg.Redis.Enabled)
	setString("GEO_REDIS_ADDR", &cfg.Redis.Addr)
	setString("GEO_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("GEO_STORE_BACKEND", &cfg.Store.Backend)
	setString("GEO_STORE_DATA_DIR", &cfg.Store.DataDir)
	setInt("GEO_STORE_SHARDS", &cfg.Store.Shards)
	setString("GEO_GEOCODER_REMOTE_COALESCE", &cfg.Geocoder.RemoteCoalesce)
	setInt("GEO_GEOCODER_CONCURRENCY", &cfg.Geocoder.Concurrency)
	setInt("GEO_INDEXER_WORKERS", &cfg.Indexer.Workers)
	setBool("GEO_ANALYTICS_ENABLED", &cfg.Analytics.Enabled)
	setBool("GEO_AUTH_ENABLED", &cfg.Auth.Enabled)
	setString("GEO_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("GEO_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("GEO_METRICS_PORT", &cfg.Metrics.Port)
}
