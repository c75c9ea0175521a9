// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Store, Redis, Kafka, Similarity, Filters, Pool, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Similarity SimilarityConfig `yaml:"similarity"`
	Filters    FiltersConfig    `yaml:"filters"`
	Pool       PoolConfig       `yaml:"pool"`
	Retry      RetryConfig      `yaml:"retry"`
	Memory     MemoryConfig     `yaml:"memory"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. MatchRateLimit is the number of
// match requests one client may send per minute; zero disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	MaxRequestBytes int64         `yaml:"maxRequestBytes"`
	MatchRateLimit  int           `yaml:"matchRateLimit"`
	AllowOrigins    []string      `yaml:"allowOrigins"`
}

// StoreConfig selects the persistence backend: memory, postgres or sqlite.
type StoreConfig struct {
	Driver         string        `yaml:"driver"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// SQLiteConfig points at the local database file used by the sqlite driver.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds Kafka broker and topic settings. BatchSize and
// FlushInterval bound how long published results sit in the serve
// command's buffer.
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topics        KafkaTopics   `yaml:"topics"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	MatchRequests string `yaml:"matchRequests"`
	MatchResults  string `yaml:"matchResults"`
}

// RedisConfig holds Redis connection and match-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// SimilarityConfig controls match selection.
type SimilarityConfig struct {
	Threshold float64 `yaml:"threshold"`
	TopK      int     `yaml:"topK"`
}

// FiltersConfig controls candidate pre-filtering.
type FiltersConfig struct {
	Mode                   string  `yaml:"mode"`
	NumHashes              int     `yaml:"numHashes"`
	Bands                  int     `yaml:"bands"`
	BloomFalsePositiveRate float64 `yaml:"bloomFalsePositiveRate"`
}

// PoolConfig controls the scoring worker pool. Size 0 derives the worker
// count from the available CPUs.
type PoolConfig struct {
	Disabled     bool          `yaml:"disabled"`
	Size         int           `yaml:"size"`
	RestartDelay time.Duration `yaml:"restartDelay"`
}

// RetryConfig controls backoff for persistence calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// MemoryConfig controls cache clearing under memory pressure and the
// cooperative yield during bulk loops.
type MemoryConfig struct {
	MaxHeapBytes  uint64        `yaml:"maxHeapBytes"`
	CheckInterval time.Duration `yaml:"checkInterval"`
	Backoff       time.Duration `yaml:"backoff"`
	YieldEvery    int           `yaml:"yieldEvery"`
}

// IngestConfig bounds accepted body lengths during CSV ingestion.
type IngestConfig struct {
	MinBodyLength int `yaml:"minBodyLength"`
	MaxBodyLength int `yaml:"maxBodyLength"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
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

// Default returns a Config suitable for local runs with the in-memory store.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  4 * time.Minute,
			MaxRequestBytes: 64 << 20,
			MatchRateLimit:  30,
		},
		Store: StoreConfig{
			Driver:         "memory",
			PersistTimeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "linksuggest",
			User:            "linksuggest",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "linksuggest.db",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "linksuggest-group",
			Topics: KafkaTopics{
				MatchRequests: "match-requests",
				MatchResults:  "match-results",
			},
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 24 * time.Hour,
		},
		Similarity: SimilarityConfig{
			Threshold: 0.02,
			TopK:      5,
		},
		Filters: FiltersConfig{
			Mode:                   "any",
			NumHashes:              128,
			Bands:                  16,
			BloomFalsePositiveRate: 0.01,
		},
		Pool: PoolConfig{
			RestartDelay: 100 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		Memory: MemoryConfig{
			MaxHeapBytes:  2 << 30,
			CheckInterval: 5 * time.Second,
			Backoff:       250 * time.Millisecond,
			YieldEvery:    100,
		},
		Ingest: IngestConfig{
			MinBodyLength: 10,
			MaxBodyLength: 1 << 20,
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

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Similarity.Threshold < -1 || c.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be within [-1, 1], got %v", c.Similarity.Threshold)
	}
	if c.Similarity.TopK < 1 {
		return fmt.Errorf("similarity.topK must be positive, got %d", c.Similarity.TopK)
	}
	if c.Filters.NumHashes <= 0 || c.Filters.Bands <= 0 || c.Filters.NumHashes%c.Filters.Bands != 0 {
		return fmt.Errorf("filters.bands (%d) must divide filters.numHashes (%d)", c.Filters.Bands, c.Filters.NumHashes)
	}
	if p := c.Filters.BloomFalsePositiveRate; !(p > 0 && p < 1) {
		return fmt.Errorf("filters.bloomFalsePositiveRate must be within (0, 1), got %v", p)
	}
	switch c.Store.Driver {
	case "memory", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Pool.Size < 0 {
		return fmt.Errorf("pool.size must not be negative, got %d", c.Pool.Size)
	}
	return nil
}

// applyEnvOverrides reads LS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("LS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("LS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("LS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("LS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("LS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("LS_SQLITE_PATH"); v != "" {
		cfg.SQLite.Path = v
	}
	if v := os.Getenv("LS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("LS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("LS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LS_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Similarity.Threshold = f
		}
	}
	if v := os.Getenv("LS_SIMILARITY_TOPK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Similarity.TopK = k
		}
	}
	if v := os.Getenv("LS_FILTERS_MODE"); v != "" {
		cfg.Filters.Mode = v
	}
	if v := os.Getenv("LS_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Size = n
		}
	}
	if v := os.Getenv("LS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
