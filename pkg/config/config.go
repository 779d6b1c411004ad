// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Engine, Search, Redis, Kafka, Postgres, etc.).
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
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Search    SearchConfig    `yaml:"search"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. WriteTimeout must exceed the
// engine's run timeout or long indexing requests are cut off.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	SearchTimeout   time.Duration `yaml:"searchTimeout"`
	Console         bool          `yaml:"console"`
}

// MaxResultsLimit is the largest accepted engine.maxResults.
const MaxResultsLimit = 10

// EngineConfig controls the indexing pool, the run deadline and which files
// are indexed.
type EngineConfig struct {
	Workers     int           `yaml:"workers"`
	RunTimeout  time.Duration `yaml:"runTimeout"`
	Extensions  []string      `yaml:"extensions"`
	StoreShards int           `yaml:"storeShards"`
	MaxResults  int           `yaml:"maxResults"`
}

// SearchConfig controls query evaluation.
type SearchConfig struct {
	// RequireAllTerms drops documents missing any query term before
	// ranking. Off by default: scores are summed over whichever terms match.
	RequireAllTerms bool `yaml:"requireAllTerms"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run log.
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
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters. When Redis is
// disabled or unreachable, search results are cached in process with an
// LRU of LRUSize entries instead.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	LRUSize  int           `yaml:"lruSize"`
}

// RateLimitConfig bounds how often one client may start an indexing run.
type RateLimitConfig struct {
	IndexRequests int           `yaml:"indexRequests"`
	Window        time.Duration `yaml:"window"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls whether per-run span trees are logged.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// legacyConfig is the flat JSON layout of older deployments:
//
//	{"num_worker_threads": 8, "rest_endpoint_port": 8080}
//
// JSON is valid YAML, so the same bytes are decoded into both structs.
type legacyConfig struct {
	NumWorkerThreads *int `yaml:"num_worker_threads"`
	RestEndpointPort *int `yaml:"rest_endpoint_port"`
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
		var legacy legacyConfig
		if err := yaml.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		applyLegacy(cfg, legacy)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with. Worker counts are not
// checked: the engine clamps them to at least one.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Engine.RunTimeout <= 0 {
		return fmt.Errorf("engine.runTimeout must be positive, got %s", c.Engine.RunTimeout)
	}
	if len(c.Engine.Extensions) == 0 {
		return fmt.Errorf("engine.extensions must list at least one extension")
	}
	if c.Engine.MaxResults <= 0 || c.Engine.MaxResults > MaxResultsLimit {
		return fmt.Errorf("engine.maxResults must be between 1 and %d, got %d", MaxResultsLimit, c.Engine.MaxResults)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			SearchTimeout:   10 * time.Second,
			Console:         true,
		},
		Engine: DefaultEngineConfig(),
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "fileretrieval",
			User:            "fileretrieval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "fre-events-tail",
			Topics: KafkaTopics{
				AnalyticsEvents: "file-retrieval-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
			LRUSize:  1024,
		},
		RateLimit: RateLimitConfig{
			IndexRequests: 6,
			Window:        time.Minute,
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

// DefaultEngineConfig returns the engine defaults: four workers, a 60 second
// run deadline, .txt files only and at most ten results per query.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:     4,
		RunTimeout:  60 * time.Second,
		Extensions:  []string{".txt"},
		StoreShards: 64,
		MaxResults:  MaxResultsLimit,
	}
}

func applyLegacy(cfg *Config, legacy legacyConfig) {
	if legacy.NumWorkerThreads != nil {
		cfg.Engine.Workers = *legacy.NumWorkerThreads
	}
	if legacy.RestEndpointPort != nil {
		cfg.Server.Port = *legacy.RestEndpointPort
	}
}

// applyEnvOverrides reads FRE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FRE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FRE_ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Workers = n
		}
	}
	if v := os.Getenv("FRE_ENGINE_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RunTimeout = d
		}
	}
	if v := os.Getenv("FRE_ENGINE_EXTENSIONS"); v != "" {
		cfg.Engine.Extensions = strings.Split(v, ",")
	}
	if v := os.Getenv("FRE_SEARCH_REQUIRE_ALL_TERMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Search.RequireAllTerms = b
		}
	}
	if v := os.Getenv("FRE_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("FRE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FRE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FRE_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FRE_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FRE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FRE_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("FRE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FRE_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("FRE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FRE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FRE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FRE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FRE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
