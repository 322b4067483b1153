// Package config loads searchcore configuration from YAML files with
// SC_* environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the sustained requests per second allowed per client
	// address. Zero disables limiting.
	RateLimit   float64  `yaml:"rateLimit"`
	RateBurst   int      `yaml:"rateBurst"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// DatabaseConfig locates the index on disk. Mode is one of
// "create_or_open", "create_or_overwrite", "create" or "open".
type DatabaseConfig struct {
	Path string `yaml:"path"`
	Mode string `yaml:"mode"`
}

// IndexerConfig controls buffering, commit cadence, merging and the text
// analysis applied by the term generator.
type IndexerConfig struct {
	SegmentMaxSize         int64         `yaml:"segmentMaxSize"`
	CommitInterval         time.Duration `yaml:"commitInterval"`
	MaxSegmentsBeforeMerge int           `yaml:"maxSegmentsBeforeMerge"`
	Stemmer                string        `yaml:"stemmer"`
	StemStrategy           string        `yaml:"stemStrategy"`
	CJKNgram               bool          `yaml:"cjkNgram"`
}

type SearchConfig struct {
	DefaultLimit         int           `yaml:"defaultLimit"`
	MaxResults           int           `yaml:"maxResults"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxWildcardExpansion int           `yaml:"maxWildcardExpansion"`
	ReopenInterval       time.Duration `yaml:"reopenInterval"`
	WatchManifest        bool          `yaml:"watchManifest"`
}

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

type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	IndexComplete  string `yaml:"indexComplete"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateBurst:       20,
		},
		Database: DatabaseConfig{
			Path: "./data/index",
			Mode: "create_or_open",
		},
		Indexer: IndexerConfig{
			SegmentMaxSize:         64 << 20,
			CommitInterval:         5 * time.Second,
			MaxSegmentsBeforeMerge: 8,
			Stemmer:                "english",
			StemStrategy:           "some",
		},
		Search: SearchConfig{
			DefaultLimit:         10,
			MaxResults:           1000,
			Timeout:              2 * time.Second,
			MaxWildcardExpansion: 100,
			ReopenInterval:       10 * time.Second,
			WatchManifest:        true,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchcore",
			User:            "searchcore",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "searchcore-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				IndexComplete:  "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
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

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	switch c.Database.Mode {
	case "create_or_open", "create_or_overwrite", "create", "open":
	default:
		return fmt.Errorf("config: unknown database.mode %q", c.Database.Mode)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("config: search.defaultLimit must be in (0, maxResults]")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SC_DATABASE_MODE"); v != "" {
		cfg.Database.Mode = v
	}
	if v := os.Getenv("SC_INDEXER_STEMMER"); v != "" {
		cfg.Indexer.Stemmer = v
	}
	if v := os.Getenv("SC_INDEXER_COMMIT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.CommitInterval = d
		}
	}
	if v := os.Getenv("SC_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.Timeout = d
		}
	}
	if v := os.Getenv("SC_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = v == "true"
	}
	if v := os.Getenv("SC_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SC_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SC_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true"
	}
	if v := os.Getenv("SC_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SC_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = v == "true"
	}
	if v := os.Getenv("SC_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SC_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SC_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SC_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
