package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Redis      RedisConfig      `mapstructure:"redis"`
	DLQ        DLQConfig        `mapstructure:"dlq"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SourceConfig describes the feed being ingested.
type SourceConfig struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	Format   string `mapstructure:"format"` // csv or json
	APIKey   string `mapstructure:"api_key"`
	Country  string `mapstructure:"country"`
	PageSize int    `mapstructure:"page_size"`
}

type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	RetryAfterFallback time.Duration `mapstructure:"retry_after_fallback"`
}

type OpenSearchConfig struct {
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	Index         string `mapstructure:"index"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Backend  string `mapstructure:"backend"` // file or jetstream
	BasePath string `mapstructure:"base_path"`
	NatsURL  string `mapstructure:"nats_url"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("source.name", "phishtank")
	v.SetDefault("source.url", "https://data.phishtank.com/data/online-valid.csv")
	v.SetDefault("source.format", "csv")
	v.SetDefault("source.country", "us")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base", "2s")
	v.SetDefault("http.retry_after_fallback", "60s")
	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.tls_skip_verify", true)
	v.SetDefault("opensearch.index", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("dlq.enabled", true)
	v.SetDefault("dlq.backend", "file")
	v.SetDefault("dlq.base_path", "dlq")
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")
	v.SetDefault("catalog.path", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/feedbridge")
	}

	// Environment variables override: source.api_key -> FEEDBRIDGE_SOURCE_API_KEY
	v.SetEnvPrefix("FEEDBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Index returns the configured store index, or a per-source default.
func (c *Config) Index() string {
	if c.OpenSearch.Index != "" {
		return c.OpenSearch.Index
	}
	return "feedbridge-" + c.Source.Name
}

// Validate checks pre-flight requirements. A JSON feed without an API key
// is a configuration error, not a runtime failure.
func (c *Config) Validate() error {
	switch c.Source.Format {
	case "csv", "json":
	default:
		return fmt.Errorf("unsupported source format %q (expected csv or json)", c.Source.Format)
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source url is required")
	}
	if c.Source.Format == "json" && c.Source.APIKey == "" {
		return fmt.Errorf("api key is required for source %q", c.Source.Name)
	}
	if c.HTTP.MaxRetries < 1 {
		return fmt.Errorf("http.max_retries must be at least 1")
	}
	switch c.DLQ.Backend {
	case "file", "jetstream":
	default:
		return fmt.Errorf("unknown dlq backend %q (supported: file, jetstream)", c.DLQ.Backend)
	}
	return nil
}
