package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	SourcesFile    string `mapstructure:"sources_file"`
	SinksFile      string `mapstructure:"sinks_file"`
	IngestSchedule string `mapstructure:"ingest_schedule"`
	Query          string `mapstructure:"query"`
	PageSize       int    `mapstructure:"page_size"`
	Workers        int    `mapstructure:"workers"`

	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	RetryMaxAttempts    int     `mapstructure:"retry_max_attempts"`

	CacheType        string        `mapstructure:"cache_type"`
	BBoltPath        string        `mapstructure:"bbolt_path"`
	RedisURL         string        `mapstructure:"redis_url"`
	CacheTTLSeconds  int64         `mapstructure:"cache_ttl_seconds"`
	CacheTTL         time.Duration `mapstructure:"-"`
	BatchTimeoutSecs int64         `mapstructure:"batch_timeout_seconds"`
	BatchTimeout     time.Duration `mapstructure:"-"`

	StoreType   string `mapstructure:"store_type"`
	PostgresDSN string `mapstructure:"postgres_dsn"`

	EnrichArticles bool `mapstructure:"enrich_articles"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "newsfuse-ingest")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("sinks_file", "./configs/sinks.yaml")
	v.SetDefault("ingest_schedule", "@every 15m")
	v.SetDefault("query", "")
	v.SetDefault("page_size", 50)
	v.SetDefault("workers", 4)
	v.SetDefault("similarity_threshold", 0.8)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("cache_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/cache.db")
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl_seconds", int64((15*time.Minute)/time.Second))
	v.SetDefault("batch_timeout_seconds", int64((2*time.Minute)/time.Second))
	v.SetDefault("store_type", "none")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("enrich_articles", false)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("invalid page_size (must be positive)")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("invalid workers (must be positive)")
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("invalid similarity_threshold (must be in (0, 1])")
	}
	if cfg.RetryMaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid retry_max_attempts (must be positive)")
	}
	if cfg.CacheTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid cache_ttl_seconds (must be positive seconds)")
	}
	if cfg.BatchTimeoutSecs <= 0 {
		return nil, fmt.Errorf("invalid batch_timeout_seconds (must be positive seconds)")
	}
	cfg.CacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	cfg.BatchTimeout = time.Duration(cfg.BatchTimeoutSecs) * time.Second

	return &cfg, nil
}
