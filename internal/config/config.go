package config

import (
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	BGG      BGGConfig      `yaml:"bgg"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// BGGConfig tunes the remote catalog client. The defaults mirror the
// service's observed tolerance; lower the pacing values only in tests.
type BGGConfig struct {
	BaseURL        string        `yaml:"base_url"         env:"BGG_BASE_URL"         env-default:"https://boardgamegeek.com/xmlapi2"`
	UserAgent      string        `yaml:"user_agent"       env:"BGG_USER_AGENT"       env-default:"bggcatalog/1.0 (+https://example.local)"`
	RequestTimeout time.Duration `yaml:"request_timeout"  env:"BGG_REQUEST_TIMEOUT"  env-default:"60s"`

	// Generic transport retries: exponential 2^attempt seconds, capped.
	MaxRetries     int           `yaml:"max_retries"      env:"BGG_MAX_RETRIES"      env-default:"5"`
	MaxBackoff     time.Duration `yaml:"max_backoff"      env:"BGG_MAX_BACKOFF"      env-default:"60s"`

	// Rate-limit (429) retries: separate, larger budget.
	MaxRateRetries int `yaml:"max_rate_retries" env:"BGG_MAX_RATE_RETRIES" env-default:"20"`

	// Queued-collection (202) and queued-batch polling.
	MaxQueuedRetries int `yaml:"max_queued_retries" env:"BGG_MAX_QUEUED_RETRIES" env-default:"50"`
	MaxBatchRetries  int `yaml:"max_batch_retries"  env:"BGG_MAX_BATCH_RETRIES"  env-default:"10"`

	// Pacing after successful calls.
	ChunkPacing      time.Duration `yaml:"chunk_pacing"      env:"BGG_CHUNK_PACING"      env-default:"1s"`
	CollectionPacing time.Duration `yaml:"collection_pacing" env:"BGG_COLLECTION_PACING" env-default:"1500ms"`
}

// CatalogConfig holds refresh job defaults.
type CatalogConfig struct {
	DefaultTopN      int           `yaml:"default_top_n"     env:"CATALOG_DEFAULT_TOP_N"     env-default:"500"`
	DefaultBatchSize int           `yaml:"default_batch"     env:"CATALOG_DEFAULT_BATCH"     env-default:"20"`
	RanksURL         string        `yaml:"ranks_url"         env:"CATALOG_RANKS_URL"`
	ProgressInterval time.Duration `yaml:"progress_interval" env:"CATALOG_PROGRESS_INTERVAL" env-default:"500ms"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
