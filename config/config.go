package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DefaultAllowedZips are the Texas postal codes the dashboard monitors.
var DefaultAllowedZips = []string{
	"77546", "77573", "77574", "77581", "77089", "77598",
	"77539", "77517", "77511", "77062", "77058",
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	ListingsPath string   `envconfig:"LISTINGS_CSV" default:"real_estate_broker_data_texas.csv"`
	StatsPath    string   `envconfig:"STATS_CSV" default:"real_estate_stats_texas.csv"`
	AllowedZips  []string `envconfig:"ALLOWED_ZIPS" default:"77546,77573,77574,77581,77089,77598,77539,77517,77511,77062,77058"`
	BrokerID     string   `envconfig:"BROKER_ID" default:"53016"`

	HTTPAddr       string  `envconfig:"HTTP_ADDR" default:":8050"`
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	TopN           int     `envconfig:"TOP_N" default:"7"`
	HistogramBins  int     `envconfig:"HISTOGRAM_BINS" default:"12"`
	PreviewRows    int     `envconfig:"PREVIEW_ROWS" default:"10"`
	MaxUploadBytes int64   `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	UploadRPS      float64 `envconfig:"UPLOAD_RPS" default:"2"`
	UploadBurst    int     `envconfig:"UPLOAD_BURST" default:"4"`

	MaxConcurrency int `envconfig:"MAX_CONCURRENCY" default:"3"`
	MaxRetries     int `envconfig:"MAX_RETRIES" default:"3"`

	SnapshotEnabled  bool   `envconfig:"SNAPSHOT_ENABLED" default:"false"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"monitor"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"monitor123"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"market_db"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// Load reads the .env file, then the process environment, and returns a
// validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no view can work with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.AllowedZips) == 0 {
		errs = append(errs, errors.New("ALLOWED_ZIPS must list at least one code"))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("TOP_N must be positive, got %d", c.TopN))
	}
	if c.HistogramBins <= 0 {
		errs = append(errs, fmt.Errorf("HISTOGRAM_BINS must be positive, got %d", c.HistogramBins))
	}
	if c.PreviewRows <= 0 {
		errs = append(errs, fmt.Errorf("PREVIEW_ROWS must be positive, got %d", c.PreviewRows))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}
