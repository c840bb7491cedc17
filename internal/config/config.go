// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Data     DataConfig     `mapstructure:"data"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Features FeaturesConfig `mapstructure:"features"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DataConfig sets archive and staging locations under the data directory.
type DataConfig struct {
	Dir              string `mapstructure:"dir"`
	EOLArchive       string `mapstructure:"eol_archive"`
	EOLStaging       string `mapstructure:"eol_staging"`
	FeaturesArchive  string `mapstructure:"features_archive"`
	FeaturesStaging  string `mapstructure:"features_staging"`
	CatalogFile      string `mapstructure:"catalog_file"`
	CompressionLevel int    `mapstructure:"compression_level"`
}

// RefreshConfig governs the background index refresh cadence.
type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ScrapeConfig governs the support-site scrape job.
type ScrapeConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	ProductsURL      string        `mapstructure:"products_url"`
	AllowedDomains   []string      `mapstructure:"allowed_domains"`
	UserAgent        string        `mapstructure:"user_agent"`
	Concurrency      int           `mapstructure:"concurrency"`
	Delay            time.Duration `mapstructure:"delay"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	SeriesSuffix     string        `mapstructure:"series_suffix"`
	EOLListingSuffix string        `mapstructure:"eol_listing_suffix"`
	FNListingSuffix  string        `mapstructure:"fn_listing_suffix"`
}

// FeaturesConfig governs the Feature Navigator fetch job and extraction cache.
type FeaturesConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	Concurrency    int           `mapstructure:"concurrency"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HashSize       int           `mapstructure:"hash_size"`
	CacheEntries   int           `mapstructure:"cache_entries"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEVICEINSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.development", false)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.eol_archive", "eol_data.tar.gz")
	v.SetDefault("data.eol_staging", "eol_staging")
	v.SetDefault("data.features_archive", "features.tar.gz")
	v.SetDefault("data.features_staging", "features_staging")
	v.SetDefault("data.catalog_file", "products_by_category.json")
	v.SetDefault("data.compression_level", 9)
	v.SetDefault("refresh.interval", "1h")
	v.SetDefault("scrape.enabled", true)
	v.SetDefault("scrape.base_url", "https://www.cisco.com")
	v.SetDefault("scrape.products_url", "https://www.cisco.com/c/en/us/support/all-products.html")
	v.SetDefault("scrape.allowed_domains", []string{"www.cisco.com"})
	v.SetDefault("scrape.user_agent", "DeviceInsights/1.0 (+https://github.com/ciscoinsights/device-insights)")
	v.SetDefault("scrape.concurrency", 10)
	v.SetDefault("scrape.delay", "500ms")
	v.SetDefault("scrape.request_timeout", "30s")
	v.SetDefault("scrape.series_suffix", "series.html")
	v.SetDefault("scrape.eol_listing_suffix", "eos-eol-notice-listing.html")
	v.SetDefault("scrape.fn_listing_suffix", "products-field-notices-list.html")
	v.SetDefault("features.enabled", true)
	v.SetDefault("features.base_url", "https://cfnngws.cisco.com/api")
	v.SetDefault("features.concurrency", 5)
	v.SetDefault("features.request_delay", "500ms")
	v.SetDefault("features.request_timeout", "30s")
	v.SetDefault("features.hash_size", 3)
	v.SetDefault("features.cache_entries", 128)
	v.SetDefault("features.max_retries", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if lvl := c.Data.CompressionLevel; lvl != -1 && (lvl < 1 || lvl > 9) {
		return fmt.Errorf("data.compression_level must be -1 or in 1..9")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be > 0")
	}
	if c.Scrape.Enabled {
		if len(c.Scrape.AllowedDomains) == 0 {
			return fmt.Errorf("scrape.allowed_domains must be set when scraping is enabled")
		}
		if c.Scrape.Concurrency <= 0 {
			return fmt.Errorf("scrape.concurrency must be > 0")
		}
	}
	if c.Features.Enabled && c.Features.Concurrency <= 0 {
		return fmt.Errorf("features.concurrency must be > 0")
	}
	if c.Features.HashSize < 1 || c.Features.HashSize > 64 {
		return fmt.Errorf("features.hash_size must be in 1..64")
	}
	if c.Features.CacheEntries < 1 {
		return fmt.Errorf("features.cache_entries must be > 0")
	}
	return nil
}

// EOLArchivePath is the full path of the product alerts archive.
func (c Config) EOLArchivePath() string {
	return filepath.Join(c.Data.Dir, c.Data.EOLArchive)
}

// EOLStagingPath is the staging directory for the product alerts archive.
func (c Config) EOLStagingPath() string {
	return filepath.Join(c.Data.Dir, c.Data.EOLStaging)
}

// FeaturesArchivePath is the full path of the feature archive.
func (c Config) FeaturesArchivePath() string {
	return filepath.Join(c.Data.Dir, c.Data.FeaturesArchive)
}

// FeaturesStagingPath is the staging directory for the feature archive.
func (c Config) FeaturesStagingPath() string {
	return filepath.Join(c.Data.Dir, c.Data.FeaturesStaging)
}

// CatalogPath is the full path of the product category catalog file.
func (c Config) CatalogPath() string {
	return filepath.Join(c.Data.Dir, c.Data.CatalogFile)
}
