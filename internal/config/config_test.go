package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Refresh.Interval != time.Hour {
		t.Fatalf("expected default refresh interval 1h, got %v", cfg.Refresh.Interval)
	}
	if cfg.Data.CompressionLevel != 9 {
		t.Fatalf("expected default compression level 9, got %d", cfg.Data.CompressionLevel)
	}
	if cfg.Features.HashSize != 3 || cfg.Features.CacheEntries != 128 {
		t.Fatalf("expected feature defaults 3/128, got %d/%d", cfg.Features.HashSize, cfg.Features.CacheEntries)
	}
	if got := cfg.EOLArchivePath(); got != filepath.Join("./data", "eol_data.tar.gz") {
		t.Fatalf("unexpected archive path %q", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: true
data:
  dir: /var/lib/deviceinsights
  eol_archive: alerts.tar.gz
  compression_level: 6
refresh:
  interval: 30m
scrape:
  enabled: true
  allowed_domains: ["www.cisco.com", "cisco.com"]
  concurrency: 4
  delay: 250ms
features:
  enabled: false
  hash_size: 4
  cache_entries: 64
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if !cfg.Logging.Development {
		t.Fatalf("expected development logging")
	}
	if cfg.Refresh.Interval != 30*time.Minute {
		t.Fatalf("expected refresh interval 30m, got %v", cfg.Refresh.Interval)
	}
	if cfg.Scrape.Delay != 250*time.Millisecond {
		t.Fatalf("expected scrape delay 250ms, got %v", cfg.Scrape.Delay)
	}
	if len(cfg.Scrape.AllowedDomains) != 2 {
		t.Fatalf("expected two allowed domains, got %v", cfg.Scrape.AllowedDomains)
	}
	if got := cfg.EOLArchivePath(); got != filepath.Join("/var/lib/deviceinsights", "alerts.tar.gz") {
		t.Fatalf("unexpected archive path %q", got)
	}
	// Defaults still fill the keys the file does not mention.
	if cfg.Data.FeaturesArchive != "features.tar.gz" {
		t.Fatalf("expected default features archive name, got %q", cfg.Data.FeaturesArchive)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Data: DataConfig{
			Dir:              "./data",
			CompressionLevel: 9,
		},
		Refresh: RefreshConfig{Interval: time.Hour},
		Scrape: ScrapeConfig{
			Enabled:        true,
			AllowedDomains: []string{"www.cisco.com"},
			Concurrency:    10,
		},
		Features: FeaturesConfig{
			Enabled:      true,
			Concurrency:  5,
			HashSize:     3,
			CacheEntries: 128,
		},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "missing data dir",
			cfg: func() Config {
				c := base
				c.Data.Dir = ""
				return c
			}(),
			want: "data.dir",
		},
		{
			name: "compression level out of range",
			cfg: func() Config {
				c := base
				c.Data.CompressionLevel = 10
				return c
			}(),
			want: "data.compression_level",
		},
		{
			name: "zero refresh interval",
			cfg: func() Config {
				c := base
				c.Refresh.Interval = 0
				return c
			}(),
			want: "refresh.interval",
		},
		{
			name: "scrape without domains",
			cfg: func() Config {
				c := base
				c.Scrape.AllowedDomains = nil
				return c
			}(),
			want: "scrape.allowed_domains",
		},
		{
			name: "invalid hash size",
			cfg: func() Config {
				c := base
				c.Features.HashSize = 0
				return c
			}(),
			want: "features.hash_size",
		},
		{
			name: "invalid cache entries",
			cfg: func() Config {
				c := base
				c.Features.CacheEntries = 0
				return c
			}(),
			want: "features.cache_entries",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigValidateAcceptsBestCompression(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:   ServerConfig{Port: 8080},
		Data:     DataConfig{Dir: "./data", CompressionLevel: -1},
		Refresh:  RefreshConfig{Interval: time.Minute},
		Features: FeaturesConfig{HashSize: 3, CacheEntries: 1},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
