package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

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
scraper:
  workers: 4
  max_concurrent: 8
  user_agent: real-agent
  default_rps: 1.5
  respect_robots: false
  max_items_default: 10
  queue_depth: 128
http:
  timeout_seconds: 45
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 1024
storage:
  gcs_bucket: bucket
  prefix: logs
  content_type: text/plain
db:
  dsn: postgres://localhost/syndicator
  table: stories
enrich:
  enabled: true
  api_key: sk-test
  model: gpt-4o
linkedin:
  enabled: true
  access_token: token
  author_urn: urn:li:person:abc
telegram:
  enabled: true
  token: bot-token
  allowed_user_ids: [42]
logging:
  development: false
sources:
  widget-weekly:
    name: widget-weekly
    feed_urls: ["https://example.com/feed.xml"]
    max_age_days: 7
    min_content_length: 400
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
	if cfg.Scraper.Workers != 4 || cfg.Scraper.RespectRobots {
		t.Fatalf("expected scraper overrides to apply: %+v", cfg.Scraper)
	}
	if cfg.DB.Table != "stories" {
		t.Fatalf("expected db table override, got %q", cfg.DB.Table)
	}
	if cfg.Enrich.Model != "gpt-4o" {
		t.Fatalf("expected enrich model override, got %q", cfg.Enrich.Model)
	}
	src, ok := cfg.Sources["widget-weekly"]
	if !ok || len(src.FeedURLs) != 1 || src.FeedURLs[0] != "https://example.com/feed.xml" {
		t.Fatalf("expected source to be loaded: %+v", cfg.Sources)
	}
	if src.MaxAgeDays != 7 || src.MinContentLength != 400 {
		t.Fatalf("expected source numeric fields to be preserved: %+v", src)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Scraper.UserAgent != "syndicator-bot/0.1" {
		t.Fatalf("expected default user agent, got %q", cfg.Scraper.UserAgent)
	}
	if cfg.Storage.ContentType != "text/html; charset=utf-8" {
		t.Fatalf("expected default content type, got %q", cfg.Storage.ContentType)
	}
	if cfg.LinkedIn.RequestsPerMinute != 3 {
		t.Fatalf("expected default publish rate, got %d", cfg.LinkedIn.RequestsPerMinute)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Scraper: ScraperConfig{Workers: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
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
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Scraper.Workers = 0
				return c
			}(),
			want: "scraper.workers",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func() Config {
				c := base
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
				return c
			}(),
			want: "headless.max_parallel",
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
			name: "enrich missing api key",
			cfg: func() Config {
				c := base
				c.Enrich.Enabled = true
				return c
			}(),
			want: "enrich.api_key",
		},
		{
			name: "telegram missing token",
			cfg: func() Config {
				c := base
				c.Telegram.Enabled = true
				return c
			}(),
			want: "telegram.token",
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
