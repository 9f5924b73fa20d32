// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nichewire/syndicator/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig                     `mapstructure:"server"`
	Auth     AuthConfig                       `mapstructure:"auth"`
	Scraper  ScraperConfig                    `mapstructure:"scraper"`
	HTTP     HTTPConfig                       `mapstructure:"http"`
	Headless HeadlessConfig                   `mapstructure:"headless"`
	Storage  StorageConfig                    `mapstructure:"storage"`
	DB       DBConfig                         `mapstructure:"db"`
	PubSub   PubSubConfig                     `mapstructure:"pubsub"`
	Enrich   EnrichConfig                     `mapstructure:"enrich"`
	LinkedIn LinkedInConfig                   `mapstructure:"linkedin"`
	Telegram TelegramConfig                   `mapstructure:"telegram"`
	Logging  LoggingConfig                    `mapstructure:"logging"`
	Sources  map[string]pipeline.SourceConfig `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScraperConfig governs dispatcher and scrape pipeline behavior.
type ScraperConfig struct {
	Workers          int     `mapstructure:"workers"`
	MaxConcurrent    int     `mapstructure:"max_concurrent"`
	UserAgent        string  `mapstructure:"user_agent"`
	DefaultRPS       float64 `mapstructure:"default_rps"`
	DefaultBurst     int     `mapstructure:"default_burst"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
	MaxItemsDefault  int     `mapstructure:"max_items_default"`
	GlobalQueueDepth int     `mapstructure:"queue_depth"`
}

// HTTPConfig configures fetch timeout behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig sets paths and content types for blob persistence.
type StorageConfig struct {
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// EnrichConfig controls the LLM enrichment client.
type EnrichConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// LinkedInConfig holds credentials for the social publisher.
type LinkedInConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	AccessToken       string `mapstructure:"access_token"`
	RefreshToken      string `mapstructure:"refresh_token"`
	AuthorURN         string `mapstructure:"author_urn"`
	OrganizationID    string `mapstructure:"organization_id"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// TelegramConfig controls the monitoring bot.
type TelegramConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Token          string  `mapstructure:"token"`
	AllowedUserIDs []int64 `mapstructure:"allowed_user_ids"`
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SYNDICATOR")
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
	v.SetDefault("scraper.workers", 2)
	v.SetDefault("scraper.max_concurrent", 5)
	v.SetDefault("scraper.user_agent", "syndicator-bot/0.1")
	v.SetDefault("scraper.default_rps", 0.5)
	v.SetDefault("scraper.default_burst", 1)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("scraper.max_items_default", 20)
	v.SetDefault("scraper.queue_depth", 64)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.prefix", "raw-html")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("db.table", "articles")
	v.SetDefault("enrich.model", "gpt-4o-mini")
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("linkedin.requests_per_minute", 3)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scraper.Workers <= 0 {
		return fmt.Errorf("scraper.workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Enrich.Enabled && c.Enrich.APIKey == "" {
		return fmt.Errorf("enrich.api_key must be set when enrichment is enabled")
	}
	if c.LinkedIn.Enabled && c.LinkedIn.AccessToken == "" && c.LinkedIn.RefreshToken == "" {
		return fmt.Errorf("linkedin access_token or refresh_token must be set when publishing is enabled")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token must be set when the bot is enabled")
	}
	for name, src := range c.Sources {
		if len(src.FeedURLs) == 0 {
			return fmt.Errorf("sources.%s.feed_urls must not be empty", name)
		}
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
