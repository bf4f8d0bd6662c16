// Package config handles application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"market_watch/internal/model"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Dispatch failure policies.
const (
	OnDispatchAbort    = "abort"
	OnDispatchContinue = "continue"
)

const defaultEbayScope = "https://api.ebay.com/oauth/api_scope"

// Config holds the application configuration.
type Config struct {
	LogLevel           string        `yaml:"log_level"`
	HTTPAddr           string        `yaml:"http_addr"`
	HTTPTimeoutSeconds int           `yaml:"http_timeout_seconds"`
	OnDispatchError    string        `yaml:"on_dispatch_error"`
	Ebay               Ebay          `yaml:"ebay"`
	Storage            Storage       `yaml:"storage"`
	Discord            Discord       `yaml:"discord"`
	Queries            []model.Query `yaml:"queries"`

	TelegramBotToken string `yaml:"-"`
}

// Ebay configures the eBay Browse API client. Credentials come from the
// environment only.
type Ebay struct {
	BaseURL       string `yaml:"base_url"`
	MarketplaceID string `yaml:"marketplace_id"`
	ClientID      string `yaml:"-"`
	ClientSecret  string `yaml:"-"`
	Scope         string `yaml:"-"`
}

// Storage selects and configures the ledger backend.
type Storage struct {
	Backend       string `yaml:"backend"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

// Discord configures the webhook dispatcher.
type Discord struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and environment overrides,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Ebay.ClientID = os.Getenv("EBAY_CLIENT_ID")
	cfg.Ebay.ClientSecret = os.Getenv("EBAY_CLIENT_SECRET")
	cfg.Ebay.Scope = os.Getenv("EBAY_SCOPE")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		cfg.HTTPTimeoutSeconds = 30
	}
	if cfg.OnDispatchError == "" {
		cfg.OnDispatchError = OnDispatchAbort
	}
	if cfg.Ebay.BaseURL == "" {
		cfg.Ebay.BaseURL = "https://api.ebay.com"
	}
	cfg.Ebay.BaseURL = strings.TrimRight(cfg.Ebay.BaseURL, "/")
	if cfg.Ebay.MarketplaceID == "" {
		cfg.Ebay.MarketplaceID = "EBAY_IT"
	}
	if cfg.Ebay.Scope == "" {
		cfg.Ebay.Scope = defaultEbayScope
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "./posted_items.sqlite"
	}
	if cfg.Discord.RatePerSecond <= 0 {
		cfg.Discord.RatePerSecond = 1
	}

	for i := range cfg.Queries {
		q := &cfg.Queries[i]
		if q.Source == "" {
			q.Source = model.SourceEbay
		}
		if q.Currency == "" {
			q.Currency = "EUR"
		}
		if q.Limit <= 0 {
			q.Limit = 25
		}
		q.Limit = min(q.Limit, 200)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%w: storage.redis_addr is required for the redis backend", ErrInvalid)
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}

	switch c.OnDispatchError {
	case OnDispatchAbort, OnDispatchContinue:
	default:
		return fmt.Errorf("%w: on_dispatch_error must be %q or %q", ErrInvalid, OnDispatchAbort, OnDispatchContinue)
	}

	if len(c.Queries) == 0 {
		return fmt.Errorf("%w: no queries configured", ErrInvalid)
	}

	seen := make(map[string]bool, len(c.Queries))
	for _, q := range c.Queries {
		if err := validateQuery(q); err != nil {
			return err
		}
		if seen[q.Name] {
			return fmt.Errorf("%w: duplicate query name %q", ErrInvalid, q.Name)
		}
		seen[q.Name] = true

		if !q.IsEnabled() {
			continue
		}
		if q.Source == model.SourceEbay && (c.Ebay.ClientID == "" || c.Ebay.ClientSecret == "") {
			return fmt.Errorf("%w: query %q needs EBAY_CLIENT_ID and EBAY_CLIENT_SECRET", ErrInvalid, q.Name)
		}
		if q.Telegram.ChatID != 0 && c.TelegramBotToken == "" {
			return fmt.Errorf("%w: query %q needs TELEGRAM_BOT_TOKEN", ErrInvalid, q.Name)
		}
	}
	return nil
}

func validateQuery(q model.Query) error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: query name is required", ErrInvalid)
	}
	if q.IntervalSeconds <= 0 {
		return fmt.Errorf("%w: query %q: interval_seconds must be positive", ErrInvalid, q.Name)
	}
	switch q.Source {
	case model.SourceEbay:
		if strings.TrimSpace(q.Keywords) == "" {
			return fmt.Errorf("%w: query %q: keywords are required", ErrInvalid, q.Name)
		}
	case model.SourceFeed:
		if q.FeedURL == "" {
			return fmt.Errorf("%w: query %q: feed_url is required for feed sources", ErrInvalid, q.Name)
		}
	default:
		return fmt.Errorf("%w: query %q: unknown source %q", ErrInvalid, q.Name, q.Source)
	}
	if q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > *q.PriceMax {
		return fmt.Errorf("%w: query %q: price_min exceeds price_max", ErrInvalid, q.Name)
	}
	switch q.Rank {
	case "", "total_desc", "total_asc", "none":
	default:
		return fmt.Errorf("%w: query %q: unknown rank %q", ErrInvalid, q.Name, q.Rank)
	}
	if q.Discord.WebhookURL == "" && q.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: query %q: a discord or telegram target is required", ErrInvalid, q.Name)
	}
	return nil
}

// EnabledQueries returns the queries that should be scheduled.
func (c *Config) EnabledQueries() []model.Query {
	var out []model.Query
	for _, q := range c.Queries {
		if q.IsEnabled() {
			out = append(out, q)
		}
	}
	return out
}
