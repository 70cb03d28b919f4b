// Package config loads application configuration from a YAML file with
// environment variable overrides. A .env file (if present) is loaded
// first so secrets can live in .env locally and in real env vars in
// production.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the campaign engine.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Provider    string          `yaml:"provider"` // "mailgun" or "ses"
	Mailgun     MailgunConfig   `yaml:"mailgun"`
	SES         SESConfig       `yaml:"ses"`
	Redis       RedisConfig     `yaml:"redis"`
	Delivery    DeliveryConfig  `yaml:"delivery"`
	Unsubscribe UnsubConfig     `yaml:"unsubscribe"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Directory   DirectoryConfig `yaml:"directory"`
	Activity    ActivityConfig  `yaml:"activity"`
	Templates   TemplateConfig  `yaml:"templates"`
	Site        SiteConfig      `yaml:"site"`
	Admin       AdminConfig     `yaml:"admin"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection: inside a
// container the server must bind all interfaces.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MailgunConfig holds Mailgun API configuration.
type MailgunConfig struct {
	APIKey            string `yaml:"api_key"`
	Domain            string `yaml:"domain"`
	BaseURL           string `yaml:"base_url"`
	WebhookSigningKey string `yaml:"webhook_signing_key"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration for the alternate transport.
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

// RedisConfig holds the optional suppression-cache settings. An empty
// Addr disables the cache and suppression lookups hit the provider
// directly on every run.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the suppression cache TTL as a duration.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// DeliveryConfig holds batch pacing defaults for campaign sends.
type DeliveryConfig struct {
	BatchSize int `yaml:"batch_size"`
	DelayMs   int `yaml:"delay_ms"`
}

// Delay returns the inter-batch pause as a duration.
func (c DeliveryConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

// UnsubConfig holds the unsubscribe token signing secret.
type UnsubConfig struct {
	Secret string `yaml:"secret"`
}

// SchedulerConfig holds the shared secret guarding the cron trigger
// endpoint and the worker poll interval.
type SchedulerConfig struct {
	CronSecret          string `yaml:"cron_secret"`
	TickIntervalSeconds int    `yaml:"tick_interval_seconds"`
}

// TickInterval returns the worker poll interval as a duration.
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// DirectoryConfig holds the user directory API settings.
type DirectoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	PageSize       int    `yaml:"page_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c DirectoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ActivityConfig holds the product activity API settings used for
// re-engagement outcome reconciliation.
type ActivityConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration.
func (c ActivityConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TemplateConfig holds the email template directory.
type TemplateConfig struct {
	Dir string `yaml:"dir"`
}

// SiteConfig holds the public base URL embedded in unsubscribe links.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AdminConfig holds the API key guarding manual send endpoints.
type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

// Load reads and parses the configuration file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Provider == "" {
		cfg.Provider = "mailgun"
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Redis.CacheTTLSeconds == 0 {
		cfg.Redis.CacheTTLSeconds = 300
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = 50
	}
	if cfg.Delivery.DelayMs == 0 {
		cfg.Delivery.DelayMs = 1000
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 300
	}
	if cfg.Directory.PageSize == 0 {
		cfg.Directory.PageSize = 1000
	}
	if cfg.Directory.TimeoutSeconds == 0 {
		cfg.Directory.TimeoutSeconds = 30
	}
	if cfg.Activity.TimeoutSeconds == 0 {
		cfg.Activity.TimeoutSeconds = 10
	}
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = "templates"
	}
	if cfg.Site.BaseURL == "" {
		cfg.Site.BaseURL = "https://jellyjelly.com"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("MAILGUN_API_KEY"); v != "" {
		cfg.Mailgun.APIKey = v
	}
	if v := os.Getenv("MAILGUN_DOMAIN"); v != "" {
		cfg.Mailgun.Domain = v
	}
	if v := os.Getenv("MAILGUN_BASE_URL"); v != "" {
		cfg.Mailgun.BaseURL = v
	}
	if v := os.Getenv("MAILGUN_WEBHOOK_SIGNING_KEY"); v != "" {
		cfg.Mailgun.WebhookSigningKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("UNSUBSCRIBE_SECRET"); v != "" {
		cfg.Unsubscribe.Secret = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Scheduler.CronSecret = v
	}
	if v := os.Getenv("DIRECTORY_BASE_URL"); v != "" {
		cfg.Directory.BaseURL = v
	}
	if v := os.Getenv("DIRECTORY_API_KEY"); v != "" {
		cfg.Directory.APIKey = v
	}
	if v := os.Getenv("ACTIVITY_API_URL"); v != "" {
		cfg.Activity.BaseURL = v
	}
	if v := os.Getenv("SITE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}
	if v := os.Getenv("ADMIN_API_KEY"); v != "" {
		cfg.Admin.APIKey = v
	}

	return cfg, nil
}
