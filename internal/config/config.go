package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Meta       MetaConfig       `yaml:"meta"`
	Google     GoogleConfig     `yaml:"google"`
	Automation AutomationConfig `yaml:"automation"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings used for distributed locking
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// MetaConfig holds Meta (Facebook) Marketing API configuration
type MetaConfig struct {
	APIVersion     string `yaml:"api_version"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MetaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GoogleConfig holds Google Ads API configuration
type GoogleConfig struct {
	BaseURL        string `yaml:"base_url"`
	DeveloperToken string `yaml:"developer_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c GoogleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AutomationConfig holds rule engine settings
type AutomationConfig struct {
	Enabled             bool `yaml:"enabled"`
	TickIntervalSeconds int  `yaml:"tick_interval_seconds"`
	RuleBatchSize       int  `yaml:"rule_batch_size"`
	MaxConcurrentRules  int  `yaml:"max_concurrent_rules"`
	CallTimeoutSeconds  int  `yaml:"call_timeout_seconds"`
	CycleTimeoutMinutes int  `yaml:"cycle_timeout_minutes"`
}

// TickInterval returns how often the worker invokes a run cycle
func (c AutomationConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// CallTimeout bounds a single external call (metric read, platform write)
func (c AutomationConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// CycleTimeout is the hard ceiling for one run cycle
func (c AutomationConfig) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutMinutes) * time.Minute
}

// AlertsConfig holds alert delivery settings. In-app alerts always work;
// the email channel requires SES credentials.
type AlertsConfig struct {
	EmailEnabled bool   `yaml:"email_enabled"`
	FromEmail    string `yaml:"from_email"`
	FromName     string `yaml:"from_name"`
	SESRegion    string `yaml:"ses_region"`
	SESAccessKey string `yaml:"ses_access_key"`
	SESSecretKey string `yaml:"ses_secret_key"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Meta.APIVersion == "" {
		cfg.Meta.APIVersion = "v18.0"
	}
	if cfg.Meta.BaseURL == "" {
		cfg.Meta.BaseURL = "https://graph.facebook.com/" + cfg.Meta.APIVersion
	}
	if cfg.Meta.TimeoutSeconds == 0 {
		cfg.Meta.TimeoutSeconds = 30
	}
	if cfg.Google.BaseURL == "" {
		cfg.Google.BaseURL = "https://googleads.googleapis.com/v16"
	}
	if cfg.Google.TimeoutSeconds == 0 {
		cfg.Google.TimeoutSeconds = 30
	}
	if cfg.Automation.TickIntervalSeconds == 0 {
		cfg.Automation.TickIntervalSeconds = 60
	}
	if cfg.Automation.RuleBatchSize == 0 {
		cfg.Automation.RuleBatchSize = 50
	}
	if cfg.Automation.MaxConcurrentRules == 0 {
		cfg.Automation.MaxConcurrentRules = 8
	}
	if cfg.Automation.CallTimeoutSeconds == 0 {
		cfg.Automation.CallTimeoutSeconds = 30
	}
	if cfg.Automation.CycleTimeoutMinutes == 0 {
		cfg.Automation.CycleTimeoutMinutes = 10
	}
	if cfg.Alerts.SESRegion == "" {
		cfg.Alerts.SESRegion = "us-east-1"
	}
	if cfg.Alerts.FromName == "" {
		cfg.Alerts.FromName = "ParamAds Alerts"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("META_BASE_URL"); v != "" {
		cfg.Meta.BaseURL = v
	}
	if v := os.Getenv("GOOGLE_ADS_BASE_URL"); v != "" {
		cfg.Google.BaseURL = v
	}
	if v := os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN"); v != "" {
		cfg.Google.DeveloperToken = v
	}
	if v := os.Getenv("ALERTS_FROM_EMAIL"); v != "" {
		cfg.Alerts.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Alerts.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Alerts.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Alerts.SESRegion = v
	}

	return cfg, nil
}
