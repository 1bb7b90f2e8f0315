// Package config loads and validates the monitor service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeout is the default HTTP read timeout.
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default HTTP write timeout.
	DefaultWriteTimeout = 30 * time.Second

	defaultServerAddress    = ":8085"
	defaultRunDeadline      = 4 * time.Minute
	defaultDetectionWindow  = 24 * time.Hour
	defaultAttemptDelay     = 2 * time.Second
	defaultRetryBackoff     = 15 * time.Minute
	defaultTypeCap          = 5
	defaultBatchBudgetSlack = 10 * time.Second
	defaultClientTimeout    = 30 * time.Second
)

// Config is the root configuration for the monitor service. It is loaded
// once at startup and passed down explicitly; nothing mutates it afterwards.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Generation    ClientConfig        `yaml:"generation"`
	Delivery      ClientConfig        `yaml:"delivery"`
	Monitor       MonitorConfig       `yaml:"monitor"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// ElasticsearchConfig configures the content store connection.
type ElasticsearchConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

// RedisConfig configures the Redis connection used by the counters tracker.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClientConfig configures an outbound HTTP collaborator (generation, delivery).
type ClientConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// MonitorConfig configures the monitor run itself: auth, cadence, budgets,
// caps, and backoff. All durations are per-run; invocations are independent.
type MonitorConfig struct {
	// AuthToken is the shared secret required on the trigger endpoint.
	AuthToken string `yaml:"auth_token"`
	// Schedule is an optional cron spec for the built-in cadence. Empty
	// means runs are triggered only via the HTTP endpoint.
	Schedule string `yaml:"schedule"`
	// RunDeadline is the wall-clock budget for one run. Dispatch stops
	// initiating new work once it is exceeded.
	RunDeadline time.Duration `yaml:"run_deadline"`
	// DetectionWindow bounds how far back detectors scan.
	DetectionWindow time.Duration `yaml:"detection_window"`
	// AttemptDelay is the pacing delay between consecutive fix attempts
	// of the same issue type.
	AttemptDelay time.Duration `yaml:"attempt_delay"`
	// RetryBackoff is the fixed delay added before an issue becomes
	// eligible again after a failed attempt.
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// TypeCaps limits fix attempts per issue type per run.
	TypeCaps map[string]int `yaml:"type_caps"`
	// BatchBudgetSlack is reserved out of the remaining run budget before
	// a batch generation call, so reconciliation still fits.
	BatchBudgetSlack time.Duration `yaml:"batch_budget_slack"`
}

// CapFor returns the per-run attempt cap for an issue type.
func (m *MonitorConfig) CapFor(issueType string) int {
	if cap, ok := m.TypeCaps[issueType]; ok && cap > 0 {
		return cap
	}
	return defaultTypeCap
}

// Validate checks the configuration and returns an error describing the
// first problem found.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Elasticsearch.URL == "" {
		return errors.New("elasticsearch.url is required")
	}
	if c.Generation.URL == "" {
		return errors.New("generation.url is required")
	}
	if c.Monitor.AuthToken == "" {
		return errors.New("monitor.auth_token is required")
	}
	if c.Monitor.RunDeadline <= 0 {
		return fmt.Errorf("monitor.run_deadline must be positive, got %v", c.Monitor.RunDeadline)
	}
	if c.Monitor.RetryBackoff <= 0 {
		return fmt.Errorf("monitor.retry_backoff must be positive, got %v", c.Monitor.RetryBackoff)
	}
	for issueType, cap := range c.Monitor.TypeCaps {
		if cap < 0 {
			return fmt.Errorf("monitor.type_caps[%s] must not be negative, got %d", issueType, cap)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Elasticsearch.Index == "" {
		cfg.Elasticsearch.Index = "pipeline_content"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = defaultClientTimeout
	}
	if cfg.Delivery.Timeout == 0 {
		cfg.Delivery.Timeout = defaultClientTimeout
	}
	if cfg.Monitor.RunDeadline == 0 {
		cfg.Monitor.RunDeadline = defaultRunDeadline
	}
	if cfg.Monitor.DetectionWindow == 0 {
		cfg.Monitor.DetectionWindow = defaultDetectionWindow
	}
	if cfg.Monitor.AttemptDelay == 0 {
		cfg.Monitor.AttemptDelay = defaultAttemptDelay
	}
	if cfg.Monitor.RetryBackoff == 0 {
		cfg.Monitor.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Monitor.BatchBudgetSlack == 0 {
		cfg.Monitor.BatchBudgetSlack = defaultBatchBudgetSlack
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ES_URL"); v != "" {
		cfg.Elasticsearch.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("GENERATION_URL"); v != "" {
		cfg.Generation.URL = v
	}
	if v := os.Getenv("GENERATION_TOKEN"); v != "" {
		cfg.Generation.Token = v
	}
	if v := os.Getenv("DELIVERY_URL"); v != "" {
		cfg.Delivery.URL = v
	}
	if v := os.Getenv("MONITOR_AUTH_TOKEN"); v != "" {
		cfg.Monitor.AuthToken = v
	}
	if v := os.Getenv("MONITOR_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
}

// Load reads, defaults, env-overrides, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses common boolean string representations.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
