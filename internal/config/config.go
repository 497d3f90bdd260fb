package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conversiontools/conversiontools-go/pkg/conversion"
)

// Config defines configuration for the ctools CLI.
type Config struct {
	Token      string        `yaml:"token"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	WebhookURL string        `yaml:"webhook_url"`
	Sandbox    bool          `yaml:"sandbox"`
	Progress   bool          `yaml:"progress"`
	Retry      RetryConfig   `yaml:"retry"`
	Polling    PollingConfig `yaml:"polling"`
}

// RetryConfig defines retry behavior for API requests.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// PollingConfig defines how task status is polled while waiting.
type PollingConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
	Backoff     float64       `yaml:"backoff"`
}

// Default returns a Config with sensible defaults. The token has no default
// and must come from a flag, the environment, or a config file.
func Default() Config {
	return Config{
		Timeout: 5 * time.Minute,
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Polling: PollingConfig{
			Interval:    5 * time.Second,
			MaxInterval: 30 * time.Second,
			Backoff:     1.5,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	Token      string            `yaml:"token"`
	BaseURL    string            `yaml:"base_url"`
	Timeout    string            `yaml:"timeout"`
	WebhookURL string            `yaml:"webhook_url"`
	Sandbox    bool              `yaml:"sandbox"`
	Progress   bool              `yaml:"progress"`
	Retry      yamlRetryConfig   `yaml:"retry"`
	Polling    yamlPollingConfig `yaml:"polling"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

type yamlPollingConfig struct {
	Interval    string  `yaml:"interval"`
	MaxInterval string  `yaml:"max_interval"`
	Backoff     float64 `yaml:"backoff"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Token != "" {
		cfg.Token = yc.Token
	}
	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.WebhookURL != "" {
		cfg.WebhookURL = yc.WebhookURL
	}
	cfg.Sandbox = yc.Sandbox
	cfg.Progress = yc.Progress
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}
	if yc.Polling.Interval != "" {
		d, err := time.ParseDuration(yc.Polling.Interval)
		if err != nil {
			return Config{}, fmt.Errorf("parse polling.interval: %w", err)
		}
		cfg.Polling.Interval = d
	}
	if yc.Polling.MaxInterval != "" {
		d, err := time.ParseDuration(yc.Polling.MaxInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse polling.max_interval: %w", err)
		}
		cfg.Polling.MaxInterval = d
	}
	if yc.Polling.Backoff != 0 {
		cfg.Polling.Backoff = yc.Polling.Backoff
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CONVERSIONTOOLS_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CONVERSIONTOOLS_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("CONVERSIONTOOLS_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CONVERSIONTOOLS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v := os.Getenv("CONVERSIONTOOLS_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("CONVERSIONTOOLS_SANDBOX"); v != "" {
		c.Sandbox = v == "true" || v == "1"
	}
	if v := os.Getenv("CONVERSIONTOOLS_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("CONVERSIONTOOLS_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("CONVERSIONTOOLS_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("CONVERSIONTOOLS_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}
	if v := os.Getenv("CONVERSIONTOOLS_POLLING_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_POLLING_INTERVAL: %w", err)
		}
		c.Polling.Interval = d
	}
	if v := os.Getenv("CONVERSIONTOOLS_POLLING_MAX_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_POLLING_MAX_INTERVAL: %w", err)
		}
		c.Polling.MaxInterval = d
	}
	if v := os.Getenv("CONVERSIONTOOLS_POLLING_BACKOFF"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse CONVERSIONTOOLS_POLLING_BACKOFF: %w", err)
		}
		c.Polling.Backoff = f
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("config: API token is required (flag, CONVERSIONTOOLS_TOKEN, or config file)")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Polling.Interval <= 0 {
		return errors.New("config: polling.interval must be positive")
	}
	if c.Polling.Backoff < 1 {
		return errors.New("config: polling.backoff must be >= 1")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Token != "" {
		c.Token = override.Token
	}
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.WebhookURL != "" {
		c.WebhookURL = override.WebhookURL
	}
	if override.Sandbox {
		c.Sandbox = override.Sandbox
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Polling.Interval != 0 {
		c.Polling.Interval = override.Polling.Interval
	}
	if override.Polling.MaxInterval != 0 {
		c.Polling.MaxInterval = override.Polling.MaxInterval
	}
	if override.Polling.Backoff != 0 {
		c.Polling.Backoff = override.Polling.Backoff
	}
	return c
}

// ClientOptions maps the configuration to client options.
func (c Config) ClientOptions() conversion.Options {
	return conversion.Options{
		APIToken:           c.Token,
		BaseURL:            c.BaseURL,
		Timeout:            c.Timeout,
		RetryAttempts:      c.Retry.Attempts,
		RetryDelay:         c.Retry.Backoff,
		MaxRetryDelay:      c.Retry.MaxBackoff,
		PollingInterval:    c.Polling.Interval,
		MaxPollingInterval: c.Polling.MaxInterval,
		PollingBackoff:     c.Polling.Backoff,
		WebhookURL:         c.WebhookURL,
		Sandbox:            c.Sandbox,
	}
}
