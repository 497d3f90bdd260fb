// Package config defines configuration structures for the ctools CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (CONVERSIONTOOLS_ prefix)
//   - YAML configuration file
//
// # Structure
//
//	type Config struct {
//	    Token       string
//	    BaseURL     string
//	    Timeout     time.Duration
//	    WebhookURL  string
//	    Sandbox     bool
//	    Progress    bool
//	    Retry       RetryConfig
//	    Polling     PollingConfig
//	}
//
//	type RetryConfig struct {
//	    Attempts   int
//	    Backoff    time.Duration
//	    MaxBackoff time.Duration
//	}
//
//	type PollingConfig struct {
//	    Interval    time.Duration
//	    MaxInterval time.Duration
//	    Backoff     float64
//	}
package config
