package source

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the settings for talking to the backend REST API
type Config struct {
	BaseURL      string        `json:"base_url" mapstructure:"base_url"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	PageSize     int           `json:"page_size" mapstructure:"page_size"`
	MaxPages     int           `json:"max_pages" mapstructure:"max_pages"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff" mapstructure:"retry_backoff"`
	UserAgent    string        `json:"user_agent" mapstructure:"user_agent"`
	StrictMode   bool          `json:"strict_mode" mapstructure:"strict_mode"`

	// Token is sent as a bearer token when set. Obtaining it is up to the caller.
	Token string `json:"-" mapstructure:"token"`

	// Location reads payload dates that carry no zone. Nil means UTC.
	Location *time.Location `json:"-" mapstructure:"-"`
}

// DefaultConfig returns a configuration with sensible defaults. BaseURL must
// still be set.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30 * time.Second,
		PageSize:     100,
		MaxPages:     1000,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		UserAgent:    "periodrecon",
	}
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL has no host")
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.PageSize <= 0 || c.PageSize > 1000 {
		return fmt.Errorf("page size must be between 1 and 1000, got %d", c.PageSize)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive, got %d", c.MaxPages)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative, got %v", c.RetryBackoff)
	}
	return nil
}
