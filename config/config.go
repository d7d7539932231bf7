// Package config defines the runtime configuration for a ctrlmesh client and
// provides helpers for loading it from files and environment variables.
package config

import (
	"fmt"
	"time"
)

// Config holds every tuneable for a single controller connection.
type Config struct {
	// ── Controller ───────────────────────────────────────────────────
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // 0 → default HTTPS port
	Site     string `yaml:"site"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// SkipTLSVerify disables certificate verification. Intended for
	// controllers with self-signed certificates on trusted networks.
	SkipTLSVerify bool `yaml:"skip_tls_verify"`

	// ── Path scheme ──────────────────────────────────────────────────
	// Scheme selects the URL-prefix convention: "auto" probes the
	// controller after login, "proxy" and "direct" pin it manually.
	Scheme string `yaml:"scheme"`

	// ── Resilience ───────────────────────────────────────────────────
	MaxRetries    int           `yaml:"max_retries"`    // connect attempts per Initialize
	RetryDelay    time.Duration `yaml:"retry_delay"`    // fixed delay between connect attempts
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`  // per scheme probe
	DetectRetries int           `yaml:"detect_retries"` // detection attempts per session
}

// Scheme mode values accepted by Config.Scheme.
const (
	SchemeAuto   = "auto"
	SchemeProxy  = "proxy"
	SchemeDirect = "direct"
)

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// Validate checks the configuration for completeness and consistency.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ConfigError{Field: "host", Message: "controller host is required"}
	}
	if c.Username == "" || c.Password == "" {
		return &ConfigError{Field: "username", Message: "controller credentials are required"}
	}
	if c.Site == "" {
		return &ConfigError{Field: "site", Message: "controller site is required", Hint: "most controllers use \"default\""}
	}
	switch c.Scheme {
	case SchemeAuto, SchemeProxy, SchemeDirect:
	default:
		return &ConfigError{
			Field:   "scheme",
			Value:   c.Scheme,
			Message: "must be one of auto, proxy, direct",
			Hint:    "set scheme=proxy or scheme=direct to bypass automatic detection",
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Value: c.Port, Message: "port out of range"}
	}
	if c.MaxRetries < 1 {
		return &ConfigError{Field: "max_retries", Value: c.MaxRetries, Message: "must be at least 1"}
	}
	return nil
}

// BaseURL returns the https root URL of the controller.
func (c *Config) BaseURL() string {
	if c.Port == 0 || c.Port == 443 {
		return fmt.Sprintf("https://%s", c.Host)
	}
	return fmt.Sprintf("https://%s:%d", c.Host, c.Port)
}
