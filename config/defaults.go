package config

import "time"

// Default values applied before file, env and caller overrides.
const (
	DefaultSite          = "default"
	DefaultScheme        = SchemeAuto
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 5 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
	DefaultDetectRetries = 3
)

// Default returns a Config populated with baseline values. Host and
// credentials are left empty and must be supplied by the caller.
func Default() *Config {
	return &Config{
		Site:          DefaultSite,
		Scheme:        DefaultScheme,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		ProbeTimeout:  DefaultProbeTimeout,
		DetectRetries: DefaultDetectRetries,
	}
}
