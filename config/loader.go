package config

// loader.go - configuration loading from YAML files and environment variables.
//
// Precedence order (highest wins):
//   1. Caller overrides (flags, option funcs)
//   2. Environment variables  (LoadFromEnv)
//   3. YAML file              (LoadFromFile)
//   4. Defaults               (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML configuration file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the CTRLMESH_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// applying caller flags so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CTRLMESH_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("CTRLMESH_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("CTRLMESH_SITE"); v != "" {
		cfg.Site = v
	}
	if v := os.Getenv("CTRLMESH_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("CTRLMESH_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if envBool("CTRLMESH_SKIP_TLS_VERIFY") {
		cfg.SkipTLSVerify = true
	}
	if v := os.Getenv("CTRLMESH_SCHEME"); v != "" {
		cfg.Scheme = strings.ToLower(v)
	}
	if v := envInt("CTRLMESH_MAX_RETRIES"); v > 0 {
		cfg.MaxRetries = v
	}
	if v := envInt("CTRLMESH_RETRY_DELAY"); v > 0 {
		cfg.RetryDelay = secondsDuration(v)
	}
	if v := envInt("CTRLMESH_PROBE_TIMEOUT"); v > 0 {
		cfg.ProbeTimeout = secondsDuration(v)
	}
	if v := envInt("CTRLMESH_DETECT_RETRIES"); v > 0 {
		cfg.DetectRetries = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
