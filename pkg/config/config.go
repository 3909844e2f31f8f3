// Package config loads and validates the orchestrator's configuration:
// file defaults overlaid by environment expansion, with an optional
// filesystem watch that pushes reloads out to subscribers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimits caps the number of applied changes the Safety Controller
// permits within each rolling window (spec §4.6).
type RateLimits struct {
	PerMinute int `yaml:"minute"`
	PerHour   int `yaml:"hour"`
	PerDay    int `yaml:"day"`
}

// RetryPolicy configures the Message Bus's retry/backoff behavior (spec §4.4).
type RetryPolicy struct {
	MaxRetries        int           `yaml:"maxRetries"`
	InitialBackoff    time.Duration `yaml:"initialBackoff"`
	MaxBackoff        time.Duration `yaml:"maxBackoff"`
	BackoffMultiplier float64       `yaml:"backoffMultiplier"`
}

// AutoRollbackPolicy configures the learning pipeline's post-apply monitor
// window (spec §4.7.6).
type AutoRollbackPolicy struct {
	MonitorDuration      time.Duration `yaml:"monitorDuration"`
	CheckInterval        time.Duration `yaml:"checkInterval"`
	ErrorRateThreshold   float64       `yaml:"errorRateThreshold"`
	PerformanceThreshold float64       `yaml:"performanceThreshold"`
}

// StatePaths lays out the on-disk root (spec §6 "Persistent state layout").
type StatePaths struct {
	Root string `yaml:"root"`
}

// SQLIndex optionally enables a SQL-backed secondary index over state and
// audit records, in addition to their canonical JSON-on-disk form.
type SQLIndex struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN     string `yaml:"dsn"`
}

// Discovery optionally enables a Consul-backed overlay on top of the
// static agent registry (spec §4.1).
type Discovery struct {
	Enabled bool     `yaml:"enabled"`
	Address string   `yaml:"address"`
	Prefix  string   `yaml:"prefix"`
	Tags    []string `yaml:"tags"`
}

// DistributedLock optionally serializes per-execution state mutation
// across multiple orchestrator processes via etcd (spec §5).
type DistributedLock struct {
	Enabled   bool          `yaml:"enabled"`
	Endpoints []string      `yaml:"endpoints"`
	TTL       time.Duration `yaml:"ttl"`
}

// Config is the full orchestrator configuration (spec §6 "Environment &
// configuration").
type Config struct {
	LogLevel string `yaml:"logLevel"`

	State     StatePaths      `yaml:"state"`
	SQLIndex  SQLIndex        `yaml:"sqlIndex"`
	Discovery Discovery       `yaml:"discovery"`
	Lock      DistributedLock `yaml:"lock"`

	AutoApply             bool               `yaml:"autoApply"`
	AutoRollback          bool               `yaml:"autoRollback"`
	ConfidenceThreshold   float64            `yaml:"confidenceThreshold"`
	RequireAllGates       bool               `yaml:"requireAllGates"`
	Retry                 RetryPolicy        `yaml:"retry"`
	RateLimits            RateLimits         `yaml:"rateLimits"`
	RollbackPolicy        AutoRollbackPolicy `yaml:"rollbackPolicy"`
	RetentionDays         int                `yaml:"retentionDays"`
	RetentionPeriod       time.Duration      `yaml:"retentionPeriod"`
	ApprovalExpiry        time.Duration      `yaml:"approvalExpiryMs"`
	MaxConcurrentIsolated int                `yaml:"maxConcurrentIsolated"`

	ManualBlockListPath string `yaml:"manualBlockListPath"`
	AgentsFile          string `yaml:"agentsFile"`

	Monitor MonitorConfig `yaml:"monitor"`
}

// MonitorConfig configures the metrics/health HTTP surface (spec §4.8).
type MonitorConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	PrometheusPath string `yaml:"prometheusPath"`
}

// Default returns the configuration's documented defaults (spec §6).
func Default() *Config {
	return &Config{
		LogLevel: "info",
		State:    StatePaths{Root: "./data"},
		AutoApply:           false,
		AutoRollback:        true,
		ConfidenceThreshold: 0.8,
		RequireAllGates:     false,
		Retry: RetryPolicy{
			MaxRetries:        3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		},
		RateLimits: RateLimits{PerMinute: 10, PerHour: 100, PerDay: 500},
		RollbackPolicy: AutoRollbackPolicy{
			MonitorDuration:      5 * time.Minute,
			CheckInterval:        10 * time.Second,
			ErrorRateThreshold:   0.1,
			PerformanceThreshold: 0.2,
		},
		RetentionDays:         30,
		RetentionPeriod:       24 * time.Hour,
		ApprovalExpiry:        3600000 * time.Millisecond,
		MaxConcurrentIsolated: 3,
		Monitor: MonitorConfig{
			ListenAddr:     ":9090",
			PrometheusPath: "/metrics",
		},
	}
}

// Load reads a YAML config file, expands environment references against
// the process environment (after loading any .env/.env.local files), and
// overlays the result onto Default().
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	expanded := expandEnvVarsInData(generic)

	reencoded, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("re-encode expanded config: %w", err)
	}
	if err := yaml.Unmarshal(reencoded, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would violate an invariant the
// rest of the system assumes holds (spec §6/§8).
func (c *Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidenceThreshold must be within [0,1], got %f", c.ConfidenceThreshold)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.maxRetries must be >= 0")
	}
	if c.Retry.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("retry.backoffMultiplier must be > 1.0")
	}
	if c.MaxConcurrentIsolated < 0 {
		return fmt.Errorf("maxConcurrentIsolated must be >= 0")
	}
	if c.SQLIndex.Enabled && c.SQLIndex.Driver != "sqlite3" && c.SQLIndex.Driver != "postgres" {
		return fmt.Errorf("sqlIndex.driver must be sqlite3 or postgres, got %q", c.SQLIndex.Driver)
	}
	return nil
}
