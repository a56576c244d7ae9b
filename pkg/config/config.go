// Package config provides the configuration system for bulkflow.
// BulkConfig groups database, routing, copy and observability settings
// into one structure that can be loaded from YAML, overlaid from the
// environment and validated before use.
//
// Example usage:
//
//	cfg := config.NewBulkConfig("orders-loader")
//	cfg.Database.DSN = "postgres://localhost/app"
//	cfg.Routing.DeleteEnabled = false
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// DefaultCommandTimeout applies to every statement and copy when the
// configuration leaves it unset.
const DefaultCommandTimeout = 60 * time.Second

// BulkConfig is the top-level configuration structure.
type BulkConfig struct {
	// Name identifies the loader instance in logs and metrics
	Name string `yaml:"name" json:"name"`

	// Database selects the driver and connection
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Routing decides which batched operations go through bulk copy
	Routing RoutingConfig `yaml:"routing" json:"routing"`

	// Copy holds the native copy flags applied on top of the per-operation defaults
	Copy CopyConfig `yaml:"copy" json:"copy"`

	// Defaults holds the per-call option defaults for the public API
	Defaults DefaultsConfig `yaml:"defaults" json:"defaults"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// DatabaseConfig contains connection settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "mysql"
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver connection string
	DSN string `yaml:"dsn" json:"dsn"`
	// Schema is the default schema for tables without one
	Schema string `yaml:"schema" json:"schema"`
	// MaxConns caps the connection pool
	MaxConns int `yaml:"max_conns" json:"max_conns"`
	// CommandTimeout bounds each statement and bulk copy
	CommandTimeout time.Duration `yaml:"command_timeout" json:"command_timeout"`
}

// RoutingConfig contains the per-operation bulk routing switches.
type RoutingConfig struct {
	InsertEnabled bool `yaml:"insert_enabled" json:"insert_enabled"`
	DeleteEnabled bool `yaml:"delete_enabled" json:"delete_enabled"`
	// UpdateEnabled routes modified entities to bulk mode, where they fail
	// because no bulk update exists. Leave it off.
	UpdateEnabled bool `yaml:"update_enabled" json:"update_enabled"`
	// Disabled starts sessions with bulk routing switched off
	Disabled bool `yaml:"disabled" json:"disabled"`
}

// CopyConfig contains extra native copy flags.
type CopyConfig struct {
	CheckConstraints bool `yaml:"check_constraints" json:"check_constraints"`
	FireTriggers     bool `yaml:"fire_triggers" json:"fire_triggers"`
	KeepNulls        bool `yaml:"keep_nulls" json:"keep_nulls"`
	TableLock        bool `yaml:"table_lock" json:"table_lock"`
}

// DefaultsConfig contains option defaults for bulk.Insert and bulk.Delete.
type DefaultsConfig struct {
	PropagateValues     bool `yaml:"propagate_values" json:"propagate_values"`
	IgnoreDefaultValues bool `yaml:"ignore_default_values" json:"ignore_default_values"`
	IdentityInsert      bool `yaml:"identity_insert" json:"identity_insert"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogEncoding is json or console
	LogEncoding string `yaml:"log_encoding" json:"log_encoding"`
	// EnableMetrics exposes Prometheus metrics on MetricsAddr
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	MetricsAddr   string `yaml:"metrics_addr" json:"metrics_addr"`
	// EnableTracing activates OpenTelemetry spans per bulk phase
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// NewBulkConfig creates a BulkConfig with defaults: PostgreSQL, bulk insert
// and delete routing on, update off, value propagation on, 60s timeout.
func NewBulkConfig(name string) *BulkConfig {
	return &BulkConfig{
		Name: name,
		Database: DatabaseConfig{
			Driver:         DriverPostgres,
			Schema:         "",
			MaxConns:       4,
			CommandTimeout: DefaultCommandTimeout,
		},
		Routing: RoutingConfig{
			InsertEnabled: true,
			DeleteEnabled: true,
			UpdateEnabled: false,
		},
		Defaults: DefaultsConfig{
			PropagateValues: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "json",
			MetricsAddr:       ":9090",
			TracingSampleRate: 0.1,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *BulkConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout cannot be negative")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("max_conns cannot be negative")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("tracing_sample_rate must be between 0 and 1")
	}
	return nil
}

// GetCommandTimeout returns the command timeout, falling back to the default.
func (d *DatabaseConfig) GetCommandTimeout() time.Duration {
	if d.CommandTimeout <= 0 {
		return DefaultCommandTimeout
	}
	return d.CommandTimeout
}
