package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides read by LoadViper.
const EnvPrefix = "BULKFLOW"

// Load loads a configuration from a YAML file, substituting ${VAR} references.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadBulkConfig starts from NewBulkConfig defaults, applies the YAML file
// when path is non-empty, then environment overrides such as
// BULKFLOW_DATABASE_DSN or BULKFLOW_ROUTING_DELETE_ENABLED, and validates.
func LoadBulkConfig(path, name string) (*BulkConfig, error) {
	cfg := NewBulkConfig(name)
	if path != "" {
		if err := Load(path, cfg); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	if err := applyEnv(v, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays BULKFLOW_* environment variables onto cfg.
func applyEnv(v *viper.Viper, cfg *BulkConfig) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"name",
		"database.driver", "database.dsn", "database.schema", "database.max_conns", "database.command_timeout",
		"routing.insert_enabled", "routing.delete_enabled", "routing.update_enabled", "routing.disabled",
		"copy.check_constraints", "copy.fire_triggers", "copy.keep_nulls", "copy.table_lock",
		"defaults.propagate_values", "defaults.ignore_default_values", "defaults.identity_insert",
		"observability.log_level", "observability.log_encoding", "observability.enable_metrics",
		"observability.metrics_addr", "observability.enable_tracing", "observability.tracing_sample_rate",
	} {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if v.IsSet("name") {
		cfg.Name = v.GetString("name")
	}
	if v.IsSet("database.driver") {
		cfg.Database.Driver = v.GetString("database.driver")
	}
	if v.IsSet("database.dsn") {
		cfg.Database.DSN = v.GetString("database.dsn")
	}
	if v.IsSet("database.schema") {
		cfg.Database.Schema = v.GetString("database.schema")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt("database.max_conns")
	}
	if v.IsSet("database.command_timeout") {
		cfg.Database.CommandTimeout = v.GetDuration("database.command_timeout")
	}
	if v.IsSet("routing.insert_enabled") {
		cfg.Routing.InsertEnabled = v.GetBool("routing.insert_enabled")
	}
	if v.IsSet("routing.delete_enabled") {
		cfg.Routing.DeleteEnabled = v.GetBool("routing.delete_enabled")
	}
	if v.IsSet("routing.update_enabled") {
		cfg.Routing.UpdateEnabled = v.GetBool("routing.update_enabled")
	}
	if v.IsSet("routing.disabled") {
		cfg.Routing.Disabled = v.GetBool("routing.disabled")
	}
	if v.IsSet("copy.check_constraints") {
		cfg.Copy.CheckConstraints = v.GetBool("copy.check_constraints")
	}
	if v.IsSet("copy.fire_triggers") {
		cfg.Copy.FireTriggers = v.GetBool("copy.fire_triggers")
	}
	if v.IsSet("copy.keep_nulls") {
		cfg.Copy.KeepNulls = v.GetBool("copy.keep_nulls")
	}
	if v.IsSet("copy.table_lock") {
		cfg.Copy.TableLock = v.GetBool("copy.table_lock")
	}
	if v.IsSet("defaults.propagate_values") {
		cfg.Defaults.PropagateValues = v.GetBool("defaults.propagate_values")
	}
	if v.IsSet("defaults.ignore_default_values") {
		cfg.Defaults.IgnoreDefaultValues = v.GetBool("defaults.ignore_default_values")
	}
	if v.IsSet("defaults.identity_insert") {
		cfg.Defaults.IdentityInsert = v.GetBool("defaults.identity_insert")
	}
	if v.IsSet("observability.log_level") {
		cfg.Observability.LogLevel = v.GetString("observability.log_level")
	}
	if v.IsSet("observability.log_encoding") {
		cfg.Observability.LogEncoding = v.GetString("observability.log_encoding")
	}
	if v.IsSet("observability.enable_metrics") {
		cfg.Observability.EnableMetrics = v.GetBool("observability.enable_metrics")
	}
	if v.IsSet("observability.metrics_addr") {
		cfg.Observability.MetricsAddr = v.GetString("observability.metrics_addr")
	}
	if v.IsSet("observability.enable_tracing") {
		cfg.Observability.EnableTracing = v.GetBool("observability.enable_tracing")
	}
	if v.IsSet("observability.tracing_sample_rate") {
		cfg.Observability.TracingSampleRate = v.GetFloat64("observability.tracing_sample_rate")
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
