package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBulkConfigDefaults(t *testing.T) {
	cfg := NewBulkConfig("loader")

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Database.CommandTimeout)
	assert.True(t, cfg.Routing.InsertEnabled)
	assert.True(t, cfg.Routing.DeleteEnabled)
	assert.False(t, cfg.Routing.UpdateEnabled)
	assert.True(t, cfg.Defaults.PropagateValues)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*BulkConfig)
		wantError bool
	}{
		{"valid", func(*BulkConfig) {}, false},
		{"mysql", func(c *BulkConfig) { c.Database.Driver = DriverMySQL }, false},
		{"missing name", func(c *BulkConfig) { c.Name = "" }, true},
		{"unknown driver", func(c *BulkConfig) { c.Database.Driver = "oracle" }, true},
		{"negative timeout", func(c *BulkConfig) { c.Database.CommandTimeout = -time.Second }, true},
		{"negative conns", func(c *BulkConfig) { c.Database.MaxConns = -1 }, true},
		{"sample rate", func(c *BulkConfig) { c.Observability.TracingSampleRate = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewBulkConfig("loader")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetCommandTimeout(t *testing.T) {
	d := DatabaseConfig{}
	assert.Equal(t, DefaultCommandTimeout, d.GetCommandTimeout())
	d.CommandTimeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, d.GetCommandTimeout())
}

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("BULKFLOW_TEST_DSN", "postgres://db/app")
	path := filepath.Join(t.TempDir(), "bulkflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: orders
database:
  driver: postgres
  dsn: ${BULKFLOW_TEST_DSN}
  command_timeout: 30s
routing:
  delete_enabled: false
`), 0o600))

	cfg := NewBulkConfig("")
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, "postgres://db/app", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Database.CommandTimeout)
	assert.True(t, cfg.Routing.InsertEnabled)
	assert.False(t, cfg.Routing.DeleteEnabled)
}

func TestLoadBulkConfigEnvOverrides(t *testing.T) {
	t.Setenv("BULKFLOW_DATABASE_DRIVER", "mysql")
	t.Setenv("BULKFLOW_ROUTING_INSERT_ENABLED", "false")
	t.Setenv("BULKFLOW_DATABASE_COMMAND_TIMEOUT", "2m")

	cfg, err := LoadBulkConfig("", "env-loader")
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.False(t, cfg.Routing.InsertEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Database.CommandTimeout)
}

func TestLoadBulkConfigInvalid(t *testing.T) {
	t.Setenv("BULKFLOW_DATABASE_DRIVER", "oracle")

	_, err := LoadBulkConfig("", "env-loader")
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := NewBulkConfig("saved")
	cfg.Copy.TableLock = true

	require.NoError(t, Save(path, cfg))

	loaded := &BulkConfig{}
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, cfg, loaded)
}
