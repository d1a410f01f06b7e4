package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validConfigPath     = "testdata/valid_config.yaml"
	expansionConfigPath = "testdata/expansion_config.yaml"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "race-control", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Weather.Enabled)
	assert.Equal(t, "*/30 * * * *", cfg.Weather.RefreshCron)
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load("testdata/nonexistent_config.yaml")
	require.Error(t, err)
}

// TestLoadConfigEnvExpansion tests ${VAR} placeholder expansion
func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "expanded_secret_value")

	cfg, err := Load(expansionConfigPath)
	require.NoError(t, err)

	assert.Equal(t, "expanded_secret_value", cfg.Database.Password)
}

// TestValidateValidConfig tests validation of a complete configuration
func TestValidateValidConfig(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)

	assert.NoError(t, Validate(cfg))
}

// TestValidateRejectsBadEnvironment tests the custom environment validator
func TestValidateRejectsBadEnvironment(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)

	cfg.App.Environment = "invalid"
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Environment")
}

// TestValidateRejectsBadCron tests the custom cron expression validator
func TestValidateRejectsBadCron(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)

	cfg.Weather.RefreshCron = "not a cron"
	assert.Error(t, Validate(cfg))
}

// TestValidateCrossFieldIdleConnections tests pool cross-field validation
func TestValidateCrossFieldIdleConnections(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)

	cfg.Database.MaxIdleConnections = cfg.Database.MaxConnections + 1
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_idle_connections")
}

// TestValidateWeatherRequiresURL tests that enabling weather demands a base URL
func TestValidateWeatherRequiresURL(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)

	cfg.Weather.BaseURL = ""
	assert.Error(t, Validate(cfg))
}

// TestGetDatabaseDSN tests DSN assembly
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	require.NoError(t, err)

	dsn := cfg.GetDatabaseDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=race_control")
	assert.Contains(t, dsn, "sslmode=disable")
}

// TestLoadWithDefaultsMissingFile tests defaults when no file is present
func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults("testdata/nonexistent_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "8080", cfg.Ops.Port)
	assert.False(t, cfg.Weather.Enabled)
	_ = os.Unsetenv("RACE_CONTROL_APP_ENVIRONMENT")
}
