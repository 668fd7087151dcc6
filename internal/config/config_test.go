package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelop, cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"Wahed", "Standard Life"}, cfg.PensionPlatforms)
	assert.Equal(t, "flat", cfg.BoundaryPolicy)
	assert.True(t, cfg.ScheduleEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("PENSION_PLATFORMS", "Wahed, Nest ,")
	t.Setenv("BOUNDARY_POLICY", "invested")
	t.Setenv("PIPELINE_SCHEDULE_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"Wahed", "Nest"}, cfg.PensionPlatforms)
	assert.Equal(t, "invested", cfg.BoundaryPolicy)
	assert.False(t, cfg.ScheduleEnabled)
}

func TestLoadRejectsBadEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("ENVIRONMENT", "staging")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadBoundaryPolicy(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("BOUNDARY_POLICY", "linear")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateLake(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateLake())

	cfg.AWSAccessKeyID = "key"
	cfg.AWSSecretAccessKey = "secret"
	assert.Error(t, cfg.ValidateLake(), "bucket still missing")

	cfg.S3Bucket = "fintracker-lake"
	assert.NoError(t, cfg.ValidateLake())
}

func TestValidateSheets(t *testing.T) {
	cfg := &Config{GoogleSheetID: "sheet-id"}
	assert.Error(t, cfg.ValidateSheets(), "credentials missing")

	cfg.GoogleCredentialsJSON = `{"type":"service_account"}`
	assert.NoError(t, cfg.ValidateSheets())

	creds, err := cfg.GoogleCredentials()
	require.NoError(t, err)
	assert.Contains(t, string(creds), "service_account")
}

func TestLedgerAndCachePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.LedgerPath(), "runs.db")
	assert.Contains(t, cfg.CacheDir(), "cache")
}
