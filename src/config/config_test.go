package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "8080")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "travvy")
	t.Setenv("DB_PASS", "secret")
	t.Setenv("DB_NAME", "travvy")
	t.Setenv("AI_SERVICE_URL", "http://ai:9000")
}

func TestNewConfig_LoadsRequiredAndDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://ai:9000", cfg.AIServiceURL)
	assert.Equal(t, 5432, cfg.Database.Port)

	// Tuning knobs fall back to defaults.
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.InactivityWindow)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 3, cfg.JobMaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.JobBackoffBase)
}

func TestNewConfig_MissingRequiredVariable(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASS", "")

	_, err := NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASS")
}

func TestNewConfig_OverridesFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("JOB_MAX_RETRIES", "5")
	t.Setenv("SESSION_INACTIVITY_SECONDS", "10")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, 5, cfg.JobMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.InactivityWindow)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "travvy",
		Password: "secret",
		DBName:   "trips",
	}.DSN()

	assert.Equal(t, "host=db port=5432 user=travvy password=secret dbname=trips sslmode=disable", dsn)
}
