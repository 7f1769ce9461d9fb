package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5, cfg.Worker.MaxConcurrentLLM)
	assert.Equal(t, 5, cfg.Worker.OCRPollIntervalSeconds)
	assert.Equal(t, 600, cfg.Worker.OCRMaxWaitSeconds)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PGDATABASE", "qe_test")
	t.Setenv("WORKER_MAX_CONCURRENT_LLM", "2")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "qe_test", cfg.Database.Database)
	assert.Equal(t, 2, cfg.Worker.MaxConcurrentLLM)
}

func TestValidateRejectsBadWorkerSettings(t *testing.T) {
	t.Setenv("WORKER_MAX_CONCURRENT_LLM", "0")
	_, err := Load("dev")
	require.Error(t, err)

	t.Setenv("WORKER_MAX_CONCURRENT_LLM", "5")
	t.Setenv("WORKER_OCR_MAX_WAIT_SECONDS", "2")
	t.Setenv("WORKER_OCR_POLL_INTERVAL_SECONDS", "5")
	_, err = Load("dev")
	require.Error(t, err)
}

func TestConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p",
		Database: "qe", SSLMode: "require",
	}
	assert.Equal(t,
		"host=db port=5433 user=u password=p dbname=qe sslmode=require",
		cfg.ConnectionString())
}
