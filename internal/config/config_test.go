package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"corpora/internal/config"
)

func TestLoadConfig(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_PipelineDefaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 4, cfg.IngestionConcurrency)
	assert.Equal(t, 512, cfg.ChunkMaxTokens)
	assert.Equal(t, 1, cfg.ChunkOverlap)
	assert.Equal(t, 60, cfg.RetryBaseSeconds)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 3000, cfg.SoftTimeLimitSeconds)
	assert.Equal(t, 3600, cfg.HardTimeLimitSeconds)
	assert.Equal(t, 5, cfg.DefaultTopK)
}

func TestLoadConfig_Overrides(t *testing.T) {
	os.Setenv("INGESTION_CONCURRENCY", "10")
	os.Setenv("MAX_ATTEMPTS", "5")
	defer os.Unsetenv("INGESTION_CONCURRENCY")
	defer os.Unsetenv("MAX_ATTEMPTS")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, 10, cfg.IngestionConcurrency)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestValidate_RejectsZeroAttempts(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)

	cfg.MaxAttempts = 0
	assert.Error(t, cfg.Validate())
}
