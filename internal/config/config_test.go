package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 10, cfg.Postgres.PoolMax)
	assert.Equal(t, 4, cfg.Worker.PoolSize)
	assert.True(t, cfg.Worker.Headless)
	assert.Equal(t, 31, cfg.Fingerprint.SeedBits)
	assert.Equal(t, "text-embedding-004", cfg.GenAI.EmbeddingModel)
	assert.Equal(t, "chimera_hivemind.db", cfg.HiveMindPath)
	assert.Equal(t, ":8090", cfg.HealthAddr)
	assert.False(t, cfg.PersistenceEnabled())
}

func TestApplyEnvOverlay(t *testing.T) {
	t.Run("REDIS_URL overrides default", func(t *testing.T) {
		t.Setenv("REDIS_URL", "redis://cache:6380")
		cfg := DefaultConfig()
		applyEnvOverlay(&cfg)
		assert.Equal(t, "redis://cache:6380", cfg.Redis.URL)
	})

	t.Run("DATABASE_URL enables persistence", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/chimera")
		cfg := DefaultConfig()
		applyEnvOverlay(&cfg)
		assert.Equal(t, "postgres://localhost/chimera", cfg.Postgres.DatabaseURL)
		assert.True(t, cfg.PersistenceEnabled())
	})

	t.Run("DB_POOL_MAX rejects non-positive values", func(t *testing.T) {
		t.Setenv("DB_POOL_MAX", "-5")
		cfg := DefaultConfig()
		applyEnvOverlay(&cfg)
		assert.Equal(t, 10, cfg.Postgres.PoolMax)
	})

	t.Run("DB_POOL_MAX accepts a positive override", func(t *testing.T) {
		t.Setenv("DB_POOL_MAX", "25")
		cfg := DefaultConfig()
		applyEnvOverlay(&cfg)
		assert.Equal(t, 25, cfg.Postgres.PoolMax)
	})

	t.Run("GENAI_API_KEY sets the genai client key", func(t *testing.T) {
		t.Setenv("GENAI_API_KEY", "genai-key")
		cfg := DefaultConfig()
		applyEnvOverlay(&cfg)
		assert.Equal(t, "genai-key", cfg.GenAI.APIKey)
	})

	t.Run("gatekeep keys overlay independently", func(t *testing.T) {
		t.Setenv("CARRIER_LOOKUP_API_KEY", "carrier-key")
		t.Setenv("DNC_LOOKUP_API_KEY", "dnc-key")
		t.Setenv("DEMOGRAPHICS_API_KEY", "demo-key")
		cfg := DefaultConfig()
		applyEnvOverlay(&cfg)
		assert.Equal(t, "carrier-key", cfg.Gatekeep.CarrierAPIKey)
		assert.Equal(t, "dnc-key", cfg.Gatekeep.DNCAPIKey)
		assert.Equal(t, "demo-key", cfg.Gatekeep.DemographicsKey)
	})
}

func TestParsePositiveInt(t *testing.T) {
	n, err := parsePositiveInt("12")
	assert.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = parsePositiveInt("0")
	assert.Error(t, err)

	_, err = parsePositiveInt("not-a-number")
	assert.Error(t, err)
}
