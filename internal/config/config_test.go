package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 128, cfg.Embedding.HashDimensions)
	assert.Equal(t, 1000, cfg.Repository.CacheCapacity)
	assert.Equal(t, 256, cfg.Repository.QueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "hash", cfg.Embedding.Provider)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		doc := `embedding:
  provider: ollama
  ollama_model: custom-model
repository:
  cache_capacity: 42
  snapshot_path: /tmp/kh.db
logging:
  level: debug
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "ollama", cfg.Embedding.Provider)
		assert.Equal(t, "custom-model", cfg.Embedding.OllamaModel)
		assert.Equal(t, 42, cfg.Repository.CacheCapacity)
		assert.Equal(t, "/tmp/kh.db", cfg.Repository.SnapshotPath)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// Untouched sections keep their defaults.
		assert.Equal(t, 256, cfg.Repository.QueueSize)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("embedding: [{{"), 0644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Run("provider and paths", func(t *testing.T) {
		t.Setenv("KNOWLEDGEHUB_EMBEDDING_PROVIDER", "ollama")
		t.Setenv("KNOWLEDGEHUB_SNAPSHOT", "/tmp/env.db")
		t.Setenv("KNOWLEDGEHUB_SCHEMA_PATH", "/tmp/schemas.yaml")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "ollama", cfg.Embedding.Provider)
		assert.Equal(t, "/tmp/env.db", cfg.Repository.SnapshotPath)
		assert.Equal(t, "/tmp/schemas.yaml", cfg.Validation.SchemaPath)
	})

	t.Run("numeric overrides ignore garbage", func(t *testing.T) {
		t.Setenv("KNOWLEDGEHUB_CACHE_CAPACITY", "500")
		t.Setenv("KNOWLEDGEHUB_QUEUE_SIZE", "not-a-number")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 500, cfg.Repository.CacheCapacity)
		assert.Equal(t, 256, cfg.Repository.QueueSize)
	})

	t.Run("gemini key selects genai only when provider unset", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "secret")

		cfg := &Config{}
		cfg.applyEnvOverrides()
		assert.Equal(t, "secret", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)

		cfg = DefaultConfig() // provider already "hash"
		cfg.applyEnvOverrides()
		assert.Equal(t, "hash", cfg.Embedding.Provider)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Repository.CacheCapacity = 7
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, back.Repository.CacheCapacity)
}
