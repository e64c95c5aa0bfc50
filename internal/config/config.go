// Package config loads the knowledgehub configuration from YAML with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all knowledgehub configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Repository configuration
	Repository RepositoryConfig `yaml:"repository"`

	// Schema validation configuration
	Validation ValidationConfig `yaml:"validation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // hash, ollama, genai
	HashDimensions int    `yaml:"hash_dimensions"`
	OllamaBaseURL  string `yaml:"ollama_base_url"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	TaskType       string `yaml:"task_type"`
}

// RepositoryConfig configures the knowledge repository core.
type RepositoryConfig struct {
	CacheCapacity int    `yaml:"cache_capacity"`
	QueueSize     int    `yaml:"queue_size"`
	SnapshotPath  string `yaml:"snapshot_path"`
}

// ValidationConfig configures content schema validation.
type ValidationConfig struct {
	SchemaPath string `yaml:"schema_path"`
	HotReload  bool   `yaml:"hot_reload"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "knowledgehub",
		Version: "1.0.0",

		Embedding: EmbeddingConfig{
			Provider:       "hash",
			HashDimensions: 128,
			OllamaBaseURL:  "http://localhost:11434",
			OllamaModel:    "nomic-embed-text",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "RETRIEVAL_DOCUMENT",
		},

		Repository: RepositoryConfig{
			CacheCapacity: 1000,
			QueueSize:     256,
		},

		Validation: ValidationConfig{
			SchemaPath: "",
			HotReload:  false,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides layers KNOWLEDGEHUB_* environment variables over the
// loaded configuration. Provider API keys also come from their usual names.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KNOWLEDGEHUB_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("KNOWLEDGEHUB_OLLAMA_URL"); v != "" {
		c.Embedding.OllamaBaseURL = v
	}
	if v := os.Getenv("KNOWLEDGEHUB_OLLAMA_MODEL"); v != "" {
		c.Embedding.OllamaModel = v
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
	if v := os.Getenv("KNOWLEDGEHUB_SNAPSHOT"); v != "" {
		c.Repository.SnapshotPath = v
	}
	if v := os.Getenv("KNOWLEDGEHUB_SCHEMA_PATH"); v != "" {
		c.Validation.SchemaPath = v
	}
	if v := os.Getenv("KNOWLEDGEHUB_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Repository.CacheCapacity = n
		}
	}
	if v := os.Getenv("KNOWLEDGEHUB_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Repository.QueueSize = n
		}
	}
	if v := os.Getenv("KNOWLEDGEHUB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if v := os.Getenv("KNOWLEDGEHUB_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "knowledgehub.yaml"
	}
	return filepath.Join(home, ".knowledgehub", "config.yaml")
}
