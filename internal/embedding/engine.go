// Package embedding provides vector embedding generation for semantic search.
// Supports a deterministic hash backend (default), Ollama (local), and
// Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for engines that support health
// checks. If an engine implements it, callers can verify availability
// before attempting batch operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds embedding engine configuration.
type Config struct {
	// Provider: "hash", "ollama", or "genai"
	Provider string `yaml:"provider" json:"provider"`

	// Hash backend: output dimension (default 128)
	HashDimensions int `yaml:"hash_dimensions" json:"hash_dimensions"`

	// Ollama configuration
	OllamaEndpoint string `yaml:"ollama_endpoint" json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `yaml:"ollama_model" json:"ollama_model"`       // Default: "embeddinggemma"

	// GenAI configuration
	GenAIAPIKey string `yaml:"genai_api_key" json:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model" json:"genai_model"` // Default: "gemini-embedding-001"
	TaskType    string `yaml:"task_type" json:"task_type"`     // e.g. "SEMANTIC_SIMILARITY"
}

// DefaultConfig returns sensible defaults. The hash backend needs no
// external service, so it is the default.
func DefaultConfig() Config {
	return Config{
		Provider:       "hash",
		HashDimensions: DefaultHashDimensions,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		GenAIModel:     "gemini-embedding-001",
		TaskType:       "SEMANTIC_SIMILARITY",
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg Config, logger *zap.Logger) (Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var engine Engine
	var err error

	switch cfg.Provider {
	case "hash", "":
		engine = NewHashEngine(cfg.HashDimensions)
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'hash', 'ollama' or 'genai')", cfg.Provider)
	}

	if err != nil {
		logger.Error("failed to create embedding engine", zap.String("provider", cfg.Provider), zap.Error(err))
		return nil, err
	}

	logger.Info("embedding engine created",
		zap.String("name", engine.Name()),
		zap.Int("dimensions", engine.Dimensions()))
	return engine, nil
}

// =============================================================================
// VECTOR HELPERS
// =============================================================================

// L2Normalize scales v to unit length in place and returns it.
// The zero vector is returned unchanged.
func L2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical and 0 orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i]) * float64(b[i])
		aMagnitude += float64(a[i]) * float64(a[i])
		bMagnitude += float64(b[i]) * float64(b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// IsFinite reports whether every component of v is a finite number.
func IsFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
