package embedding

import (
	"context"
	"crypto/sha256"
)

// =============================================================================
// DETERMINISTIC HASH ENGINE
// =============================================================================
// The reference backend. It requires no external service and is fully
// deterministic: the same text always produces the same vector, so tests and
// replay are reproducible. It is not a learned model; similarity quality is
// limited to lexical overlap plus coarse text statistics.

// DefaultHashDimensions is the default output dimension of the hash engine.
const DefaultHashDimensions = 128

// HashEngine produces deterministic embeddings from a SHA-256 digest of the
// text plus three lexical features, L2-normalized.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hash engine with the given dimension.
// Dimensions below 8 fall back to the default.
func NewHashEngine(dims int) *HashEngine {
	if dims < 8 {
		dims = DefaultHashDimensions
	}
	return &HashEngine{dims: dims}
}

// Embed generates a deterministic embedding for a single text.
func (e *HashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dims)
	if text == "" {
		return v, nil
	}

	// Hash bytes fill the first min(32, D) positions, scaled to [-1, 1].
	digest := sha256.Sum256([]byte(text))
	n := len(digest)
	if n > e.dims {
		n = e.dims
	}
	for i := 0; i < n; i++ {
		v[i] = float32(digest[i])/127.5 - 1.0
	}

	// The last three positions carry lexical features so that texts with
	// similar statistics land closer together than hash noise alone allows.
	stats := computeTextStats(text)
	wc := float32(stats.wordCount) / 100.0
	if wc > 1 {
		wc = 1
	}
	v[e.dims-3] = wc
	v[e.dims-2] = float32(stats.avgWordLength / 10.0)
	v[e.dims-1] = float32(stats.typeTokenRatio)

	return L2Normalize(v), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the output dimension.
func (e *HashEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash:sha256"
}
