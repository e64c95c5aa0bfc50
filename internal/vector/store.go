// Package vector provides an in-memory store of unit-normalized embedding
// vectors with cosine-similarity top-K search and per-entry metadata.
//
// The reference design is an exact O(N*D) scan: one dot product per stored
// vector against a pre-normalized query. Results are ordered by descending
// similarity; ties break by insertion order, so searches are deterministic.
package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"knowledgehub/internal/embedding"
)

// Sentinel errors for store operations.
var (
	ErrDuplicateID       = errors.New("vector: id already exists")
	ErrUnknownID         = errors.New("vector: id not found")
	ErrDimensionMismatch = errors.New("vector: dimension mismatch")
	ErrNotFinite         = errors.New("vector: non-finite component")
)

// Metadata mirrors the filterable fields of a knowledge item so searches
// can filter without joining against the primary store.
type Metadata struct {
	Topic    string
	Type     string
	SourceID string
	Tags     []string
}

// Result is a single search hit.
type Result struct {
	ID    string
	Score float64
	Meta  Metadata
}

// entry is a stored vector with its insertion sequence.
type entry struct {
	id   string
	vec  []float32
	meta Metadata
	seq  uint64
}

// Store is an in-memory vector store. All vectors share one dimension,
// fixed on construction (or adopted from the first insert when zero).
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []*entry // insertion order, for deterministic tie-breaks
	dims    int
	seq     uint64
	logger  *zap.Logger
}

// NewStore creates a vector store. dims may be 0 to adopt the dimension of
// the first inserted vector.
func NewStore(dims int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]*entry, 256),
		dims:    dims,
		logger:  logger,
	}
}

// Dimensions returns the store's vector dimension (0 until the first insert
// when constructed without one).
func (s *Store) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// AddVector inserts a vector under id. The vector is unit-normalized before
// storage; the zero vector is stored verbatim. Fails with ErrDuplicateID on
// id collision. Callers implementing upsert must use UpdateVector.
func (s *Store) AddVector(id string, v []float32, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	norm, err := s.prepare(v)
	if err != nil {
		return err
	}

	s.seq++
	e := &entry{id: id, vec: norm, meta: cloneMeta(meta), seq: s.seq}
	s.entries[id] = e
	s.order = append(s.order, e)
	return nil
}

// UpdateVector replaces the vector and metadata stored under id.
// The entry keeps its original insertion position.
func (s *Store) UpdateVector(id string, v []float32, meta Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	norm, err := s.prepare(v)
	if err != nil {
		return err
	}
	e.vec = norm
	e.meta = cloneMeta(meta)
	return nil
}

// GetVector returns a copy of the stored vector and metadata for id.
func (s *Store) GetVector(id string) ([]float32, Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, Metadata{}, false
	}
	out := make([]float32, len(e.vec))
	copy(out, e.vec)
	return out, cloneMeta(e.meta), true
}

// DeleteVector removes the entry for id. Returns false if absent.
func (s *Store) DeleteVector(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	for i, o := range s.order {
		if o == e {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// SearchByVector returns the k entries with the highest cosine similarity
// to q. q is normalized before comparison. Ties break by insertion order.
func (s *Store) SearchByVector(q []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	if s.dims != 0 && len(q) != s.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, store has %d", ErrDimensionMismatch, len(q), s.dims)
	}
	if !embedding.IsFinite(q) {
		return nil, ErrNotFinite
	}

	query := make([]float32, len(q))
	copy(query, q)
	embedding.L2Normalize(query)

	results := make([]Result, 0, len(s.order))
	for _, e := range s.order {
		results = append(results, Result{
			ID:    e.id,
			Score: dot(query, e.vec),
			Meta:  e.meta,
		})
	}

	// Stable sort over insertion order gives deterministic tie-breaks.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchByID returns up to k entries most similar to the vector stored under
// id, excluding id itself.
func (s *Store) SearchByID(id string, k int) ([]Result, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	q := make([]float32, len(e.vec))
	copy(q, e.vec)
	s.mu.RUnlock()

	results, err := s.SearchByVector(q, k+1)
	if err != nil {
		return nil, err
	}
	filtered := results[:0]
	for _, r := range results {
		if r.ID == id {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}

// AllIDs returns every stored id in insertion order.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	for i, e := range s.order {
		ids[i] = e.id
	}
	return ids
}

// Count returns the number of stored vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry, 256)
	s.order = nil
}

// prepare validates and normalizes an incoming vector (lock must be held).
func (s *Store) prepare(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if s.dims == 0 {
		s.dims = len(v)
	} else if len(v) != s.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), s.dims)
	}
	if !embedding.IsFinite(v) {
		return nil, ErrNotFinite
	}
	norm := make([]float32, len(v))
	copy(norm, v)
	embedding.L2Normalize(norm)
	return norm, nil
}

// dot computes the dot product of two equal-length vectors. Both sides are
// pre-normalized, so this is the cosine similarity.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cloneMeta(m Metadata) Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = make([]string, len(m.Tags))
		copy(out.Tags, m.Tags)
	}
	return out
}
