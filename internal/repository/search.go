package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"knowledgehub/internal/embedding"
	"knowledgehub/internal/types"
	"knowledgehub/internal/vector"
)

// Search embeds the query text and returns the k most similar items by
// cosine similarity, best first. Ties break by insertion order. Vector
// hits whose item has been removed are skipped rather than surfaced.
func (r *Repository) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if r.stopped.Load() {
		return nil, ErrClosed
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return r.searchByVector(qvec, k)
}

// SearchByVector runs a similarity search with a caller-supplied vector.
func (r *Repository) SearchByVector(qvec []float32, k int) ([]SearchResult, error) {
	if r.stopped.Load() {
		return nil, ErrClosed
	}
	return r.searchByVector(qvec, k)
}

// SimilarTo returns up to k items most similar to the stored item id,
// excluding the item itself.
func (r *Repository) SimilarTo(id string, k int) ([]SearchResult, error) {
	if r.stopped.Load() {
		return nil, ErrClosed
	}
	hits, err := r.vectors.SearchByID(id, k)
	if err != nil {
		if errors.Is(err, vector.ErrUnknownID) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreFailed, err)
	}
	return r.joinHits(hits), nil
}

// Filter returns up to limit items satisfying pred, in creation order.
// limit <= 0 means no limit.
func (r *Repository) Filter(pred func(*types.KnowledgeItem) bool, limit int) []*types.KnowledgeItem {
	all := r.All()
	out := make([]*types.KnowledgeItem, 0)
	for _, item := range all {
		if pred == nil || pred(item) {
			out = append(out, item)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// SearchAndFilter combines similarity search with a predicate. The vector
// store is over-fetched (2k) so the predicate has room to reject hits and
// still fill the result.
func (r *Repository) SearchAndFilter(ctx context.Context, query string, k int, pred func(*types.KnowledgeItem) bool) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	hits, err := r.Search(ctx, query, 2*k)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, k)
	for _, hit := range hits {
		if pred == nil || pred(hit.Item) {
			out = append(out, hit)
			if len(out) == k {
				break
			}
		}
	}
	return out, nil
}

// UpdatedSince returns every item whose UpdatedAt is strictly after t, in
// creation order. An item updated exactly at t is excluded.
func (r *Repository) UpdatedSince(t time.Time) []*types.KnowledgeItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.KnowledgeItem, 0)
	for _, item := range r.items {
		if item.UpdatedAt.After(t) {
			out = append(out, item.Clone())
		}
	}
	sortItems(out)
	return out
}

// DefaultCriticalThreshold is the minimum criticality score an item needs
// to count as critical.
const DefaultCriticalThreshold = 0.5

// CriticalUpdatesSince returns items updated strictly after t whose
// criticality score reaches threshold, best first. Rules and procedures
// rank above other types, active items above drafts, and items
// self-declaring priority or a truthy critical flag in metadata rank
// highest. Score ties fall back to most recently updated first.
func (r *Repository) CriticalUpdatesSince(t time.Time, threshold float64) []*types.KnowledgeItem {
	recent := r.UpdatedSince(t)
	if len(recent) == 0 {
		return nil
	}

	type scored struct {
		item  *types.KnowledgeItem
		score float64
	}
	ranked := make([]scored, 0, len(recent))
	for _, item := range recent {
		score := criticalityScore(item)
		if score < threshold {
			continue
		}
		ranked = append(ranked, scored{item: item, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].item.UpdatedAt.After(ranked[j].item.UpdatedAt)
	})

	out := make([]*types.KnowledgeItem, len(ranked))
	for i, s := range ranked {
		out[i] = s.item
	}
	return out
}

// criticalityScore ranks an item for operator attention, clipped to 1.0.
func criticalityScore(item *types.KnowledgeItem) float64 {
	var score float64
	switch item.Type {
	case types.TypeRule:
		score += 0.3
	case types.TypeProcedure:
		score += 0.2
	}
	switch item.Status {
	case types.StatusActive:
		score += 0.2
	case types.StatusDeprecated:
		score += 0.1
	}
	if item.Metadata != nil {
		if p, ok := item.Metadata["priority"]; ok {
			if f, ok := toFloat(p); ok {
				score += f
			}
		}
		if c, ok := item.Metadata["critical"]; ok && isTruthy(c) {
			score += 0.3
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isTruthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "yes" || b == "1"
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return false
}

// searchByVector runs the raw top-K scan and joins hits against the store.
func (r *Repository) searchByVector(qvec []float32, k int) ([]SearchResult, error) {
	hits, err := r.vectors.SearchByVector(qvec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreFailed, err)
	}
	return r.joinHits(hits), nil
}

// joinHits resolves vector hits to item clones, preserving hit order and
// dropping ids that no longer exist in the store.
func (r *Repository) joinHits(hits []vector.Result) []SearchResult {
	if len(hits) == 0 {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		item, ok := r.items[hit.ID]
		if !ok {
			continue
		}
		out = append(out, SearchResult{Item: item.Clone(), Score: hit.Score})
	}
	return out
}

// EmbedText exposes the repository's embedder for callers that need a query
// vector, such as CLI tooling.
func (r *Repository) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return r.embedder.Embed(ctx, embedding.RenderContent(text))
}
