package repository

import (
	"knowledgehub/internal/cache"
)

// Stats is a point-in-time snapshot of repository counters.
type Stats struct {
	Items         int
	Vectors       int
	Topics        int
	Sources       int
	Tags          int
	Subscriptions int
	Cache         cache.Stats
	ByType        map[string]int
	ByStatus      map[string]int
}

// Stats returns the current repository counters.
func (r *Repository) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[string]int, len(r.byType))
	for k, ids := range r.byType {
		byType[k] = len(ids)
	}
	byStatus := make(map[string]int, len(r.byStatus))
	for k, ids := range r.byStatus {
		byStatus[k] = len(ids)
	}

	return Stats{
		Items:         len(r.items),
		Vectors:       r.vectors.Count(),
		Topics:        len(r.byTopic),
		Sources:       len(r.bySource),
		Tags:          len(r.byTag),
		Subscriptions: r.subs.Count(),
		Cache:         r.cache.Stats(),
		ByType:        byType,
		ByStatus:      byStatus,
	}
}
