// Package cache provides a bounded LRU cache over knowledge items, plus
// lookup-assisting secondary views by topic, type, tag, and status.
//
// The cache is strictly a read accelerator: contents are always a subset of
// the primary store, and a store-level delete must remove the item here too.
package cache

import (
	"container/list"
	"sync"

	"go.uber.org/zap"

	"knowledgehub/internal/types"
)

// DefaultCapacity is used when a non-positive capacity is configured.
const DefaultCapacity = 1000

// Stats reports cache effectiveness counters.
type Stats struct {
	Capacity  int
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is a fixed-capacity LRU cache of knowledge items keyed by id.
// Get and Add promote to most-recently-used; overflow evicts the LRU item
// and removes it from every secondary view.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recently used
	elems    map[string]*list.Element

	byTopic  map[string]map[string]struct{}
	byType   map[string]map[string]struct{}
	byTag    map[string]map[string]struct{}
	byStatus map[string]map[string]struct{}

	hits      uint64
	misses    uint64
	evictions uint64

	logger *zap.Logger
}

// New creates a cache with the given capacity.
func New(capacity int, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		elems:    make(map[string]*list.Element, capacity),
		byTopic:  make(map[string]map[string]struct{}),
		byType:   make(map[string]map[string]struct{}),
		byTag:    make(map[string]map[string]struct{}),
		byStatus: make(map[string]map[string]struct{}),
		logger:   logger,
	}
}

// Add inserts or refreshes an item and promotes it to most-recently-used.
// The item is cloned on the way in so cached state stays byte-equivalent to
// the store copy at insertion time.
func (c *Cache) Add(item *types.KnowledgeItem) {
	if item == nil {
		return
	}
	clone := item.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.elems[clone.ID]; ok {
		c.removeFromViews(elem.Value.(*types.KnowledgeItem))
		elem.Value = clone
		c.addToViews(clone)
		c.ll.MoveToFront(elem)
		return
	}

	elem := c.ll.PushFront(clone)
	c.elems[clone.ID] = elem
	c.addToViews(clone)

	for c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

// Get returns a clone of the cached item and promotes it, or nil on miss.
func (c *Cache) Get(id string) *types.KnowledgeItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.elems[id]
	if !ok {
		c.misses++
		return nil
	}
	c.hits++
	c.ll.MoveToFront(elem)
	return elem.Value.(*types.KnowledgeItem).Clone()
}

// Remove deletes an item from the cache and all views. Returns false if the
// id was not cached.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.elems[id]
	if !ok {
		return false
	}
	item := elem.Value.(*types.KnowledgeItem)
	c.ll.Remove(elem)
	delete(c.elems, id)
	c.removeFromViews(item)
	return true
}

// Clear empties the cache and all views.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll = list.New()
	c.elems = make(map[string]*list.Element, c.capacity)
	c.byTopic = make(map[string]map[string]struct{})
	c.byType = make(map[string]map[string]struct{})
	c.byTag = make(map[string]map[string]struct{})
	c.byStatus = make(map[string]map[string]struct{})
}

// Contains reports cache membership without promoting.
func (c *Cache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.elems[id]
	return ok
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// ByTopic returns clones of cached items with the given topic.
// These views answer only from cache contents; callers needing the
// authoritative answer go to the store.
func (c *Cache) ByTopic(topic string) []*types.KnowledgeItem {
	return c.collect(c.byTopicLocked, topic)
}

// ByType returns clones of cached items with the given type.
func (c *Cache) ByType(t types.KnowledgeType) []*types.KnowledgeItem {
	return c.collect(c.byTypeLocked, string(t))
}

// ByTag returns clones of cached items carrying the given tag.
func (c *Cache) ByTag(tag string) []*types.KnowledgeItem {
	return c.collect(c.byTagLocked, tag)
}

// ByStatus returns clones of cached items with the given status.
func (c *Cache) ByStatus(s types.KnowledgeStatus) []*types.KnowledgeItem {
	return c.collect(c.byStatusLocked, string(s))
}

// Stats returns a snapshot of the hit/miss/eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Capacity:  c.capacity,
		Size:      c.ll.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// =============================================================================
// INTERNALS
// =============================================================================

func (c *Cache) collect(view func(string) map[string]struct{}, key string) []*types.KnowledgeItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := view(key)
	if len(ids) == 0 {
		return nil
	}
	out := make([]*types.KnowledgeItem, 0, len(ids))
	for id := range ids {
		if elem, ok := c.elems[id]; ok {
			out = append(out, elem.Value.(*types.KnowledgeItem).Clone())
		}
	}
	return out
}

func (c *Cache) byTopicLocked(key string) map[string]struct{}  { return c.byTopic[key] }
func (c *Cache) byTypeLocked(key string) map[string]struct{}   { return c.byType[key] }
func (c *Cache) byTagLocked(key string) map[string]struct{}    { return c.byTag[key] }
func (c *Cache) byStatusLocked(key string) map[string]struct{} { return c.byStatus[key] }

// evictOldest removes the least-recently-used item (lock must be held).
func (c *Cache) evictOldest() {
	elem := c.ll.Back()
	if elem == nil {
		return
	}
	item := elem.Value.(*types.KnowledgeItem)
	c.ll.Remove(elem)
	delete(c.elems, item.ID)
	c.removeFromViews(item)
	c.evictions++
}

func (c *Cache) addToViews(item *types.KnowledgeItem) {
	addKey(c.byTopic, item.Topic, item.ID)
	addKey(c.byType, string(item.Type), item.ID)
	addKey(c.byStatus, string(item.Status), item.ID)
	for _, tag := range item.Tags {
		addKey(c.byTag, tag, item.ID)
	}
}

func (c *Cache) removeFromViews(item *types.KnowledgeItem) {
	dropKey(c.byTopic, item.Topic, item.ID)
	dropKey(c.byType, string(item.Type), item.ID)
	dropKey(c.byStatus, string(item.Status), item.ID)
	for _, tag := range item.Tags {
		dropKey(c.byTag, tag, item.ID)
	}
}

func addKey(m map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

// dropKey removes id from the set under key, deleting empty keys so the
// view maps do not grow without bound.
func dropKey(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
