// Package repository implements the knowledge repository core: the
// authoritative item store, five secondary indices, the version chain,
// vector search, the bounded item cache, and subscriber notification.
//
// Locking discipline: a single write lock covers the store map, all
// secondary indices, the version chain, vector-store membership, and cache
// membership. Reads take the shared side and never block one another.
// The subscription registry has its own lock; registering a subscriber
// never blocks a publisher.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"knowledgehub/internal/cache"
	"knowledgehub/internal/embedding"
	"knowledgehub/internal/subscription"
	"knowledgehub/internal/types"
	"knowledgehub/internal/vector"
)

// Validator checks content against the schema for its topic.
// A nil validator accepts everything.
type Validator interface {
	Validate(topic string, content interface{}) error
}

// Options configures a Repository.
type Options struct {
	// Embedder computes vectors for content and queries. Nil selects the
	// deterministic hash engine with its default dimension.
	Embedder embedding.Engine

	// Validator checks published content. Nil accepts everything.
	Validator Validator

	// CacheCapacity bounds the item cache (<=0 selects the default).
	CacheCapacity int

	// QueueSize bounds each subscriber's notification queue.
	QueueSize int

	// SnapshotPath enables the sqlite snapshot when non-empty. The
	// snapshot is replayed into memory before Start returns.
	SnapshotPath string

	Logger *zap.Logger
}

// PublishParams are the inputs for creating a knowledge item.
type PublishParams struct {
	// ID is optional; when empty a UUID is assigned.
	ID            string
	Type          types.KnowledgeType
	Topic         string
	Content       interface{}
	Metadata      map[string]interface{}
	SourceID      string
	AccessControl map[string]interface{}
	Tags          []string
	// Vector is optional; when nil the embedder computes one from Content.
	Vector []float32
}

// UpdateParams are the inputs for superseding an item. Nil fields keep the
// previous version's value; provided fields replace it.
type UpdateParams struct {
	Content  interface{}
	Metadata map[string]interface{}
	Status   *types.KnowledgeStatus
	Tags     []string
}

// SearchResult pairs an item with its cosine similarity score.
type SearchResult struct {
	Item  *types.KnowledgeItem
	Score float64
}

// Repository is the process-wide knowledge repository instance.
type Repository struct {
	mu    sync.RWMutex
	items map[string]*types.KnowledgeItem

	// Secondary indices: key -> set of ids. Empty keys are removed.
	byTopic  map[string]map[string]struct{}
	byType   map[string]map[string]struct{}
	bySource map[string]map[string]struct{}
	byTag    map[string]map[string]struct{}
	byStatus map[string]map[string]struct{}

	// successors maps parent id -> ids of direct successors.
	successors map[string][]string

	vectors   *vector.Store
	embedder  embedding.Engine
	validator Validator
	cache     *cache.Cache
	subs      *subscription.Engine
	snapshot  *snapshotStore

	snapshotPath string
	started      atomic.Bool
	stopped      atomic.Bool
	logger       *zap.Logger
}

// New creates a repository. Call Start before wiring it to the event bus.
func New(opts Options) (*Repository, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	embedder := opts.Embedder
	if embedder == nil {
		embedder = embedding.NewHashEngine(embedding.DefaultHashDimensions)
	}

	r := &Repository{
		items:        make(map[string]*types.KnowledgeItem),
		byTopic:      make(map[string]map[string]struct{}),
		byType:       make(map[string]map[string]struct{}),
		bySource:     make(map[string]map[string]struct{}),
		byTag:        make(map[string]map[string]struct{}),
		byStatus:     make(map[string]map[string]struct{}),
		successors:   make(map[string][]string),
		vectors:      vector.NewStore(embedder.Dimensions(), logger),
		embedder:     embedder,
		validator:    opts.Validator,
		cache:        cache.New(opts.CacheCapacity, logger),
		subs:         subscription.NewEngine(opts.QueueSize, logger),
		snapshotPath: opts.SnapshotPath,
		logger:       logger,
	}
	return r, nil
}

// Start initializes the repository. When a snapshot path is configured the
// persisted items are replayed into every in-memory structure (store,
// indices, version chain, vectors, cache) before Start returns.
func (r *Repository) Start(ctx context.Context) error {
	if r.stopped.Load() {
		return ErrClosed
	}
	if !r.started.CompareAndSwap(false, true) {
		return nil // already started
	}

	if r.snapshotPath == "" {
		return nil
	}

	snap, err := openSnapshot(r.snapshotPath)
	if err != nil {
		r.started.Store(false)
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	items, err := snap.loadAll(ctx)
	if err != nil {
		snap.close()
		r.started.Store(false)
		return fmt.Errorf("failed to replay snapshot: %w", err)
	}

	r.mu.Lock()
	for _, item := range items {
		r.items[item.ID] = item
		r.indexItem(item)
		if item.PreviousVersionID != "" {
			r.successors[item.PreviousVersionID] = append(r.successors[item.PreviousVersionID], item.ID)
		}
		if len(item.Vector) > 0 {
			if err := r.vectors.AddVector(item.ID, item.Vector, vectorMeta(item)); err != nil {
				r.logger.Warn("snapshot vector rejected",
					zap.String("knowledge_id", item.ID), zap.Error(err))
			}
		}
		r.cache.Add(item)
	}
	r.snapshot = snap
	r.mu.Unlock()

	r.logger.Info("snapshot replayed",
		zap.String("path", r.snapshotPath), zap.Int("items", len(items)))
	return nil
}

// Stop drains pending subscriber dispatches and closes the snapshot.
// The repository rejects mutations after Stop.
func (r *Repository) Stop(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	r.subs.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil {
		r.snapshot.close()
		r.snapshot = nil
	}
	return nil
}

// =============================================================================
// PUBLISH
// =============================================================================

// Publish validates, embeds, and commits a new knowledge item, returning
// its id. On any failure the repository is untouched.
func (r *Repository) Publish(ctx context.Context, p PublishParams) (string, error) {
	if r.stopped.Load() {
		return "", ErrClosed
	}
	if !p.Type.Valid() {
		return "", fmt.Errorf("%w: unknown knowledge type %q", ErrBadRequest, p.Type)
	}
	if p.Topic == "" {
		return "", fmt.Errorf("%w: topic must not be empty", ErrBadRequest)
	}

	// A caller-supplied id that is already taken fails here, before the
	// validation and embedding work. The check under the write lock below
	// stays authoritative against concurrent publishers.
	if p.ID != "" {
		r.mu.RLock()
		_, exists := r.items[p.ID]
		r.mu.RUnlock()
		if exists {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, p.ID)
		}
	}

	// Validation and embedding are suspension points; both run before the
	// write lock is taken.
	if r.validator != nil {
		if err := r.validator.Validate(p.Topic, p.Content); err != nil {
			return "", fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	vec := p.Vector
	if vec == nil {
		text := embedding.RenderContent(p.Content)
		var err error
		vec, err = r.embedder.Embed(ctx, text)
		if err != nil {
			return "", fmt.Errorf("%w: %v (content: %s)",
				ErrEmbeddingFailed, err, embedding.TruncateForLog(text, 120))
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	item := &types.KnowledgeItem{
		ID:            id,
		Type:          p.Type,
		Status:        types.StatusDraft,
		Topic:         p.Topic,
		Content:       p.Content,
		Vector:        vec,
		Metadata:      p.Metadata,
		SourceID:      p.SourceID,
		AccessControl: p.AccessControl,
		Tags:          types.NormalizeTags(p.Tags),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	var j journal
	if err := r.vectors.AddVector(id, vec, vectorMeta(item)); err != nil {
		if errors.Is(err, vector.ErrDuplicateID) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return "", fmt.Errorf("%w: %v", ErrVectorStoreFailed, err)
	}
	j.record(func() { r.vectors.DeleteVector(id) })

	// Cancellation observed after the vector insert rolls it back.
	if err := ctx.Err(); err != nil {
		j.unwind()
		return "", err
	}

	// Normalized copy goes into the item so store and vector storage agree.
	if v, _, ok := r.vectors.GetVector(id); ok {
		item.Vector = v
	}

	r.items[id] = item
	r.indexItem(item)
	r.saveSnapshot(item)
	r.cache.Add(item)

	// Notify under the write lock: enqueue order equals commit order, and
	// queue puts are bounded so publishers are never blocked by handlers.
	r.subs.Notify(subscription.ChangeAdded, item.Clone())

	return id, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update supersedes an item with a new version and returns the new id.
// The previous item is kept; the new one links back via PreviousVersionID.
func (r *Repository) Update(ctx context.Context, id string, p UpdateParams) (string, error) {
	if r.stopped.Load() {
		return "", ErrClosed
	}

	r.mu.RLock()
	old, ok := r.items[id]
	if !ok {
		r.mu.RUnlock()
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	base := old.Clone()
	r.mu.RUnlock()

	next := base.Clone()
	next.ID = uuid.NewString()
	next.Version = base.Version + 1
	next.PreviousVersionID = base.ID
	now := time.Now().UTC()
	next.CreatedAt = now
	next.UpdatedAt = now

	if p.Status != nil {
		if !p.Status.Valid() {
			return "", fmt.Errorf("%w: unknown status %q", ErrBadRequest, *p.Status)
		}
		next.Status = *p.Status
	}
	if p.Metadata != nil {
		next.Metadata = p.Metadata
	}
	if p.Tags != nil {
		next.Tags = types.NormalizeTags(p.Tags)
	}

	contentChanged := p.Content != nil
	if contentChanged {
		next.Content = p.Content
		if r.validator != nil {
			if err := r.validator.Validate(next.Topic, next.Content); err != nil {
				return "", fmt.Errorf("%w: %v", ErrValidationFailed, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text := embedding.RenderContent(next.Content)
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return "", fmt.Errorf("%w: %v (content: %s)",
				ErrEmbeddingFailed, err, embedding.TruncateForLog(text, 120))
		}
		next.Vector = vec
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// An item has at most one direct successor; a second update of the
	// same version is a conflict.
	if len(r.successors[id]) > 0 {
		return "", fmt.Errorf("%w: %s is already superseded", ErrAlreadyExists, id)
	}

	var j journal
	if err := r.vectors.AddVector(next.ID, next.Vector, vectorMeta(next)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrVectorStoreFailed, err)
	}
	j.record(func() { r.vectors.DeleteVector(next.ID) })

	if err := ctx.Err(); err != nil {
		j.unwind()
		return "", err
	}

	if v, _, ok := r.vectors.GetVector(next.ID); ok {
		next.Vector = v
	}

	r.items[next.ID] = next
	r.indexItem(next)
	r.successors[id] = append(r.successors[id], next.ID)
	r.saveSnapshot(next)
	r.cache.Add(next)

	r.subs.Notify(subscription.ChangeUpdated, next.Clone())

	return next.ID, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes an item, cascading to vector storage, every secondary
// index, the version-chain bookkeeping for this id, and the cache.
// Successor and predecessor items are not cascaded. Returns false when the
// id is unknown.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	if r.stopped.Load() {
		return false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return false, nil
	}

	delete(r.items, id)
	r.unindexItem(item)
	r.vectors.DeleteVector(id)
	r.cache.Remove(id)

	// Version-chain bookkeeping: drop this id from its parent's successor
	// list and drop its own successor entry. The surviving items keep
	// their version fields; only the map entries referencing id go away.
	if item.PreviousVersionID != "" {
		r.successors[item.PreviousVersionID] = removeID(r.successors[item.PreviousVersionID], id)
		if len(r.successors[item.PreviousVersionID]) == 0 {
			delete(r.successors, item.PreviousVersionID)
		}
	}
	delete(r.successors, id)

	r.deleteSnapshot(id)

	r.subs.Notify(subscription.ChangeDeleted, item.Clone())

	return true, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a clone of the item, or nil when absent. A cache miss falls
// through to the store and re-warms the cache.
func (r *Repository) Get(id string) *types.KnowledgeItem {
	if hit := r.cache.Get(id); hit != nil {
		return hit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil
	}
	r.cache.Add(item)
	return item.Clone()
}

// ByTopic returns all items published under topic.
func (r *Repository) ByTopic(topic string) []*types.KnowledgeItem {
	return r.collectIndex(r.byTopic, topic)
}

// ByType returns all items of the given knowledge type.
func (r *Repository) ByType(t types.KnowledgeType) []*types.KnowledgeItem {
	return r.collectIndex(r.byType, string(t))
}

// BySource returns all items from the given producer.
func (r *Repository) BySource(sourceID string) []*types.KnowledgeItem {
	return r.collectIndex(r.bySource, sourceID)
}

// ByTag returns all items carrying the given tag.
func (r *Repository) ByTag(tag string) []*types.KnowledgeItem {
	return r.collectIndex(r.byTag, tag)
}

// ByStatus returns all items in the given lifecycle status.
func (r *Repository) ByStatus(s types.KnowledgeStatus) []*types.KnowledgeItem {
	return r.collectIndex(r.byStatus, string(s))
}

// All returns every stored item.
func (r *Repository) All() []*types.KnowledgeItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.KnowledgeItem, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item.Clone())
	}
	sortItems(out)
	return out
}

// Count returns the number of stored items.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// VersionHistory returns every item linked to id through the version chain,
// sorted by version ascending. The backward walk follows PreviousVersionID
// and the forward walk follows the successor map; a deleted intermediate
// version severs the chain at the gap.
func (r *Repository) VersionHistory(id string) []*types.KnowledgeItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start, ok := r.items[id]
	if !ok {
		return nil
	}

	collected := map[string]*types.KnowledgeItem{start.ID: start}

	// Walk backwards along previous_version_id.
	for cur := start; cur.PreviousVersionID != ""; {
		prev, ok := r.items[cur.PreviousVersionID]
		if !ok {
			break
		}
		collected[prev.ID] = prev
		cur = prev
	}

	// Walk forwards along the successor map.
	frontier := []string{start.ID}
	for len(frontier) > 0 {
		next := frontier[0]
		frontier = frontier[1:]
		for _, succID := range r.successors[next] {
			succ, ok := r.items[succID]
			if !ok {
				continue
			}
			if _, seen := collected[succID]; seen {
				continue
			}
			collected[succID] = succ
			frontier = append(frontier, succID)
		}
	}

	out := make([]*types.KnowledgeItem, 0, len(collected))
	for _, item := range collected {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers a filtered handler for change notifications and
// returns its subscription id. A nil filter matches everything.
func (r *Repository) Subscribe(filter subscription.Filter, handler subscription.Handler) int64 {
	return r.subs.Subscribe(filter, handler)
}

// Unsubscribe removes a subscription. Unknown ids return false.
func (r *Repository) Unsubscribe(id int64) bool {
	return r.subs.Unsubscribe(id)
}

// DroppedNotifications returns the overflow-drop counter for a subscription.
func (r *Repository) DroppedNotifications(id int64) uint64 {
	return r.subs.Dropped(id)
}

// =============================================================================
// INDEX MAINTENANCE (write lock must be held)
// =============================================================================

func (r *Repository) indexItem(item *types.KnowledgeItem) {
	indexAdd(r.byTopic, item.Topic, item.ID)
	indexAdd(r.byType, string(item.Type), item.ID)
	indexAdd(r.byStatus, string(item.Status), item.ID)
	if item.SourceID != "" {
		indexAdd(r.bySource, item.SourceID, item.ID)
	}
	for _, tag := range item.Tags {
		indexAdd(r.byTag, tag, item.ID)
	}
}

func (r *Repository) unindexItem(item *types.KnowledgeItem) {
	indexDrop(r.byTopic, item.Topic, item.ID)
	indexDrop(r.byType, string(item.Type), item.ID)
	indexDrop(r.byStatus, string(item.Status), item.ID)
	if item.SourceID != "" {
		indexDrop(r.bySource, item.SourceID, item.ID)
	}
	for _, tag := range item.Tags {
		indexDrop(r.byTag, tag, item.ID)
	}
}

func (r *Repository) collectIndex(index map[string]map[string]struct{}, key string) []*types.KnowledgeItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := index[key]
	if len(ids) == 0 {
		return nil
	}
	out := make([]*types.KnowledgeItem, 0, len(ids))
	for id := range ids {
		if item, ok := r.items[id]; ok {
			out = append(out, item.Clone())
		}
	}
	sortItems(out)
	return out
}

func indexAdd(m map[string]map[string]struct{}, key, id string) {
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

// indexDrop removes id from key's set, deleting the key once empty so the
// inverted maps do not grow without bound.
func indexDrop(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// saveSnapshot persists an item when the snapshot is enabled. Snapshot
// failures are logged, never fatal to the mutation.
func (r *Repository) saveSnapshot(item *types.KnowledgeItem) {
	if r.snapshot == nil {
		return
	}
	if err := r.snapshot.save(item); err != nil {
		r.logger.Warn("snapshot save failed",
			zap.String("knowledge_id", item.ID), zap.Error(err))
	}
}

func (r *Repository) deleteSnapshot(id string) {
	if r.snapshot == nil {
		return
	}
	if err := r.snapshot.delete(id); err != nil {
		r.logger.Warn("snapshot delete failed",
			zap.String("knowledge_id", id), zap.Error(err))
	}
}

func vectorMeta(item *types.KnowledgeItem) vector.Metadata {
	return vector.Metadata{
		Topic:    item.Topic,
		Type:     string(item.Type),
		SourceID: item.SourceID,
		Tags:     item.Tags,
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// sortItems orders results by creation time then id, so bulk reads are
// deterministic for callers and tests.
func sortItems(items []*types.KnowledgeItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
