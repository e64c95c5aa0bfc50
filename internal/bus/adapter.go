package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"knowledgehub/internal/repository"
	"knowledgehub/internal/subscription"
	"knowledgehub/internal/types"
)

// defaultQueryLimit bounds query responses when the request omits a limit.
const defaultQueryLimit = 10

// Adapter bridges bus traffic onto the repository. It consumes the four
// request events, runs the operation, and emits the correlated response
// after the mutation has committed. It also forwards repository change
// notifications as uncorrelated lifecycle events.
type Adapter struct {
	bus    *Bus
	repo   *repository.Repository
	logger *zap.Logger

	queryCh   <-chan Event
	publishCh <-chan Event
	updateCh  <-chan Event
	deleteCh  <-chan Event

	subID  int64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdapter wires a repository to a bus. Call Start to begin consuming.
func NewAdapter(b *Bus, repo *repository.Repository, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{bus: b, repo: repo, logger: logger}
}

// Start subscribes to the request events and begins dispatching. Each
// request runs on its own goroutine so a slow embed never stalls the bus.
func (a *Adapter) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.queryCh = a.bus.Subscribe(EventKnowledgeQuery)
	a.publishCh = a.bus.Subscribe(EventKnowledgePublish)
	a.updateCh = a.bus.Subscribe(EventKnowledgeUpdate)
	a.deleteCh = a.bus.Subscribe(EventKnowledgeDelete)

	a.subID = a.repo.Subscribe(subscription.AllFilter{}, a.forwardLifecycle)

	a.wg.Add(4)
	go a.consume(ctx, a.queryCh, a.handleQuery)
	go a.consume(ctx, a.publishCh, a.handlePublish)
	go a.consume(ctx, a.updateCh, a.handleUpdate)
	go a.consume(ctx, a.deleteCh, a.handleDelete)
}

// Stop unsubscribes from the bus and the repository and waits for in-flight
// requests to finish.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.repo.Unsubscribe(a.subID)
	a.bus.Unsubscribe(EventKnowledgeQuery, a.queryCh)
	a.bus.Unsubscribe(EventKnowledgePublish, a.publishCh)
	a.bus.Unsubscribe(EventKnowledgeUpdate, a.updateCh)
	a.bus.Unsubscribe(EventKnowledgeDelete, a.deleteCh)
	a.wg.Wait()
}

// consume dispatches events from ch until it closes or ctx is done.
func (a *Adapter) consume(ctx context.Context, ch <-chan Event, handle func(context.Context, Event)) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				handle(ctx, evt)
			}()
		}
	}
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

func (a *Adapter) handleQuery(ctx context.Context, evt Event) {
	var req QueryRequest
	if err := json.Unmarshal(evt.Payload, &req); err != nil {
		a.respond(EventKnowledgeQueryResponse, evt.CorrelationID,
			QueryResponse{Items: []json.RawMessage{}, Error: fmt.Sprintf("malformed query payload: %v", err)})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	var (
		items []*types.KnowledgeItem
		err   error
	)
	switch req.QueryType {
	case "", "text":
		var hits []repository.SearchResult
		hits, err = a.repo.Search(ctx, req.Query, limit)
		for _, hit := range hits {
			items = append(items, hit.Item)
		}
	case "topic":
		items = a.repo.ByTopic(req.Query)
	case "tag":
		items = a.repo.ByTag(req.Query)
	case "id":
		if item := a.repo.Get(req.Query); item != nil {
			items = append(items, item)
		}
	default:
		err = fmt.Errorf("unknown query_type %q", req.QueryType)
	}
	if err != nil {
		a.respond(EventKnowledgeQueryResponse, evt.CorrelationID,
			QueryResponse{Items: []json.RawMessage{}, Error: err.Error()})
		return
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		doc, mErr := json.Marshal(item)
		if mErr != nil {
			a.logger.Warn("failed to encode query hit",
				zap.String("knowledge_id", item.ID), zap.Error(mErr))
			continue
		}
		raw = append(raw, doc)
	}
	a.respond(EventKnowledgeQueryResponse, evt.CorrelationID,
		QueryResponse{Success: true, Items: raw, Count: len(raw)})
}

func (a *Adapter) handlePublish(ctx context.Context, evt Event) {
	var req PublishRequest
	if err := json.Unmarshal(evt.Payload, &req); err != nil {
		a.respond(EventKnowledgePublishResponse, evt.CorrelationID,
			PublishResponse{Error: fmt.Sprintf("malformed publish payload: %v", err)})
		return
	}

	id, err := a.repo.Publish(ctx, repository.PublishParams{
		Type:          types.KnowledgeType(req.KnowledgeType),
		Topic:         req.Topic,
		Content:       req.Content,
		Metadata:      req.Metadata,
		SourceID:      req.SourceID,
		AccessControl: req.AccessControl,
		Tags:          req.Tags,
	})
	if err != nil {
		a.respond(EventKnowledgePublishResponse, evt.CorrelationID,
			PublishResponse{Error: err.Error()})
		return
	}
	a.respond(EventKnowledgePublishResponse, evt.CorrelationID,
		PublishResponse{Success: true, KnowledgeID: id})
}

func (a *Adapter) handleUpdate(ctx context.Context, evt Event) {
	var req UpdateRequest
	if err := json.Unmarshal(evt.Payload, &req); err != nil {
		a.respond(EventKnowledgeUpdateResponse, evt.CorrelationID,
			UpdateResponse{Error: fmt.Sprintf("malformed update payload: %v", err)})
		return
	}

	params := repository.UpdateParams{
		Content:  req.Content,
		Metadata: req.Metadata,
		Tags:     req.Tags,
	}
	if req.Status != "" {
		status := types.KnowledgeStatus(req.Status)
		params.Status = &status
	}

	newID, err := a.repo.Update(ctx, req.KnowledgeID, params)
	if err != nil {
		a.respond(EventKnowledgeUpdateResponse, evt.CorrelationID,
			UpdateResponse{Error: err.Error()})
		return
	}
	a.respond(EventKnowledgeUpdateResponse, evt.CorrelationID,
		UpdateResponse{Success: true, KnowledgeID: newID, PreviousVersionID: req.KnowledgeID})
}

func (a *Adapter) handleDelete(ctx context.Context, evt Event) {
	var req DeleteRequest
	if err := json.Unmarshal(evt.Payload, &req); err != nil {
		a.respond(EventKnowledgeDeleteResponse, evt.CorrelationID,
			DeleteResponse{Error: fmt.Sprintf("malformed delete payload: %v", err)})
		return
	}

	removed, err := a.repo.Delete(ctx, req.KnowledgeID)
	if err != nil {
		a.respond(EventKnowledgeDeleteResponse, evt.CorrelationID,
			DeleteResponse{Error: err.Error()})
		return
	}
	if !removed {
		a.respond(EventKnowledgeDeleteResponse, evt.CorrelationID,
			DeleteResponse{Error: fmt.Sprintf("knowledge item not found: %s", req.KnowledgeID)})
		return
	}
	a.respond(EventKnowledgeDeleteResponse, evt.CorrelationID,
		DeleteResponse{Success: true})
}

// =============================================================================
// LIFECYCLE FORWARDING
// =============================================================================

// forwardLifecycle republishes repository change notifications as bus
// events. These carry no correlation id; any observer may subscribe.
func (a *Adapter) forwardLifecycle(n subscription.Notification) {
	var name string
	withVersion := true
	switch n.Change {
	case subscription.ChangeAdded:
		name = EventKnowledgeAdded
	case subscription.ChangeUpdated:
		name = EventKnowledgeUpdated
	case subscription.ChangeDeleted:
		name = EventKnowledgeDeleted
		withVersion = false
	default:
		return
	}
	if err := a.bus.Publish(name, "", lifecycleFromItem(n.Item, withVersion)); err != nil {
		a.logger.Warn("failed to publish lifecycle event",
			zap.String("event", name), zap.Error(err))
	}
}

func (a *Adapter) respond(name, correlationID string, payload interface{}) {
	if err := a.bus.Publish(name, correlationID, payload); err != nil {
		a.logger.Error("failed to publish response",
			zap.String("event", name),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}
}
