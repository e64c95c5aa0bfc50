package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"knowledgehub/internal/types"
)

// DefaultQueueSize is the per-subscriber notification queue depth.
const DefaultQueueSize = 256

// ChangeType names the mutation a notification reports.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Notification is a single change event delivered to a subscriber.
type Notification struct {
	Change    ChangeType
	Item      *types.KnowledgeItem
	Seq       uint64
	Timestamp time.Time
}

// Handler consumes notifications for one subscription. Handlers run on the
// subscription's own dispatch goroutine, never on the publisher.
type Handler func(n Notification)

// subscriber is one registered (filter, handler) pair with its queue.
type subscriber struct {
	id      int64
	filter  Filter
	handler Handler
	queue   chan Notification
	dropped atomic.Uint64
	done    chan struct{}
}

// Engine holds the subscription registry and dispatches notifications.
//
// Dispatch contract: Notify enqueues onto each matching subscriber's bounded
// queue and returns; it never waits for handlers. On queue overflow the
// oldest undelivered notification for that subscriber is dropped and the
// drop counter incremented (at-most-once delivery with loss signalled).
// One goroutine drains each queue, so per-subscriber delivery is in commit
// order. A panicking handler is logged and skipped; it never affects other
// subscribers or the publisher.
type Engine struct {
	mu        sync.RWMutex
	subs      map[int64]*subscriber
	nextID    atomic.Int64
	seq       atomic.Uint64
	queueSize int
	wg        sync.WaitGroup
	closed    bool
	logger    *zap.Logger
}

// NewEngine creates a subscription engine with the given per-subscriber
// queue size (<=0 selects DefaultQueueSize).
func NewEngine(queueSize int, logger *zap.Logger) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		subs:      make(map[int64]*subscriber),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Subscribe registers a filter and handler, returning a monotonically
// increasing subscription id. A nil filter matches everything.
func (e *Engine) Subscribe(filter Filter, handler Handler) int64 {
	if filter == nil {
		filter = AllFilter{}
	}
	id := e.nextID.Add(1)
	sub := &subscriber{
		id:      id,
		filter:  filter,
		handler: handler,
		queue:   make(chan Notification, e.queueSize),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return id // engine stopped; subscription is inert
	}
	e.subs[id] = sub
	e.mu.Unlock()

	e.wg.Add(1)
	go e.drain(sub)
	return id
}

// Unsubscribe removes a subscription. Returns false if the id is unknown;
// a second call for the same id is a no-op returning false.
func (e *Engine) Unsubscribe(id int64) bool {
	e.mu.Lock()
	sub, ok := e.subs[id]
	if ok {
		delete(e.subs, id)
		close(sub.done)
	}
	e.mu.Unlock()
	return ok
}

// Count returns the number of active subscriptions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// Dropped returns the overflow-drop counter for a subscription.
func (e *Engine) Dropped(id int64) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if sub, ok := e.subs[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Notify fans a change event out to every matching subscriber. It performs
// only bounded queue puts and returns without waiting on any handler.
func (e *Engine) Notify(change ChangeType, item *types.KnowledgeItem) {
	n := Notification{
		Change:    change,
		Item:      item,
		Seq:       e.seq.Add(1),
		Timestamp: time.Now(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subs {
		if !sub.filter.Matches(item) {
			continue
		}
		e.enqueue(sub, n)
	}
}

// enqueue puts n on the subscriber queue, dropping the oldest queued
// notification when full.
func (e *Engine) enqueue(sub *subscriber, n Notification) {
	select {
	case sub.queue <- n:
		return
	default:
	}

	// Queue full: shed the oldest entry, then retry once. If the drain
	// goroutine emptied a slot in between, the eviction pull is a no-op.
	select {
	case <-sub.queue:
		sub.dropped.Add(1)
	default:
	}
	select {
	case sub.queue <- n:
	default:
		sub.dropped.Add(1)
	}
}

// drain delivers queued notifications to the handler in order.
func (e *Engine) drain(sub *subscriber) {
	defer e.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case n := <-sub.queue:
			e.invoke(sub, n)
		}
	}
}

// invoke runs the handler with panic isolation.
func (e *Engine) invoke(sub *subscriber, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("subscription handler panicked",
				zap.Int64("subscription_id", sub.id),
				zap.String("change", string(n.Change)),
				zap.Any("panic", r))
		}
	}()
	sub.handler(n)
}

// Close stops all subscriptions and waits for in-flight handler dispatches
// to finish. Pending queued notifications are discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for id, sub := range e.subs {
		close(sub.done)
		delete(e.subs, id)
	}
	e.mu.Unlock()

	e.wg.Wait()
}
