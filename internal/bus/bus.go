// Package bus provides the in-process JSON event bus and the adapter that
// bridges bus traffic onto the knowledge repository.
package bus

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber channel depth. Emitters never
// block; events beyond the buffer are dropped and counted.
const subscriberBuffer = 64

// Event is a single bus message. Payload is raw JSON so consumers decode
// into their own request types.
type Event struct {
	Name          string          `json:"name"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Seq           uint64          `json:"seq"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Bus is a named-topic publish/subscribe bus. Subscribers receive events on
// buffered channels; a full channel drops the event rather than blocking
// the publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
	logger  *zap.Logger
}

// New creates an event bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string][]chan Event),
		logger: logger,
	}
}

// Subscribe returns a channel receiving events published under name.
func (b *Bus) Subscribe(name string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[name] = append(b.subs[name], ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Bus) Unsubscribe(name string, ch <-chan Event) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[name]
	for i, sub := range subs {
		if reflect.ValueOf(sub).Pointer() == target {
			b.subs[name] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// Publish marshals payload and fans the event out to subscribers of name.
// Safe to call from any goroutine; never blocks.
func (b *Bus) Publish(name, correlationID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	evt := Event{
		Name:          name,
		CorrelationID: correlationID,
		Payload:       raw,
		Seq:           b.seq.Add(1),
		Timestamp:     time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[name] {
		select {
		case sub <- evt:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber channel full",
				zap.String("event", name),
				zap.String("correlation_id", correlationID))
		}
	}
	return nil
}

// Dropped returns the total number of events dropped on full channels.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of subscribers for an event name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Close closes every subscriber channel and clears the registry.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, subs := range b.subs {
		for _, sub := range subs {
			close(sub)
		}
		delete(b.subs, name)
	}
}
