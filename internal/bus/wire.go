package bus

import (
	"encoding/json"
	"time"

	"knowledgehub/internal/types"
)

// =============================================================================
// EVENT NAMES
// =============================================================================

// Request and response event names. Responses carry the correlation id of
// the request envelope.
const (
	EventKnowledgeQuery           = "knowledge_query"
	EventKnowledgeQueryResponse   = "knowledge_query_response"
	EventKnowledgePublish         = "knowledge_publish"
	EventKnowledgePublishResponse = "knowledge_publish_response"
	EventKnowledgeUpdate          = "knowledge_update"
	EventKnowledgeUpdateResponse  = "knowledge_update_response"
	EventKnowledgeDelete          = "knowledge_delete"
	EventKnowledgeDeleteResponse  = "knowledge_delete_response"
)

// Lifecycle event names, emitted without correlation after each commit.
const (
	EventKnowledgeAdded   = "knowledge_added"
	EventKnowledgeUpdated = "knowledge_updated"
	EventKnowledgeDeleted = "knowledge_deleted"
)

// =============================================================================
// REQUEST PAYLOADS
// =============================================================================

// QueryRequest selects items by text similarity, topic, tag, or id.
type QueryRequest struct {
	Query     string `json:"query"`
	QueryType string `json:"query_type"` // "text", "topic", "tag", "id"
	Limit     int    `json:"limit,omitempty"`
}

// PublishRequest creates a new knowledge item.
type PublishRequest struct {
	KnowledgeType string                 `json:"knowledge_type"`
	Topic         string                 `json:"topic"`
	Content       interface{}            `json:"content"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	SourceID      string                 `json:"source_id,omitempty"`
	AccessControl map[string]interface{} `json:"access_control,omitempty"`
	Tags          []string               `json:"tags,omitempty"`
}

// UpdateRequest supersedes an existing item with a new version.
type UpdateRequest struct {
	KnowledgeID string                 `json:"knowledge_id"`
	Content     interface{}            `json:"content,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
}

// DeleteRequest removes an item.
type DeleteRequest struct {
	KnowledgeID string `json:"knowledge_id"`
}

// =============================================================================
// RESPONSE PAYLOADS
// =============================================================================

// QueryResponse carries serialized items and their count.
type QueryResponse struct {
	Success bool              `json:"success"`
	Items   []json.RawMessage `json:"items"`
	Count   int               `json:"count"`
	Error   string            `json:"error,omitempty"`
}

// PublishResponse reports the created id or the failure.
type PublishResponse struct {
	Success     bool   `json:"success"`
	KnowledgeID string `json:"knowledge_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// UpdateResponse reports the new id and the id it superseded.
type UpdateResponse struct {
	Success           bool   `json:"success"`
	KnowledgeID       string `json:"knowledge_id,omitempty"`
	PreviousVersionID string `json:"previous_version_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// DeleteResponse reports whether the item existed and was removed.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// LIFECYCLE PAYLOADS
// =============================================================================

// LifecycleEvent describes a committed mutation for bus observers.
type LifecycleEvent struct {
	KnowledgeID       string    `json:"knowledge_id"`
	KnowledgeType     string    `json:"knowledge_type"`
	Topic             string    `json:"topic"`
	SourceID          string    `json:"source_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Version           int       `json:"version,omitempty"`
	PreviousVersionID string    `json:"previous_version_id,omitempty"`
}

// lifecycleFromItem builds the lifecycle payload for an item.
func lifecycleFromItem(item *types.KnowledgeItem, withVersion bool) LifecycleEvent {
	evt := LifecycleEvent{
		KnowledgeID:   item.ID,
		KnowledgeType: string(item.Type),
		Topic:         item.Topic,
		SourceID:      item.SourceID,
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
	}
	if withVersion {
		evt.Version = item.Version
		evt.PreviousVersionID = item.PreviousVersionID
	}
	return evt
}
