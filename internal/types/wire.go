package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// WIRE SERIALIZATION
// =============================================================================
// Event-bus payloads carry items in a fixed JSON shape: enum names as strings,
// timestamps as ISO-8601 UTC, vector as a float array or null, tags as an
// array. previous_version_id is null for version-1 items.

// wireItem is the JSON representation of a KnowledgeItem.
type wireItem struct {
	ID                string                 `json:"knowledge_id"`
	Type              string                 `json:"knowledge_type"`
	Status            string                 `json:"status"`
	Topic             string                 `json:"topic"`
	Content           interface{}            `json:"content"`
	Vector            []float32              `json:"vector"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	SourceID          string                 `json:"source_id,omitempty"`
	AccessControl     map[string]interface{} `json:"access_control,omitempty"`
	Tags              []string               `json:"tags"`
	CreatedAt         string                 `json:"created_at"`
	UpdatedAt         string                 `json:"updated_at"`
	Version           int                    `json:"version"`
	PreviousVersionID *string                `json:"previous_version_id"`
}

// MarshalJSON renders the item in the wire shape.
func (k *KnowledgeItem) MarshalJSON() ([]byte, error) {
	w := wireItem{
		ID:            k.ID,
		Type:          string(k.Type),
		Status:        string(k.Status),
		Topic:         k.Topic,
		Content:       k.Content,
		Vector:        k.Vector,
		Metadata:      k.Metadata,
		SourceID:      k.SourceID,
		AccessControl: k.AccessControl,
		Tags:          k.Tags,
		CreatedAt:     k.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     k.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Version:       k.Version,
	}
	if w.Tags == nil {
		w.Tags = []string{}
	}
	if k.PreviousVersionID != "" {
		prev := k.PreviousVersionID
		w.PreviousVersionID = &prev
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the wire shape back into an item.
func (k *KnowledgeItem) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	typ, err := ParseKnowledgeType(w.Type)
	if err != nil {
		return err
	}
	status, err := ParseKnowledgeStatus(w.Status)
	if err != nil {
		return err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("invalid created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("invalid updated_at: %w", err)
	}

	k.ID = w.ID
	k.Type = typ
	k.Status = status
	k.Topic = w.Topic
	k.Content = w.Content
	k.Vector = w.Vector
	k.Metadata = w.Metadata
	k.SourceID = w.SourceID
	k.AccessControl = w.AccessControl
	k.Tags = NormalizeTags(w.Tags)
	k.CreatedAt = createdAt
	k.UpdatedAt = updatedAt
	k.Version = w.Version
	if w.PreviousVersionID != nil {
		k.PreviousVersionID = *w.PreviousVersionID
	} else {
		k.PreviousVersionID = ""
	}
	return nil
}
