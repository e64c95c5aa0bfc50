// Package types provides shared type definitions used across knowledgehub packages.
// This package exists to break import cycles between repository, subscription,
// and bus. Types here are foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// KNOWLEDGE ENUMS
// =============================================================================

// KnowledgeType classifies the kind of knowledge an item carries.
type KnowledgeType string

const (
	TypeFact      KnowledgeType = "FACT"
	TypeRule      KnowledgeType = "RULE"
	TypeProcedure KnowledgeType = "PROCEDURE"
	TypeConcept   KnowledgeType = "CONCEPT"
	TypeRelation  KnowledgeType = "RELATION"
	TypeMetadata  KnowledgeType = "METADATA"
	TypeOther     KnowledgeType = "OTHER"
)

// ParseKnowledgeType converts a wire string into a KnowledgeType.
// Matching is case-insensitive to be forgiving with event payloads.
func ParseKnowledgeType(s string) (KnowledgeType, error) {
	switch t := KnowledgeType(strings.ToUpper(s)); t {
	case TypeFact, TypeRule, TypeProcedure, TypeConcept, TypeRelation, TypeMetadata, TypeOther:
		return t, nil
	}
	return "", fmt.Errorf("unknown knowledge type: %q", s)
}

// Valid reports whether the type is one of the defined constants.
func (t KnowledgeType) Valid() bool {
	_, err := ParseKnowledgeType(string(t))
	return err == nil
}

// KnowledgeStatus tracks the lifecycle state of an item.
type KnowledgeStatus string

const (
	StatusDraft      KnowledgeStatus = "DRAFT"
	StatusActive     KnowledgeStatus = "ACTIVE"
	StatusDeprecated KnowledgeStatus = "DEPRECATED"
	StatusArchived   KnowledgeStatus = "ARCHIVED"
	StatusInvalid    KnowledgeStatus = "INVALID"
)

// ParseKnowledgeStatus converts a wire string into a KnowledgeStatus.
func ParseKnowledgeStatus(s string) (KnowledgeStatus, error) {
	switch st := KnowledgeStatus(strings.ToUpper(s)); st {
	case StatusDraft, StatusActive, StatusDeprecated, StatusArchived, StatusInvalid:
		return st, nil
	}
	return "", fmt.Errorf("unknown knowledge status: %q", s)
}

// Valid reports whether the status is one of the defined constants.
func (s KnowledgeStatus) Valid() bool {
	_, err := ParseKnowledgeStatus(string(s))
	return err == nil
}

// =============================================================================
// KNOWLEDGE ITEM
// =============================================================================

// KnowledgeItem is a single versioned record managed by the repository.
// Items are never mutated in place after commit; an update supersedes the
// item with a new record linked via PreviousVersionID.
type KnowledgeItem struct {
	ID                string
	Type              KnowledgeType
	Status            KnowledgeStatus
	Topic             string
	Content           interface{}
	Vector            []float32
	Metadata          map[string]interface{}
	SourceID          string
	AccessControl     map[string]interface{}
	Tags              []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
	PreviousVersionID string
}

// Clone returns a deep copy of the item. The repository hands out clones so
// callers cannot mutate committed state through shared maps and slices.
func (k *KnowledgeItem) Clone() *KnowledgeItem {
	if k == nil {
		return nil
	}
	c := *k
	if k.Vector != nil {
		c.Vector = make([]float32, len(k.Vector))
		copy(c.Vector, k.Vector)
	}
	if k.Tags != nil {
		c.Tags = make([]string, len(k.Tags))
		copy(c.Tags, k.Tags)
	}
	c.Content = cloneValue(k.Content)
	c.Metadata = cloneMap(k.Metadata)
	c.AccessControl = cloneMap(k.AccessControl)
	return &c
}

// HasTag reports whether the item carries the given tag.
func (k *KnowledgeItem) HasTag(tag string) bool {
	for _, t := range k.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeTags deduplicates and sorts a tag list. Tags are an unordered
// set; a canonical order keeps wire output and index bookkeeping stable.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// cloneValue deep-copies the JSON-shaped values the repository stores:
// maps, slices, and scalars. Unknown types are kept by reference.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}
