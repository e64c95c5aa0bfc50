// Package subscription implements the per-subscriber filter+handler registry
// and the notification dispatcher for knowledge change events.
package subscription

import (
	"fmt"
	"strings"

	"knowledgehub/internal/types"
)

// Filter is a predicate over knowledge items. A subscription's handler is
// invoked only for items its filter matches.
type Filter interface {
	Matches(item *types.KnowledgeItem) bool
	String() string
}

// =============================================================================
// LEAF FILTERS
// =============================================================================

// AllFilter matches every item. A nil subscription filter behaves like this.
type AllFilter struct{}

func (AllFilter) Matches(*types.KnowledgeItem) bool { return true }
func (AllFilter) String() string                    { return "all" }

// TopicFilter matches items whose topic is in the set.
type TopicFilter struct {
	topics map[string]struct{}
}

// NewTopicFilter creates a filter matching any of the given topics.
func NewTopicFilter(topics ...string) *TopicFilter {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return &TopicFilter{topics: set}
}

func (f *TopicFilter) Matches(item *types.KnowledgeItem) bool {
	_, ok := f.topics[item.Topic]
	return ok
}

func (f *TopicFilter) String() string {
	return fmt.Sprintf("topic(%s)", joinKeys(f.topics))
}

// TypeFilter matches items whose knowledge type is in the set.
type TypeFilter struct {
	kinds map[types.KnowledgeType]struct{}
}

// NewTypeFilter creates a filter matching any of the given types.
func NewTypeFilter(kinds ...types.KnowledgeType) *TypeFilter {
	set := make(map[types.KnowledgeType]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return &TypeFilter{kinds: set}
}

func (f *TypeFilter) Matches(item *types.KnowledgeItem) bool {
	_, ok := f.kinds[item.Type]
	return ok
}

func (f *TypeFilter) String() string {
	parts := make([]string, 0, len(f.kinds))
	for k := range f.kinds {
		parts = append(parts, string(k))
	}
	return fmt.Sprintf("type(%s)", strings.Join(parts, ","))
}

// StatusFilter matches items whose status is in the set.
type StatusFilter struct {
	statuses map[types.KnowledgeStatus]struct{}
}

// NewStatusFilter creates a filter matching any of the given statuses.
func NewStatusFilter(statuses ...types.KnowledgeStatus) *StatusFilter {
	set := make(map[types.KnowledgeStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return &StatusFilter{statuses: set}
}

func (f *StatusFilter) Matches(item *types.KnowledgeItem) bool {
	_, ok := f.statuses[item.Status]
	return ok
}

func (f *StatusFilter) String() string {
	parts := make([]string, 0, len(f.statuses))
	for s := range f.statuses {
		parts = append(parts, string(s))
	}
	return fmt.Sprintf("status(%s)", strings.Join(parts, ","))
}

// TagFilter matches items by tag set. With MatchAll false (default) any
// listed tag suffices; with MatchAll true the item must carry every tag.
type TagFilter struct {
	tags     []string
	matchAll bool
}

// NewTagFilter creates a filter matching items carrying any of the tags.
func NewTagFilter(tags ...string) *TagFilter {
	return &TagFilter{tags: tags}
}

// NewTagFilterAll creates a filter matching items carrying all of the tags.
func NewTagFilterAll(tags ...string) *TagFilter {
	return &TagFilter{tags: tags, matchAll: true}
}

func (f *TagFilter) Matches(item *types.KnowledgeItem) bool {
	if len(f.tags) == 0 {
		return true
	}
	for _, tag := range f.tags {
		if item.HasTag(tag) {
			if !f.matchAll {
				return true
			}
		} else if f.matchAll {
			return false
		}
	}
	return f.matchAll
}

func (f *TagFilter) String() string {
	mode := "any"
	if f.matchAll {
		mode = "all"
	}
	return fmt.Sprintf("tag[%s](%s)", mode, strings.Join(f.tags, ","))
}

// SourceFilter matches items whose source id is in the set.
type SourceFilter struct {
	sources map[string]struct{}
}

// NewSourceFilter creates a filter matching any of the given source ids.
func NewSourceFilter(sources ...string) *SourceFilter {
	set := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		set[s] = struct{}{}
	}
	return &SourceFilter{sources: set}
}

func (f *SourceFilter) Matches(item *types.KnowledgeItem) bool {
	_, ok := f.sources[item.SourceID]
	return ok
}

func (f *SourceFilter) String() string {
	return fmt.Sprintf("source(%s)", joinKeys(f.sources))
}

// =============================================================================
// COMPOSITE FILTERS
// =============================================================================

// AndFilter matches when every child filter matches.
type AndFilter struct {
	children []Filter
}

// NewAndFilter composes filters with AND semantics.
func NewAndFilter(children ...Filter) *AndFilter {
	return &AndFilter{children: children}
}

func (f *AndFilter) Matches(item *types.KnowledgeItem) bool {
	for _, c := range f.children {
		if !c.Matches(item) {
			return false
		}
	}
	return true
}

func (f *AndFilter) String() string { return composeString("and", f.children) }

// OrFilter matches when any child filter matches.
type OrFilter struct {
	children []Filter
}

// NewOrFilter composes filters with OR semantics.
func NewOrFilter(children ...Filter) *OrFilter {
	return &OrFilter{children: children}
}

func (f *OrFilter) Matches(item *types.KnowledgeItem) bool {
	for _, c := range f.children {
		if c.Matches(item) {
			return true
		}
	}
	return false
}

func (f *OrFilter) String() string { return composeString("or", f.children) }

// NotFilter inverts a child filter.
type NotFilter struct {
	child Filter
}

// NewNotFilter inverts the given filter.
func NewNotFilter(child Filter) *NotFilter {
	return &NotFilter{child: child}
}

func (f *NotFilter) Matches(item *types.KnowledgeItem) bool {
	return !f.child.Matches(item)
}

func (f *NotFilter) String() string { return fmt.Sprintf("not(%s)", f.child) }

func composeString(op string, children []Filter) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(%s)", op, strings.Join(parts, ","))
}

func joinKeys(m map[string]struct{}) string {
	parts := make([]string, 0, len(m))
	for k := range m {
		parts = append(parts, k)
	}
	return strings.Join(parts, ",")
}
