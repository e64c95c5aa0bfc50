package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"knowledgehub/internal/types"
)

func sampleItem() *types.KnowledgeItem {
	return &types.KnowledgeItem{
		ID:       "k-1",
		Type:     types.TypeRule,
		Status:   types.StatusActive,
		Topic:    "deploy/rules",
		SourceID: "agent-7",
		Tags:     []string{"deploy", "policy"},
	}
}

func TestBasicFilters(t *testing.T) {
	item := sampleItem()

	t.Run("all", func(t *testing.T) {
		assert.True(t, AllFilter{}.Matches(item))
	})

	t.Run("topic", func(t *testing.T) {
		assert.True(t, NewTopicFilter("deploy/rules").Matches(item))
		assert.False(t, NewTopicFilter("other").Matches(item))
	})

	t.Run("type", func(t *testing.T) {
		assert.True(t, NewTypeFilter(types.TypeRule).Matches(item))
		assert.True(t, NewTypeFilter(types.TypeFact, types.TypeRule).Matches(item))
		assert.False(t, NewTypeFilter(types.TypeFact).Matches(item))
	})

	t.Run("status", func(t *testing.T) {
		assert.True(t, NewStatusFilter(types.StatusActive).Matches(item))
		assert.False(t, NewStatusFilter(types.StatusDraft).Matches(item))
	})

	t.Run("source", func(t *testing.T) {
		assert.True(t, NewSourceFilter("agent-7").Matches(item))
		assert.False(t, NewSourceFilter("agent-8").Matches(item))
	})
}

func TestTagFilter(t *testing.T) {
	item := sampleItem()

	t.Run("any tag matches", func(t *testing.T) {
		assert.True(t, NewTagFilter("deploy", "absent").Matches(item))
		assert.False(t, NewTagFilter("absent").Matches(item))
	})

	t.Run("all tags must match", func(t *testing.T) {
		assert.True(t, NewTagFilterAll("deploy", "policy").Matches(item))
		assert.False(t, NewTagFilterAll("deploy", "absent").Matches(item))
	})
}

func TestCompositeFilters(t *testing.T) {
	item := sampleItem()
	topicHit := NewTopicFilter("deploy/rules")
	topicMiss := NewTopicFilter("other")

	t.Run("and", func(t *testing.T) {
		assert.True(t, NewAndFilter(topicHit, NewTypeFilter(types.TypeRule)).Matches(item))
		assert.False(t, NewAndFilter(topicHit, topicMiss).Matches(item))
	})

	t.Run("or", func(t *testing.T) {
		assert.True(t, NewOrFilter(topicMiss, topicHit).Matches(item))
		assert.False(t, NewOrFilter(topicMiss, topicMiss).Matches(item))
	})

	t.Run("not", func(t *testing.T) {
		assert.False(t, NewNotFilter(topicHit).Matches(item))
		assert.True(t, NewNotFilter(topicMiss).Matches(item))
	})
}
