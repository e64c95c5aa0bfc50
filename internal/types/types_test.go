package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKnowledgeType(t *testing.T) {
	t.Run("accepts all defined types", func(t *testing.T) {
		for _, s := range []string{"FACT", "RULE", "PROCEDURE", "CONCEPT", "RELATION", "METADATA", "OTHER"} {
			got, err := ParseKnowledgeType(s)
			require.NoError(t, err)
			assert.Equal(t, KnowledgeType(s), got)
		}
	})

	t.Run("is case insensitive", func(t *testing.T) {
		got, err := ParseKnowledgeType("fact")
		require.NoError(t, err)
		assert.Equal(t, TypeFact, got)
	})

	t.Run("rejects unknown types", func(t *testing.T) {
		_, err := ParseKnowledgeType("OPINION")
		assert.Error(t, err)
	})
}

func TestParseKnowledgeStatus(t *testing.T) {
	for _, s := range []string{"DRAFT", "ACTIVE", "DEPRECATED", "ARCHIVED", "INVALID"} {
		got, err := ParseKnowledgeStatus(s)
		require.NoError(t, err)
		assert.Equal(t, KnowledgeStatus(s), got)
	}
	_, err := ParseKnowledgeStatus("RETIRED")
	assert.Error(t, err)
}

func TestKnowledgeItemClone(t *testing.T) {
	orig := &KnowledgeItem{
		ID:     "k-1",
		Type:   TypeFact,
		Status: StatusActive,
		Topic:  "deploy/rules",
		Content: map[string]interface{}{
			"rule":  "no friday deploys",
			"hosts": []interface{}{"a", "b"},
		},
		Vector:   []float32{0.1, 0.2, 0.3},
		Metadata: map[string]interface{}{"priority": 0.5},
		Tags:     []string{"deploy", "policy"},
		Version:  1,
	}

	clone := orig.Clone()
	require.NotSame(t, orig, clone)
	assert.Empty(t, cmp.Diff(orig, clone))

	// Mutating the clone must not leak back into the original.
	clone.Vector[0] = 9
	clone.Tags[0] = "changed"
	clone.Content.(map[string]interface{})["rule"] = "changed"
	clone.Metadata["priority"] = 1.0

	assert.Equal(t, float32(0.1), orig.Vector[0])
	assert.Equal(t, "deploy", orig.Tags[0])
	assert.Equal(t, "no friday deploys", orig.Content.(map[string]interface{})["rule"])
	assert.Equal(t, 0.5, orig.Metadata["priority"])
}

func TestNormalizeTags(t *testing.T) {
	t.Run("dedupes and sorts", func(t *testing.T) {
		got := NormalizeTags([]string{"b", "a", "b", "c", "a"})
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("drops empty tags", func(t *testing.T) {
		got := NormalizeTags([]string{"", "x", ""})
		assert.Equal(t, []string{"x"}, got)
	})

	t.Run("nil for empty input", func(t *testing.T) {
		assert.Nil(t, NormalizeTags(nil))
		assert.Nil(t, NormalizeTags([]string{""}))
	})
}

func TestWireRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.UTC)
	item := &KnowledgeItem{
		ID:                "k-42",
		Type:              TypeRule,
		Status:            StatusActive,
		Topic:             "deploy/rules",
		Content:           map[string]interface{}{"rule": "no friday deploys"},
		Vector:            []float32{0.5, 0.5},
		Metadata:          map[string]interface{}{"critical": true},
		SourceID:          "agent-7",
		Tags:              []string{"deploy"},
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           2,
		PreviousVersionID: "k-41",
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var back KnowledgeItem
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Empty(t, cmp.Diff(item, &back))
}

func TestWireShape(t *testing.T) {
	t.Run("version one has null previous_version_id", func(t *testing.T) {
		item := &KnowledgeItem{
			ID: "k-1", Type: TypeFact, Status: StatusDraft, Topic: "t",
			CreatedAt: time.Now(), UpdatedAt: time.Now(), Version: 1,
		}
		data, err := json.Marshal(item)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"previous_version_id":null`)
	})

	t.Run("tags serialize as empty array, never null", func(t *testing.T) {
		item := &KnowledgeItem{
			ID: "k-1", Type: TypeFact, Status: StatusDraft, Topic: "t",
			CreatedAt: time.Now(), UpdatedAt: time.Now(), Version: 1,
		}
		data, err := json.Marshal(item)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"tags":[]`)
	})

	t.Run("timestamps render as UTC ISO-8601", func(t *testing.T) {
		loc := time.FixedZone("CET", 3600)
		item := &KnowledgeItem{
			ID: "k-1", Type: TypeFact, Status: StatusDraft, Topic: "t",
			CreatedAt: time.Date(2026, 1, 2, 13, 0, 0, 0, loc),
			UpdatedAt: time.Date(2026, 1, 2, 13, 0, 0, 0, loc),
			Version:   1,
		}
		data, err := json.Marshal(item)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"created_at":"2026-01-02T12:00:00Z"`)
	})

	t.Run("unknown enum values fail decode", func(t *testing.T) {
		doc := `{"knowledge_id":"k","knowledge_type":"BOGUS","status":"DRAFT","topic":"t",
			"content":null,"vector":null,"tags":[],"created_at":"2026-01-01T00:00:00Z",
			"updated_at":"2026-01-01T00:00:00Z","version":1,"previous_version_id":null}`
		var item KnowledgeItem
		err := json.Unmarshal([]byte(strings.ReplaceAll(doc, "\n", "")), &item)
		assert.Error(t, err)
	})
}

func TestHasTag(t *testing.T) {
	item := &KnowledgeItem{Tags: []string{"a", "b"}}
	assert.True(t, item.HasTag("a"))
	assert.False(t, item.HasTag("c"))
}
