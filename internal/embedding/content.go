package embedding

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// CONTENT RENDERING
// =============================================================================
// Knowledge content is an opaque structured value (nested maps, slices,
// scalars). Embedding requires text, so content is rendered into a canonical
// string: map keys sorted, nested values flattened depth-first. The rendering
// must be deterministic so the hash backend produces stable vectors.

// RenderContent converts an arbitrary content value into a normalized string.
func RenderContent(content interface{}) string {
	var sb strings.Builder
	renderValue(&sb, content)
	return strings.TrimSpace(sb.String())
}

func renderValue(sb *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case nil:
		// skip
	case string:
		sb.WriteString(t)
		sb.WriteByte(' ')
	case bool:
		sb.WriteString(strconv.FormatBool(t))
		sb.WriteByte(' ')
	case int:
		sb.WriteString(strconv.Itoa(t))
		sb.WriteByte(' ')
	case int64:
		sb.WriteString(strconv.FormatInt(t, 10))
		sb.WriteByte(' ')
	case float64:
		sb.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		sb.WriteByte(' ')
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
		sb.WriteByte(' ')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(k)
			sb.WriteByte(' ')
			renderValue(sb, t[k])
		}
	case []interface{}:
		for _, e := range t {
			renderValue(sb, e)
		}
	case []string:
		for _, e := range t {
			sb.WriteString(e)
			sb.WriteByte(' ')
		}
	default:
		fmt.Fprintf(sb, "%v ", t)
	}
}

// textStats holds the lexical features the hash backend mixes into vectors.
type textStats struct {
	wordCount      int
	avgWordLength  float64
	typeTokenRatio float64
}

// computeTextStats derives word-level features from rendered text.
func computeTextStats(text string) textStats {
	words := strings.Fields(text)
	if len(words) == 0 {
		return textStats{}
	}

	totalLen := 0
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		totalLen += len(w)
		unique[strings.ToLower(w)] = struct{}{}
	}

	return textStats{
		wordCount:      len(words),
		avgWordLength:  float64(totalLen) / float64(len(words)),
		typeTokenRatio: float64(len(unique)) / float64(len(words)),
	}
}

// TruncateForLog shortens a string for log output.
func TruncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
