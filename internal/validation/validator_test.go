package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T, schemas []Schema) *Validator {
	t.Helper()
	v, err := New(schemas, nil)
	require.NoError(t, err)
	return v
}

func TestValidate(t *testing.T) {
	schemas := []Schema{
		{
			Pattern:  `^deploy/`,
			Required: []string{"rule"},
			Fields:   map[string]FieldType{"rule": FieldString, "severity": FieldNumber},
		},
		{
			Pattern: `.*`,
			Fields:  map[string]FieldType{"note": FieldString},
		},
	}
	v := newTestValidator(t, schemas)

	t.Run("matching content passes", func(t *testing.T) {
		err := v.Validate("deploy/rules", map[string]interface{}{
			"rule":     "no friday deploys",
			"severity": 3.0,
		})
		assert.NoError(t, err)
	})

	t.Run("missing required field fails", func(t *testing.T) {
		err := v.Validate("deploy/rules", map[string]interface{}{"severity": 3.0})
		require.Error(t, err)
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "rule", fe.Field)
	})

	t.Run("wrong field type fails", func(t *testing.T) {
		err := v.Validate("deploy/rules", map[string]interface{}{
			"rule":     "ok",
			"severity": "high",
		})
		require.Error(t, err)
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "severity", fe.Field)
	})

	t.Run("first matching pattern wins", func(t *testing.T) {
		// The catch-all schema would accept this, but deploy/ matches first
		// and requires the rule field.
		err := v.Validate("deploy/other", map[string]interface{}{"note": "hi"})
		assert.Error(t, err)
	})

	t.Run("non-object content fails when schema has constraints", func(t *testing.T) {
		err := v.Validate("deploy/rules", "just a string")
		assert.Error(t, err)
	})

	t.Run("optional typed field may be absent", func(t *testing.T) {
		err := v.Validate("misc/notes", map[string]interface{}{})
		assert.NoError(t, err)
	})
}

func TestValidateNoMatch(t *testing.T) {
	v := newTestValidator(t, []Schema{{Pattern: `^deploy/`, Required: []string{"rule"}}})

	// Topics with no matching pattern are valid by default.
	assert.NoError(t, v.Validate("random/topic", "anything at all"))
	assert.NoError(t, v.Validate("random/topic", nil))
}

func TestSetSchemas(t *testing.T) {
	t.Run("invalid regex rejected", func(t *testing.T) {
		_, err := New([]Schema{{Pattern: `([`}}, nil)
		assert.Error(t, err)
	})

	t.Run("unknown field type rejected", func(t *testing.T) {
		_, err := New([]Schema{{
			Pattern: `.*`,
			Fields:  map[string]FieldType{"x": "integer"},
		}}, nil)
		assert.Error(t, err)
	})

	t.Run("replacement swaps the whole set", func(t *testing.T) {
		v := newTestValidator(t, []Schema{{Pattern: `^a/`, Required: []string{"x"}}})
		require.Error(t, v.Validate("a/topic", map[string]interface{}{}))

		require.NoError(t, v.SetSchemas(nil))
		assert.NoError(t, v.Validate("a/topic", map[string]interface{}{}))
		assert.Equal(t, 0, v.SchemaCount())
	})
}

func TestLoadSchemas(t *testing.T) {
	t.Run("missing file yields empty set", func(t *testing.T) {
		schemas, err := LoadSchemas(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, schemas)
	})

	t.Run("parses schema file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schemas.yaml")
		doc := `schemas:
  - pattern: "^deploy/"
    required: ["rule"]
    fields:
      rule: string
      severity: number
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

		v, err := NewFromFile(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, v.SchemaCount())
		assert.Error(t, v.Validate("deploy/x", map[string]interface{}{}))
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("schemas: [pattern: {{"), 0644))
		_, err := LoadSchemas(path)
		assert.Error(t, err)
	})
}
