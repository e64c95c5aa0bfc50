// Package validation checks knowledge content against topic-pattern-keyed
// schemas. Schemas are matched by regular expression over the item topic;
// the first matching pattern supplies the schema. A topic with no matching
// pattern is valid by default.
package validation

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FieldType is the scalar type a schema can require for a content field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// FieldError identifies the content field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Schema constrains the content published under matching topics.
type Schema struct {
	// Pattern is a regular expression matched against the item topic.
	Pattern string `yaml:"pattern"`
	// Required lists fields that must be present in the content object.
	Required []string `yaml:"required"`
	// Fields maps field names to their expected scalar types.
	Fields map[string]FieldType `yaml:"fields"`
}

// compiledSchema pairs a schema with its compiled topic regex.
type compiledSchema struct {
	re     *regexp.Regexp
	schema Schema
}

// Validator validates content against topic schemas. The schema set can be
// swapped at runtime (see Watcher), so access goes through a mutex.
type Validator struct {
	mu      sync.RWMutex
	schemas []compiledSchema
	logger  *zap.Logger
}

// New creates a validator from a list of schemas. Order matters: the first
// pattern whose regex matches a topic wins.
func New(schemas []Schema, logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{logger: logger}
	if err := v.SetSchemas(schemas); err != nil {
		return nil, err
	}
	return v, nil
}

// SetSchemas compiles and atomically replaces the schema set.
func (v *Validator) SetSchemas(schemas []Schema) error {
	compiled := make([]compiledSchema, 0, len(schemas))
	for _, s := range schemas {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("invalid topic pattern %q: %w", s.Pattern, err)
		}
		for name, ft := range s.Fields {
			switch ft {
			case FieldString, FieldNumber, FieldBoolean, FieldArray, FieldObject:
			default:
				return fmt.Errorf("schema %q: field %q has unknown type %q", s.Pattern, name, ft)
			}
		}
		compiled = append(compiled, compiledSchema{re: re, schema: s})
	}

	v.mu.Lock()
	v.schemas = compiled
	v.mu.Unlock()
	return nil
}

// SchemaCount returns the number of loaded schemas.
func (v *Validator) SchemaCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.schemas)
}

// Validate checks content against the first schema whose pattern matches
// topic. Returns a *FieldError naming the failing field, or nil.
func (v *Validator) Validate(topic string, content interface{}) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, cs := range v.schemas {
		if !cs.re.MatchString(topic) {
			continue
		}
		return validateAgainst(cs.schema, content)
	}
	return nil // no pattern match means valid by default
}

func validateAgainst(s Schema, content interface{}) error {
	obj, ok := content.(map[string]interface{})
	if !ok {
		if len(s.Required) == 0 && len(s.Fields) == 0 {
			return nil
		}
		return &FieldError{Field: "", Reason: "content must be an object"}
	}

	for _, name := range s.Required {
		if _, present := obj[name]; !present {
			return &FieldError{Field: name, Reason: "required field missing"}
		}
	}

	for name, want := range s.Fields {
		val, present := obj[name]
		if !present {
			continue
		}
		if !matchesType(val, want) {
			return &FieldError{Field: name, Reason: fmt.Sprintf("expected %s, got %T", want, val)}
		}
	}
	return nil
}

// matchesType checks a decoded JSON/YAML value against a schema field type.
func matchesType(val interface{}, want FieldType) bool {
	switch want {
	case FieldString:
		_, ok := val.(string)
		return ok
	case FieldNumber:
		switch val.(type) {
		case float64, float32, int, int64, int32, uint, uint64:
			return true
		}
		return false
	case FieldBoolean:
		_, ok := val.(bool)
		return ok
	case FieldArray:
		switch val.(type) {
		case []interface{}, []string:
			return true
		}
		return false
	case FieldObject:
		_, ok := val.(map[string]interface{})
		return ok
	}
	return false
}

// =============================================================================
// SCHEMA FILE LOADING
// =============================================================================

// schemaFile is the YAML document shape for schema files.
type schemaFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// LoadSchemas reads a YAML schema file. A missing file yields an empty
// schema set (everything valid), not an error.
func LoadSchemas(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}
	return f.Schemas, nil
}

// NewFromFile builds a validator from a YAML schema file.
func NewFromFile(path string, logger *zap.Logger) (*Validator, error) {
	schemas, err := LoadSchemas(path)
	if err != nil {
		return nil, err
	}
	return New(schemas, logger)
}
