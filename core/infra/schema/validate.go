package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator compiles a JSON schema once and validates many payloads against it.
type Validator struct {
	id     string
	source []byte

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewValidator returns a lazily compiled validator for the schema bytes.
func NewValidator(id string, schema []byte) *Validator {
	return &Validator{id: schemaID(id), source: schema}
}

// Validate checks a decoded value (or raw JSON bytes) against the schema.
func (v *Validator) Validate(value any) error {
	if v == nil {
		return fmt.Errorf("schema validator is nil")
	}
	v.once.Do(func() {
		v.compiled, v.err = compile(v.id, v.source)
	})
	if v.err != nil {
		return v.err
	}
	payload, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("normalize payload: %w", err)
	}
	if err := v.compiled.Validate(payload); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateSchema validates a value against a JSON schema payload.
func ValidateSchema(id string, schema []byte, value any) error {
	return NewValidator(id, schema).Validate(value)
}

func compile(id string, schema []byte) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(id, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(id)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

func normalizeValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return decode(v)
	case []byte:
		return decode(v)
	case string:
		return decode([]byte(v))
	default:
		return value, nil
	}
}

func decode(data []byte) (any, error) {
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

func schemaID(id string) string {
	if id == "" {
		id = "schema"
	}
	return "inmemory://" + id
}
