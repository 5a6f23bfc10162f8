package schema

import (
	"strings"
	"testing"
)

const objectSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {"name": {"type": "string"}, "count": {"type": "integer", "minimum": 0}}
}`

func TestValidatorAcceptsAndRejects(t *testing.T) {
	v := NewValidator("test-object", []byte(objectSchema))
	if err := v.Validate([]byte(`{"name":"a","count":2}`)); err != nil {
		t.Fatalf("expected valid payload: %v", err)
	}
	if err := v.Validate(map[string]any{"count": 1}); err == nil {
		t.Fatalf("expected missing name to fail")
	}
	if err := v.Validate(`{"name":"a","count":-1}`); err == nil || !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected minimum violation, got %v", err)
	}
}

func TestValidatorRejectsUndecodablePayload(t *testing.T) {
	v := NewValidator("bad-payload", []byte(objectSchema))
	if err := v.Validate([]byte(`{`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestValidateSchemaEmpty(t *testing.T) {
	if err := ValidateSchema("empty", nil, map[string]any{}); err == nil {
		t.Fatalf("expected empty schema error")
	}
}
