package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildFieldSchema returns the JSON Schema of a normalized field mapping.
// It is embedded in the prompt and also used to validate the normalized result locally.
func BuildFieldSchema(kind SchemaKind) map[string]any {
	fields := DeclaredFields(kind)
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{"type": "string", "minLength": 1}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             fields,
	}
}

var (
	compiledMu sync.Mutex
	compiled   = map[SchemaKind]*jsonschema.Schema{}
)

func compiledSchema(kind SchemaKind) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[kind]; ok {
		return s, nil
	}
	s, err := compileSchema(string(kind)+".json", BuildFieldSchema(kind))
	if err != nil {
		return nil, err
	}
	compiled[kind] = s
	return s, nil
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSONAgainstSchema validates data against schemaMap.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema("schema.json", schemaMap)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateFields checks a normalized mapping against the schema of kind.
func ValidateFields(kind SchemaKind, f Fields) error {
	schema, err := compiledSchema(kind)
	if err != nil {
		return err
	}
	doc := make(map[string]any, len(f))
	for k, v := range f {
		doc[k] = v
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("fields do not match %s schema: %w", kind, err)
	}
	return nil
}
