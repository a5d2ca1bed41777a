package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON schema for one kind of model reply.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Compiled on first use and shared by every request.
var (
	planSchema = sync.OnceValues(func() (*Schema, error) {
		return CompileSchema("plan", BuildPlanJSONSchema())
	})
	timeRangeSchema = sync.OnceValues(func() (*Schema, error) {
		return CompileSchema("time_range", BuildTimeRangeJSONSchema())
	})
	billSchema = sync.OnceValues(func() (*Schema, error) {
		return CompileSchema("bill", BuildBillJSONSchema())
	})
)

// CompileSchema compiles a schema document such as BuildPlanJSONSchema returns.
func CompileSchema(name string, doc map[string]any) (*Schema, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

func (s *Schema) Name() string { return s.name }

// Validate checks one JSON reply against the schema.
func (s *Schema) Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%s reply is not JSON: %w", s.name, err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("%s reply does not match schema: %w", s.name, err)
	}
	return nil
}
