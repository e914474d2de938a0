package constraints

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const constraintSchemaURL = "https://archgate.schemas.local/constraint.schema.json"

// constraintSchema is the JSON Schema every catalog record must satisfy.
const constraintSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "type", "severity", "scope"],
  "properties": {
    "id":          {"type": "string", "minLength": 1},
    "type":        {"type": "string", "minLength": 1},
    "severity":    {"enum": ["CRITICAL", "HIGH", "MEDIUM", "LOW"]},
    "scope":       {"type": "string", "minLength": 1},
    "owner":       {"type": "string"},
    "description": {"type": "string"},
    "when":        {"type": "string"}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(constraintSchemaURL, strings.NewReader(constraintSchema)); err != nil {
		return nil, fmt.Errorf("constraint schema load failed: %w", err)
	}
	s, err := c.Compile(constraintSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("constraint schema compile failed: %w", err)
	}
	return s, nil
})
