package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for
// the block document format. The directive and access-policy shapes
// are reflected from their Go structs with invopop/jsonschema; the
// recursive block shape (free-form ordered keys) is assembled by hand
// around them.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	directive := r.Reflect(&Directive{})
	defs, err := json.Marshal(directive.Definitions)
	if err != nil {
		return nil, fmt.Errorf("marshal directive definitions: %w", err)
	}

	// The block value is recursive: scalar | directive | nested block.
	doc := map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         "https://github.com/ormasoftchile/stanza/schemas/document-v1.json",
		"title":       "Stanza Block Document v1",
		"description": "Schema for stanza declarative block documents",
		"type":        "object",
		"properties": map[string]any{
			"version": map[string]any{"type": "string"},
			"vars": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"blocks": map[string]any{
				"type":                 "object",
				"minProperties":        1,
				"additionalProperties": map[string]any{"$ref": "#/$defs/block"},
			},
		},
		"required":             []string{"blocks"},
		"additionalProperties": false,
	}

	var defsMap map[string]any
	if err := json.Unmarshal(defs, &defsMap); err != nil {
		return nil, fmt.Errorf("unmarshal directive definitions: %w", err)
	}
	defsMap["block"] = map[string]any{
		"type": "object",
		"additionalProperties": map[string]any{
			"anyOf": []any{
				map[string]any{"type": []string{"string", "number", "boolean"}},
				map[string]any{"$ref": "#/$defs/Directive"},
				map[string]any{"$ref": "#/$defs/block"},
			},
		},
	}
	doc["$defs"] = defsMap

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
