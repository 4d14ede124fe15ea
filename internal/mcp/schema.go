package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compileSchema turns a tool's declarative ParamSchema map into a JSON
// Schema document and compiles it with the real validator, grounded on the
// teacher's ws_schema.go CompileString pattern.
func compileSchema(name string, params map[string]ParamSchema, required []string) (*jsonschema.Schema, error) {
	doc := toJSONSchemaObject(params, required)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	compiled, err := jsonschema.CompileString("mcp_tool_"+name, string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return compiled, nil
}

func toJSONSchemaObject(params map[string]ParamSchema, required []string) map[string]any {
	props := map[string]any{}
	for field, schema := range params {
		props[field] = toJSONSchemaFragment(schema)
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func toJSONSchemaFragment(s ParamSchema) map[string]any {
	frag := map[string]any{"type": string(s.Type)}
	if s.MinLength != nil {
		frag["minLength"] = *s.MinLength
	}
	if s.MaxLength != nil {
		frag["maxLength"] = *s.MaxLength
	}
	if s.Minimum != nil {
		frag["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		frag["maximum"] = *s.Maximum
	}
	if len(s.Enum) > 0 {
		enum := make([]any, len(s.Enum))
		for i, v := range s.Enum {
			enum[i] = v
		}
		frag["enum"] = enum
	}
	if s.Type == ParamObject && len(s.Properties) > 0 {
		props := map[string]any{}
		for field, nested := range s.Properties {
			props[field] = toJSONSchemaFragment(nested)
		}
		frag["properties"] = props
		frag["additionalProperties"] = true
	}
	if s.Type == ParamArray && s.Items != nil {
		frag["items"] = toJSONSchemaFragment(*s.Items)
	}
	return frag
}
