package mcp

import (
	"encoding/json"
	"time"
)

// RegCategory groups registry tools for presentation and policy purposes.
type RegCategory string

const (
	CategoryCommunication RegCategory = "communication"
	CategoryGameControl   RegCategory = "game_control"
	CategoryModeration    RegCategory = "moderation"
	CategoryInformation   RegCategory = "information"
)

// ParamType is the declarative type tag for one parameter or field.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// ParamSchema declaratively describes one parameter or nested field. It
// compiles to a JSON Schema fragment (see schema.go) rather than being
// interpreted directly, so the authoring surface stays small while
// validation is delegated to a real JSON Schema engine.
type ParamSchema struct {
	Type       ParamType              `json:"type"`
	MinLength  *int                   `json:"minLength,omitempty"`
	MaxLength  *int                   `json:"maxLength,omitempty"`
	Minimum    *float64               `json:"minimum,omitempty"`
	Maximum    *float64               `json:"maximum,omitempty"`
	Enum       []string               `json:"enum,omitempty"`
	Properties map[string]ParamSchema `json:"properties,omitempty"`
	Items      *ParamSchema           `json:"items,omitempty"`
}

// RegToolDefinition declares one registry tool: its identity, description,
// category, parameter shape, and which parameters are required.
type RegToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Category    RegCategory            `json:"category"`
	Parameters  map[string]ParamSchema `json:"parameters"`
	Required    []string               `json:"required,omitempty"`
}

// RegToolCall is one invocation request against the registry.
type RegToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Params    json.RawMessage `json:"params"`
	Timestamp time.Time       `json:"timestamp"`
}

// RegToolResult is the uniform outcome of Invoke.
type RegToolResult struct {
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"durationMs"`
}

// RegHandler performs a tool's side effect given validated parameters and
// returns a small opaque JSON status object.
type RegHandler func(ctx HandlerContext, params json.RawMessage) (json.RawMessage, error)
