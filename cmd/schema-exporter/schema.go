package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/c360/semflow/flow"
)

// HandlerSchema is the exported parameter schema of one handler
type HandlerSchema struct {
	Schema      string          `json:"$schema"`
	ID          string          `json:"$id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Properties  map[string]any  `json:"properties"`
	Required    []string        `json:"required"`
	Metadata    HandlerMetadata `json:"x-handler-metadata"`
}

// HandlerMetadata identifies the handler a schema belongs to
type HandlerMetadata struct {
	Name     string   `json:"name"`
	Library  string   `json:"library"`
	Requires []string `json:"requires,omitempty"`
}

// extractSchema builds the schema from the declared parameters, then lays
// the handler's own ParameterSchema over it
func extractSchema(h *flow.Handler) (HandlerSchema, error) {
	properties := make(map[string]any, len(h.Parameters))
	required := []string{}
	for _, spec := range h.Parameters {
		prop := map[string]any{}
		if t := mapTypeToJSONSchema(spec.Type); t != "" {
			prop["type"] = t
		}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		if spec.Default != nil {
			prop["default"] = spec.Default
		}
		properties[spec.Name] = prop
		if spec.Required {
			required = append(required, spec.Name)
		}
	}

	if h.ParameterSchema != "" {
		var declared struct {
			Properties map[string]map[string]any `json:"properties"`
			Required   []string                  `json:"required"`
		}
		if err := json.Unmarshal([]byte(h.ParameterSchema), &declared); err != nil {
			return HandlerSchema{}, fmt.Errorf("decode parameter schema: %w", err)
		}
		for name, prop := range declared.Properties {
			merged, _ := properties[name].(map[string]any)
			if merged == nil {
				merged = map[string]any{}
			}
			maps.Copy(merged, prop)
			properties[name] = merged
		}
		required = append(required, declared.Required...)
	}

	slices.Sort(required)
	library, _, _ := strings.Cut(h.Name, ".")
	return HandlerSchema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		ID:          fmt.Sprintf("%s.v1.json", h.Name),
		Type:        "object",
		Title:       fmt.Sprintf("%s parameters", h.Name),
		Description: h.Description,
		Properties:  properties,
		Required:    slices.Compact(required),
		Metadata: HandlerMetadata{
			Name:     h.Name,
			Library:  library,
			Requires: h.Requires,
		},
	}, nil
}

// mapTypeToJSONSchema maps parameter types to JSON Schema types; "" leaves
// the property untyped
func mapTypeToJSONSchema(paramType string) string {
	switch paramType {
	case "int", "uint":
		return "integer"
	case "float":
		return "number"
	case "bool":
		return "boolean"
	case "string":
		return "string"
	case "object":
		return "object"
	case "array", "list":
		return "array"
	default:
		return ""
	}
}
