package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/semflow/flow"
)

// validateSchema checks that schema compiles and that every declared default
// satisfies its own property schema
func validateSchema(schema HandlerSchema, h *flow.Handler) error {
	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return fmt.Errorf("schema %s does not compile: %w", schema.ID, err)
	}

	var problems []string
	for _, spec := range h.Parameters {
		if spec.Default == nil {
			continue
		}
		prop, ok := schema.Properties[spec.Name]
		if !ok {
			continue
		}
		result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(prop), gojsonschema.NewGoLoader(spec.Default))
		if err != nil {
			return fmt.Errorf("validation error for %s.%s: %w", h.Name, spec.Name, err)
		}
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("  - default of %s: %s", spec.Name, desc.Description()))
		}
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("schema validation failed for %s:\n%s", schema.ID, strings.Join(problems, "\n"))
	}
	return nil
}
