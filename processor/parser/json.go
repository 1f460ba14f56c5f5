package parser

import (
	"bytes"
	"encoding/json"

	"github.com/c360/semflow/errors"
)

// JSONParser parses a JSON object or an array of objects
type JSONParser struct{}

// NewJSONParser creates a new JSON parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse implements Parser
func (p *JSONParser) Parse(data []byte) ([]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyData
	}

	if data[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, errors.WrapInvalid(errors.Detail(ErrParsingFailed, "%v", err), "JSONParser", "Parse", "json array parsing")
		}
		return records, nil
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.WrapInvalid(errors.Detail(ErrParsingFailed, "%v", err), "JSONParser", "Parse", "json parsing")
	}
	return []map[string]any{record}, nil
}

// Format implements Parser
func (p *JSONParser) Format() string {
	return "json"
}
