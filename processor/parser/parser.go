package parser

import (
	"fmt"
	"strings"

	"github.com/c360/semflow/errors"
)

// Parser converts raw data into records
type Parser interface {
	Parse(data []byte) ([]map[string]any, error)
	Format() string
}

// New returns the parser for format ("json" or "csv")
func New(format string, columns []string, separator string) (Parser, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return NewJSONParser(), nil
	case "csv":
		p := NewCSVParser(columns...)
		if separator != "" {
			r := []rune(separator)
			if len(r) != 1 {
				return nil, errors.Detail(ErrInvalidFormat, "separator %q must be one character", separator)
			}
			p.Comma = r[0]
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidFormat, format)
	}
}
