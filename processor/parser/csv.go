package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/c360/semflow/errors"
)

// CSVParser parses comma separated records. With no Columns the first
// record of each input is the header.
type CSVParser struct {
	Columns []string
	Comma   rune
}

// NewCSVParser creates a CSV parser with optional fixed columns
func NewCSVParser(columns ...string) *CSVParser {
	return &CSVParser{Columns: columns, Comma: ','}
}

// Parse implements Parser
func (p *CSVParser) Parse(data []byte) ([]map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyData
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = p.Comma
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	columns := p.Columns
	var records []map[string]any
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapInvalid(errors.Detail(ErrParsingFailed, "%v", err), "CSVParser", "Parse", "read record")
		}
		if len(columns) == 0 {
			columns = fields
			continue
		}
		record := make(map[string]any, len(fields))
		for i, field := range fields {
			key := fmt.Sprintf("col%d", i)
			if i < len(columns) {
				key = columns[i]
			}
			record[key] = field
		}
		records = append(records, record)
	}
	return records, nil
}

// Format implements Parser
func (p *CSVParser) Format() string {
	return "csv"
}
