package parser

import (
	"github.com/c360/semflow/errors"
)

// Parsing errors
var (
	ErrInvalidFormat = errors.New("invalid data format")
	ErrEmptyData     = errors.New("empty data")
	ErrParsingFailed = errors.New("parsing failed")
)
