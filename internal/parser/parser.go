// Package parser converts raw log lines into data points. Parsers are pure:
// deterministic, no I/O, no shared state, so they are trivially unit-testable
// and safe to call from concurrent workers.
package parser

import (
	"errors"
	"fmt"
	"time"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

// Parser defines the line parsing contract.
type Parser interface {
	// Parse converts one raw line into a point. A *RejectError return
	// means the line is invalid for this format; rejects are non-fatal
	// and the caller skips the line.
	Parse(line types.RawLine) (*types.Point, error)

	// Name returns the parser name.
	Name() string
}

// Type represents the available parsing strategies.
type Type string

const (
	TypeDelimited Type = "delimited"
	TypeRegex     Type = "regex"
)

// Config holds parser configuration.
type Config struct {
	Type        Type
	Measurement string
	Pattern     string // regex parser only
	TimeFormat  string // timestamp layout, defaults to ISO-8601 Z
}

// DefaultTimeFormat is the timestamp layout the original feed files use.
const DefaultTimeFormat = "2006-01-02T15:04:05Z"

// RejectError marks a line as unparseable for the configured format. It is
// not a pipeline failure: rejected lines are counted and skipped.
type RejectError struct {
	Reason string
	Line   types.RawLine
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("line %d of %s rejected: %s", e.Line.Line, e.Line.Path, e.Reason)
}

// IsReject reports whether err is a parse rejection.
func IsReject(err error) bool {
	var reject *RejectError
	return errors.As(err, &reject)
}

// New creates a parser for the configured strategy.
func New(cfg Config) (Parser, error) {
	if cfg.Measurement == "" {
		return nil, fmt.Errorf("measurement is required")
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = DefaultTimeFormat
	}

	switch cfg.Type {
	case TypeDelimited:
		return NewDelimitedParser(cfg)
	case TypeRegex:
		return NewRegexParser(cfg)
	default:
		return nil, fmt.Errorf("unknown parser type: %s", cfg.Type)
	}
}

func parseTimestamp(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
