package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

// delimitedFields are the field names of the sensor record layout, in the
// order they appear between the host tag and the trailing timestamp.
var delimitedFields = []string{
	"T1", "T2", "T3", "T4",
	"Pwr1", "Pwr2", "Pwr3", "Pwr4",
	"LEDamp", "LEDwidth", "Threshold",
	"V1", "V2", "V3", "V4",
}

// DelimitedParser parses the comma-separated sensor format:
//
//	<measurement>,<host>,<15 numeric values>,<ISO-8601 Z timestamp>
//
// Lines that do not start with the configured measurement are rejected,
// matching the original feeder's prefix filter.
type DelimitedParser struct {
	measurement string
	timeFormat  string
	want        int
}

// NewDelimitedParser creates the default delimited parser.
func NewDelimitedParser(cfg Config) (*DelimitedParser, error) {
	return &DelimitedParser{
		measurement: cfg.Measurement,
		timeFormat:  cfg.TimeFormat,
		// measurement + host + fields + timestamp
		want: 2 + len(delimitedFields) + 1,
	}, nil
}

// Parse implements Parser.
func (p *DelimitedParser) Parse(line types.RawLine) (*types.Point, error) {
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil, &RejectError{Reason: "empty line", Line: line}
	}
	if !strings.HasPrefix(text, p.measurement+",") {
		return nil, &RejectError{
			Reason: fmt.Sprintf("line does not start with measurement %q", p.measurement),
			Line:   line,
		}
	}

	parts := strings.Split(text, ",")
	if len(parts) != p.want {
		return nil, &RejectError{
			Reason: fmt.Sprintf("expected %d comma-separated values, got %d", p.want, len(parts)),
			Line:   line,
		}
	}

	host := parts[1]
	if host == "" {
		return nil, &RejectError{Reason: "empty host tag", Line: line}
	}

	fields := make(map[string]interface{}, len(delimitedFields))
	for i, name := range delimitedFields {
		raw := parts[2+i]
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &RejectError{
				Reason: fmt.Sprintf("field %s: %q is not numeric", name, raw),
				Line:   line,
			}
		}
		fields[name] = v
	}

	ts, err := parseTimestamp(p.timeFormat, parts[len(parts)-1])
	if err != nil {
		return nil, &RejectError{
			Reason: fmt.Sprintf("bad timestamp %q: %v", parts[len(parts)-1], err),
			Line:   line,
		}
	}

	return &types.Point{
		Measurement: p.measurement,
		Tags:        map[string]string{"host": host},
		Fields:      fields,
		Timestamp:   ts,
		Source:      line,
	}, nil
}

// Name implements Parser.
func (p *DelimitedParser) Name() string {
	return string(TypeDelimited)
}
