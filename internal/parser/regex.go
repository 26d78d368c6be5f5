package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

// RegexParser extracts points with a regular expression using named capture
// groups. Groups named tag_<k> become tags, groups named field_<k> become
// fields (typed by content: integer, float, boolean, else string), and the
// group named time carries the timestamp.
type RegexParser struct {
	measurement string
	timeFormat  string
	pattern     *regexp.Regexp
	timeIdx     int
	tagIdx      map[string]int
	fieldIdx    map[string]int
}

// NewRegexParser creates a regex capture parser.
func NewRegexParser(cfg Config) (*RegexParser, error) {
	if cfg.Pattern == "" {
		return nil, fmt.Errorf("regex parser requires a pattern")
	}
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	p := &RegexParser{
		measurement: cfg.Measurement,
		timeFormat:  cfg.TimeFormat,
		pattern:     re,
		timeIdx:     -1,
		tagIdx:      make(map[string]int),
		fieldIdx:    make(map[string]int),
	}

	for i, name := range re.SubexpNames() {
		switch {
		case name == "time":
			p.timeIdx = i
		case strings.HasPrefix(name, "tag_"):
			p.tagIdx[strings.TrimPrefix(name, "tag_")] = i
		case strings.HasPrefix(name, "field_"):
			p.fieldIdx[strings.TrimPrefix(name, "field_")] = i
		}
	}

	if p.timeIdx < 0 {
		return nil, fmt.Errorf("pattern must contain a named group (?P<time>...)")
	}
	if len(p.fieldIdx) == 0 {
		return nil, fmt.Errorf("pattern must contain at least one (?P<field_name>...) group")
	}

	return p, nil
}

// Parse implements Parser.
func (p *RegexParser) Parse(line types.RawLine) (*types.Point, error) {
	m := p.pattern.FindStringSubmatch(strings.TrimSpace(line.Text))
	if m == nil {
		return nil, &RejectError{Reason: "line does not match pattern", Line: line}
	}

	ts, err := parseTimestamp(p.timeFormat, m[p.timeIdx])
	if err != nil {
		return nil, &RejectError{
			Reason: fmt.Sprintf("bad timestamp %q: %v", m[p.timeIdx], err),
			Line:   line,
		}
	}

	tags := make(map[string]string, len(p.tagIdx))
	for k, i := range p.tagIdx {
		if m[i] != "" {
			tags[k] = m[i]
		}
	}

	fields := make(map[string]interface{}, len(p.fieldIdx))
	for k, i := range p.fieldIdx {
		if m[i] == "" {
			continue
		}
		fields[k] = typedValue(m[i])
	}
	if len(fields) == 0 {
		return nil, &RejectError{Reason: "no field captured", Line: line}
	}

	return &types.Point{
		Measurement: p.measurement,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   ts,
		Source:      line,
	}, nil
}

// Name implements Parser.
func (p *RegexParser) Name() string {
	return string(TypeRegex)
}

// typedValue converts a captured value into its narrowest field type.
func typedValue(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
