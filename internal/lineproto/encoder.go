// Package lineproto encodes points into InfluxDB line protocol:
//
//	measurement,tag1=v1,tag2=v2 field1=v1,field2=v2 <ns timestamp>
package lineproto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

var (
	measurementEscaper = strings.NewReplacer(",", `\,`, " ", `\ `)
	keyEscaper         = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)
	stringEscaper      = strings.NewReplacer(`"`, `\"`, `\`, `\\`)
)

// Encode appends the line protocol representation of p to b, without a
// trailing newline. Tags are written in lexical key order so the same
// series always encodes identically.
func Encode(b *strings.Builder, p *types.Point) error {
	if p.Measurement == "" {
		return fmt.Errorf("point has no measurement")
	}
	if len(p.Fields) == 0 {
		return fmt.Errorf("point has no fields")
	}

	b.WriteString(measurementEscaper.Replace(p.Measurement))

	for _, k := range p.TagKeys() {
		b.WriteByte(',')
		b.WriteString(keyEscaper.Replace(k))
		b.WriteByte('=')
		b.WriteString(keyEscaper.Replace(p.Tags[k]))
	}

	b.WriteByte(' ')
	for i, k := range p.FieldKeys() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(keyEscaper.Replace(k))
		b.WriteByte('=')
		if err := writeFieldValue(b, p.Fields[k]); err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
	}

	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(p.Timestamp.UnixNano(), 10))

	return nil
}

// EncodeBatch encodes points as a newline-joined payload, one encoded line
// per point, ready for a single write request.
func EncodeBatch(points []*types.Point) (string, error) {
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte('\n')
		}
		if err := Encode(&b, p); err != nil {
			return "", fmt.Errorf("point %d: %w", i, err)
		}
	}
	return b.String(), nil
}

func writeFieldValue(b *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
		b.WriteByte('i')
	case int:
		b.WriteString(strconv.Itoa(val))
		b.WriteByte('i')
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		b.WriteByte('"')
		b.WriteString(stringEscaper.Replace(val))
		b.WriteByte('"')
	default:
		return fmt.Errorf("unsupported field type %T", v)
	}
	return nil
}
