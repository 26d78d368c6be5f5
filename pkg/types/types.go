package types

import (
	"sort"
	"time"
)

// RawLine is one line of input text, tagged with its origin.
type RawLine struct {
	Path string `json:"path"`
	Line int    `json:"line"` // 1-based line number within Path
	Text string `json:"text"`
}

// Point is a single time-series data point destined for InfluxDB.
type Point struct {
	Measurement string                 `json:"measurement"`
	Tags        map[string]string      `json:"tags,omitempty"`
	Fields      map[string]interface{} `json:"fields"` // int64, float64, string or bool
	Timestamp   time.Time              `json:"timestamp"`

	// Origin of the point, used to advance the file cursor after delivery.
	Source RawLine `json:"-"`
}

// TagKeys returns the point's tag keys in lexical order. Line protocol
// requires a stable tag order for the same series to hash identically.
func (p *Point) TagKeys() []string {
	keys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FieldKeys returns the point's field keys in lexical order.
func (p *Point) FieldKeys() []string {
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FileCursor records delivery progress within one file. Line is the last
// line whose points have been confirmed written downstream; lines rejected
// by the parser also advance it once the surrounding batch is delivered.
type FileCursor struct {
	Path     string `json:"path"`
	Inode    uint64 `json:"inode"`
	Line     int    `json:"line"`
	Complete bool   `json:"complete"`
}

// PipelineStats summarizes one pipeline run.
type PipelineStats struct {
	FilesProcessed int   `json:"files_processed"`
	FilesSkipped   int   `json:"files_skipped"`
	LinesRead      int64 `json:"lines_read"`
	PointsParsed   int64 `json:"points_parsed"`
	ParseRejects   int64 `json:"parse_rejects"`
	PointsWritten  int64 `json:"points_written"`
	BatchesWritten int64 `json:"batches_written"`
	WriteRetries   int64 `json:"write_retries"`
}
