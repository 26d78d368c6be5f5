// Package dlq preserves batches the database permanently refused, so an
// operator can inspect and replay them after fixing the cause.
package dlq

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SashaStrek/influxfeed/internal/lineproto"
	"github.com/SashaStrek/influxfeed/pkg/types"
)

// Writer writes refused batches as ready-to-replay line protocol files.
type Writer struct {
	dir string
	now func() time.Time // overridable in tests
}

// New creates a dead letter writer rooted at dir.
func New(dir string) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("dead letter directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dead letter directory: %w", err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// Dump writes the batch to a timestamped file and returns its path. The
// file body is the exact line protocol payload the database refused.
func (w *Writer) Dump(points []*types.Point, cause error) (string, error) {
	payload, err := lineproto.EncodeBatch(points)
	if err != nil {
		return "", fmt.Errorf("failed to encode refused batch: %w", err)
	}

	name := fmt.Sprintf("batch-%s.lp", w.now().UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(w.dir, name)

	if err := os.WriteFile(path, []byte(payload+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write dead letter file: %w", err)
	}

	log.Error().
		Err(cause).
		Str("path", path).
		Int("points", len(points)).
		Msg("Refused batch preserved in dead letter file")

	return path, nil
}
