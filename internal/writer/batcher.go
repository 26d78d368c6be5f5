package writer

import (
	"context"
	"sync"
	"time"

	"github.com/SashaStrek/influxfeed/pkg/types"
)

// BatcherConfig configures the batching behavior.
type BatcherConfig struct {
	// Size flushes the batch once it holds this many points.
	Size int
	// MaxLatency flushes the batch once its oldest point has been
	// buffered this long, bounding end-to-end delivery latency.
	MaxLatency time.Duration
}

// Batcher accumulates points and flushes them when either the size
// threshold is reached or the oldest buffered point exceeds the latency
// bound, whichever happens first. Buffering never blocks; only the flush
// callback performs I/O.
type Batcher struct {
	config  BatcherConfig
	flushFn func(ctx context.Context, points []*types.Point) error

	mu       sync.Mutex
	points   []*types.Point
	firstAdd time.Time
	now      func() time.Time // overridable in tests
}

// NewBatcher creates a new batcher. flushFn must only return nil once the
// whole batch is durably accepted downstream.
func NewBatcher(config BatcherConfig, flushFn func(ctx context.Context, points []*types.Point) error) *Batcher {
	return &Batcher{
		config:  config,
		flushFn: flushFn,
		points:  make([]*types.Point, 0, config.Size),
		now:     time.Now,
	}
}

// Add buffers a point and flushes when a threshold trips. It reports
// whether a flush happened, so the caller knows a commit is due.
func (b *Batcher) Add(ctx context.Context, p *types.Point) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.points) == 0 {
		b.firstAdd = b.now()
	}
	b.points = append(b.points, p)

	if len(b.points) >= b.config.Size || b.now().Sub(b.firstAdd) >= b.config.MaxLatency {
		return true, b.flushLocked(ctx)
	}
	return false, nil
}

// Due reports whether a non-empty buffer has exceeded the latency bound.
func (b *Batcher) Due() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points) > 0 && b.now().Sub(b.firstAdd) >= b.config.MaxLatency
}

// Flush forces delivery of the current batch. A nil return with a
// non-empty batch means every buffered point is durably written.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// Len returns the current number of buffered points.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

// flushLocked flushes the current batch (must be called with lock held).
// On failure the batch is retained so the caller may halt without losing
// track of what was pending.
func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.points) == 0 {
		return nil
	}

	toFlush := make([]*types.Point, len(b.points))
	copy(toFlush, b.points)

	b.mu.Unlock()
	err := b.flushFn(ctx, toFlush)
	b.mu.Lock()

	if err != nil {
		return err
	}

	b.points = b.points[:0]
	return nil
}
