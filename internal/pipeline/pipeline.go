// Package pipeline drives the run: sequence files, read lines, parse,
// batch, deliver, commit. Delivery is at-least-once: a cursor is only
// committed after the batch covering it has been confirmed written.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/SashaStrek/influxfeed/internal/dlq"
	"github.com/SashaStrek/influxfeed/internal/metrics"
	"github.com/SashaStrek/influxfeed/internal/parser"
	"github.com/SashaStrek/influxfeed/internal/sequencer"
	"github.com/SashaStrek/influxfeed/internal/tracing"
	"github.com/SashaStrek/influxfeed/internal/writer"
	"github.com/SashaStrek/influxfeed/pkg/types"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1024 * 1024

// CursorStore is the durable progress store the pipeline commits to.
type CursorStore interface {
	Load() (map[string]types.FileCursor, error)
	Commit(types.FileCursor) error
}

// Deliverer writes a batch downstream. A nil return means the whole batch
// is durably accepted.
type Deliverer interface {
	Write(ctx context.Context, points []*types.Point) error
	Retries() int64
}

// Options configures a pipeline.
type Options struct {
	StartFile  string
	Parser     parser.Parser
	Cursors    CursorStore
	Client     Deliverer
	Batch      writer.BatcherConfig
	DeadLetter *dlq.Writer        // optional
	Metrics    *metrics.Collector // optional
	Tracer     trace.Tracer       // optional
}

// Pipeline processes one bounded run over the planned file set.
type Pipeline struct {
	startFile string
	parser    parser.Parser
	cursors   CursorStore
	client    Deliverer
	deadLet   *dlq.Writer
	collector *metrics.Collector
	tracer    trace.Tracer
	batcher   *writer.Batcher

	stats   types.PipelineStats
	current types.FileCursor // watermark for the file being read
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.StartFile == "" {
		return nil, fmt.Errorf("start file is required")
	}
	if opts.Parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if opts.Cursors == nil {
		return nil, fmt.Errorf("cursor store is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("write client is required")
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("influxfeed")
	}

	p := &Pipeline{
		startFile: opts.StartFile,
		parser:    opts.Parser,
		cursors:   opts.Cursors,
		client:    opts.Client,
		deadLet:   opts.DeadLetter,
		collector: opts.Metrics,
		tracer:    opts.Tracer,
	}
	p.batcher = writer.NewBatcher(opts.Batch, p.deliver)

	return p, nil
}

// Run processes the file plan to completion. On return the cursor store
// reflects exactly what has been delivered; a non-nil error means the run
// halted with the last successful commit intact.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	plan, err := sequencer.Plan(p.startFile)
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	saved, err := p.cursors.Load()
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	log.Info().
		Int("files", len(plan)).
		Int("cursors", len(saved)).
		Str("start", p.startFile).
		Msg("Pipeline run starting")

	for _, file := range plan {
		prev, found := saved[file.Path]
		if err := p.processFile(ctx, file, prev, found); err != nil {
			tracing.RecordError(ctx, err)
			return err
		}
	}

	p.stats.WriteRetries = p.client.Retries()

	log.Info().
		Int("files_processed", p.stats.FilesProcessed).
		Int("files_skipped", p.stats.FilesSkipped).
		Int64("lines_read", p.stats.LinesRead).
		Int64("points_parsed", p.stats.PointsParsed).
		Int64("parse_rejects", p.stats.ParseRejects).
		Int64("points_written", p.stats.PointsWritten).
		Int64("batches_written", p.stats.BatchesWritten).
		Int64("write_retries", p.stats.WriteRetries).
		Msg("Pipeline run complete")

	return nil
}

// Stats returns the run summary accumulated so far.
func (p *Pipeline) Stats() types.PipelineStats {
	s := p.stats
	s.WriteRetries = p.client.Retries()
	return s
}

// processFile reads one file from its resume position through EOF,
// flushing and committing along the way.
func (p *Pipeline) processFile(ctx context.Context, file sequencer.FileInfo, prev types.FileCursor, found bool) error {
	ctx, span := tracing.TraceFile(ctx, p.tracer, file.Path)
	defer span.End()

	startLine := 1
	if found {
		switch {
		case prev.Inode != 0 && file.Inode != 0 && prev.Inode != file.Inode:
			// The path now names a different file (rotation or rename).
			// The stored cursor belongs to the old file, so start over.
			log.Warn().
				Str("path", file.Path).
				Uint64("stored_inode", prev.Inode).
				Uint64("current_inode", file.Inode).
				Msg("File identity changed since last run, reprocessing from line 1")
		case prev.Complete:
			log.Debug().Str("path", file.Path).Msg("File already fully delivered, skipping")
			p.stats.FilesSkipped++
			return nil
		default:
			startLine = prev.Line + 1
			log.Info().
				Str("path", file.Path).
				Int("resume_line", startLine).
				Msg("Resuming from cursor")
		}
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer f.Close()

	p.current = types.FileCursor{
		Path:  file.Path,
		Inode: file.Inode,
		Line:  startLine - 1,
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < startLine {
			continue
		}

		// Cooperative stop between line-processing steps: the batch in
		// flight either completes flush-and-commit or the cursor stays put.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run stopped at %s line %d: %w", file.Path, lineNo, err)
		}

		if err := p.processLine(ctx, types.RawLine{
			Path: file.Path,
			Line: lineNo,
			Text: scanner.Text(),
		}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed reading %s: %w", file.Path, err)
	}

	// End of file: flush the remainder, then commit the file as complete.
	if err := p.batcher.Flush(ctx); err != nil {
		return fmt.Errorf("delivery failed at %s line %d: %w", file.Path, p.current.Line, err)
	}
	p.current.Complete = true
	if err := p.commit(); err != nil {
		return err
	}

	p.stats.FilesProcessed++
	log.Info().
		Str("path", file.Path).
		Msg("File fully delivered")

	return nil
}

// processLine parses one line and forwards the point. Rejected lines are
// counted and still advance the watermark: they are fully processed, just
// not written.
func (p *Pipeline) processLine(ctx context.Context, line types.RawLine) error {
	p.stats.LinesRead++
	if p.collector != nil {
		p.collector.LinesRead.Inc()
	}

	point, err := p.parser.Parse(line)
	if err != nil {
		if !parser.IsReject(err) {
			return fmt.Errorf("parser failed at %s line %d: %w", line.Path, line.Line, err)
		}
		p.stats.ParseRejects++
		if p.collector != nil {
			p.collector.ParseRejects.Inc()
		}
		log.Warn().
			Str("path", line.Path).
			Int("line", line.Line).
			Str("reason", err.Error()).
			Msg("Line rejected")
		p.current.Line = line.Line
		return nil
	}

	p.stats.PointsParsed++
	if p.collector != nil {
		p.collector.PointsParsed.Inc()
	}

	flushed, err := p.batcher.Add(ctx, point)
	if err != nil {
		return fmt.Errorf("delivery failed at %s line %d: %w", line.Path, line.Line, err)
	}
	p.current.Line = line.Line
	if flushed {
		return p.commit()
	}
	return nil
}

// deliver is the batcher's flush callback: one write request per batch.
// Permanently refused batches are preserved in the dead letter directory
// before the failure is surfaced.
func (p *Pipeline) deliver(ctx context.Context, points []*types.Point) error {
	ctx, span := tracing.TraceFlush(ctx, p.tracer, len(points))
	defer span.End()

	if err := p.client.Write(ctx, points); err != nil {
		tracing.RecordError(ctx, err)
		var perm *writer.PermanentError
		if errors.As(err, &perm) && p.deadLet != nil {
			if _, dumpErr := p.deadLet.Dump(points, err); dumpErr != nil {
				log.Error().Err(dumpErr).Msg("Failed to preserve refused batch")
			}
		}
		return err
	}

	p.stats.PointsWritten += int64(len(points))
	p.stats.BatchesWritten++
	return nil
}

// commit persists the current watermark. Failing to commit is fatal: the
// run must not read past state it cannot record.
func (p *Pipeline) commit() error {
	if err := p.cursors.Commit(p.current); err != nil {
		return fmt.Errorf("cursor commit failed for %s line %d: %w", p.current.Path, p.current.Line, err)
	}
	if p.collector != nil {
		p.collector.CursorCommits.Inc()
	}
	return nil
}
