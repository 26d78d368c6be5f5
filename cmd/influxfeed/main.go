package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SashaStrek/influxfeed/internal/config"
	"github.com/SashaStrek/influxfeed/internal/cursor"
	"github.com/SashaStrek/influxfeed/internal/dlq"
	"github.com/SashaStrek/influxfeed/internal/logging"
	"github.com/SashaStrek/influxfeed/internal/metrics"
	"github.com/SashaStrek/influxfeed/internal/parser"
	"github.com/SashaStrek/influxfeed/internal/pipeline"
	"github.com/SashaStrek/influxfeed/internal/reliability"
	"github.com/SashaStrek/influxfeed/internal/sequencer"
	"github.com/SashaStrek/influxfeed/internal/tracing"
	"github.com/SashaStrek/influxfeed/internal/writer"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	version    = "1.0.0"
)

// Exit codes: 0 on a fully delivered run, 1 when delivery or commit
// failed partway, 2 when the starting file could not be sequenced.
const (
	exitOK         = 0
	exitDelivery   = 1
	exitSequencing = 2
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <start-file>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Feeds the starting file and every newer sibling into InfluxDB.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(exitSequencing)
	}

	os.Exit(run(flag.Arg(0)))
}

func run(startFile string) int {
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitDelivery
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	logger.Info().
		Str("version", version).
		Str("start", startFile).
		Str("endpoint", cfg.Endpoint.URL).
		Str("database", cfg.Endpoint.Database).
		Msg("Starting influxfeed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Msg("Metrics listener stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("address", cfg.Metrics.Address).Msg("Metrics listener started")
	}

	traceProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:    cfg.Tracing.Enabled,
		Endpoint:   cfg.Tracing.Endpoint,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Tracing disabled, provider setup failed")
		traceProvider, _ = tracing.NewProvider(ctx, tracing.Config{})
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		traceProvider.Shutdown(shutdownCtx)
	}()

	lineParser, err := parser.New(parser.Config{
		Type:        parser.Type(cfg.Parser.Type),
		Measurement: cfg.Parser.Measurement,
		Pattern:     cfg.Parser.Pattern,
		TimeFormat:  cfg.Parser.TimeFormat,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create parser")
		return exitDelivery
	}

	store, err := cursor.Open(cfg.Cursor.Path)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Cursor.Path).Msg("Failed to open cursor store")
		return exitDelivery
	}
	defer store.Close()

	client, err := writer.NewClient(writer.ClientConfig{
		URL:      cfg.Endpoint.URL,
		Database: cfg.Endpoint.Database,
		Username: cfg.Endpoint.Username,
		Password: cfg.Endpoint.Password,
		Timeout:  cfg.Endpoint.Timeout,
		Retry: reliability.Config{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Multiplier:     cfg.Retry.Multiplier,
			Jitter:         cfg.Retry.Jitter,
		},
		RateLimit: cfg.RateLimit,
	}, collector)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create write client")
		return exitDelivery
	}

	var deadLetter *dlq.Writer
	if cfg.DeadLetter.Dir != "" {
		deadLetter, err = dlq.New(cfg.DeadLetter.Dir)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create dead letter writer")
			return exitDelivery
		}
	}

	p, err := pipeline.New(pipeline.Options{
		StartFile: startFile,
		Parser:    lineParser,
		Cursors:   store,
		Client:    client,
		Batch: writer.BatcherConfig{
			Size:       cfg.Batch.Size,
			MaxLatency: cfg.Batch.MaxLatency,
		},
		DeadLetter: deadLetter,
		Metrics:    collector,
		Tracer:     traceProvider.Tracer(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create pipeline")
		return exitDelivery
	}

	if err := p.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		if errors.Is(err, sequencer.ErrNotFound) || errors.Is(err, sequencer.ErrUnreadableDir) {
			return exitSequencing
		}
		return exitDelivery
	}

	return exitOK
}
