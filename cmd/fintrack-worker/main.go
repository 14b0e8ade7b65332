package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	memsheet "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger = logger.WithComponent(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting fintrack-worker")
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Worker is reading the in-process memory store; it will not see records written by the server",
			applog.FieldStore, cfg.DataBackend)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	// the worker only reads; it never announces changes
	backendCfg.AMQPURL = ""

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(startCtx, backendCfg)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	// the Sheets client keeps this context for token refreshes
	exporter := newExporter(context.Background(), cfg, logger)

	reports := worker.NewReportWorker(result.Service, exporter, logger)

	loc, err := time.LoadLocation(cfg.DigestTimezone)
	if err != nil {
		logger.Error("Invalid digest timezone", applog.FieldError, err)
		os.Exit(1)
	}
	scheduler, err := worker.NewScheduler(cfg.DigestSchedule, loc, logger, reports.RunDigest)
	if err != nil {
		logger.Error("Invalid digest schedule", applog.FieldError, err)
		os.Exit(1)
	}

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		consumer.WithLogger(logger)
	} else {
		logger.Info("AMQP_URL not set, running the scheduled digest only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Error("AMQP close error", applog.FieldError, err)
			}
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	// refresh the current month once at startup
	if err := reports.RunDigest(ctx); err != nil {
		logger.Error("Startup digest failed", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Digest scheduled", "spec", cfg.DigestSchedule, "next", scheduler.Next())
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		return cache.Sweep(gctx, 30*time.Minute, reports.ExportCache())
	})
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeRecordChanges(gctx, reports.HandleRecordChanged)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}

// newExporter returns the Google Sheets exporter when configured, otherwise
// an in-process one so reports are still computed and logged.
func newExporter(ctx context.Context, cfg *config.Config, logger *applog.Logger) sheets.ReportExporter {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return memsheet.New()
	}
	exp, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return exp
}
