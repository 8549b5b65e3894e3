package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"cobros/internal/amqp"
	"cobros/internal/cli"
	"cobros/internal/core"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/sheets"
	gsheet "cobros/internal/sheets/google"
	memsheet "cobros/internal/sheets/memory"
	"cobros/internal/worker"
)

func main() {
	backfillSince := flag.String("backfill-since", "", "mirror every payment made on or after this date (YYYY-MM-DD) before consuming")
	owner := flag.String("owner", "", "owner whose payments -backfill-since mirrors (default DEFAULT_OWNER_ID)")
	flag.Parse()

	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	var mirror sheets.PaymentMirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memsheet.New(nil)
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory only")
	}

	w := worker.NewMirrorWorker(be.Store, mirror, metrics.New(nil))

	if *backfillSince != "" {
		since, err := core.ParseDate(*backfillSince)
		if err != nil {
			logger.Error("Invalid -backfill-since", log.FieldError, err)
			os.Exit(1)
		}
		ownerID := *owner
		if ownerID == "" {
			ownerID = cfg.DefaultOwnerID
		}
		n, err := w.Backfill(ctx, ownerID, since)
		if err != nil {
			logger.Error("Backfill failed", log.FieldError, err, log.FieldOwnerID, ownerID, "mirrored", n)
			stop()
			_ = be.Cleanup()
			os.Exit(1)
		}
		logger.Info("Backfill complete", log.FieldOwnerID, ownerID, "mirrored", n)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	logger.Info("Starting cobros-worker", "queue", cfg.AMQPQueue, "exchange", cfg.AMQPExchange)
	if err := consumer.ConsumePaymentRecorded(ctx, w.HandlePaymentRecorded); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
}
