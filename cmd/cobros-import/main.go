package main

import (
	"flag"
	"fmt"
	"os"

	"cobros/internal/cli"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/services"
	gsheet "cobros/internal/sheets/google"
)

func main() {
	file := flag.String("file", "", "tab-separated file with a header row")
	fromSheet := flag.Bool("sheet", false, "import the roster of the configured Google Sheet")
	owner := flag.String("owner", "", "owner to import into (default DEFAULT_OWNER_ID)")
	flag.Parse()

	if (*file == "") == !*fromSheet {
		fmt.Fprintln(os.Stderr, "usage: cobros-import (-file clients.tsv | -sheet) [-owner id]")
		os.Exit(2)
	}

	cfg, logger := cli.Bootstrap(log.ComponentImport)
	ownerID := *owner
	if ownerID == "" {
		ownerID = cfg.DefaultOwnerID
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	svc := services.NewBillingService(be.Store,
		services.WithMetrics(metrics.New(nil)),
		services.WithLogger(logger))

	var (
		report services.ImportReport
		err    error
	)
	if *fromSheet {
		var src *gsheet.Client
		src, err = gsheet.NewFromEnv(ctx)
		if err == nil {
			report, err = svc.ImportFromSheet(ctx, ownerID, src)
		}
	} else {
		var f *os.File
		f, err = os.Open(*file)
		if err == nil {
			report, err = svc.ImportTSV(ctx, ownerID, f)
			_ = f.Close()
		}
	}
	if err != nil {
		logger.Error("Import failed", log.FieldError, err, log.FieldOwnerID, ownerID)
		os.Exit(1)
	}

	for _, rowErr := range report.Errors {
		logger.Warn("Row rejected", "line", rowErr.Line, "reason", rowErr.Reason)
	}
	logger.Info("Import complete",
		log.FieldOwnerID, ownerID,
		"imported", report.Imported,
		"failed", report.Failed)
}
