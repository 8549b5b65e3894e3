package services

import (
	"context"
	"fmt"
	"io"
	"slices"

	"cobros/internal/importer"
	"cobros/internal/log"
	"cobros/internal/sheets"
)

// ImportReport summarizes an import. Bad rows never stop the good ones.
type ImportReport struct {
	Imported int                 `json:"imported"`
	Failed   int                 `json:"failed"`
	Errors   []importer.RowError `json:"errors"`
}

// ImportTSV imports clients from pasted tab-separated text.
func (s *BillingService) ImportTSV(ctx context.Context, ownerID string, r io.Reader) (ImportReport, error) {
	batch, err := importer.ParseTSV(r)
	if err != nil {
		return ImportReport{}, err
	}
	return s.ImportClients(ctx, ownerID, batch)
}

// ImportFromSheet imports the roster a ClientRowReader returns.
func (s *BillingService) ImportFromSheet(ctx context.Context, ownerID string, src sheets.ClientRowReader) (ImportReport, error) {
	rows, err := src.ReadClientRows(ctx)
	if err != nil {
		return ImportReport{}, fmt.Errorf("read client rows: %w", err)
	}
	batch, err := importer.FromRecords(rows)
	if err != nil {
		return ImportReport{}, err
	}
	return s.ImportClients(ctx, ownerID, batch)
}

// ImportClients validates every row of batch and stores the valid clients in
// one transaction, registered today.
func (s *BillingService) ImportClients(ctx context.Context, ownerID string, batch importer.Batch) (ImportReport, error) {
	clients, rowErrs := batch.Build(ownerID, s.Today())
	for i := range clients {
		clients[i].ID = s.newID()
	}
	if len(clients) > 0 {
		if err := s.store.CreateClients(ctx, clients); err != nil {
			return ImportReport{}, fmt.Errorf("store imported clients: %w", err)
		}
	}

	slices.SortStableFunc(rowErrs, func(a, b importer.RowError) int { return a.Line - b.Line })
	report := ImportReport{
		Imported: len(clients),
		Failed:   len(rowErrs),
		Errors:   rowErrs,
	}
	if report.Errors == nil {
		report.Errors = []importer.RowError{}
	}

	if s.metrics != nil {
		s.metrics.ImportRows.WithLabelValues("imported").Add(float64(report.Imported))
		s.metrics.ImportRows.WithLabelValues("failed").Add(float64(report.Failed))
	}
	s.logger.InfoContext(ctx, "Clients imported",
		log.FieldOwnerID, ownerID,
		log.FieldOperation, log.OpImport,
		"imported", report.Imported,
		"failed", report.Failed)
	return report, nil
}
