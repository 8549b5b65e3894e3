// Package worker mirrors recorded payments to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cobros/internal/amqp"
	"cobros/internal/core"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/sheets"
	"cobros/internal/storage"
)

// MirrorWorker appends recorded payments to a PaymentMirror.
type MirrorWorker struct {
	store   storage.Store
	mirror  sheets.PaymentMirror
	metrics *metrics.Metrics
}

func NewMirrorWorker(store storage.Store, mirror sheets.PaymentMirror, m *metrics.Metrics) *MirrorWorker {
	return &MirrorWorker{store: store, mirror: mirror, metrics: m}
}

// HandlePaymentRecorded mirrors the payment a message refers to. A payment
// or client that no longer exists is skipped, not retried; any other error
// is returned so the delivery is requeued.
func (w *MirrorWorker) HandlePaymentRecorded(ctx context.Context, msg *amqp.PaymentRecordedMessage) error {
	slog.InfoContext(ctx, "Processing payment recorded message",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldPaymentID, msg.PaymentID)

	p, err := w.store.GetPayment(ctx, msg.OwnerID, msg.PaymentID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Payment no longer exists, skipping mirror", log.FieldPaymentID, msg.PaymentID)
		w.count("skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get payment %s: %w", msg.PaymentID, err)
	}

	client, err := w.store.GetClient(ctx, msg.OwnerID, p.ClientID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Client no longer exists, skipping mirror",
			log.FieldPaymentID, p.ID, log.FieldClientID, p.ClientID)
		w.count("skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get client %s: %w", p.ClientID, err)
	}

	next := client.NextPaymentDate
	if msg.Advanced && msg.NextPaymentDate != "" {
		if d, err := core.ParseDate(msg.NextPaymentDate); err == nil {
			next = d
		}
	}
	return w.mirrorPayment(ctx, sheets.PaymentRow{
		Payment:         p,
		ClientName:      client.Name,
		Advanced:        msg.Advanced,
		NextPaymentDate: next,
	})
}

// Backfill mirrors every payment of ownerID made on or after since, oldest
// first. It is the recovery path for messages lost while the worker was down
// and may duplicate rows already mirrored.
func (w *MirrorWorker) Backfill(ctx context.Context, ownerID string, since core.Date) (int, error) {
	payments, err := w.store.ListPayments(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list payments: %w", err)
	}
	clients, err := w.store.ListClients(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list clients: %w", err)
	}
	byID := make(map[string]core.Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}

	synced, failed := 0, 0
	for i := len(payments) - 1; i >= 0; i-- {
		p := payments[i]
		if p.PaymentDate.Before(since) {
			continue
		}
		c := byID[p.ClientID]
		err := w.mirrorPayment(ctx, sheets.PaymentRow{
			Payment:         p,
			ClientName:      c.Name,
			NextPaymentDate: c.NextPaymentDate,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to mirror payment during backfill",
				log.FieldPaymentID, p.ID, log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Backfill completed",
		log.FieldOwnerID, ownerID,
		"synced", synced,
		"errors", failed)
	if failed > 0 {
		return synced, fmt.Errorf("backfill: %d of %d payments not mirrored", failed, synced+failed)
	}
	return synced, nil
}

func (w *MirrorWorker) mirrorPayment(ctx context.Context, row sheets.PaymentRow) error {
	ref, err := w.mirror.AppendPayment(ctx, row)
	if err != nil {
		w.count("error")
		return fmt.Errorf("append to sheets: %w", err)
	}
	w.count("ok")
	slog.InfoContext(ctx, "Mirrored payment",
		log.FieldPaymentID, row.Payment.ID,
		log.FieldClientID, row.Payment.ClientID,
		log.FieldSheetsRef, ref,
		log.FieldAmountCents, row.Payment.Amount.Cents)
	return nil
}

func (w *MirrorWorker) count(result string) {
	if w.metrics != nil {
		w.metrics.SheetsMirrored.WithLabelValues(result).Inc()
	}
}
