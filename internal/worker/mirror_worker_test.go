package worker

import (
	"context"
	"errors"
	"testing"

	"cobros/internal/amqp"
	"cobros/internal/core"
	"cobros/internal/metrics"
	"cobros/internal/sheets"
	sheetsmem "cobros/internal/sheets/memory"
	"cobros/internal/storage/memory"
	"cobros/internal/storage/storetest"

	"github.com/prometheus/client_golang/prometheus"
)

const owner = "owner-1"

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	c := storetest.Client(owner, "c1", core.NewDate(2024, 3, 15))
	c.Name = "Transportes Andinos"
	if err := store.CreateClient(ctx, c); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	for _, p := range []core.Payment{
		storetest.Payment(owner, "p1", "c1", 1, 2024),
		storetest.Payment(owner, "p2", "c1", 2, 2024),
	} {
		if err := store.RecordPayment(ctx, p, nil); err != nil {
			t.Fatalf("RecordPayment: %v", err)
		}
	}
	return store
}

func TestHandlePaymentRecorded(t *testing.T) {
	store := seed(t)
	mirror := sheetsmem.New(nil)
	w := NewMirrorWorker(store, mirror, metrics.New(prometheus.NewRegistry()))

	msg := amqp.NewPaymentRecordedMessage(owner, "p2", "c1", true, "2024-04-15")
	if err := w.HandlePaymentRecorded(context.Background(), msg); err != nil {
		t.Fatalf("HandlePaymentRecorded: %v", err)
	}

	rows := mirror.Payments()
	if len(rows) != 1 {
		t.Fatalf("mirrored rows = %d", len(rows))
	}
	row := rows[0]
	if row.Payment.ID != "p2" || row.ClientName != "Transportes Andinos" || !row.Advanced {
		t.Errorf("row = %+v", row)
	}
	if !row.NextPaymentDate.Equal(core.NewDate(2024, 4, 15)) {
		t.Errorf("next = %s", row.NextPaymentDate)
	}
}

func TestHandlePaymentRecordedSkipsMissing(t *testing.T) {
	store := seed(t)
	mirror := sheetsmem.New(nil)
	w := NewMirrorWorker(store, mirror, nil)

	msg := amqp.NewPaymentRecordedMessage(owner, "gone", "c1", false, "")
	if err := w.HandlePaymentRecorded(context.Background(), msg); err != nil {
		t.Fatalf("missing payment should be skipped, got %v", err)
	}
	// Another owner's view of an existing payment.
	msg = amqp.NewPaymentRecordedMessage("other", "p1", "c1", false, "")
	if err := w.HandlePaymentRecorded(context.Background(), msg); err != nil {
		t.Fatalf("foreign payment should be skipped, got %v", err)
	}
	if len(mirror.Payments()) != 0 {
		t.Error("nothing should have been mirrored")
	}
}

type failingMirror struct{}

func (failingMirror) AppendPayment(context.Context, sheets.PaymentRow) (string, error) {
	return "", errors.New("quota exceeded")
}

func TestHandlePaymentRecordedReturnsMirrorError(t *testing.T) {
	w := NewMirrorWorker(seed(t), failingMirror{}, nil)
	msg := amqp.NewPaymentRecordedMessage(owner, "p1", "c1", false, "")
	if err := w.HandlePaymentRecorded(context.Background(), msg); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestBackfill(t *testing.T) {
	store := seed(t)
	mirror := sheetsmem.New(nil)
	w := NewMirrorWorker(store, mirror, nil)

	n, err := w.Backfill(context.Background(), owner, core.NewDate(2024, 1, 1))
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if n != 2 {
		t.Fatalf("synced = %d, want 2", n)
	}
	rows := mirror.Payments()
	if rows[0].Payment.ID != "p1" || rows[1].Payment.ID != "p2" {
		t.Errorf("backfill should go oldest first: %s, %s", rows[0].Payment.ID, rows[1].Payment.ID)
	}

	n, _ = w.Backfill(context.Background(), owner, core.NewDate(2024, 2, 1))
	if n != 1 {
		t.Errorf("since filter: synced = %d, want 1", n)
	}
}

func TestBackfillReportsFailures(t *testing.T) {
	w := NewMirrorWorker(seed(t), failingMirror{}, nil)
	n, err := w.Backfill(context.Background(), owner, core.NewDate(2024, 1, 1))
	if err == nil {
		t.Fatal("expected an error when rows fail to mirror")
	}
	if n != 0 {
		t.Errorf("synced = %d, want 0", n)
	}
}
