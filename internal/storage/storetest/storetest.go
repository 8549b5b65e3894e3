// Package storetest is a conformance suite every storage.Store implementation
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cobros/internal/core"
	"cobros/internal/storage"
)

// Client returns a valid monthly client with the given ids.
func Client(owner, id string, next core.Date) core.Client {
	return core.Client{
		ID:               id,
		OwnerID:          owner,
		Name:             "Cliente " + id,
		RUC:              "1790012345001",
		Phone:            "0991234567",
		Email:            id + "@example.com",
		ServiceType:      core.GPSRental,
		GPSUnits:         2,
		PaymentAmount:    core.Money{Cents: 3500},
		PaymentFrequency: core.Monthly,
		NextPaymentDate:  next,
		RegistrationDate: core.NewDate(2024, 1, 1),
		Notes:            "",
	}
}

// Payment returns a valid payment for (month, year) of the given client.
func Payment(owner, id, clientID string, month, year int) core.Payment {
	return core.Payment{
		ID:          id,
		OwnerID:     owner,
		ClientID:    clientID,
		Amount:      core.Money{Cents: 3500},
		PaymentDate: core.NewDate(year, month, 10),
		Month:       month,
		Year:        year,
	}
}

// Run exercises newStore against the storage.Store contract. newStore must
// return an empty store; Run closes it.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"ClientCRUD", testClientCRUD},
		{"OwnerScoping", testOwnerScoping},
		{"CreateClientsAtomic", testCreateClientsAtomic},
		{"DeleteCascades", testDeleteCascades},
		{"RecordPaymentAdvances", testRecordPaymentAdvances},
		{"RecordPaymentConcurrentUpdate", testRecordPaymentConcurrentUpdate},
		{"RecordPaymentKeepChecksDate", testRecordPaymentKeepChecksDate},
		{"RecordPaymentUnknownClient", testRecordPaymentUnknownClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func testClientCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c := Client("o1", "c1", core.NewDate(2024, 3, 15))
	if err := s.CreateClient(ctx, c); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	got, err := s.GetClient(ctx, "o1", "c1")
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.Name != c.Name || !got.NextPaymentDate.Equal(c.NextPaymentDate) || got.PaymentAmount != c.PaymentAmount {
		t.Errorf("GetClient = %+v, want %+v", got, c)
	}
	if !got.RegistrationDate.Equal(c.RegistrationDate) || got.ServiceType != c.ServiceType {
		t.Errorf("GetClient lost fields: %+v", got)
	}

	c.Name = "Renombrado"
	c.NextPaymentDate = core.NewDate(2024, 4, 15)
	if err := s.UpdateClient(ctx, c); err != nil {
		t.Fatalf("UpdateClient: %v", err)
	}
	got, _ = s.GetClient(ctx, "o1", "c1")
	if got.Name != "Renombrado" || !got.NextPaymentDate.Equal(core.NewDate(2024, 4, 15)) {
		t.Errorf("after update = %+v", got)
	}

	missing := Client("o1", "nope", core.NewDate(2024, 1, 1))
	if err := s.UpdateClient(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateClient(missing) = %v, want ErrNotFound", err)
	}
	if _, err := s.GetClient(ctx, "o1", "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetClient(missing) = %v, want ErrNotFound", err)
	}
	if err := s.DeleteClient(ctx, "o1", "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteClient(missing) = %v, want ErrNotFound", err)
	}
}

func testOwnerScoping(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.CreateClient(ctx, Client("o1", "a", core.NewDate(2024, 3, 15))); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateClient(ctx, Client("o2", "b", core.NewDate(2024, 3, 15))); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListClients(ctx, "o1")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(list) != 1 || list[0].ID != "a" {
		t.Errorf("ListClients(o1) = %+v", list)
	}
	if _, err := s.GetClient(ctx, "o1", "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-owner GetClient = %v, want ErrNotFound", err)
	}
	if err := s.DeleteClient(ctx, "o1", "b"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-owner DeleteClient = %v, want ErrNotFound", err)
	}
	if err := s.RecordPayment(ctx, Payment("o1", "p", "b", 3, 2024), nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-owner RecordPayment = %v, want ErrNotFound", err)
	}
}

func testCreateClientsAtomic(t *testing.T, s storage.Store) {
	ctx := context.Background()
	batch := make([]core.Client, 0, 3)
	for i := 0; i < 3; i++ {
		batch = append(batch, Client("o1", fmt.Sprintf("b%d", i), core.NewDate(2024, 3, 15)))
	}
	if err := s.CreateClients(ctx, batch); err != nil {
		t.Fatalf("CreateClients: %v", err)
	}

	// Second batch collides on b1 and must leave nothing behind.
	dup := []core.Client{
		Client("o1", "fresh", core.NewDate(2024, 3, 15)),
		Client("o1", "b1", core.NewDate(2024, 3, 15)),
	}
	if err := s.CreateClients(ctx, dup); err == nil {
		t.Fatal("CreateClients with duplicate id should fail")
	}
	list, _ := s.ListClients(ctx, "o1")
	if len(list) != 3 {
		t.Errorf("after failed batch: %d clients, want 3", len(list))
	}
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, id := range []string{"keep", "drop"} {
		if err := s.CreateClient(ctx, Client("o1", id, core.NewDate(2024, 3, 15))); err != nil {
			t.Fatal(err)
		}
	}
	for i, cid := range []string{"keep", "drop", "drop"} {
		p := Payment("o1", fmt.Sprintf("p%d", i), cid, i+1, 2024)
		if err := s.RecordPayment(ctx, p, nil); err != nil {
			t.Fatalf("RecordPayment: %v", err)
		}
	}

	if err := s.DeleteClient(ctx, "o1", "drop"); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	payments, err := s.ListPayments(ctx, "o1")
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(payments) != 1 || payments[0].ClientID != "keep" {
		t.Errorf("payments after delete = %+v", payments)
	}
	if _, err := s.GetPayment(ctx, "o1", "p1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPayment of deleted client's payment = %v", err)
	}
}

func testRecordPaymentAdvances(t *testing.T, s storage.Store) {
	ctx := context.Background()
	from := core.NewDate(2024, 3, 15)
	if err := s.CreateClient(ctx, Client("o1", "c1", from)); err != nil {
		t.Fatal(err)
	}

	p := Payment("o1", "p1", "c1", 3, 2024)
	to := core.NewDate(2024, 4, 15)
	if err := s.RecordPayment(ctx, p, &storage.Advance{From: from, To: to}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	c, _ := s.GetClient(ctx, "o1", "c1")
	if !c.NextPaymentDate.Equal(to) {
		t.Errorf("next payment date = %s, want %s", c.NextPaymentDate, to)
	}
	got, err := s.GetPayment(ctx, "o1", "p1")
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if got.Amount != p.Amount || got.Month != 3 || got.Year != 2024 || !got.PaymentDate.Equal(p.PaymentDate) {
		t.Errorf("GetPayment = %+v, want %+v", got, p)
	}
	byClient, _ := s.ListClientPayments(ctx, "o1", "c1")
	if len(byClient) != 1 {
		t.Errorf("ListClientPayments = %d payments, want 1", len(byClient))
	}
}

func testRecordPaymentConcurrentUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.CreateClient(ctx, Client("o1", "c1", core.NewDate(2024, 4, 15))); err != nil {
		t.Fatal(err)
	}

	// Stale read: the caller believes the client is still due on March 15.
	stale := &storage.Advance{From: core.NewDate(2024, 3, 15), To: core.NewDate(2024, 4, 15)}
	err := s.RecordPayment(ctx, Payment("o1", "p1", "c1", 3, 2024), stale)
	if !errors.Is(err, storage.ErrConcurrentUpdate) {
		t.Fatalf("RecordPayment(stale) = %v, want ErrConcurrentUpdate", err)
	}

	// The payment must not have been kept.
	payments, _ := s.ListPayments(ctx, "o1")
	if len(payments) != 0 {
		t.Errorf("payment persisted despite conflict: %+v", payments)
	}
	c, _ := s.GetClient(ctx, "o1", "c1")
	if !c.NextPaymentDate.Equal(core.NewDate(2024, 4, 15)) {
		t.Errorf("next payment date changed to %s", c.NextPaymentDate)
	}
}

func testRecordPaymentKeepChecksDate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	due := core.NewDate(2024, 4, 15)
	if err := s.CreateClient(ctx, Client("o1", "c1", due)); err != nil {
		t.Fatal(err)
	}

	stale := core.NewDate(2024, 3, 15)
	err := s.RecordPayment(ctx, Payment("o1", "p1", "c1", 4, 2024), &storage.Advance{From: stale, To: stale})
	if !errors.Is(err, storage.ErrConcurrentUpdate) {
		t.Fatalf("RecordPayment(stale keep) = %v, want ErrConcurrentUpdate", err)
	}
	if payments, _ := s.ListPayments(ctx, "o1"); len(payments) != 0 {
		t.Errorf("payment persisted despite conflict: %+v", payments)
	}

	if err := s.RecordPayment(ctx, Payment("o1", "p2", "c1", 2, 2024), &storage.Advance{From: due, To: due}); err != nil {
		t.Fatalf("RecordPayment(keep) = %v", err)
	}
	c, _ := s.GetClient(ctx, "o1", "c1")
	if !c.NextPaymentDate.Equal(due) {
		t.Errorf("next payment date moved to %s", c.NextPaymentDate)
	}
	if payments, _ := s.ListPayments(ctx, "o1"); len(payments) != 1 {
		t.Errorf("payments = %d, want 1", len(payments))
	}
}

func testRecordPaymentUnknownClient(t *testing.T, s storage.Store) {
	err := s.RecordPayment(context.Background(), Payment("o1", "p1", "ghost", 1, 2024), nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RecordPayment(unknown client) = %v, want ErrNotFound", err)
	}
}
