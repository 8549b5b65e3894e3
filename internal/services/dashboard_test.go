package services

import (
	"context"
	"testing"

	"cobros/internal/billing"
	"cobros/internal/core"
	"cobros/internal/storage/memory"
	"cobros/internal/storage/storetest"
)

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	seed := []struct {
		id, name string
		freq     core.PaymentFrequency
		cents    int64
		next     core.Date
	}{
		{"a", "A", core.Monthly, 3500, core.NewDate(2024, 3, 5)},
		{"b", "B", core.Monthly, 3500, core.NewDate(2024, 3, 12)},
		{"c", "C", core.Annual, 10000, core.NewDate(2024, 6, 1)},
		{"d", "D", core.Monthly, 2000, core.NewDate(2023, 12, 1)},
	}
	for _, sc := range seed {
		c := storetest.Client(owner, sc.id, sc.next)
		c.Name, c.PaymentFrequency, c.PaymentAmount = sc.name, sc.freq, core.Money{Cents: sc.cents}
		if err := store.CreateClient(ctx, c); err != nil {
			t.Fatalf("seed %s: %v", sc.id, err)
		}
	}
	pay := func(id, clientID string, paid core.Date, cents int64) {
		p := storetest.Payment(owner, id, clientID, paid.Month(), paid.Year())
		p.PaymentDate, p.Amount = paid, core.Money{Cents: cents}
		if err := store.RecordPayment(ctx, p, nil); err != nil {
			t.Fatalf("seed payment %s: %v", id, err)
		}
	}
	pay("p1", "d", core.NewDate(2024, 1, 20), 2000)
	pay("p2", "a", core.NewDate(2024, 3, 1), 3500)
	pay("p3", "b", core.NewDate(2024, 3, 2), 3500)
	pay("p4", "a", core.NewDate(2023, 8, 1), 3500)

	s := newService(t, store)
	d, err := s.Dashboard(ctx, owner, core.NewDate(2024, 3, 10))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if d.TotalClients != 4 || d.ActiveClients != 3 || d.InactiveClients != 1 {
		t.Errorf("counts: total=%d active=%d inactive=%d", d.TotalClients, d.ActiveClients, d.InactiveClients)
	}
	if d.EstimatedMonthlyRevenue.Cents != 9000 {
		t.Errorf("estimated monthly revenue = %s", d.EstimatedMonthlyRevenue)
	}
	wantCounts := map[billing.Status]int{billing.Paid: 1, billing.Pending: 1, billing.Overdue: 2}
	for st, n := range wantCounts {
		if d.StatusCounts[st] != n {
			t.Errorf("%s count = %d, want %d", st, d.StatusCounts[st], n)
		}
	}
	if got := names(d.Upcoming); len(got) != 1 || got[0] != "B" {
		t.Errorf("upcoming = %v", got)
	}
	if got := names(d.Overdue); len(got) != 2 || got[0] != "A" || got[1] != "D" {
		t.Errorf("overdue = %v", got)
	}

	if len(d.Revenue) != 6 {
		t.Fatalf("revenue months = %d", len(d.Revenue))
	}
	first, last := d.Revenue[0], d.Revenue[5]
	if first.Label != "Oct" || first.Year != 2023 || first.Total.Cents != 0 {
		t.Errorf("first month = %+v", first)
	}
	if last.Label != "Mar" || last.Total.Cents != 7000 {
		t.Errorf("last month = %+v", last)
	}
	if d.Revenue[3].Label != "Ene" || d.Revenue[3].Total.Cents != 2000 {
		t.Errorf("january = %+v", d.Revenue[3])
	}
}

func TestDashboardEmpty(t *testing.T) {
	s := newService(t, memory.New())
	d, err := s.Dashboard(context.Background(), owner, core.NewDate(2024, 1, 15))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.TotalClients != 0 || len(d.Upcoming) != 0 || len(d.Overdue) != 0 {
		t.Errorf("unexpected dashboard: %+v", d)
	}
	if d.Revenue[0].Label != "Ago" || d.Revenue[0].Year != 2023 {
		t.Errorf("window should start in August 2023: %+v", d.Revenue[0])
	}
	for _, st := range billing.Statuses() {
		if _, ok := d.StatusCounts[st]; !ok {
			t.Errorf("status %s missing from counts", st)
		}
	}
}
