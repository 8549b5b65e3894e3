package billing

import (
	"errors"
	"testing"

	"cobros/internal/core"
)

func monthlyClient(next core.Date) core.Client {
	return core.Client{
		ID:               "c1",
		Name:             "Cliente",
		PaymentFrequency: core.Monthly,
		NextPaymentDate:  next,
		RegistrationDate: core.NewDate(2023, 1, 1),
	}
}

func annualClient(next core.Date) core.Client {
	c := monthlyClient(next)
	c.PaymentFrequency = core.Annual
	return c
}

func payment(clientID string, month, year int) core.Payment {
	return core.Payment{
		ID:          clientID + "-p",
		ClientID:    clientID,
		Amount:      core.Money{Cents: 3500},
		PaymentDate: core.NewDate(year, month, 1),
		Month:       month,
		Year:        year,
	}
}

func TestStatusForPeriod_Monthly(t *testing.T) {
	client := monthlyClient(core.NewDate(2024, 3, 15))
	march := payment("c1", 3, 2024)

	tests := []struct {
		name        string
		month, year int
		payments    []core.Payment
		today       core.Date
		want        Status
		wantPayment bool
	}{
		{
			name:        "matching payment is paid",
			month:       3,
			year:        2024,
			payments:    []core.Payment{march},
			today:       core.NewDate(2024, 5, 1),
			want:        Paid,
			wantPayment: true,
		},
		{
			name:  "before due day is pending",
			month: 6, year: 2024,
			today: core.NewDate(2024, 6, 10),
			want:  Pending,
		},
		{
			name:  "on due day is pending",
			month: 6, year: 2024,
			today: core.NewDate(2024, 6, 15),
			want:  Pending,
		},
		{
			name:  "after due day is overdue",
			month: 6, year: 2024,
			today: core.NewDate(2024, 6, 16),
			want:  Overdue,
		},
		{
			name:     "payment for another month does not count",
			month:    4,
			year:     2024,
			payments: []core.Payment{march},
			today:    core.NewDate(2024, 4, 20),
			want:     Overdue,
		},
		{
			name:     "payment for same month of another year does not count",
			month:    3,
			year:     2025,
			payments: []core.Payment{march},
			today:    core.NewDate(2025, 3, 1),
			want:     Pending,
		},
		{
			name:     "other client's payment is ignored",
			month:    3,
			year:     2024,
			payments: []core.Payment{payment("c2", 3, 2024)},
			today:    core.NewDate(2024, 3, 20),
			want:     Overdue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatusForPeriod(client, tt.month, tt.year, tt.payments, tt.today)
			if err != nil {
				t.Fatalf("StatusForPeriod() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("StatusForPeriod() status = %v, want %v", got.Status, tt.want)
			}
			if (got.Payment != nil) != tt.wantPayment {
				t.Errorf("StatusForPeriod() payment = %v, want present=%v", got.Payment, tt.wantPayment)
			}
			if tt.wantPayment && got.Payment.ID != march.ID {
				t.Errorf("StatusForPeriod() payment id = %s, want %s", got.Payment.ID, march.ID)
			}
			if got.NotApplicable {
				t.Error("StatusForPeriod() unexpectedly not applicable")
			}
		})
	}
}

func TestStatusForPeriod_MonthlyClampsAnchor(t *testing.T) {
	client := monthlyClient(core.NewDate(2024, 1, 31))

	got, _ := StatusForPeriod(client, 2, 2024, nil, core.NewDate(2024, 2, 29))
	if got.Status != Pending {
		t.Errorf("Feb 29 with anchor 31: status = %v, want Pending", got.Status)
	}
	got, _ = StatusForPeriod(client, 4, 2024, nil, core.NewDate(2024, 5, 1))
	if got.Status != Overdue {
		t.Errorf("May 1 for April with anchor 31: status = %v, want Overdue", got.Status)
	}
}

func TestStatusForPeriod_Annual(t *testing.T) {
	client := annualClient(core.NewDate(2024, 3, 15))

	tests := []struct {
		name     string
		month    int
		year     int
		payments []core.Payment
		today    core.Date
		want     Status
	}{
		{
			name:     "any payment in the year is paid",
			month:    9,
			year:     2024,
			payments: []core.Payment{payment("c1", 11, 2024)},
			today:    core.NewDate(2024, 12, 1),
			want:     Paid,
		},
		{
			name:  "before anchor month is pending",
			month: 1, year: 2025,
			today: core.NewDate(2025, 2, 1),
			want:  Pending,
		},
		{
			name:  "after anchor day is overdue regardless of queried month",
			month: 1, year: 2025,
			today: core.NewDate(2025, 3, 16),
			want:  Overdue,
		},
		{
			name:     "payment from previous year does not count",
			month:    3,
			year:     2025,
			payments: []core.Payment{payment("c1", 3, 2024)},
			today:    core.NewDate(2025, 4, 1),
			want:     Overdue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatusForPeriod(client, tt.month, tt.year, tt.payments, tt.today)
			if err != nil {
				t.Fatalf("StatusForPeriod() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("StatusForPeriod() = %v, want %v", got.Status, tt.want)
			}
		})
	}
}

func TestStatusForPeriod_BeforeRegistration(t *testing.T) {
	client := monthlyClient(core.NewDate(2024, 6, 15))
	client.RegistrationDate = core.NewDate(2024, 5, 20)
	today := core.NewDate(2024, 12, 31)

	tests := []struct {
		name          string
		month, year   int
		payments      []core.Payment
		notApplicable bool
	}{
		{"month before registration", 4, 2024, nil, true},
		{"year before registration", 12, 2023, []core.Payment{payment("c1", 12, 2023)}, true},
		{"registration month is owed", 5, 2024, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatusForPeriod(client, tt.month, tt.year, tt.payments, today)
			if err != nil {
				t.Fatalf("StatusForPeriod() error = %v", err)
			}
			if got.NotApplicable != tt.notApplicable {
				t.Fatalf("NotApplicable = %v, want %v", got.NotApplicable, tt.notApplicable)
			}
			if tt.notApplicable && (got.Status != Paid || got.Payment != nil) {
				t.Errorf("pre-registration period = %+v, want Paid without payment", got)
			}
			if !tt.notApplicable && got.Status != Overdue {
				t.Errorf("registration month status = %v, want Overdue", got.Status)
			}
		})
	}
}

func TestStatusForPeriod_Errors(t *testing.T) {
	today := core.NewDate(2024, 6, 1)

	noAnchor := monthlyClient(core.Date{})
	if _, err := StatusForPeriod(noAnchor, 6, 2024, nil, today); !errors.Is(err, core.ErrInvalidClientRecord) {
		t.Errorf("missing next date: error = %v, want ErrInvalidClientRecord", err)
	}

	client := monthlyClient(core.NewDate(2024, 6, 15))
	for _, m := range []int{0, 13} {
		if _, err := StatusForPeriod(client, m, 2024, nil, today); !errors.Is(err, core.ErrInvalidPeriod) {
			t.Errorf("month %d: error = %v, want ErrInvalidPeriod", m, err)
		}
	}

	client.PaymentFrequency = "Semanal"
	if _, err := StatusForPeriod(client, 6, 2024, nil, today); !errors.Is(err, core.ErrInvalidClientRecord) {
		t.Errorf("unknown frequency: error = %v, want ErrInvalidClientRecord", err)
	}
}

func TestStatusForPeriod_Deterministic(t *testing.T) {
	client := monthlyClient(core.NewDate(2024, 3, 15))
	payments := []core.Payment{payment("c1", 3, 2024), payment("c1", 5, 2024)}
	snapshot := append([]core.Payment(nil), payments...)
	today := core.NewDate(2024, 6, 20)

	for m := 1; m <= 12; m++ {
		a, errA := StatusForPeriod(client, m, 2024, payments, today)
		b, errB := StatusForPeriod(client, m, 2024, payments, today)
		if errA != nil || errB != nil {
			t.Fatalf("month %d: errors %v / %v", m, errA, errB)
		}
		if a.Status != b.Status || a.NotApplicable != b.NotApplicable || (a.Payment == nil) != (b.Payment == nil) {
			t.Fatalf("month %d: %+v != %+v", m, a, b)
		}
	}
	for i := range payments {
		if payments[i] != snapshot[i] {
			t.Fatalf("payments mutated at %d", i)
		}
	}
	if !client.NextPaymentDate.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatal("client mutated")
	}
}

func TestIsCurrentlyActive(t *testing.T) {
	today := core.NewDate(2024, 6, 30)

	tests := []struct {
		name string
		next core.Date
		want bool
	}{
		{"due in the future", today.AddMonthsClamped(1), true},
		{"due today", today, true},
		{"60 days overdue", core.DateOf(today.AddDate(0, 0, -60)), true},
		{"61 days overdue", core.DateOf(today.AddDate(0, 0, -61)), false},
		{"no next date", core.Date{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCurrentlyActive(monthlyClient(tt.next), today); got != tt.want {
				t.Errorf("IsCurrentlyActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRosterStatus(t *testing.T) {
	today := core.NewDate(2024, 6, 1)

	tests := []struct {
		next core.Date
		want Status
	}{
		{core.NewDate(2024, 5, 31), Overdue},
		{core.NewDate(2024, 6, 1), Pending},
		{core.NewDate(2024, 6, 16), Pending},
		{core.NewDate(2024, 6, 17), Paid},
	}
	for _, tt := range tests {
		if got := RosterStatus(monthlyClient(tt.next), today); got != tt.want {
			t.Errorf("RosterStatus(next=%s) = %v, want %v", tt.next, got, tt.want)
		}
	}
}

func TestUpcomingWithinDays(t *testing.T) {
	today := core.NewDate(2024, 6, 1)
	mk := func(id string, next core.Date) core.Client {
		c := monthlyClient(next)
		c.ID = id
		return c
	}
	clients := []core.Client{
		mk("late", core.NewDate(2024, 6, 12)),
		mk("past", core.NewDate(2024, 5, 30)),
		mk("today", today),
		mk("first", core.NewDate(2024, 6, 3)),
		mk("far", core.NewDate(2024, 7, 1)),
		mk("edge", core.NewDate(2024, 6, 16)),
		mk("tie", core.NewDate(2024, 6, 12)),
	}

	got := UpcomingWithinDays(clients, today, DefaultUpcomingHorizon)
	want := []string{"first", "late", "tie", "edge"}
	if len(got) != len(want) {
		t.Fatalf("UpcomingWithinDays() returned %d clients, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
	if clients[0].ID != "late" {
		t.Error("input slice was reordered")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Pagado", "paid", "Pendiente", "overdue"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q) error = %v", s, err)
		}
	}
	if _, err := ParseStatus("cancelado"); err == nil {
		t.Error("ParseStatus(cancelado) expected error")
	}
}
