package billing

import (
	"fmt"
	"slices"

	"cobros/internal/core"
)

// Status is the derived payment state of a client for a period. It is never
// stored.
type Status string

const (
	Paid    Status = "Pagado"
	Pending Status = "Pendiente"
	Overdue Status = "Vencido"
)

const (
	// ActiveGraceDays is how long past its next due date a client still counts
	// as active.
	ActiveGraceDays = 60

	// DefaultUpcomingHorizon is the dashboard's look-ahead window in days.
	DefaultUpcomingHorizon = 15
)

// Statuses lists every status in display order.
func Statuses() []Status {
	return []Status{Paid, Pending, Overdue}
}

// ParseStatus accepts the stored values and the English names.
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(Paid), "paid", "Paid":
		return Paid, nil
	case string(Pending), "pending", "Pending":
		return Pending, nil
	case string(Overdue), "overdue", "Overdue":
		return Overdue, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// PeriodStatus is the result of StatusForPeriod. Payment is set only when a
// recorded payment settles the period. NotApplicable marks periods that end
// before the client was registered; those report Paid.
type PeriodStatus struct {
	Status        Status
	Payment       *core.Payment
	NotApplicable bool
}

// StatusForPeriod classifies client's obligation for the (month, year) period.
//
// Only payments whose ClientID matches client.ID are considered. The anchor is
// read once from client.NextPaymentDate; a client without one is rejected with
// core.ErrInvalidClientRecord.
func StatusForPeriod(client core.Client, month, year int, payments []core.Payment, today core.Date) (PeriodStatus, error) {
	if client.NextPaymentDate.IsEmpty() {
		return PeriodStatus{}, fmt.Errorf("%w: client %s has no next payment date", core.ErrInvalidClientRecord, client.ID)
	}
	if err := core.ValidatePeriod(month, year); err != nil {
		return PeriodStatus{}, err
	}
	policy, err := PolicyFor(client.PaymentFrequency)
	if err != nil {
		return PeriodStatus{}, err
	}

	if registeredAfter(client.RegistrationDate, month, year) {
		return PeriodStatus{Status: Paid, NotApplicable: true}, nil
	}

	anchor := client.NextPaymentDate
	for i := range payments {
		p := payments[i]
		if p.ClientID != client.ID {
			continue
		}
		if policy.Settles(p, month, year) {
			return PeriodStatus{Status: Paid, Payment: &p}, nil
		}
	}

	due := policy.DueDate(anchor, month, year)
	if today.After(due) {
		return PeriodStatus{Status: Overdue}, nil
	}
	return PeriodStatus{Status: Pending}, nil
}

// registeredAfter reports whether the registration month starts after the
// (month, year) period. Registering at any point inside the period still owes it.
func registeredAfter(registered core.Date, month, year int) bool {
	if registered.IsEmpty() {
		return false
	}
	if registered.Year() != year {
		return registered.Year() > year
	}
	return registered.Month() > month
}

// IsCurrentlyActive reports whether client is no more than ActiveGraceDays
// past its next due date. Clients due in the future are active.
func IsCurrentlyActive(client core.Client, today core.Date) bool {
	if client.NextPaymentDate.IsEmpty() {
		return false
	}
	return client.NextPaymentDate.DaysUntil(today) <= ActiveGraceDays
}

// RosterStatus is the coarse dashboard rule, computed from NextPaymentDate
// alone: before today is Overdue, within DefaultUpcomingHorizon days is
// Pending, anything later is Paid. It does not look at payments and can
// disagree with StatusForPeriod.
func RosterStatus(client core.Client, today core.Date) Status {
	next := client.NextPaymentDate
	if next.Before(today) {
		return Overdue
	}
	if today.DaysUntil(next) <= DefaultUpcomingHorizon {
		return Pending
	}
	return Paid
}

// UpcomingWithinDays returns the clients due after today and at most
// horizonDays away, earliest first. Clients sharing a date keep their input
// order. The input slice is not modified.
func UpcomingWithinDays(clients []core.Client, today core.Date, horizonDays int) []core.Client {
	out := make([]core.Client, 0)
	for _, c := range clients {
		next := c.NextPaymentDate
		if next.IsEmpty() || !next.After(today) {
			continue
		}
		if today.DaysUntil(next) <= horizonDays {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b core.Client) int {
		return a.NextPaymentDate.Compare(b.NextPaymentDate.Time)
	})
	return out
}
