// Package billing derives payment status per billing period and decides when a
// client's next due date moves forward.
//
// Every function here is pure: the caller supplies "today" and the snapshot of
// clients and payments it holds, and persists whatever comes back.
package billing

import (
	"fmt"

	"cobros/internal/core"
)

// PeriodPolicy encapsulates the rules that differ between billing frequencies.
// Each frequency has exactly one policy, looked up with PolicyFor.
type PeriodPolicy interface {
	// Settles reports whether p pays for the (month, year) period.
	Settles(p core.Payment, month, year int) bool

	// DueDate projects the client's anchor into the (month, year) period.
	DueDate(anchor core.Date, month, year int) core.Date

	// Covers reports whether p pays for the cycle currently due at next.
	Covers(next core.Date, p core.Payment) bool

	// Advance returns the due date one cycle after next.
	Advance(next core.Date) core.Date
}

// MonthlyPolicy bills every calendar month on the anchor day.
type MonthlyPolicy struct{}

// Settles requires both month and year to match.
func (MonthlyPolicy) Settles(p core.Payment, month, year int) bool {
	return p.Month == month && p.Year == year
}

// DueDate is (year, month, anchor day), clamped to the month's last day.
func (MonthlyPolicy) DueDate(anchor core.Date, month, year int) core.Date {
	return core.ClampedDate(year, month, anchor.Day())
}

func (MonthlyPolicy) Covers(next core.Date, p core.Payment) bool {
	return p.Month == next.Month() && p.Year == next.Year()
}

func (MonthlyPolicy) Advance(next core.Date) core.Date {
	return next.AddMonthsClamped(1)
}

// AnnualPolicy bills once a year on the anchor month and day.
type AnnualPolicy struct{}

// Settles only looks at the year; the payment's month is irrelevant.
func (AnnualPolicy) Settles(p core.Payment, _, year int) bool {
	return p.Year == year
}

// DueDate ignores the queried month: annual clients are always due on the
// anchor month.
func (AnnualPolicy) DueDate(anchor core.Date, _, year int) core.Date {
	return core.ClampedDate(year, anchor.Month(), anchor.Day())
}

func (AnnualPolicy) Covers(next core.Date, p core.Payment) bool {
	return p.Year == next.Year()
}

func (AnnualPolicy) Advance(next core.Date) core.Date {
	return next.AddYearsClamped(1)
}

var policies = map[core.PaymentFrequency]PeriodPolicy{
	core.Monthly: MonthlyPolicy{},
	core.Annual:  AnnualPolicy{},
}

// PolicyFor returns the policy for a billing frequency.
func PolicyFor(freq core.PaymentFrequency) (PeriodPolicy, error) {
	p, ok := policies[freq]
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment frequency %q", core.ErrInvalidClientRecord, freq)
	}
	return p, nil
}
