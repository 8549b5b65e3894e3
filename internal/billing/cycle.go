package billing

import (
	"fmt"

	"cobros/internal/core"
)

// MaybeAdvance decides whether recording payment moves client to its next
// cycle. It advances exactly one cycle, and only when the payment is for the
// period the client currently owes; back-payments and pre-payments leave the
// date alone.
//
// Month and year steps clamp the day to the target month's length, so an
// anchor of the 31st becomes the 30th (or 28th/29th) after a short month and
// stays there.
func MaybeAdvance(client core.Client, payment core.Payment) (next core.Date, advanced bool, err error) {
	current := client.NextPaymentDate
	if current.IsEmpty() {
		return core.Date{}, false, fmt.Errorf("%w: client %s has no next payment date", core.ErrInvalidClientRecord, client.ID)
	}
	if payment.ClientID != "" && client.ID != "" && payment.ClientID != client.ID {
		return current, false, fmt.Errorf("%w: payment belongs to client %s, not %s", core.ErrInvalidPayment, payment.ClientID, client.ID)
	}
	policy, err := PolicyFor(client.PaymentFrequency)
	if err != nil {
		return core.Date{}, false, err
	}

	if !policy.Covers(current, payment) {
		return current, false, nil
	}
	return policy.Advance(current), true, nil
}
