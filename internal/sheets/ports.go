package sheets

import (
	"context"

	"cobros/internal/core"
)

// PaymentRow is what the payments mirror records for one payment.
type PaymentRow struct {
	Payment         core.Payment
	ClientName      string
	Advanced        bool
	NextPaymentDate core.Date
}

// Ports for outbound adapters.
type (
	// ClientRowReader returns a client roster as raw rows, header first.
	ClientRowReader interface {
		ReadClientRows(ctx context.Context) ([][]string, error)
	}

	// PaymentMirror appends recorded payments to an external sheet.
	PaymentMirror interface {
		AppendPayment(ctx context.Context, row PaymentRow) (rowRef string, err error)
	}
)
