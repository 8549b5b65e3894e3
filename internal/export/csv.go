// Package export writes clients and payments as CSV/TSV and renders client
// account statements as PDF.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cobros/internal/core"
	"cobros/internal/importer"
)

// Field separators.
const (
	Comma = ','
	Tab   = '\t'
)

// PaymentHeaders is the header row of payment exports.
var PaymentHeaders = []string{"ID", "Cliente", "Fecha de Pago", "Mes", "Año", "Monto"}

// WriteClients writes clients with the import header, so the output can be
// pasted back into an import.
func WriteClients(w io.Writer, clients []core.Client, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(importer.Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, c := range clients {
		rec := []string{
			c.Name,
			c.RUC,
			c.Phone,
			c.Email,
			string(c.ServiceType),
			strconv.Itoa(c.GPSUnits),
			c.PaymentAmount.Decimal().StringFixed(2),
			string(c.PaymentFrequency),
			c.NextPaymentDate.String(),
			c.Notes,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write client %s: %w", c.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePayments writes payments; clientNames maps client ids to names and
// unknown ids are written as the id itself.
func WritePayments(w io.Writer, payments []core.Payment, clientNames map[string]string, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(PaymentHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range payments {
		name, ok := clientNames[p.ClientID]
		if !ok {
			name = p.ClientID
		}
		rec := []string{
			p.ID,
			name,
			p.PaymentDate.String(),
			strconv.Itoa(p.Month),
			strconv.Itoa(p.Year),
			p.Amount.Decimal().StringFixed(2),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write payment %s: %w", p.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ClientNames indexes client names by id.
func ClientNames(clients []core.Client) map[string]string {
	out := make(map[string]string, len(clients))
	for _, c := range clients {
		out[c.ID] = c.Name
	}
	return out
}
