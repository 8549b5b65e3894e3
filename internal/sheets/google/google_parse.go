package google

import (
	"fmt"
	"strings"

	ports "cobros/internal/sheets"
)

// PaymentHeaders is the header the payments tab is expected to carry.
var PaymentHeaders = []string{
	"ID", "Cliente", "Fecha de Pago", "Mes", "Año", "Monto", "Avanzó Ciclo", "Próxima Fecha de Pago",
}

// paymentValues lays a payment out in PaymentHeaders order. Amounts are
// written as plain decimals so USER_ENTERED parses them as numbers.
func paymentValues(row ports.PaymentRow) []interface{} {
	p := row.Payment
	advanced := "No"
	if row.Advanced {
		advanced = "Sí"
	}
	return []interface{}{
		p.ID,
		row.ClientName,
		p.PaymentDate.String(),
		p.Month,
		p.Year,
		p.Amount.Decimal().StringFixed(2),
		advanced,
		row.NextPaymentDate.String(),
	}
}

// sheetRange quotes the tab name so names with spaces work in A1 notation.
func sheetRange(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(sheet, "'", "''"), cells)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
