package export

import (
	"fmt"
	"strconv"

	"cobros/internal/billing"
	"cobros/internal/core"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementMonths is how many billing periods a statement covers, ending
// with the current one.
const StatementMonths = 12

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

var (
	titleStyle  = props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Center}
	headerStyle = props.Text{Size: 9, Style: fontstyle.Bold, Top: 1}
	cellStyle   = props.Text{Size: 9, Top: 1}
	amountStyle = props.Text{Size: 9, Top: 1, Align: align.Right}
)

// StatementPeriod is one row of the statement's status table.
type StatementPeriod struct {
	Month, Year int
	Status      billing.PeriodStatus
}

// StatementPeriods computes the statuses of the StatementMonths periods
// ending with today's month, oldest first. Annual clients get one row per
// year instead.
func StatementPeriods(c core.Client, payments []core.Payment, today core.Date) ([]StatementPeriod, error) {
	var periods []StatementPeriod
	add := func(month, year int) error {
		st, err := billing.StatusForPeriod(c, month, year, payments, today)
		if err != nil {
			return err
		}
		periods = append(periods, StatementPeriod{Month: month, Year: year, Status: st})
		return nil
	}

	if c.PaymentFrequency == core.Annual {
		for y := today.Year() - 2; y <= today.Year(); y++ {
			if err := add(c.NextPaymentDate.Month(), y); err != nil {
				return nil, err
			}
		}
		return periods, nil
	}

	first := core.NewDate(today.Year(), today.Month(), 1)
	for i := StatementMonths - 1; i >= 0; i-- {
		d := first.AddMonthsClamped(-i)
		if err := add(d.Month(), d.Year()); err != nil {
			return nil, err
		}
	}
	return periods, nil
}

// Statement renders a client's account statement as PDF: client details,
// period statuses and payment history.
func Statement(c core.Client, payments []core.Payment, today core.Date) ([]byte, error) {
	periods, err := StatementPeriods(c, payments, today)
	if err != nil {
		return nil, fmt.Errorf("statement periods: %w", err)
	}

	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()
	m := maroto.New(cfg)

	m.AddRows(text.NewRow(12, "Estado de Cuenta", titleStyle))
	m.AddRows(text.NewRow(6, "Emitido el "+today.String(), props.Text{Size: 9, Align: align.Center}))
	m.AddRows(line.NewRow(6))

	details := [][2]string{
		{"Cliente", c.Name},
		{"RUC", c.RUC},
		{"Teléfono", c.Phone},
		{"Correo", c.Email},
		{"Servicio", fmt.Sprintf("%s (%d unidades)", c.ServiceType, c.GPSUnits)},
		{"Plan", fmt.Sprintf("%s %s", c.PaymentAmount, c.PaymentFrequency)},
		{"Próximo pago", c.NextPaymentDate.String()},
	}
	for _, d := range details {
		if d[1] == "" {
			continue
		}
		m.AddRow(6, text.NewCol(3, d[0], headerStyle), text.NewCol(9, d[1], cellStyle))
	}

	m.AddRows(line.NewRow(6))
	m.AddRows(text.NewRow(8, "Periodos", props.Text{Size: 11, Style: fontstyle.Bold}))
	m.AddRow(6,
		text.NewCol(6, "Periodo", headerStyle),
		text.NewCol(3, "Estado", headerStyle),
		text.NewCol(3, "Pago", headerStyle),
	)
	for _, p := range periods {
		status := string(p.Status.Status)
		if p.Status.NotApplicable {
			status = "No aplica"
		}
		paidOn := ""
		if p.Status.Payment != nil {
			paidOn = p.Status.Payment.PaymentDate.String()
		}
		m.AddRow(6,
			text.NewCol(6, periodLabel(c.PaymentFrequency, p.Month, p.Year), cellStyle),
			text.NewCol(3, status, cellStyle),
			text.NewCol(3, paidOn, cellStyle),
		)
	}

	m.AddRows(line.NewRow(6))
	m.AddRows(text.NewRow(8, "Pagos registrados", props.Text{Size: 11, Style: fontstyle.Bold}))
	if len(payments) == 0 {
		m.AddRows(text.NewRow(6, "Sin pagos registrados.", cellStyle))
	} else {
		m.AddRow(6,
			text.NewCol(4, "Fecha", headerStyle),
			text.NewCol(4, "Periodo", headerStyle),
			text.NewCol(4, "Monto", props.Text{Size: 9, Style: fontstyle.Bold, Top: 1, Align: align.Right}),
		)
		total := core.Money{}
		for _, p := range payments {
			if p.ClientID != c.ID {
				continue
			}
			total = total.Add(p.Amount)
			m.AddRow(6,
				text.NewCol(4, p.PaymentDate.String(), cellStyle),
				text.NewCol(4, periodLabel(core.Monthly, p.Month, p.Year), cellStyle),
				text.NewCol(4, p.Amount.String(), amountStyle),
			)
		}
		m.AddRow(7,
			text.NewCol(8, "Total", headerStyle),
			text.NewCol(4, total.String(), props.Text{Size: 9, Style: fontstyle.Bold, Top: 1, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func periodLabel(freq core.PaymentFrequency, month, year int) string {
	if freq == core.Annual {
		return strconv.Itoa(year)
	}
	return monthNames[month-1] + " " + strconv.Itoa(year)
}
