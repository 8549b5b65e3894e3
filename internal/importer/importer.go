// Package importer turns pasted spreadsheet rows into validated clients.
//
// The first row is a header. Columns are matched by name, in Spanish or
// English and in any order; only the notes column may be missing. A bad row
// is reported and skipped, it never aborts the batch.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"cobros/internal/core"
)

// Column identifies one of the importable client fields.
type Column int

const (
	ColName Column = iota
	ColRUC
	ColPhone
	ColEmail
	ColServiceType
	ColGPSUnits
	ColPaymentAmount
	ColPaymentFrequency
	ColNextPaymentDate
	ColNotes
	numColumns
)

// Headers is the canonical header row, the one exports write.
var Headers = []string{
	"Nombre",
	"RUC",
	"Teléfono",
	"Correo Electrónico",
	"Tipo de Servicio",
	"Unidades GPS",
	"Monto de Pago",
	"Frecuencia de Pago",
	"Próxima Fecha de Pago",
	"Notas",
}

var headerAliases = map[string]Column{
	"nombre":                ColName,
	"name":                  ColName,
	"ruc":                   ColRUC,
	"teléfono":              ColPhone,
	"telefono":              ColPhone,
	"phone":                 ColPhone,
	"correo electrónico":    ColEmail,
	"correo electronico":    ColEmail,
	"correo":                ColEmail,
	"email":                 ColEmail,
	"tipo de servicio":      ColServiceType,
	"service type":          ColServiceType,
	"unidades gps":          ColGPSUnits,
	"gps units":             ColGPSUnits,
	"monto de pago":         ColPaymentAmount,
	"payment amount":        ColPaymentAmount,
	"frecuencia de pago":    ColPaymentFrequency,
	"payment frequency":     ColPaymentFrequency,
	"próxima fecha de pago": ColNextPaymentDate,
	"proxima fecha de pago": ColNextPaymentDate,
	"next payment date":     ColNextPaymentDate,
	"notas":                 ColNotes,
	"notes":                 ColNotes,
}

var (
	ErrEmptyInput    = errors.New("import input is empty")
	ErrMissingHeader = errors.New("import header is missing required columns")
)

// Row is one data row mapped onto client fields. Line is 1-based and counts
// the header.
type Row struct {
	Line  int
	Input core.ClientInput
}

// RowError explains why a row was not imported.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Batch is the result of reading an import. Rows that could not even be
// mapped (too few columns) are already in Errors.
type Batch struct {
	Rows   []Row
	Errors []RowError
}

// ParseTSV reads tab-separated text, as pasted from a spreadsheet. Row
// errors carry the line number in the pasted text.
func ParseTSV(r io.Reader) (Batch, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Batch{}, fmt.Errorf("read tsv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return fromLines(records, lines)
}

// FromRecords maps already-split rows, e.g. a Google Sheets range, where row
// i is line i+1.
func FromRecords(records [][]string) (Batch, error) {
	lines := make([]int, len(records))
	for i := range lines {
		lines[i] = i + 1
	}
	return fromLines(records, lines)
}

// fromLines skips blank rows; lines[i] is the source line of records[i].
func fromLines(records [][]string, lines []int) (Batch, error) {
	for len(records) > 0 && isBlank(records[0]) {
		records, lines = records[1:], lines[1:]
	}
	if len(records) == 0 {
		return Batch{}, ErrEmptyInput
	}

	index, err := mapHeader(records[0])
	if err != nil {
		return Batch{}, err
	}
	required := int(numColumns) - 1

	var b Batch
	for i, rec := range records[1:] {
		line := lines[i+1]
		if isBlank(rec) {
			continue
		}
		if len(rec) < required {
			b.Errors = append(b.Errors, RowError{Line: line, Reason: fmt.Sprintf("expected at least %d columns, got %d", required, len(rec))})
			continue
		}
		get := func(c Column) string {
			pos, ok := index[c]
			if !ok || pos >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[pos])
		}
		b.Rows = append(b.Rows, Row{
			Line: line,
			Input: core.ClientInput{
				Name:             get(ColName),
				RUC:              get(ColRUC),
				Phone:            get(ColPhone),
				Email:            get(ColEmail),
				ServiceType:      get(ColServiceType),
				GPSUnits:         get(ColGPSUnits),
				PaymentAmount:    get(ColPaymentAmount),
				PaymentFrequency: get(ColPaymentFrequency),
				NextPaymentDate:  get(ColNextPaymentDate),
				Notes:            get(ColNotes),
			},
		})
	}
	return b, nil
}

func mapHeader(header []string) (map[Column]int, error) {
	index := make(map[Column]int, numColumns)
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if col, ok := headerAliases[key]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}

	var missing []string
	for c := ColName; c < ColNotes; c++ {
		if _, ok := index[c]; !ok {
			missing = append(missing, Headers[c])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, strings.Join(missing, ", "))
	}
	return index, nil
}

// Build validates every row into a client owned by ownerID and registered on
// registered. Clients come back without ids.
func (b Batch) Build(ownerID string, registered core.Date) ([]core.Client, []RowError) {
	clients := make([]core.Client, 0, len(b.Rows))
	errs := append([]RowError(nil), b.Errors...)
	for _, row := range b.Rows {
		c, err := core.NewClient(ownerID, row.Input, registered)
		if err != nil {
			errs = append(errs, RowError{Line: row.Line, Reason: reason(err)})
			continue
		}
		clients = append(clients, c)
	}
	return clients, errs
}

func reason(err error) string {
	return strings.TrimPrefix(err.Error(), core.ErrInvalidClientRecord.Error()+": ")
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
