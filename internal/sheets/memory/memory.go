package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ports "cobros/internal/sheets"
)

// Sheet is an in-process stand-in for the spreadsheet: a fixed client roster
// and an append-only payments tab.
type Sheet struct {
	mu       sync.Mutex
	roster   [][]string
	payments []ports.PaymentRow
}

var (
	_ ports.ClientRowReader = (*Sheet)(nil)
	_ ports.PaymentMirror   = (*Sheet)(nil)
)

func New(roster [][]string) *Sheet {
	return &Sheet{roster: cloneRows(roster)}
}

// NewFromFile seeds the roster from a tab-separated file. A missing file
// gives an empty roster.
func NewFromFile(path string) *Sheet {
	return New(readRows(path))
}

// ReadClientRows returns a copy of the roster.
func (s *Sheet) ReadClientRows(_ context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRows(s.roster), nil
}

// AppendPayment stores the row and returns a synthetic row reference.
func (s *Sheet) AppendPayment(_ context.Context, row ports.PaymentRow) (string, error) {
	if err := row.Payment.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, row)
	return fmt.Sprintf("mem:%d", len(s.payments)), nil
}

// Payments returns the mirrored rows in append order.
func (s *Sheet) Payments() []ports.PaymentRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.PaymentRow(nil), s.payments...)
}

func readRows(path string) [][]string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Split(line, "\t"))
	}
	return out
}

func cloneRows(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, r := range in {
		out[i] = append([]string(nil), r...)
	}
	return out
}
