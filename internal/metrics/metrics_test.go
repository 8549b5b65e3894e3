package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestCountersAreExported(t *testing.T) {
	m := New(nil)
	m.PaymentsRecorded.Inc()
	m.CyclesAdvanced.WithLabelValues("Mensual").Add(2)
	m.ImportRows.WithLabelValues("failed").Inc()

	body := scrape(t, m)
	for _, line := range []string{
		"cobros_payments_recorded_total 1",
		`cobros_cycles_advanced_total{frequency="Mensual"} 2`,
		`cobros_import_rows_total{result="failed"} 1`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestNewRegistriesAreIndependent(t *testing.T) {
	a, b := New(nil), New(nil)
	a.PaymentsRecorded.Inc()
	if body := scrape(t, b); !strings.Contains(body, "cobros_payments_recorded_total 0") {
		t.Errorf("second registry was affected:\n%s", body)
	}
}
