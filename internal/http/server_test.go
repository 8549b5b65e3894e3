package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cobros/internal/core"
	"cobros/internal/importer"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/services"
	"cobros/internal/storage/memory"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	logger := log.New(log.Config{Component: log.ComponentHTTP, Handler: slog.NewTextHandler(io.Discard, nil)})
	svc := services.NewBillingService(memory.New(),
		services.WithClock(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }),
		services.WithLogger(logger),
	)
	opts.Logger = logger
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	srv := NewServer(svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "203.0.113.7:1234"
	if owner != "" {
		req.Header.Set(HeaderOwnerID, owner)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func clientBody(name, next string) map[string]any {
	return map[string]any{
		"name":             name,
		"phone":            "0991234567",
		"email":            strings.ToLower(name) + "@example.com",
		"serviceType":      string(core.GPSRental),
		"gpsUnits":         2,
		"paymentAmount":    35.5,
		"paymentFrequency": "Mensual",
		"nextPaymentDate":  next,
	}
}

func createClient(t *testing.T, srv *Server, owner, name, next string) core.Client {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/api/clients", owner, clientBody(name, next))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create %s: status=%d body=%s", name, rr.Code, rr.Body.String())
	}
	return decode[core.Client](t, rr)
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
		if rr.Header().Get(HeaderRequestID) == "" {
			t.Errorf("%s missing request id", path)
		}
	}
}

func TestClientLifecycle(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := createClient(t, srv, "acme", "Alpha", "2024-03-15")
	if c.ID == "" || c.PaymentAmount.Cents != 3550 || c.GPSUnits != 2 {
		t.Fatalf("unexpected client %+v", c)
	}
	if !c.RegistrationDate.Equal(core.NewDate(2024, 3, 10)) {
		t.Errorf("registration date = %s, want 2024-03-10", c.RegistrationDate)
	}

	rr := do(t, srv, http.MethodGet, "/api/clients/"+c.ID, "acme", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}

	body := clientBody("Alpha", "2024-03-20")
	body["notes"] = "moved"
	rr = do(t, srv, http.MethodPut, "/api/clients/"+c.ID, "acme", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if got := decode[core.Client](t, rr); got.Notes != "moved" || got.NextPaymentDate.String() != "2024-03-20" {
		t.Errorf("update not applied: %+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/clients?q=alp", "acme", nil)
	if list := decode[[]core.Client](t, rr); len(list) != 1 {
		t.Errorf("search returned %d clients, want 1", len(list))
	}

	rr = do(t, srv, http.MethodDelete, "/api/clients/"+c.ID, "acme", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/clients/"+c.ID, "acme", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status=%d", rr.Code)
	}
}

func TestCreateClientErrors(t *testing.T) {
	srv := newTestServer(t, Options{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest},
		{"unknown field", `{"nombre":"x"}`, http.StatusBadRequest},
		{"invalid email", func() map[string]any {
			b := clientBody("Beta", "2024-04-01")
			b["email"] = "not-an-email"
			return b
		}(), http.StatusUnprocessableEntity},
		{"missing next date", clientBody("Gamma", ""), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/clients", "acme", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if !strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
				t.Errorf("error response is not json")
			}
		})
	}
}

func TestOwnerScoping(t *testing.T) {
	srv := newTestServer(t, Options{DefaultOwnerID: "fallback"})
	c := createClient(t, srv, "acme", "Alpha", "2024-03-15")

	if rr := do(t, srv, http.MethodGet, "/api/clients/"+c.ID, "other", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("other owner status=%d, want 404", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/clients/"+c.ID, "", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("default owner status=%d, want 404", rr.Code)
	}

	createClient(t, srv, "", "Beta", "2024-04-01")
	rr := do(t, srv, http.MethodGet, "/api/clients", "fallback", nil)
	if list := decode[[]core.Client](t, rr); len(list) != 1 || list[0].Name != "Beta" {
		t.Fatalf("fallback owner clients = %+v", list)
	}
}

func TestRecordPaymentAdvancesCycle(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := createClient(t, srv, "acme", "Alpha", "2024-03-15")

	rr := do(t, srv, http.MethodPost, "/api/payments", "acme", map[string]any{
		"clientId": c.ID,
		"amount":   "35.50",
		"month":    3,
		"year":     2024,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("record status=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decode[services.RecordResult](t, rr)
	if !res.Advanced || res.NextPaymentDate.String() != "2024-04-15" {
		t.Fatalf("result = %+v, want advanced to 2024-04-15", res)
	}
	if res.Payment.PaymentDate.String() != "2024-03-10" {
		t.Errorf("payment date = %s, want today", res.Payment.PaymentDate)
	}

	// a second payment for the same period does not advance again
	rr = do(t, srv, http.MethodPost, "/api/payments", "acme", map[string]any{
		"clientId": c.ID, "amount": 35.5, "month": 3, "year": 2024,
	})
	if res := decode[services.RecordResult](t, rr); res.Advanced || res.NextPaymentDate.String() != "2024-04-15" {
		t.Fatalf("second payment result = %+v", res)
	}

	rr = do(t, srv, http.MethodGet, "/api/clients/"+c.ID+"/payments", "acme", nil)
	if list := decode[[]core.Payment](t, rr); len(list) != 2 {
		t.Fatalf("client payments = %d, want 2", len(list))
	}
	rr = do(t, srv, http.MethodGet, "/api/payments?clientId="+c.ID, "acme", nil)
	if list := decode[[]core.Payment](t, rr); len(list) != 2 {
		t.Fatalf("filtered payments = %d, want 2", len(list))
	}
}

func TestRecordPaymentErrors(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := createClient(t, srv, "acme", "Alpha", "2024-03-15")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown client", map[string]any{"clientId": "nope", "amount": 10, "month": 3, "year": 2024}, http.StatusNotFound},
		{"zero amount", map[string]any{"clientId": c.ID, "amount": 0, "month": 3, "year": 2024}, http.StatusUnprocessableEntity},
		{"bad month", map[string]any{"clientId": c.ID, "amount": 10, "month": 13, "year": 2024}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/api/payments", "acme", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

type statusResponse struct {
	Month   int                     `json:"month"`
	Year    int                     `json:"year"`
	Clients []services.ClientStatus `json:"clients"`
}

func TestPeriodStatus(t *testing.T) {
	srv := newTestServer(t, Options{})
	paid := createClient(t, srv, "acme", "Alpha", "2024-03-05")
	createClient(t, srv, "acme", "Beta", "2024-03-05")
	createClient(t, srv, "acme", "Gamma", "2024-03-25")
	do(t, srv, http.MethodPost, "/api/payments", "acme", map[string]any{
		"clientId": paid.ID, "amount": 35.5, "month": 3, "year": 2024,
	})

	rr := do(t, srv, http.MethodGet, "/api/status?month=3&year=2024", "acme", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[statusResponse](t, rr)
	want := map[string]string{"Alpha": "Pagado", "Beta": "Vencido", "Gamma": "Pendiente"}
	if len(got.Clients) != 3 {
		t.Fatalf("got %d statuses, want 3", len(got.Clients))
	}
	for _, cs := range got.Clients {
		if string(cs.Status) != want[cs.Client.Name] {
			t.Errorf("%s status = %s, want %s", cs.Client.Name, cs.Status, want[cs.Client.Name])
		}
	}

	rr = do(t, srv, http.MethodGet, "/api/status?month=3&year=2024&status=overdue", "acme", nil)
	if got := decode[statusResponse](t, rr); len(got.Clients) != 1 || got.Clients[0].Client.Name != "Beta" {
		t.Fatalf("overdue filter = %+v", got.Clients)
	}

	if rr := do(t, srv, http.MethodGet, "/api/status?month=13", "acme", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad month status=%d, want 422", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/status?status=late", "acme", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad status filter status=%d, want 400", rr.Code)
	}
}

func TestDashboardCache(t *testing.T) {
	srv := newTestServer(t, Options{})
	createClient(t, srv, "acme", "Alpha", "2024-03-15")

	rr := do(t, srv, http.MethodGet, "/api/dashboard", "acme", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first dashboard status=%d cache=%s", rr.Code, rr.Header().Get("X-Cache"))
	}
	if d := decode[services.Dashboard](t, rr); d.TotalClients != 1 {
		t.Fatalf("total clients = %d", d.TotalClients)
	}

	rr = do(t, srv, http.MethodGet, "/api/dashboard", "acme", nil)
	if rr.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second dashboard should hit the cache")
	}

	createClient(t, srv, "acme", "Beta", "2024-03-20")
	rr = do(t, srv, http.MethodGet, "/api/dashboard", "acme", nil)
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("write should invalidate the dashboard cache")
	}
	if d := decode[services.Dashboard](t, rr); d.TotalClients != 2 {
		t.Fatalf("total clients after write = %d", d.TotalClients)
	}
}

// listHookStore runs onList once, while a dashboard is being computed.
type listHookStore struct {
	*memory.Store
	once   sync.Once
	onList func()
}

func (s *listHookStore) ListPayments(ctx context.Context, ownerID string) ([]core.Payment, error) {
	if s.onList != nil {
		s.once.Do(s.onList)
	}
	return s.Store.ListPayments(ctx, ownerID)
}

func TestDashboardNotCachedAcrossInvalidation(t *testing.T) {
	store := &listHookStore{Store: memory.New()}
	logger := log.New(log.Config{Component: log.ComponentHTTP, Handler: slog.NewTextHandler(io.Discard, nil)})
	svc := services.NewBillingService(store,
		services.WithClock(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }),
		services.WithLogger(logger),
	)
	srv := NewServer(svc, Options{Logger: logger, Metrics: metrics.New(nil)})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	createClient(t, srv, "acme", "Alpha", "2024-03-15")

	// A write lands while the first dashboard is computed.
	store.onList = func() { srv.invalidateDashboard("acme") }

	for i, want := range []string{"MISS", "MISS", "HIT"} {
		rr := do(t, srv, http.MethodGet, "/api/dashboard", "acme", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("dashboard %d status=%d", i, rr.Code)
		}
		if got := rr.Header().Get("X-Cache"); got != want {
			t.Errorf("dashboard %d X-Cache=%s, want %s", i, got, want)
		}
	}
}

func TestNewServerKeepsDefaultLogger(t *testing.T) {
	before := slog.Default()
	srv := NewServer(services.NewBillingService(memory.New()), Options{Metrics: metrics.New(nil)})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	if slog.Default() != before {
		t.Error("NewServer replaced the default slog logger")
	}
}

func TestUpcoming(t *testing.T) {
	srv := newTestServer(t, Options{})
	createClient(t, srv, "acme", "Late", "2024-04-20")
	createClient(t, srv, "acme", "Soon", "2024-03-12")
	createClient(t, srv, "acme", "Past", "2024-03-01")

	rr := do(t, srv, http.MethodGet, "/api/upcoming", "acme", nil)
	list := decode[[]core.Client](t, rr)
	if len(list) != 1 || list[0].Name != "Soon" {
		t.Fatalf("upcoming = %+v", list)
	}

	rr = do(t, srv, http.MethodGet, "/api/upcoming?days=60", "acme", nil)
	if list := decode[[]core.Client](t, rr); len(list) != 2 || list[0].Name != "Soon" {
		t.Fatalf("upcoming 60 days = %+v", list)
	}
	if rr := do(t, srv, http.MethodGet, "/api/upcoming?days=x", "acme", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad days status=%d", rr.Code)
	}
}

func TestImportClients(t *testing.T) {
	srv := newTestServer(t, Options{})
	tsv := strings.Join(importer.Headers, "\t") + "\n" +
		"Alpha\t\t0991234567\talpha@example.com\tGPS - Alquiler\t1\t35\tMensual\t2024-04-01\t\n" +
		"Broken\t\t0991234567\tnot-an-email\tGPS - Alquiler\t1\t35\tMensual\t2024-04-01\t\n"

	rr := do(t, srv, http.MethodPost, "/api/clients/import", "acme", tsv)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body.String())
	}
	report := decode[services.ImportReport](t, rr)
	if report.Imported != 1 || report.Failed != 1 || len(report.Errors) != 1 {
		t.Fatalf("report = %+v", report)
	}

	if rr := do(t, srv, http.MethodPost, "/api/clients/import", "acme", "Foo\tBar\n"); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing headers status=%d, want 422", rr.Code)
	}
}

func TestExports(t *testing.T) {
	srv := newTestServer(t, Options{})
	c := createClient(t, srv, "acme", "Alpha", "2024-03-15")
	do(t, srv, http.MethodPost, "/api/payments", "acme", map[string]any{
		"clientId": c.ID, "amount": 35.5, "month": 3, "year": 2024,
	})

	rr := do(t, srv, http.MethodGet, "/api/export/clients.csv", "acme", nil)
	if rr.Code != http.StatusOK || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("clients csv status=%d type=%s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rr.Body.String(), "Nombre,RUC,") || !strings.Contains(rr.Body.String(), "Alpha") {
		t.Errorf("clients csv body = %q", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/export/clients.csv?format=tsv", "acme", nil)
	if !strings.HasPrefix(rr.Body.String(), "Nombre\tRUC\t") {
		t.Errorf("clients tsv body = %q", rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/export/payments.csv", "acme", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Alpha") {
		t.Errorf("payments csv status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/clients/"+c.ID+"/statement.pdf", "acme", nil)
	if rr.Code != http.StatusOK || !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("statement status=%d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/clients/nope/statement.pdf", "acme", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing client statement status=%d", rr.Code)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodDelete, "/api/clients/none", "acme", nil); rr.Code != http.StatusNotFound {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodDelete, "/api/clients/none", "acme", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("third write status=%d, want 429", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/clients", "acme", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, Options{})
	do(t, srv, http.MethodGet, "/api/clients", "acme", nil)
	rr := do(t, srv, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `cobros_http_request_duration_seconds_count{method="GET",route="GET /api/clients",status="2xx"} 1`) {
		t.Errorf("request duration not recorded:\n%s", rr.Body.String())
	}
}
