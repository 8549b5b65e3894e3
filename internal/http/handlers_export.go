package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"cobros/internal/core"
	"cobros/internal/export"
	"cobros/internal/log"

	"golang.org/x/sync/errgroup"
)

// exportFormat picks the separator from ?format=tsv|csv.
func exportFormat(r *http.Request) (sep rune, contentType, ext string) {
	if r.URL.Query().Get("format") == "tsv" {
		return export.Tab, "text/tab-separated-values; charset=utf-8", "tsv"
	}
	return export.Comma, "text/csv; charset=utf-8", "csv"
}

func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleExportClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.billing.ListClients(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}
	sep, contentType, ext := exportFormat(r)
	var buf bytes.Buffer
	if err := export.WriteClients(&buf, clients, sep); err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}
	attachment(w, contentType, "clientes."+ext, buf.Bytes())
}

func (s *Server) handleExportPayments(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(r)
	var (
		clients  []core.Client
		payments []core.Payment
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		clients, err = s.billing.ListClients(ctx, owner)
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.billing.ListPayments(ctx, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}

	sep, contentType, ext := exportFormat(r)
	var buf bytes.Buffer
	if err := export.WritePayments(&buf, payments, export.ClientNames(clients), sep); err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}
	attachment(w, contentType, "pagos."+ext, buf.Bytes())
}

// handleStatement renders a client's account statement as a PDF.
func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	owner, id := s.ownerID(r), r.PathValue("id")
	c, err := s.billing.GetClient(r.Context(), owner, id)
	if err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}
	payments, err := s.billing.ListClientPayments(r.Context(), owner, id)
	if err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}
	pdf, err := export.Statement(c, payments, s.billing.Today())
	if err != nil {
		s.writeServiceError(w, r, log.OpExport, err)
		return
	}
	attachment(w, "application/pdf", "estado-de-cuenta-"+c.ID+".pdf", pdf)
}
