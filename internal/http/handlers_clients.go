package http

import (
	"net/http"
	"strings"

	"cobros/internal/core"
	"cobros/internal/log"
)

type clientRequest struct {
	Name             string     `json:"name"`
	RUC              string     `json:"ruc"`
	Phone            string     `json:"phone"`
	Email            string     `json:"email"`
	ServiceType      string     `json:"serviceType"`
	GPSUnits         flexString `json:"gpsUnits"`
	PaymentAmount    flexString `json:"paymentAmount"`
	PaymentFrequency string     `json:"paymentFrequency"`
	NextPaymentDate  string     `json:"nextPaymentDate"`
	Notes            string     `json:"notes"`
}

func (c clientRequest) input() core.ClientInput {
	return core.ClientInput{
		Name:             sanitizeInput(c.Name),
		RUC:              sanitizeInput(c.RUC),
		Phone:            sanitizeInput(c.Phone),
		Email:            sanitizeInput(c.Email),
		ServiceType:      sanitizeInput(c.ServiceType),
		GPSUnits:         sanitizeInput(string(c.GPSUnits)),
		PaymentAmount:    sanitizeInput(string(c.PaymentAmount)),
		PaymentFrequency: sanitizeInput(c.PaymentFrequency),
		NextPaymentDate:  sanitizeInput(c.NextPaymentDate),
		Notes:            sanitizeInput(c.Notes),
	}
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.billing.ListClients(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeServiceError(w, r, log.OpList, err)
		return
	}
	if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q"))); q != "" {
		filtered := clients[:0]
		for _, c := range clients {
			if strings.Contains(strings.ToLower(c.Name), q) ||
				strings.Contains(strings.ToLower(c.RUC), q) ||
				strings.Contains(strings.ToLower(c.Email), q) {
				filtered = append(filtered, c)
			}
		}
		clients = filtered
	}
	if clients == nil {
		clients = []core.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.billing.GetClient(r.Context(), s.ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := s.ownerID(r)
	c, err := s.billing.CreateClient(r.Context(), owner, req.input())
	if err != nil {
		s.writeServiceError(w, r, log.OpCreate, err)
		return
	}
	s.invalidateDashboard(owner)
	w.Header().Set("Location", "/api/clients/"+c.ID)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := s.ownerID(r)
	c, err := s.billing.UpdateClient(r.Context(), owner, r.PathValue("id"), req.input())
	if err != nil {
		s.writeServiceError(w, r, log.OpUpdate, err)
		return
	}
	s.invalidateDashboard(owner)
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(r)
	if err := s.billing.DeleteClient(r.Context(), owner, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, log.OpDelete, err)
		return
	}
	s.invalidateDashboard(owner)
	w.WriteHeader(http.StatusNoContent)
}

// handleImportClients takes a tab-separated paste with a header row as the
// raw body. Bad rows are reported, not fatal.
func (s *Server) handleImportClients(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(r)
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	report, err := s.billing.ImportTSV(r.Context(), owner, body)
	if err != nil {
		s.writeServiceError(w, r, log.OpImport, err)
		return
	}
	if report.Imported > 0 {
		s.invalidateDashboard(owner)
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Clients imported",
		log.FieldOwnerID, owner,
		"imported", report.Imported,
		"failed", report.Failed,
		log.FieldOperation, log.OpImport)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListClientPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.billing.ListClientPayments(r.Context(), s.ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, log.OpList, err)
		return
	}
	if payments == nil {
		payments = []core.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}
