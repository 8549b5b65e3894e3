package http

import (
	"net/http"
	"strings"

	"cobros/internal/core"
	"cobros/internal/log"
)

type paymentRequest struct {
	ClientID    string     `json:"clientId"`
	Amount      flexString `json:"amount"`
	PaymentDate string     `json:"paymentDate"`
	Month       int        `json:"month"`
	Year        int        `json:"year"`
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.billing.ListPayments(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeServiceError(w, r, log.OpList, err)
		return
	}
	if clientID := strings.TrimSpace(r.URL.Query().Get("clientId")); clientID != "" {
		filtered := payments[:0]
		for _, p := range payments {
			if p.ClientID == clientID {
				filtered = append(filtered, p)
			}
		}
		payments = filtered
	}
	if payments == nil {
		payments = []core.Payment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// handleRecordPayment records a payment and reports whether it moved the
// client's next payment date.
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := s.ownerID(r)
	res, err := s.billing.RecordPayment(r.Context(), owner, core.PaymentInput{
		ClientID:    sanitizeInput(req.ClientID),
		Amount:      sanitizeInput(string(req.Amount)),
		PaymentDate: sanitizeInput(req.PaymentDate),
		Month:       req.Month,
		Year:        req.Year,
	})
	if err != nil {
		s.writeServiceError(w, r, log.OpRecord, err)
		return
	}
	s.invalidateDashboard(owner)
	writeJSON(w, http.StatusCreated, res)
}
