package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cobros/internal/core"
	"cobros/internal/importer"
	"cobros/internal/log"
	"cobros/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// errorStatus maps domain and store errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidClientRecord),
		errors.Is(err, core.ErrInvalidPayment),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, importer.ErrEmptyInput),
		errors.Is(err, importer.ErrMissingHeader):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConcurrentUpdate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeServiceError logs and renders err. Internal errors are not echoed back.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errorStatus(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithOwner(s.ownerID(r)))
		writeError(w, status, "internal error")
		return
	}
	logger.WarnContext(r.Context(), "Request rejected",
		log.FieldOperation, op,
		log.FieldError, err,
		log.FieldStatusCode, status)
	writeError(w, status, err.Error())
}

// ownerID returns the X-Owner-ID header or the configured default owner.
func (s *Server) ownerID(r *http.Request) string {
	if v := sanitizeInput(r.Header.Get(HeaderOwnerID)); v != "" {
		return v
	}
	return s.defaultOwnerID
}

// decodeJSON reads a size-limited JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parsePeriod extracts month and year from the query. Missing values default
// to today's; malformed values are an error.
func parsePeriod(r *http.Request, today core.Date) (month, year int, err error) {
	month, year = today.Month(), today.Year()
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if month, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: month %q", core.ErrInvalidPeriod, v)
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if year, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("%w: year %q", core.ErrInvalidPeriod, v)
		}
	}
	return month, year, core.ValidatePeriod(month, year)
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
