package http

import (
	"net/http"
	"strconv"
	"strings"

	"cobros/internal/billing"
	"cobros/internal/core"
	"cobros/internal/log"
	"cobros/internal/services"
)

func dashboardKey(owner string, today core.Date) string {
	return dashboardPrefix(owner) + today.String()
}

func dashboardPrefix(owner string) string {
	return "dashboard:" + owner + ":"
}

// invalidateDashboard drops every cached dashboard of owner. Dashboards
// computed before the call are not cached afterwards.
func (s *Server) invalidateDashboard(owner string) {
	s.dashGenMu.Lock()
	s.dashGen[owner]++
	s.dashGenMu.Unlock()
	if n := s.dashboards.DeletePrefix(dashboardPrefix(owner)); n > 0 {
		s.logger.Debug("Dashboard cache invalidated",
			log.FieldOwnerID, owner,
			"entries", n,
			log.FieldComponent, log.ComponentCache)
	}
}

func (s *Server) dashboardGeneration(owner string) uint64 {
	s.dashGenMu.Lock()
	defer s.dashGenMu.Unlock()
	return s.dashGen[owner]
}

// cacheDashboard stores d unless owner was invalidated since gen was read.
func (s *Server) cacheDashboard(owner, key string, gen uint64, d services.Dashboard) bool {
	s.dashGenMu.Lock()
	defer s.dashGenMu.Unlock()
	if s.dashGen[owner] != gen {
		return false
	}
	s.dashboards.Set(key, d)
	return true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerID(r)
	today := s.billing.Today()
	key := dashboardKey(owner, today)

	if d, ok := s.dashboards.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, d)
		return
	}
	gen := s.dashboardGeneration(owner)
	d, err := s.billing.Dashboard(r.Context(), owner, today)
	if err != nil {
		s.writeServiceError(w, r, log.OpRead, err)
		return
	}
	if !s.cacheDashboard(owner, key, gen, d) {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Dashboard changed while computing, not cached",
			log.FieldOwnerID, owner,
			log.FieldComponent, log.ComponentCache)
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, d)
}

// handlePeriodStatus lists every client's status for ?month=&year=, optionally
// narrowed by ?status= and a ?q= search.
func (s *Server) handlePeriodStatus(w http.ResponseWriter, r *http.Request) {
	today := s.billing.Today()
	month, year, err := parsePeriod(r, today)
	if err != nil {
		s.writeServiceError(w, r, log.OpRead, err)
		return
	}

	filter := services.StatusFilter{Query: sanitizeInput(r.URL.Query().Get("q"))}
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		st, err := billing.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = st
	}

	statuses, err := s.billing.PeriodStatuses(r.Context(), s.ownerID(r), month, year, filter, today)
	if err != nil {
		s.writeServiceError(w, r, log.OpRead, err)
		return
	}
	if statuses == nil {
		statuses = []services.ClientStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":   month,
		"year":    year,
		"clients": statuses,
	})
}

// handleUpcoming lists clients due within ?days= (default 15) after today.
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	days := billing.DefaultUpcomingHorizon
	if v := strings.TrimSpace(r.URL.Query().Get("days")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 366 {
			writeError(w, http.StatusBadRequest, "days must be between 0 and 366")
			return
		}
		days = n
	}
	clients, err := s.billing.Upcoming(r.Context(), s.ownerID(r), s.billing.Today(), days)
	if err != nil {
		s.writeServiceError(w, r, log.OpList, err)
		return
	}
	if clients == nil {
		clients = []core.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}
