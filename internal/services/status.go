package services

import (
	"context"
	"fmt"
	"strings"

	"cobros/internal/billing"
	"cobros/internal/core"
)

// StatusFilter narrows PeriodStatuses. Zero values match everything.
type StatusFilter struct {
	Status billing.Status
	// Query matches name, RUC or email, case-insensitively.
	Query string
}

func (f StatusFilter) matches(c core.Client, st billing.PeriodStatus) bool {
	if f.Status != "" && st.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), q) ||
		strings.Contains(strings.ToLower(c.RUC), q) ||
		strings.Contains(strings.ToLower(c.Email), q)
}

// ClientStatus pairs a client with its status for one period.
type ClientStatus struct {
	Client        core.Client    `json:"client"`
	Status        billing.Status `json:"status"`
	Payment       *core.Payment  `json:"payment,omitempty"`
	NotApplicable bool           `json:"notApplicable"`
}

// PeriodStatuses classifies every client of ownerID for (month, year) as of
// today, in roster order.
func (s *BillingService) PeriodStatuses(ctx context.Context, ownerID string, month, year int, filter StatusFilter, today core.Date) ([]ClientStatus, error) {
	if err := core.ValidatePeriod(month, year); err != nil {
		return nil, err
	}
	clients, err := s.store.ListClients(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	payments, err := s.store.ListPayments(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	out := make([]ClientStatus, 0, len(clients))
	for _, c := range clients {
		st, err := billing.StatusForPeriod(c, month, year, payments, today)
		if err != nil {
			return nil, fmt.Errorf("status of client %s: %w", c.ID, err)
		}
		if !filter.matches(c, st) {
			continue
		}
		out = append(out, ClientStatus{
			Client:        c,
			Status:        st.Status,
			Payment:       st.Payment,
			NotApplicable: st.NotApplicable,
		})
	}
	return out, nil
}

// Upcoming lists the clients due within horizonDays after today.
func (s *BillingService) Upcoming(ctx context.Context, ownerID string, today core.Date, horizonDays int) ([]core.Client, error) {
	clients, err := s.store.ListClients(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return billing.UpcomingWithinDays(clients, today, horizonDays), nil
}
