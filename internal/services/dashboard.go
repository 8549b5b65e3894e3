package services

import (
	"context"
	"fmt"

	"cobros/internal/billing"
	"cobros/internal/core"

	"golang.org/x/sync/errgroup"
)

const (
	dashboardListSize      = 5
	dashboardRevenueMonths = 6
)

var monthLabels = [...]string{"Ene", "Feb", "Mar", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

// MonthRevenue is the total of the payments made in one calendar month.
type MonthRevenue struct {
	Label string     `json:"label"`
	Month int        `json:"month"`
	Year  int        `json:"year"`
	Total core.Money `json:"total"`
}

// Dashboard is the owner's overview as of one day.
type Dashboard struct {
	Today                   core.Date              `json:"today"`
	TotalClients            int                    `json:"totalClients"`
	ActiveClients           int                    `json:"activeClients"`
	InactiveClients         int                    `json:"inactiveClients"`
	EstimatedMonthlyRevenue core.Money             `json:"estimatedMonthlyRevenue"`
	StatusCounts            map[billing.Status]int `json:"statusCounts"`
	Upcoming                []core.Client          `json:"upcoming"`
	Overdue                 []core.Client          `json:"overdue"`
	Revenue                 []MonthRevenue         `json:"revenue"`
}

// Dashboard computes the overview. Roster counts use billing.RosterStatus,
// not per-period statuses.
func (s *BillingService) Dashboard(ctx context.Context, ownerID string, today core.Date) (Dashboard, error) {
	var (
		clients  []core.Client
		payments []core.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		clients, err = s.store.ListClients(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("list clients: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		payments, err = s.store.ListPayments(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("list payments: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Today:        today,
		TotalClients: len(clients),
		StatusCounts: map[billing.Status]int{},
		Overdue:      []core.Client{},
	}
	for _, st := range billing.Statuses() {
		d.StatusCounts[st] = 0
	}

	for _, c := range clients {
		if c.PaymentFrequency == core.Monthly {
			d.EstimatedMonthlyRevenue = d.EstimatedMonthlyRevenue.Add(c.PaymentAmount)
		}
		if billing.IsCurrentlyActive(c, today) {
			d.ActiveClients++
		}
		st := billing.RosterStatus(c, today)
		d.StatusCounts[st]++
		if st == billing.Overdue && len(d.Overdue) < dashboardListSize {
			d.Overdue = append(d.Overdue, c)
		}
	}
	d.InactiveClients = d.TotalClients - d.ActiveClients

	upcoming := billing.UpcomingWithinDays(clients, today, billing.DefaultUpcomingHorizon)
	if len(upcoming) > dashboardListSize {
		upcoming = upcoming[:dashboardListSize]
	}
	d.Upcoming = upcoming

	d.Revenue = revenueByMonth(payments, today, dashboardRevenueMonths)
	return d, nil
}

// revenueByMonth totals payments by payment date for the n calendar months
// ending with today's, oldest first.
func revenueByMonth(payments []core.Payment, today core.Date, n int) []MonthRevenue {
	first := core.NewDate(today.Year(), today.Month(), 1)
	out := make([]MonthRevenue, n)
	for i := range out {
		m := first.AddMonthsClamped(i - (n - 1))
		out[i] = MonthRevenue{Label: monthLabels[m.Month()-1], Month: m.Month(), Year: m.Year()}
	}
	for _, p := range payments {
		for i := range out {
			if p.PaymentDate.Month() == out[i].Month && p.PaymentDate.Year() == out[i].Year {
				out[i].Total = out[i].Total.Add(p.Amount)
				break
			}
		}
	}
	return out
}
