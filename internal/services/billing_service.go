// Package services orchestrates the billing core, persistence and the
// outbound adapters.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cobros/internal/amqp"
	"cobros/internal/billing"
	"cobros/internal/core"
	"cobros/internal/log"
	"cobros/internal/metrics"
	"cobros/internal/storage"

	"github.com/google/uuid"
)

// maxRecordAttempts bounds the optimistic-concurrency retries of RecordPayment.
const maxRecordAttempts = 3

// EventPublisher delivers payment.recorded events. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishPaymentRecorded(ctx context.Context, msg *amqp.PaymentRecordedMessage) error
}

// BillingService is the application entry point for clients and payments.
type BillingService struct {
	store     storage.Store
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*BillingService)

// WithPublisher sets where payment events go. Without one, events are skipped.
func WithPublisher(p EventPublisher) Option {
	return func(s *BillingService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BillingService) { s.metrics = m }
}

func WithLogger(l *log.Logger) Option {
	return func(s *BillingService) { s.logger = l }
}

// WithClock overrides time.Now; tests pin "today" with it.
func WithClock(now func() time.Time) Option {
	return func(s *BillingService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *BillingService) { s.newID = newID }
}

func NewBillingService(store storage.Store, opts ...Option) *BillingService {
	s := &BillingService{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.Config{
			Component: log.ComponentBilling,
			Handler:   slog.Default().Handler(),
		})
	}
	return s
}

// Today is the service's current calendar date.
func (s *BillingService) Today() core.Date {
	return core.DateOf(s.now().UTC())
}

// RecordResult describes what recording a payment did to the client.
type RecordResult struct {
	Payment         core.Payment `json:"payment"`
	Advanced        bool         `json:"advanced"`
	PreviousDueDate core.Date    `json:"previousDueDate"`
	NextPaymentDate core.Date    `json:"nextPaymentDate"`
}

// CreateClient validates in and stores it with a fresh id, registered today.
func (s *BillingService) CreateClient(ctx context.Context, ownerID string, in core.ClientInput) (core.Client, error) {
	c, err := core.NewClient(ownerID, in, s.Today())
	if err != nil {
		return core.Client{}, err
	}
	c.ID = s.newID()
	if err := s.store.CreateClient(ctx, c); err != nil {
		return core.Client{}, fmt.Errorf("create client: %w", err)
	}
	s.logger.InfoContext(ctx, "Client created",
		log.FieldOwnerID, ownerID,
		log.FieldClientID, c.ID,
		log.FieldNextDate, c.NextPaymentDate.String())
	return c, nil
}

// UpdateClient replaces every editable field of client id. The registration
// date is kept.
func (s *BillingService) UpdateClient(ctx context.Context, ownerID, id string, in core.ClientInput) (core.Client, error) {
	existing, err := s.store.GetClient(ctx, ownerID, id)
	if err != nil {
		return core.Client{}, fmt.Errorf("get client %s: %w", id, err)
	}
	c, err := core.NewClient(ownerID, in, existing.RegistrationDate)
	if err != nil {
		return core.Client{}, err
	}
	c.ID = existing.ID
	if err := s.store.UpdateClient(ctx, c); err != nil {
		return core.Client{}, fmt.Errorf("update client %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Client updated", log.FieldOwnerID, ownerID, log.FieldClientID, id)
	return c, nil
}

// DeleteClient removes the client together with its payments.
func (s *BillingService) DeleteClient(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeleteClient(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete client %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "Client deleted", log.FieldOwnerID, ownerID, log.FieldClientID, id)
	return nil
}

// Ping checks the store; readiness probes call it.
func (s *BillingService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *BillingService) GetClient(ctx context.Context, ownerID, id string) (core.Client, error) {
	return s.store.GetClient(ctx, ownerID, id)
}

func (s *BillingService) ListClients(ctx context.Context, ownerID string) ([]core.Client, error) {
	return s.store.ListClients(ctx, ownerID)
}

func (s *BillingService) ListPayments(ctx context.Context, ownerID string) ([]core.Payment, error) {
	return s.store.ListPayments(ctx, ownerID)
}

func (s *BillingService) ListClientPayments(ctx context.Context, ownerID, clientID string) ([]core.Payment, error) {
	if _, err := s.store.GetClient(ctx, ownerID, clientID); err != nil {
		return nil, fmt.Errorf("get client %s: %w", clientID, err)
	}
	return s.store.ListClientPayments(ctx, ownerID, clientID)
}

// RecordPayment stores a payment and, when it settles the cycle the client
// currently owes, moves the client's next payment date one cycle forward in
// the same store transaction. An empty payment date means today.
//
// If another writer changes the client's next date between the read and the
// write, the attempt is retried against the fresh client, at most
// maxRecordAttempts times.
func (s *BillingService) RecordPayment(ctx context.Context, ownerID string, in core.PaymentInput) (RecordResult, error) {
	if strings.TrimSpace(in.PaymentDate) == "" {
		in.PaymentDate = s.Today().String()
	}
	p, err := core.NewPayment(ownerID, in)
	if err != nil {
		return RecordResult{}, err
	}
	p.ID = s.newID()

	for attempt := 1; attempt <= maxRecordAttempts; attempt++ {
		client, err := s.store.GetClient(ctx, ownerID, p.ClientID)
		if err != nil {
			return RecordResult{}, fmt.Errorf("get client %s: %w", p.ClientID, err)
		}

		next, advanced, err := billing.MaybeAdvance(client, p)
		if err != nil {
			return RecordResult{}, err
		}
		// The store checks the date the decision was made on even when the
		// client does not move, so a stale "do not advance" is retried too.
		err = s.store.RecordPayment(ctx, p, &storage.Advance{From: client.NextPaymentDate, To: next})
		if errors.Is(err, storage.ErrConcurrentUpdate) {
			s.logger.WarnContext(ctx, "Client changed while recording payment, retrying",
				log.FieldClientID, client.ID,
				log.FieldPaymentID, p.ID,
				log.FieldAttempt, attempt)
			if s.metrics != nil {
				s.metrics.ConcurrentRetries.Inc()
			}
			continue
		}
		if err != nil {
			return RecordResult{}, fmt.Errorf("record payment: %w", err)
		}

		res := RecordResult{
			Payment:         p,
			Advanced:        advanced,
			PreviousDueDate: client.NextPaymentDate,
			NextPaymentDate: next,
		}
		s.afterRecord(ctx, client, res)
		return res, nil
	}
	return RecordResult{}, fmt.Errorf("record payment after %d attempts: %w", maxRecordAttempts, storage.ErrConcurrentUpdate)
}

func (s *BillingService) afterRecord(ctx context.Context, client core.Client, res RecordResult) {
	p := res.Payment
	log.NewStructuredLogger(s.logger.With(log.FieldOwnerID, p.OwnerID)).
		LogPaymentRecorded(ctx, p.ID, p.ClientID, p.Amount.Cents, p.Month, p.Year, res.Advanced, res.NextPaymentDate.String())

	if s.metrics != nil {
		s.metrics.PaymentsRecorded.Inc()
		if res.Advanced {
			s.metrics.CyclesAdvanced.WithLabelValues(string(client.PaymentFrequency)).Inc()
		}
	}

	// Best effort: the payment is already stored.
	if err := s.publish(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish payment recorded event",
			log.FieldPaymentID, p.ID, log.FieldError, err)
	}
}

func (s *BillingService) publish(ctx context.Context, res RecordResult) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping payment event")
		return nil
	}
	next := ""
	if res.Advanced {
		next = res.NextPaymentDate.String()
	}
	msg := amqp.NewPaymentRecordedMessage(res.Payment.OwnerID, res.Payment.ID, res.Payment.ClientID, res.Advanced, next)
	err := s.publisher.PublishPaymentRecorded(ctx, msg)
	if s.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		s.metrics.EventsPublished.WithLabelValues(result).Inc()
	}
	return err
}
