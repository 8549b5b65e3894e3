// Package memory is an in-process storage.Store for development and tests.
// Each Store is independent; construct one and pass it where it is needed.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cobros/internal/core"
	"cobros/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	clients  map[string]core.Client
	payments []core.Payment
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{clients: make(map[string]core.Client)}
}

func (s *Store) ListClients(_ context.Context, ownerID string) ([]core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b core.Client) int {
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetClient(_ context.Context, ownerID, id string) (core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientLocked(ownerID, id)
}

func (s *Store) clientLocked(ownerID, id string) (core.Client, error) {
	c, ok := s.clients[id]
	if !ok || c.OwnerID != ownerID {
		return core.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateClient(ctx context.Context, c core.Client) error {
	return s.CreateClients(ctx, []core.Client{c})
}

func (s *Store) CreateClients(_ context.Context, cs []core.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		if c.ID == "" {
			return fmt.Errorf("create client %q: missing id", c.Name)
		}
		if _, dup := s.clients[c.ID]; dup {
			return fmt.Errorf("create client %q: duplicate id %s", c.Name, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("create client %q: duplicate id %s in batch", c.Name, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	for _, c := range cs {
		s.clients[c.ID] = c
	}
	return nil
}

func (s *Store) UpdateClient(_ context.Context, c core.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.clientLocked(c.OwnerID, c.ID)
	if err != nil {
		return err
	}
	c.RegistrationDate = existing.RegistrationDate
	s.clients[c.ID] = c
	return nil
}

func (s *Store) DeleteClient(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.clientLocked(ownerID, id); err != nil {
		return err
	}
	delete(s.clients, id)
	s.payments = slices.DeleteFunc(s.payments, func(p core.Payment) bool {
		return p.ClientID == id
	})
	return nil
}

func (s *Store) ListPayments(_ context.Context, ownerID string) ([]core.Payment, error) {
	return s.filterPayments(func(p core.Payment) bool { return p.OwnerID == ownerID }), nil
}

func (s *Store) ListClientPayments(_ context.Context, ownerID, clientID string) ([]core.Payment, error) {
	return s.filterPayments(func(p core.Payment) bool {
		return p.OwnerID == ownerID && p.ClientID == clientID
	}), nil
}

// filterPayments returns matches newest payment date first, ties in reverse
// insertion order.
func (s *Store) filterPayments(keep func(core.Payment) bool) []core.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Payment, 0)
	for i := len(s.payments) - 1; i >= 0; i-- {
		if keep(s.payments[i]) {
			out = append(out, s.payments[i])
		}
	}
	slices.SortStableFunc(out, func(a, b core.Payment) int {
		return b.PaymentDate.Compare(a.PaymentDate.Time)
	})
	return out
}

func (s *Store) GetPayment(_ context.Context, ownerID, id string) (core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.ID == id && p.OwnerID == ownerID {
			return p, nil
		}
	}
	return core.Payment{}, fmt.Errorf("payment %s: %w", id, storage.ErrNotFound)
}

func (s *Store) RecordPayment(_ context.Context, p core.Payment, advance *storage.Advance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.clientLocked(p.OwnerID, p.ClientID)
	if err != nil {
		return err
	}
	if advance != nil {
		if !c.NextPaymentDate.Equal(advance.From) {
			return fmt.Errorf("client %s next payment date is %s, expected %s: %w",
				c.ID, c.NextPaymentDate, advance.From, storage.ErrConcurrentUpdate)
		}
		c.NextPaymentDate = advance.To
		s.clients[c.ID] = c
	}
	s.payments = append(s.payments, p)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
