// Package storage defines the persistence port for clients and payments and
// its SQLite implementation.
package storage

import (
	"context"
	"errors"

	"cobros/internal/core"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConcurrentUpdate is returned by RecordPayment when the client's stored
	// next payment date no longer equals Advance.From.
	ErrConcurrentUpdate = errors.New("client was modified concurrently")
)

// Advance moves a client's next payment date from From to To. It only applies
// while the stored value still equals From. From == To checks the date
// without moving it.
type Advance struct {
	From core.Date
	To   core.Date
}

// Keep reports whether a leaves the next payment date where it is.
func (a Advance) Keep() bool { return a.From.Equal(a.To) }

// Store persists clients and payments. Every read and write is scoped to an
// owner; records of other owners behave as if they did not exist.
type Store interface {
	ListClients(ctx context.Context, ownerID string) ([]core.Client, error)
	GetClient(ctx context.Context, ownerID, id string) (core.Client, error)
	CreateClient(ctx context.Context, c core.Client) error
	// CreateClients inserts all clients or none.
	CreateClients(ctx context.Context, cs []core.Client) error
	UpdateClient(ctx context.Context, c core.Client) error
	// DeleteClient removes the client and every payment recorded for it.
	DeleteClient(ctx context.Context, ownerID, id string) error

	ListPayments(ctx context.Context, ownerID string) ([]core.Payment, error)
	ListClientPayments(ctx context.Context, ownerID, clientID string) ([]core.Payment, error)
	GetPayment(ctx context.Context, ownerID, id string) (core.Payment, error)

	// RecordPayment inserts p and, when advance is non-nil, checks and moves
	// the client's next payment date in the same transaction. Either both
	// happen or neither does.
	RecordPayment(ctx context.Context, p core.Payment, advance *Advance) error

	Ping(ctx context.Context) error
	Close() error
}
