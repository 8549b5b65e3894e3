package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cobros/internal/core"

	_ "modernc.org/sqlite"
)

const clientColumns = `id, owner_id, name, ruc, phone, email, service_type, gps_units,
	payment_amount_cents, payment_frequency, next_payment_date, registration_date, notes`

const paymentColumns = `id, owner_id, client_id, amount_cents, payment_date, month, year`

type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps the foreign_keys pragma in effect for every
	// statement and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(s rowScanner) (core.Client, error) {
	var (
		c                core.Client
		amount           int64
		freq, st         string
		next, registered string
	)
	err := s.Scan(&c.ID, &c.OwnerID, &c.Name, &c.RUC, &c.Phone, &c.Email, &st, &c.GPSUnits,
		&amount, &freq, &next, &registered, &c.Notes)
	if err != nil {
		return core.Client{}, err
	}
	c.ServiceType = core.ServiceType(st)
	c.PaymentFrequency = core.PaymentFrequency(freq)
	c.PaymentAmount = core.Money{Cents: amount}
	if c.NextPaymentDate, err = core.ParseDate(next); err != nil {
		return core.Client{}, fmt.Errorf("client %s next_payment_date: %w", c.ID, err)
	}
	if registered != "" {
		if c.RegistrationDate, err = core.ParseDate(registered); err != nil {
			return core.Client{}, fmt.Errorf("client %s registration_date: %w", c.ID, err)
		}
	}
	return c, nil
}

func scanPayment(s rowScanner) (core.Payment, error) {
	var (
		p      core.Payment
		amount int64
		paid   string
	)
	if err := s.Scan(&p.ID, &p.OwnerID, &p.ClientID, &amount, &paid, &p.Month, &p.Year); err != nil {
		return core.Payment{}, err
	}
	p.Amount = core.Money{Cents: amount}
	d, err := core.ParseDate(paid)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s payment_date: %w", p.ID, err)
	}
	p.PaymentDate = d
	return p, nil
}

func (r *SQLiteRepository) ListClients(ctx context.Context, ownerID string) ([]core.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]core.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *SQLiteRepository) GetClient(ctx context.Context, ownerID, id string) (core.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE owner_id = ? AND id = ?`, ownerID, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Client{}, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertClient(ctx context.Context, db execer, c core.Client) error {
	_, err := db.ExecContext(ctx, `INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.RUC, c.Phone, c.Email, string(c.ServiceType), c.GPSUnits,
		c.PaymentAmount.Cents, string(c.PaymentFrequency), c.NextPaymentDate.String(),
		c.RegistrationDate.String(), c.Notes)
	return err
}

func (r *SQLiteRepository) CreateClient(ctx context.Context, c core.Client) error {
	if err := insertClient(ctx, r.db, c); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	slog.DebugContext(ctx, "Client saved to SQLite", "id", c.ID, "owner_id", c.OwnerID)
	return nil
}

func (r *SQLiteRepository) CreateClients(ctx context.Context, cs []core.Client) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range cs {
		if err := insertClient(ctx, tx, c); err != nil {
			return fmt.Errorf("create client %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clients: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateClient(ctx context.Context, c core.Client) error {
	res, err := r.db.ExecContext(ctx, `UPDATE clients SET
			name = ?, ruc = ?, phone = ?, email = ?, service_type = ?, gps_units = ?,
			payment_amount_cents = ?, payment_frequency = ?, next_payment_date = ?, notes = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND id = ?`,
		c.Name, c.RUC, c.Phone, c.Email, string(c.ServiceType), c.GPSUnits,
		c.PaymentAmount.Cents, string(c.PaymentFrequency), c.NextPaymentDate.String(), c.Notes,
		c.OwnerID, c.ID)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return requireOne(res, "client", c.ID)
}

func (r *SQLiteRepository) DeleteClient(ctx context.Context, ownerID, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The foreign key cascades too; deleting explicitly keeps databases
	// opened without the pragma consistent.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payments WHERE owner_id = ? AND client_id = ?`, ownerID, id); err != nil {
		return fmt.Errorf("delete client payments: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM clients WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if err := requireOne(res, "client", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, ownerID string) ([]core.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE owner_id = ?
		 ORDER BY payment_date DESC, created_at DESC, id`, ownerID)
}

func (r *SQLiteRepository) ListClientPayments(ctx context.Context, ownerID, clientID string) ([]core.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE owner_id = ? AND client_id = ?
		 ORDER BY year DESC, month DESC, payment_date DESC, id`, ownerID, clientID)
}

func (r *SQLiteRepository) queryPayments(ctx context.Context, query string, args ...any) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]core.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, ownerID, id string) (core.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE owner_id = ? AND id = ?`, ownerID, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) RecordPayment(ctx context.Context, p core.Payment, advance *Advance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT next_payment_date FROM clients WHERE owner_id = ? AND id = ?`,
		p.OwnerID, p.ClientID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("client %s: %w", p.ClientID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load client: %w", err)
	}

	if advance != nil {
		res, err := tx.ExecContext(ctx, `UPDATE clients
			SET next_payment_date = ?, updated_at = CURRENT_TIMESTAMP
			WHERE owner_id = ? AND id = ? AND next_payment_date = ?`,
			advance.To.String(), p.OwnerID, p.ClientID, advance.From.String())
		if err != nil {
			return fmt.Errorf("advance client: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("client %s next payment date is %s, expected %s: %w",
				p.ClientID, stored, advance.From, ErrConcurrentUpdate)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.ClientID, p.Amount.Cents, p.PaymentDate.String(), p.Month, p.Year); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		"id", p.ID,
		"client_id", p.ClientID,
		"amount_cents", p.Amount.Cents,
		"month", p.Month,
		"year", p.Year,
		"advanced", advance != nil && !advance.Keep())
	return nil
}

func requireOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
