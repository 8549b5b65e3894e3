// Package postgres implements storage.Store on PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cobros/internal/core"
	"cobros/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dates are stored as YYYY-MM-DD text so comparisons never depend on the
// session time zone.
type clientRow struct {
	ID                 string `gorm:"primaryKey;size:64"`
	OwnerID            string `gorm:"not null;index:idx_clients_owner,priority:1;size:128"`
	Name               string `gorm:"not null;index:idx_clients_owner,priority:2"`
	RUC                string
	Phone              string `gorm:"not null"`
	Email              string `gorm:"not null"`
	ServiceType        string `gorm:"not null"`
	GPSUnits           int    `gorm:"not null;default:0"`
	PaymentAmountCents int64  `gorm:"not null;default:0"`
	PaymentFrequency   string `gorm:"not null;size:16"`
	NextPaymentDate    string `gorm:"not null;size:10"`
	RegistrationDate   string `gorm:"not null;size:10"`
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (clientRow) TableName() string { return "clients" }

type paymentRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	OwnerID     string `gorm:"not null;index:idx_payments_owner,priority:1;size:128"`
	ClientID    string `gorm:"not null;index:idx_payments_client;size:64"`
	AmountCents int64  `gorm:"not null"`
	PaymentDate string `gorm:"not null;size:10;index:idx_payments_owner,priority:2"`
	Month       int    `gorm:"not null"`
	Year        int    `gorm:"not null"`
	CreatedAt   time.Time
}

func (paymentRow) TableName() string { return "payments" }

func toClientRow(c core.Client) clientRow {
	return clientRow{
		ID:                 c.ID,
		OwnerID:            c.OwnerID,
		Name:               c.Name,
		RUC:                c.RUC,
		Phone:              c.Phone,
		Email:              c.Email,
		ServiceType:        string(c.ServiceType),
		GPSUnits:           c.GPSUnits,
		PaymentAmountCents: c.PaymentAmount.Cents,
		PaymentFrequency:   string(c.PaymentFrequency),
		NextPaymentDate:    c.NextPaymentDate.String(),
		RegistrationDate:   c.RegistrationDate.String(),
		Notes:              c.Notes,
	}
}

func (r clientRow) toCore() (core.Client, error) {
	next, err := core.ParseDate(r.NextPaymentDate)
	if err != nil {
		return core.Client{}, fmt.Errorf("client %s next_payment_date: %w", r.ID, err)
	}
	var registered core.Date
	if r.RegistrationDate != "" {
		if registered, err = core.ParseDate(r.RegistrationDate); err != nil {
			return core.Client{}, fmt.Errorf("client %s registration_date: %w", r.ID, err)
		}
	}
	return core.Client{
		ID:               r.ID,
		OwnerID:          r.OwnerID,
		Name:             r.Name,
		RUC:              r.RUC,
		Phone:            r.Phone,
		Email:            r.Email,
		ServiceType:      core.ServiceType(r.ServiceType),
		GPSUnits:         r.GPSUnits,
		PaymentAmount:    core.Money{Cents: r.PaymentAmountCents},
		PaymentFrequency: core.PaymentFrequency(r.PaymentFrequency),
		NextPaymentDate:  next,
		RegistrationDate: registered,
		Notes:            r.Notes,
	}, nil
}

func toPaymentRow(p core.Payment) paymentRow {
	return paymentRow{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		ClientID:    p.ClientID,
		AmountCents: p.Amount.Cents,
		PaymentDate: p.PaymentDate.String(),
		Month:       p.Month,
		Year:        p.Year,
	}
}

func (r paymentRow) toCore() (core.Payment, error) {
	paid, err := core.ParseDate(r.PaymentDate)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s payment_date: %w", r.ID, err)
	}
	return core.Payment{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		ClientID:    r.ClientID,
		Amount:      core.Money{Cents: r.AmountCents},
		PaymentDate: paid,
		Month:       r.Month,
		Year:        r.Year,
	}, nil
}

type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to dsn and migrates the schema. debug enables gorm's SQL log.
func Open(dsn string, debug bool) (*Store, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&clientRow{}, &paymentRow{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) ListClients(ctx context.Context, ownerID string) ([]core.Client, error) {
	var rows []clientRow
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	out := make([]core.Client, 0, len(rows))
	for _, r := range rows {
		c, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetClient(ctx context.Context, ownerID, id string) (core.Client, error) {
	return getClient(s.db.WithContext(ctx), ownerID, id)
}

func getClient(db *gorm.DB, ownerID, id string) (core.Client, error) {
	var row clientRow
	err := db.Where("owner_id = ? AND id = ?", ownerID, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Client{}, fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return core.Client{}, fmt.Errorf("get client: %w", err)
	}
	return row.toCore()
}

func (s *Store) CreateClient(ctx context.Context, c core.Client) error {
	row := toClientRow(c)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *Store) CreateClients(ctx context.Context, cs []core.Client) error {
	if len(cs) == 0 {
		return nil
	}
	rows := make([]clientRow, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, toClientRow(c))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&rows, 100).Error; err != nil {
			return fmt.Errorf("create clients: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateClient(ctx context.Context, c core.Client) error {
	row := toClientRow(c)
	res := s.db.WithContext(ctx).Model(&clientRow{}).
		Where("owner_id = ? AND id = ?", c.OwnerID, c.ID).
		Updates(map[string]any{
			"name":                 row.Name,
			"ruc":                  row.RUC,
			"phone":                row.Phone,
			"email":                row.Email,
			"service_type":         row.ServiceType,
			"gps_units":            row.GPSUnits,
			"payment_amount_cents": row.PaymentAmountCents,
			"payment_frequency":    row.PaymentFrequency,
			"next_payment_date":    row.NextPaymentDate,
			"notes":                row.Notes,
		})
	if res.Error != nil {
		return fmt.Errorf("update client: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("client %s: %w", c.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, ownerID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_id = ? AND client_id = ?", ownerID, id).Delete(&paymentRow{}).Error; err != nil {
			return fmt.Errorf("delete client payments: %w", err)
		}
		res := tx.Where("owner_id = ? AND id = ?", ownerID, id).Delete(&clientRow{})
		if res.Error != nil {
			return fmt.Errorf("delete client: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("client %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) ListPayments(ctx context.Context, ownerID string) ([]core.Payment, error) {
	return s.findPayments(s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("payment_date DESC, created_at DESC, id"))
}

func (s *Store) ListClientPayments(ctx context.Context, ownerID, clientID string) ([]core.Payment, error) {
	return s.findPayments(s.db.WithContext(ctx).
		Where("owner_id = ? AND client_id = ?", ownerID, clientID).
		Order("year DESC, month DESC, payment_date DESC, id"))
}

func (s *Store) findPayments(q *gorm.DB) ([]core.Payment, error) {
	var rows []paymentRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]core.Payment, 0, len(rows))
	for _, r := range rows {
		p, err := r.toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetPayment(ctx context.Context, ownerID, id string) (core.Payment, error) {
	var row paymentRow
	err := s.db.WithContext(ctx).Where("owner_id = ? AND id = ?", ownerID, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Payment{}, fmt.Errorf("payment %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return row.toCore()
}

func (s *Store) RecordPayment(ctx context.Context, p core.Payment, advance *storage.Advance) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getClient(tx, p.OwnerID, p.ClientID); err != nil {
			return err
		}
		// The guarded update runs first so its row lock serialises concurrent
		// recorders of the same client.
		if advance != nil {
			res := tx.Model(&clientRow{}).
				Where("owner_id = ? AND id = ? AND next_payment_date = ?", p.OwnerID, p.ClientID, advance.From.String()).
				Updates(map[string]any{"next_payment_date": advance.To.String()})
			if res.Error != nil {
				return fmt.Errorf("advance client: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("client %s expected next payment date %s: %w", p.ClientID, advance.From, storage.ErrConcurrentUpdate)
			}
		}
		row := toPaymentRow(p)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
