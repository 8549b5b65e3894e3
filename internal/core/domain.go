package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	Monthly PaymentFrequency = "Mensual"
	Annual  PaymentFrequency = "Anual"
)

const (
	GPSSale           ServiceType = "GPS - Venta"
	GPSRental         ServiceType = "GPS - Alquiler"
	PortableGPSSale   ServiceType = "GPS Portátil - Venta"
	PortableGPSRental ServiceType = "GPS Portátil - Alquiler"
)

const (
	maxNameLength  = 200
	maxNotesLength = 2000
	minPaymentYear = 1970
	maxPaymentYear = 2999
)

type (
	PaymentFrequency string

	ServiceType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Client is a billing subject. NextPaymentDate is both the current due
	// date and, through its day of month, the client's billing anchor.
	Client struct {
		ID               string           `json:"id"`
		OwnerID          string           `json:"ownerId"`
		Name             string           `json:"name"`
		RUC              string           `json:"ruc,omitempty"` // tax id, optional
		Phone            string           `json:"phone"`
		Email            string           `json:"email"`
		ServiceType      ServiceType      `json:"serviceType"`
		GPSUnits         int              `json:"gpsUnits"`
		PaymentAmount    Money            `json:"paymentAmount"`
		PaymentFrequency PaymentFrequency `json:"paymentFrequency"`
		NextPaymentDate  Date             `json:"nextPaymentDate"`
		RegistrationDate Date             `json:"registrationDate"`
		Notes            string           `json:"notes,omitempty"`
	}

	// Payment is an immutable record of money received for one billing period.
	Payment struct {
		ID          string `json:"id"`
		OwnerID     string `json:"ownerId"`
		ClientID    string `json:"clientId"`
		Amount      Money  `json:"amount"`
		PaymentDate Date   `json:"paymentDate"`
		Month       int    `json:"month"` // billing period month, 1-12
		Year        int    `json:"year"`  // billing period year
	}
)

var (
	ErrInvalidClientRecord = errors.New("invalid client record")
	ErrInvalidPayment      = errors.New("invalid payment")
	ErrInvalidPeriod       = errors.New("invalid billing period")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
)

// Frequencies lists the recognized billing frequencies.
func Frequencies() []PaymentFrequency {
	return []PaymentFrequency{Monthly, Annual}
}

// ServiceTypes lists the recognized service types.
func ServiceTypes() []ServiceType {
	return []ServiceType{GPSSale, GPSRental, PortableGPSSale, PortableGPSRental}
}

// ParseFrequency accepts the stored values ("Mensual", "Anual") and the English
// names, case-insensitively.
func ParseFrequency(s string) (PaymentFrequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mensual", "monthly":
		return Monthly, nil
	case "anual", "annual", "yearly":
		return Annual, nil
	}
	return "", fmt.Errorf("unknown payment frequency %q", s)
}

// ParseServiceType matches one of the recognized service types exactly
// (ignoring surrounding whitespace and case).
func ParseServiceType(s string) (ServiceType, error) {
	s = strings.TrimSpace(s)
	for _, st := range ServiceTypes() {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown service type %q", s)
}

// IsValid reports whether f is a recognized frequency.
func (f PaymentFrequency) IsValid() bool {
	return f == Monthly || f == Annual
}

// IsValid reports whether st is a recognized service type.
func (st ServiceType) IsValid() bool {
	for _, v := range ServiceTypes() {
		if v == st {
			return true
		}
	}
	return false
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateNonNegative accepts zero amounts.
func (m Money) ValidateNonNegative() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidatePeriod checks a (month, year) billing period.
func ValidatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year < minPaymentYear || year > maxPaymentYear {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, year)
	}
	return nil
}

func invalidClient(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidClientRecord, reason)
}

// Validate checks every field the billing logic and the roster rely on.
// All failures wrap ErrInvalidClientRecord.
func (c Client) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return invalidClient("empty name")
	}
	if len(c.Name) > maxNameLength {
		return invalidClient("name too long (max 200 characters)")
	}
	if strings.TrimSpace(c.Phone) == "" {
		return invalidClient("empty phone")
	}
	if strings.TrimSpace(c.Email) == "" {
		return invalidClient("empty email")
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return invalidClient("malformed email " + c.Email)
	}
	if !c.ServiceType.IsValid() {
		return invalidClient(fmt.Sprintf("unknown service type %q", c.ServiceType))
	}
	if c.GPSUnits < 0 {
		return invalidClient("negative gps units")
	}
	if err := c.PaymentAmount.ValidateNonNegative(); err != nil {
		return invalidClient("negative payment amount")
	}
	if !c.PaymentFrequency.IsValid() {
		return invalidClient(fmt.Sprintf("unknown payment frequency %q", c.PaymentFrequency))
	}
	if err := c.NextPaymentDate.Validate(); err != nil {
		return invalidClient("next payment date: " + err.Error())
	}
	if !c.RegistrationDate.IsEmpty() {
		if err := c.RegistrationDate.Validate(); err != nil {
			return invalidClient("registration date: " + err.Error())
		}
	}
	if len(c.Notes) > maxNotesLength {
		return invalidClient("notes too long")
	}
	return nil
}

// Validate checks a payment before it is recorded.
func (p Payment) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return fmt.Errorf("%w: missing client id", ErrInvalidPayment)
	}
	if err := p.Amount.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	if err := p.PaymentDate.Validate(); err != nil {
		return fmt.Errorf("%w: payment date: %v", ErrInvalidPayment, err)
	}
	if err := ValidatePeriod(p.Month, p.Year); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	return nil
}

// Period returns the (month, year) billing period the payment settles.
func (p Payment) Period() (month, year int) {
	return p.Month, p.Year
}
