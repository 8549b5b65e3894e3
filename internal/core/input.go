package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientInput is the unvalidated shape a client arrives in, from a form, a JSON
// body or a spreadsheet row. NewClient is the only way to turn it into a Client.
type ClientInput struct {
	Name             string `json:"name"`
	RUC              string `json:"ruc"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	ServiceType      string `json:"serviceType"`
	GPSUnits         string `json:"gpsUnits"`
	PaymentAmount    string `json:"paymentAmount"`
	PaymentFrequency string `json:"paymentFrequency"`
	NextPaymentDate  string `json:"nextPaymentDate"`
	Notes            string `json:"notes"`
}

// PaymentInput is the unvalidated shape of a payment to record.
type PaymentInput struct {
	ClientID    string `json:"clientId"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"paymentDate"`
	Month       int    `json:"month"`
	Year        int    `json:"year"`
}

// NewClient parses and validates in. registered becomes the client's
// registration date. Every failure wraps ErrInvalidClientRecord.
func NewClient(ownerID string, in ClientInput, registered Date) (Client, error) {
	st, err := ParseServiceType(in.ServiceType)
	if err != nil {
		return Client{}, invalidClient(err.Error())
	}
	freq, err := ParseFrequency(in.PaymentFrequency)
	if err != nil {
		return Client{}, invalidClient(err.Error())
	}
	next, err := ParseDate(in.NextPaymentDate)
	if err != nil {
		return Client{}, invalidClient("next payment date: " + err.Error())
	}

	units := 0
	if v := strings.TrimSpace(in.GPSUnits); v != "" {
		units, err = strconv.Atoi(v)
		if err != nil {
			return Client{}, invalidClient(fmt.Sprintf("gps units %q is not a number", v))
		}
	}

	var amount int64
	if v := strings.TrimSpace(in.PaymentAmount); v != "" {
		amount, err = ParseNonNegativeCents(v)
		if err != nil {
			return Client{}, invalidClient(fmt.Sprintf("payment amount %q", v))
		}
	}

	c := Client{
		OwnerID:          ownerID,
		Name:             strings.TrimSpace(in.Name),
		RUC:              strings.TrimSpace(in.RUC),
		Phone:            strings.TrimSpace(in.Phone),
		Email:            strings.TrimSpace(in.Email),
		ServiceType:      st,
		GPSUnits:         units,
		PaymentAmount:    Money{Cents: amount},
		PaymentFrequency: freq,
		NextPaymentDate:  next,
		RegistrationDate: registered,
		Notes:            strings.TrimSpace(in.Notes),
	}
	if err := c.Validate(); err != nil {
		return Client{}, err
	}
	return c, nil
}

// NewPayment parses and validates in. Failures wrap ErrInvalidPayment.
func NewPayment(ownerID string, in PaymentInput) (Payment, error) {
	cents, err := ParseDecimalToCents(in.Amount)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: amount %q", ErrInvalidPayment, in.Amount)
	}
	paid, err := ParseDate(in.PaymentDate)
	if err != nil {
		return Payment{}, fmt.Errorf("%w: payment date: %v", ErrInvalidPayment, err)
	}
	p := Payment{
		OwnerID:     ownerID,
		ClientID:    strings.TrimSpace(in.ClientID),
		Amount:      Money{Cents: cents},
		PaymentDate: paid,
		Month:       in.Month,
		Year:        in.Year,
	}
	if err := p.Validate(); err != nil {
		return Payment{}, err
	}
	return p, nil
}
