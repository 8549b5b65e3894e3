package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// PaymentRecordedMessage announces a persisted payment. It carries ids only;
// consumers load the payment and client from the store.
type PaymentRecordedMessage struct {
	OwnerID         string    `json:"owner_id"`
	PaymentID       string    `json:"payment_id"`
	ClientID        string    `json:"client_id"`
	Advanced        bool      `json:"advanced"`
	NextPaymentDate string    `json:"next_payment_date,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewPaymentRecordedMessage stamps the message with the current time.
func NewPaymentRecordedMessage(ownerID, paymentID, clientID string, advanced bool, next string) *PaymentRecordedMessage {
	return &PaymentRecordedMessage{
		OwnerID:         ownerID,
		PaymentID:       paymentID,
		ClientID:        clientID,
		Advanced:        advanced,
		NextPaymentDate: next,
		Timestamp:       time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentRecordedMessageFromJSON decodes and checks the required ids.
func PaymentRecordedMessageFromJSON(data []byte) (*PaymentRecordedMessage, error) {
	var msg PaymentRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.PaymentID == "" || msg.OwnerID == "" {
		return nil, fmt.Errorf("payment recorded message missing owner or payment id")
	}
	return &msg, nil
}
