package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderPaid          EventType = "order.paid"
	EventOrderPaymentFailed EventType = "order.payment_failed"
)

// PaymentEvent is an outbox record written together with a terminal payment transition.
type PaymentEvent struct {
	ID          string
	AggregateID string
	EventType   EventType
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

type paymentEventPayload struct {
	OrderID          string        `json:"order_id"`
	ReceiptNumber    string        `json:"receipt_number"`
	UserID           string        `json:"user_id"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	GatewayOrderID   string        `json:"gateway_order_id"`
	GatewayPaymentID string        `json:"gateway_payment_id,omitempty"`
	TotalAmount      string        `json:"total_amount"`
	Currency         string        `json:"currency"`
	Items            []OrderItem   `json:"items"`
	OccurredAt       time.Time     `json:"occurred_at"`
}

func NewPaymentEvent(eventType EventType, o *Order, paymentID string) *PaymentEvent {
	now := time.Now().UTC()
	// Marshalling a struct of strings and decimals cannot fail.
	payload, _ := json.Marshal(paymentEventPayload{
		OrderID:          o.ID,
		ReceiptNumber:    o.ReceiptNumber,
		UserID:           o.UserID,
		PaymentMethod:    o.PaymentMethod,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: paymentID,
		TotalAmount:      o.TotalAmount.StringFixed(2),
		Currency:         o.Currency,
		Items:            o.Items,
		OccurredAt:       now,
	})
	return &PaymentEvent{
		ID:          uuid.New().String(),
		AggregateID: o.ID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   now,
	}
}
