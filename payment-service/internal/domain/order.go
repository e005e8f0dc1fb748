package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "razorpay"
	PaymentMethodUPI  PaymentMethod = "upi"
)

type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindBundle  ItemKind = "bundle"
)

// OrderItem is a line item with the price captured at checkout time.
type OrderItem struct {
	Kind      ItemKind        `json:"kind"`
	RefID     string          `json:"ref_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// MissingFields lists the required fields that are blank.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("fullName", a.FullName)
	check("street", a.Street)
	check("city", a.City)
	check("state", a.State)
	check("postalCode", a.PostalCode)
	check("country", a.Country)
	return missing
}

type Order struct {
	ID              string
	ReceiptNumber   string
	UserID          string
	Items           []OrderItem
	Subtotal        decimal.Decimal
	ShippingAmount  decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	Currency        string
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Status          OrderStatus

	GatewayOrderID   string
	GatewayPaymentID string
	GatewaySignature string
	PayerHandle      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder prices the items and returns a pending order owned by userID.
func NewOrder(userID string, items []OrderItem, address ShippingAddress, method PaymentMethod, currency string) *Order {
	totals := CalculateTotals(items)
	now := time.Now().UTC()
	id := uuid.New()
	return &Order{
		ID:              id.String(),
		ReceiptNumber:   NewReceiptNumber(id, now),
		UserID:          userID,
		Items:           append([]OrderItem(nil), items...),
		Subtotal:        totals.Subtotal,
		ShippingAmount:  totals.Shipping,
		TaxAmount:       totals.Tax,
		TotalAmount:     totals.Total,
		Currency:        currency,
		ShippingAddress: address,
		PaymentMethod:   method,
		PaymentStatus:   PaymentStatusPending,
		Status:          OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewReceiptNumber derives the human readable receipt from the order id,
// e.g. RCPT-20260214-9F1C2A7B.
func NewReceiptNumber(id uuid.UUID, at time.Time) string {
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return fmt.Sprintf("RCPT-%s-%s", at.UTC().Format("20060102"), hex[:8])
}

// AmountMinorUnits is the total in the gateway's integer convention.
func (o *Order) AmountMinorUnits() int64 {
	return ToMinorUnits(o.TotalAmount)
}

func (o *Order) IsOwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

// OrderPatch lists the fields a conditional update may change. Nil fields are left alone.
type OrderPatch struct {
	PaymentStatus    *PaymentStatus
	Status           *OrderStatus
	GatewayOrderID   *string
	GatewayPaymentID *string
	GatewaySignature *string
	// Event is stored with the transition when set.
	Event *PaymentEvent
	// UnreferencedOnly restricts the update to orders with no gateway order yet.
	UnreferencedOnly bool
}

// Allows reports whether the non-status conditions of the patch hold for o.
func (p OrderPatch) Allows(o *Order) bool {
	return !p.UnreferencedOnly || o.GatewayOrderID == ""
}

func (p OrderPatch) Apply(o *Order) {
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.GatewayOrderID != nil {
		o.GatewayOrderID = *p.GatewayOrderID
	}
	if p.GatewayPaymentID != nil {
		o.GatewayPaymentID = *p.GatewayPaymentID
	}
	if p.GatewaySignature != nil {
		o.GatewaySignature = *p.GatewaySignature
	}
	o.UpdatedAt = time.Now().UTC()
}

// CompletedPatch marks the payment captured and moves fulfilment to processing.
func CompletedPatch(o *Order, paymentID, signature string) OrderPatch {
	paid := PaymentStatusCompleted
	processing := OrderStatusProcessing
	patch := OrderPatch{
		PaymentStatus:    &paid,
		Status:           &processing,
		GatewayPaymentID: &paymentID,
	}
	if signature != "" {
		patch.GatewaySignature = &signature
	}
	patch.Event = NewPaymentEvent(EventOrderPaid, o, paymentID)
	return patch
}

// FailedPatch marks the payment failed; fulfilment status is untouched.
func FailedPatch(o *Order, paymentID string) OrderPatch {
	failed := PaymentStatusFailed
	patch := OrderPatch{PaymentStatus: &failed}
	if paymentID != "" {
		patch.GatewayPaymentID = &paymentID
	}
	patch.Event = NewPaymentEvent(EventOrderPaymentFailed, o, paymentID)
	return patch
}

// GatewayOrderPatch attaches the first gateway order reference. It never
// replaces an existing one.
func GatewayOrderPatch(gatewayOrderID string) OrderPatch {
	return OrderPatch{GatewayOrderID: &gatewayOrderID, UnreferencedOnly: true}
}
