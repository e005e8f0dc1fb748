package http

import (
	"encoding/json"
	"time"

	"github.com/AnujAga2005/ProductLab/payment-service/internal/domain"
	"github.com/AnujAga2005/ProductLab/payment-service/internal/service"
	"github.com/shopspring/decimal"
)

type ItemDTO struct {
	Kind     domain.ItemKind `json:"kind"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image,omitempty"`
}

type AddressDTO struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type CreateOrderRequestDTO struct {
	Items           []ItemDTO  `json:"items"`
	ShippingAddress AddressDTO `json:"shippingAddress"`
}

type CreateOrderResponseDTO struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"` // minor units
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
}

type VerifyPaymentRequestDTO struct {
	OrderID          string `json:"orderId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

type CreateUPIPaymentRequestDTO struct {
	Items           []ItemDTO  `json:"items"`
	ShippingAddress AddressDTO `json:"shippingAddress"`
	UPIVPA          string     `json:"upiVPA"`
}

type CreateUPIPaymentResponseDTO struct {
	OrderID        string      `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	GatewayOrderID string      `json:"gatewayOrderId"`
	UPILink        string      `json:"upiLink"`
	TotalAmount    json.Number `json:"totalAmount"`
	KeyID          string      `json:"keyId"`
}

type VerifyUPIRequestDTO struct {
	PaymentID      string `json:"paymentId"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Signature      string `json:"signature"`
}

type VerifyResponseDTO struct {
	Success bool     `json:"success"`
	Reason  string   `json:"reason,omitempty"`
	Order   OrderDTO `json:"order"`
}

type PaymentStatusResponseDTO struct {
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Status        domain.OrderStatus   `json:"status"`
	TotalAmount   json.Number          `json:"totalAmount"`
}

type PaymentDetailsResponseDTO struct {
	ID               string      `json:"id"`
	OrderID          string      `json:"orderId"`
	GatewayOrderID   string      `json:"gatewayOrderId"`
	Amount           json.Number `json:"amount"`
	AmountMinorUnits int64       `json:"amountMinorUnits"`
	Currency         string      `json:"currency"`
	Status           string      `json:"status"`
	Method           string      `json:"method"`
	Email            string      `json:"email,omitempty"`
	Contact          string      `json:"contact,omitempty"`
	VPA              string      `json:"vpa,omitempty"`
	CreatedAt        string      `json:"createdAt"`
}

type OrderItemDTO struct {
	Kind     domain.ItemKind `json:"kind"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    json.Number     `json:"price"`
	Image    string          `json:"image,omitempty"`
}

type OrderDTO struct {
	ID               string               `json:"id"`
	OrderNumber      string               `json:"orderNumber"`
	Items            []OrderItemDTO       `json:"items"`
	Subtotal         json.Number          `json:"subtotal"`
	ShippingAmount   json.Number          `json:"shippingAmount"`
	TaxAmount        json.Number          `json:"taxAmount"`
	TotalAmount      json.Number          `json:"totalAmount"`
	Currency         string               `json:"currency"`
	ShippingAddress  AddressDTO           `json:"shippingAddress"`
	PaymentMethod    domain.PaymentMethod `json:"paymentMethod"`
	PaymentStatus    domain.PaymentStatus `json:"paymentStatus"`
	Status           domain.OrderStatus   `json:"status"`
	GatewayOrderID   string               `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string               `json:"gatewayPaymentId,omitempty"`
	UPIVPA           string               `json:"upiVPA,omitempty"`
	CreatedAt        string               `json:"createdAt"`
	UpdatedAt        string               `json:"updatedAt"`
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func (d ItemDTO) toInput() service.ItemInput {
	return service.ItemInput{
		Kind:      d.Kind,
		RefID:     d.ID,
		Name:      d.Name,
		Quantity:  d.Quantity,
		UnitPrice: d.Price,
		Image:     d.Image,
	}
}

func toItemInputs(dtos []ItemDTO) []service.ItemInput {
	inputs := make([]service.ItemInput, 0, len(dtos))
	for _, d := range dtos {
		inputs = append(inputs, d.toInput())
	}
	return inputs
}

func (d AddressDTO) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   d.FullName,
		Street:     d.Street,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func convertOrder(o *domain.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			Kind:     item.Kind,
			ID:       item.RefID,
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    money(item.UnitPrice),
			Image:    item.Image,
		})
	}
	a := o.ShippingAddress
	return OrderDTO{
		ID:             o.ID,
		OrderNumber:    o.ReceiptNumber,
		Items:          items,
		Subtotal:       money(o.Subtotal),
		ShippingAmount: money(o.ShippingAmount),
		TaxAmount:      money(o.TaxAmount),
		TotalAmount:    money(o.TotalAmount),
		Currency:       o.Currency,
		ShippingAddress: AddressDTO{
			FullName:   a.FullName,
			Street:     a.Street,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		},
		PaymentMethod:    o.PaymentMethod,
		PaymentStatus:    o.PaymentStatus,
		Status:           o.Status,
		GatewayOrderID:   o.GatewayOrderID,
		GatewayPaymentID: o.GatewayPaymentID,
		UPIVPA:           o.PayerHandle,
		CreatedAt:        o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func convertCreateResult(res *service.CreateOrderResult) CreateOrderResponseDTO {
	return CreateOrderResponseDTO{
		OrderID:        res.Order.ID,
		OrderNumber:    res.Order.ReceiptNumber,
		GatewayOrderID: res.GatewayOrderID,
		Amount:         res.AmountMinorUnits,
		Currency:       res.Currency,
		KeyID:          res.KeyID,
	}
}
