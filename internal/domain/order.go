package domain

import (
	"strings"
	"time"
)

// OrderStatus is the raw status string persisted on an order. Values come from either the
// legacy or the current vocabulary; unknown values are preserved verbatim.
type OrderStatus string

// Legacy vocabulary.
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// Current vocabulary. OrderStatusCancelled is shared by both.
const (
	OrderStatusToPay     OrderStatus = "to_pay"
	OrderStatusToShip    OrderStatus = "to_ship"
	OrderStatusToReceive OrderStatus = "to_receive"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusReturned  OrderStatus = "returned"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks whether money has been collected for an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodGCash          PaymentMethod = "gcash"
	PaymentMethodGrabPay        PaymentMethod = "grab_pay"
)

// IsCOD reports whether payment is collected on delivery.
func (m PaymentMethod) IsCOD() bool {
	return m == PaymentMethodCashOnDelivery
}

// Order is a marketplace order as stored in the order collection.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Total         float64
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	Items         []OrderLineItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderLineItem is a single purchased product line.
type OrderLineItem struct {
	ProductName string
	Size        string
	Color       string
	Quantity    int
	Price       float64
}

// Bucket derives the canonical status bucket for the order.
func (o Order) Bucket() StatusBucket {
	return ResolveStatus(o.OrderStatus, o.PaymentStatus, o.PaymentMethod)
}

// NormalizeOrderStatus trims and lowercases a raw status string without validating it.
func NormalizeOrderStatus(raw string) OrderStatus {
	return OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
}
