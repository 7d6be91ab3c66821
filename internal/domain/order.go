package domain

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusPaid        OrderStatus = "paid"
	OrderStatusProcessing  OrderStatus = "processing"
	OrderStatusDelivered   OrderStatus = "delivered"
	OrderStatusReceived    OrderStatus = "received"
	OrderStatusNotReceived OrderStatus = "not_received"
)

func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusPending:
		return 0
	case OrderStatusPaid, OrderStatusProcessing:
		return 1
	case OrderStatusDelivered, OrderStatusReceived:
		return 2
	default:
		return -1
	}
}

// IsValid reports whether s is a known status.
func (s OrderStatus) IsValid() bool {
	return s == OrderStatusNotReceived || s.rank() >= 0
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusReceived || s == OrderStatusNotReceived
}

// CanTransitionTo enforces the forward-only lifecycle. not_received is a
// failure branch that only a pending order can take. Statuses this build does
// not know (a backend may add "cancelled") never transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() || !s.IsValid() || !next.IsValid() {
		return false
	}
	if next == OrderStatusNotReceived {
		return s == OrderStatusPending
	}
	return next.rank() > s.rank() || (next == OrderStatusReceived && s == OrderStatusDelivered)
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

type Review struct {
	Rating  int       `json:"rating"`
	Comment *string   `json:"comment"`
	Date    time.Time `json:"date"`
}

// ReviewEntry is the denormalized copy kept in the site-wide reviews list.
type ReviewEntry struct {
	OrderID      string    `json:"orderId"`
	Rating       int       `json:"rating"`
	Comment      *string   `json:"comment"`
	Date         time.Time `json:"date"`
	CustomerName string    `json:"customerName"`
}

// PendingOrder is the draft handed to the payment provider, kept until the
// user comes back from the redirect.
type PendingOrder struct {
	OrderID         string     `json:"order_id"`
	Customer        Customer   `json:"customer"`
	Items           []CartItem `json:"items"`
	Amount          float64    `json:"amount"`
	CreatedAt       time.Time  `json:"timestamp"`
	PaymentProvider string     `json:"payment_provider,omitempty"`
}

type OrderRecord struct {
	ID       string      `json:"id"`
	Date     time.Time   `json:"date"`
	Status   OrderStatus `json:"status"`
	Items    []CartItem  `json:"items"`
	Total    float64     `json:"total"`
	Customer Customer    `json:"customer"`
	Review   *Review     `json:"review"`
}

// HasReview mirrors the flag the order card uses to hide the review button.
func (o OrderRecord) HasReview() bool {
	return o.Review != nil
}

// UnmarshalJSON accepts the identifier under id, order_id or orderNumber, since
// records were written by several page revisions.
func (o *OrderRecord) UnmarshalJSON(data []byte) error {
	type plain OrderRecord
	var aux struct {
		plain
		Date        string `json:"date"`
		OrderID     string `json:"order_id"`
		OrderNumber string `json:"orderNumber"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = OrderRecord(aux.plain)
	o.Date, _ = ParseTimestamp(aux.Date)
	for _, id := range []string{aux.plain.ID, aux.OrderID, aux.OrderNumber} {
		if id != "" {
			o.ID = id
			break
		}
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	return nil
}
