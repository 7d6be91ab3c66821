package domain

import "time"

// CartItem is one line of the shopping cart. JSON keys match what the storefront
// has always persisted, so carts written by older pages still decode.
type CartItem struct {
	ID            string         `json:"id"`
	BaseProductID string         `json:"baseId"`
	Name          string         `json:"name"`
	UnitPrice     float64        `json:"price"`
	Quantity      int            `json:"quantity"`
	Metadata      map[string]any `json:"metadata"`
}

// Subtotal is the line total.
func (i CartItem) Subtotal() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// Clone returns a copy that shares no mutable state with i.
func (i CartItem) Clone() CartItem {
	c := i
	if i.Metadata != nil {
		c.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// CartSnapshot represents the full cart state at checkout time
type CartSnapshot struct {
	Items      []CartItem `json:"items"`
	Total      float64    `json:"total"`
	CapturedAt time.Time  `json:"captured_at"`
}

// IsEmpty reports whether the snapshot holds no items.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// CloneItems deep-copies a line item list.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// SumItems returns Σ(unitPrice × quantity).
func SumItems(items []CartItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}
