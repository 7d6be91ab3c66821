package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
)

// decodeMessages reads a bare array or {"messages": [...]}.
func decodeMessages(body []byte) ([]domain.ChatMessage, error) {
	var list []domain.ChatMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	return wrapped.Messages, nil
}

// remoteOrder is the backend's order shape. Local field names are accepted
// too, so a cached list can be decoded by the same code.
type remoteOrder struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	OrderNumber  string          `json:"orderNumber"`
	Date         string          `json:"date"`
	CreatedAt    string          `json:"created_at"`
	Status       string          `json:"status"`
	Items        json.RawMessage `json:"items"`
	Total        *float64        `json:"total"`
	Amount       *float64        `json:"amount"`
	Customer     json.RawMessage `json:"customer"`
	CustomerData json.RawMessage `json:"customer_data"`
	Review       *domain.Review  `json:"review"`
}

func (r remoteOrder) record() domain.OrderRecord {
	rec := domain.OrderRecord{
		ID:     firstNonEmpty(r.ID, r.OrderID, r.OrderNumber),
		Status: domain.OrderStatus(r.Status),
		Review: r.Review,
	}
	if rec.Status == "" {
		rec.Status = domain.OrderStatusPending
	}
	if t, ok := domain.ParseTimestamp(r.Date); ok {
		rec.Date = t
	} else if t, ok := domain.ParseTimestamp(r.CreatedAt); ok {
		rec.Date = t
	}
	switch {
	case r.Total != nil:
		rec.Total = *r.Total
	case r.Amount != nil:
		rec.Total = *r.Amount
	}
	if len(r.Items) > 0 && json.Unmarshal(r.Items, &rec.Items) != nil {
		rec.Items = nil
	}
	if !decodeCustomer(r.Customer, &rec.Customer) {
		decodeCustomer(r.CustomerData, &rec.Customer)
	}
	return rec
}

// decodeCustomer accepts an object or a string holding JSON, which is how
// some databases hand back JSON columns.
func decodeCustomer(raw json.RawMessage, c *domain.Customer) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return false
		}
		raw = []byte(s)
	}
	return json.Unmarshal(raw, c) == nil
}

// decodeOrders tries a bare array first, then {"orders": [...]}.
func decodeOrders(body []byte) ([]domain.OrderRecord, error) {
	var list []remoteOrder
	if err := json.Unmarshal(body, &list); err != nil {
		var wrapped struct {
			Orders []remoteOrder `json:"orders"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode orders: %w", err)
		}
		list = wrapped.Orders
	}

	out := make([]domain.OrderRecord, 0, len(list))
	for _, r := range list {
		rec := r.record()
		if rec.ID == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
