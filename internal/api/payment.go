package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

type PaymentRequest struct {
	Amount   float64           `json:"amount"`
	Items    []domain.CartItem `json:"items"`
	Customer domain.Customer   `json:"customer"`
}

type PaymentResponse struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"order_id"`
	PaymentLink string `json:"payment_link"`
	Error       string `json:"error"`
}

// CreatePayment asks the backend for a payment link. A decodable error body
// is returned alongside the status error so the caller can show its message.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/create-payment", req, "")

	var out PaymentResponse
	if len(body) > 0 {
		if decodeErr := json.Unmarshal(body, &out); decodeErr != nil && err == nil {
			return PaymentResponse{}, fmt.Errorf("failed to decode payment response: %w", decodeErr)
		}
	}
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnauthorized) {
			return out, err
		}
		return PaymentResponse{}, err
	}
	return out, nil
}
