package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrPaymentInFlight   = errors.New("payment already in progress")
	ErrDetailsRequired   = errors.New("customer details are required")
	ErrComingSoon        = errors.New("payment method not available yet")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
	ErrPaymentFailed     = errors.New("payment creation failed")
	ErrSuperseded        = errors.New("payment attempt superseded by a retry")
	ErrNoPendingOrder    = errors.New("no pending order")
	ErrPendingMismatch   = errors.New("pending order does not match")
	ErrWhatsAppDisabled  = errors.New("whatsapp checkout is not configured")
)

// ValidationError is a user input problem; Message is shown as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
