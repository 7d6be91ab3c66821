package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys shared by every component. Any component may read a key another one
// wrote, so readers validate the shape instead of trusting it.
const (
	KeyCart         = "fortniteshop_cart"
	KeyPendingOrder = "fortniteshop_pending_order"
	KeyOrders       = "fortniteshop_orders"
	KeyReviews      = "fortniteshop_reviews"
	KeyPromo        = "fortniteshop_promo"
	KeyAuthToken    = "auth_token"
	KeyUser         = "user"
)

var ErrKeyNotFound = errors.New("key not found")

// Store is the persisted key/value state shared by all components.
// Values are opaque JSON documents written as a whole.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// GetString returns the raw value as a string. Tokens are stored unquoted by
// the pages, quoted by JSON writers; both are accepted.
func GetString(ctx context.Context, s Store, key string) (string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	var str string
	if json.Unmarshal(data, &str) == nil {
		return str, nil
	}
	return string(data), nil
}
