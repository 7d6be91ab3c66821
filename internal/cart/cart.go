package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/storage"
	"go.uber.org/zap"
)

const DefaultNotificationTTL = 3 * time.Second

var ErrInvalidPromo = errors.New("invalid promo code")

// promoRates are percentage discounts shown on the cart page.
var promoRates = map[string]float64{
	"WELCOME10": 0.10,
	"FIRST20":   0.20,
	"VBUCKS15":  0.15,
}

type AddOptions struct {
	BaseID   string
	Metadata map[string]any
}

// Promo is what the cart page persists after a code is accepted.
type Promo struct {
	Code     string  `json:"code"`
	Discount float64 `json:"discount"`
}

type PromoResult struct {
	Promo
	Amount float64 `json:"amount"`
	Total  float64 `json:"total"`
}

type Option func(*Store)

func WithNotificationTTL(ttl time.Duration) Option {
	return func(s *Store) { s.notifyTTL = ttl }
}

// Store is the persisted shopping cart. Every mutation rewrites the whole list
// under storage.KeyCart before the in-memory state changes.
type Store struct {
	mu        sync.Mutex
	items     []domain.CartItem
	state     storage.Store
	bus       *events.Bus
	logger    *zap.Logger
	notifyTTL time.Duration
}

type storedItem struct {
	ID       json.RawMessage `json:"id"`
	BaseID   string          `json:"baseId"`
	Name     string          `json:"name"`
	Price    json.RawMessage `json:"price"`
	Quantity json.RawMessage `json:"quantity"`
	Metadata map[string]any  `json:"metadata"`
}

// Open loads the cart. A missing or unreadable value yields an empty cart.
func Open(ctx context.Context, state storage.Store, bus *events.Bus, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		state:     state,
		bus:       bus,
		logger:    logger,
		notifyTTL: DefaultNotificationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := state.Get(ctx, storage.KeyCart)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	s.items = decodeItems(data, logger)
	return s, nil
}

func decodeItems(data []byte, logger *zap.Logger) []domain.CartItem {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("stored cart is not a list, starting empty", zap.Error(err))
		return nil
	}
	items := make([]domain.CartItem, 0, len(raw))
	for _, r := range raw {
		var si storedItem
		if err := json.Unmarshal(r, &si); err != nil {
			logger.Warn("skipping unreadable cart item", zap.Error(err))
			continue
		}
		id := looseString(si.ID)
		if id == "" {
			logger.Warn("skipping cart item without id")
			continue
		}
		price, _ := looseNumber(si.Price)
		qty, _ := looseNumber(si.Quantity)
		item := domain.CartItem{
			ID:            id,
			BaseProductID: si.BaseID,
			Name:          si.Name,
			UnitPrice:     clampPrice(price),
			Quantity:      clampQuantity(int(qty)),
			Metadata:      si.Metadata,
		}
		if item.BaseProductID == "" {
			item.BaseProductID = ExtractBaseProductID(id)
		}
		items = append(items, item)
	}
	return items
}

// AddItem merges into an existing line with the same id or appends a new one.
func (s *Store) AddItem(ctx context.Context, id, name string, unitPrice float64, quantity int, opts AddOptions) error {
	quantity = clampQuantity(quantity)
	unitPrice = clampPrice(unitPrice)
	baseID := opts.BaseID
	if baseID == "" {
		baseID = ExtractBaseProductID(id)
	}

	s.mu.Lock()
	next := domain.CloneItems(s.items)
	found := false
	for i := range next {
		if next[i].ID != id {
			continue
		}
		found = true
		next[i].Quantity += quantity
		next[i].UnitPrice = unitPrice
		next[i].Name = name
		if next[i].BaseProductID == "" {
			next[i].BaseProductID = baseID
		}
		if opts.Metadata != nil {
			next[i].Metadata = opts.Metadata
		}
		break
	}
	if !found {
		next = append(next, domain.CartItem{
			ID:            id,
			BaseProductID: baseID,
			Name:          name,
			UnitPrice:     unitPrice,
			Quantity:      quantity,
			Metadata:      opts.Metadata,
		})
	}
	changed, err := s.commitLocked(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Emit(changed)
	s.notify(events.LevelSuccess, fmt.Sprintf("✅ %s ajouté au panier !", name))
	return nil
}

// AddPackage adds a catalog package by id.
func (s *Store) AddPackage(ctx context.Context, packageID string, quantity int) error {
	p, err := catalog.Lookup(packageID)
	if err != nil {
		return fmt.Errorf("add package %q: %w", packageID, err)
	}
	return s.AddItem(ctx, p.ID, p.Name, p.Price, quantity, AddOptions{})
}

// RemoveItem drops the line with the given id. Removing an absent id still
// persists and notifies.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	next := make([]domain.CartItem, 0, len(s.items))
	for _, item := range s.items {
		if item.ID != id {
			next = append(next, item.Clone())
		}
	}
	changed, err := s.commitLocked(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Emit(changed)
	s.notify(events.LevelInfo, "❌ Produit retiré du panier")
	return nil
}

// UpdateQuantity sets an absolute quantity; zero or less removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	if quantity <= 0 {
		s.mu.Lock()
		exists := s.indexLocked(id) >= 0
		s.mu.Unlock()
		if !exists {
			return nil
		}
		return s.RemoveItem(ctx, id)
	}

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	next := domain.CloneItems(s.items)
	next[idx].Quantity = quantity
	changed, err := s.commitLocked(ctx, next)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Emit(changed)
	return nil
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	changed, err := s.commitLocked(ctx, []domain.CartItem{})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.bus.Emit(changed)
	return nil
}

func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SumItems(s.items)
}

func (s *Store) ItemsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countItems(s.items)
}

// Items returns a copy of the cart lines.
func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

// Snapshot captures an immutable copy of the cart for checkout.
func (s *Store) Snapshot() domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CartSnapshot{
		Items:      domain.CloneItems(s.items),
		Total:      domain.SumItems(s.items),
		CapturedAt: time.Now(),
	}
}

// HasCrewProduct reports whether any line is the crew subscription.
func (s *Store) HasCrewProduct() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.BaseProductID == catalog.CrewPackageID {
			return true
		}
	}
	return false
}

// ApplyPromo validates a promo code and persists it. The discount is for
// display; checkout charges the cart total.
func (s *Store) ApplyPromo(ctx context.Context, code string) (PromoResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	rate, ok := promoRates[code]
	if !ok {
		s.notify(events.LevelError, "❌ Code promo invalide")
		return PromoResult{}, ErrInvalidPromo
	}

	promo := Promo{Code: code, Discount: rate}
	if err := storage.SetJSON(ctx, s.state, storage.KeyPromo, promo); err != nil {
		return PromoResult{}, fmt.Errorf("failed to save promo: %w", err)
	}

	subtotal := s.Total()
	amount := subtotal * rate
	s.notify(events.LevelSuccess, fmt.Sprintf("🎉 Promo %q appliquée !", code))
	return PromoResult{Promo: promo, Amount: amount, Total: subtotal - amount}, nil
}

func (s *Store) indexLocked(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// commitLocked persists next and swaps it in only when the write succeeded.
func (s *Store) commitLocked(ctx context.Context, next []domain.CartItem) (events.CartChanged, error) {
	if err := storage.SetJSON(ctx, s.state, storage.KeyCart, next); err != nil {
		s.logger.Error("failed to persist cart", zap.Error(err))
		return events.CartChanged{}, fmt.Errorf("failed to save cart: %w", err)
	}
	s.items = next
	return events.CartChanged{
		Items: domain.CloneItems(next),
		Count: countItems(next),
		Total: domain.SumItems(next),
	}, nil
}

func (s *Store) notify(level events.Level, msg string) {
	s.bus.Emit(events.Notification{Level: level, Message: msg, TTL: s.notifyTTL})
}

func countItems(items []domain.CartItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}
