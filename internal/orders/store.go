package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/storage"
	"go.uber.org/zap"
)

const (
	promptReceived    = "Confirmer que tu as bien reçu ta commande ?"
	promptNotReceived = "Tu n'as pas reçu ta commande ? Notre équipe va te contacter pour résoudre le problème."
)

// ConfirmFunc asks the user to confirm an action described by prompt.
type ConfirmFunc func(prompt string) bool

// RemoteOrders lists the orders of an authenticated user.
type RemoteOrders interface {
	UserOrders(ctx context.Context, token string) ([]domain.OrderRecord, error)
}

// Store is the order history cached under storage.KeyOrders.
type Store struct {
	mu        sync.Mutex
	orders    []domain.OrderRecord
	state     storage.Store
	remote    RemoteOrders
	bus       *events.Bus
	logger    *zap.Logger
	notifyTTL time.Duration
	now       func() time.Time
}

type Option func(*Store)

// WithRemote enables remote mode whenever an auth token is stored.
func WithRemote(r RemoteOrders) Option {
	return func(s *Store) { s.remote = r }
}

func WithNotificationTTL(ttl time.Duration) Option {
	return func(s *Store) { s.notifyTTL = ttl }
}

func Open(ctx context.Context, state storage.Store, bus *events.Bus, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		state:     state,
		bus:       bus,
		logger:    logger,
		notifyTTL: 3 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	orders, err := s.readCache(ctx)
	if err != nil {
		return nil, err
	}
	s.orders = orders
	return s, nil
}

func (s *Store) readCache(ctx context.Context) ([]domain.OrderRecord, error) {
	data, err := s.state.Get(ctx, storage.KeyOrders)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return decodeRecords(data, s.logger), nil
}

func decodeRecords(data []byte, logger *zap.Logger) []domain.OrderRecord {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn("stored orders are not a list, starting empty", zap.Error(err))
		return nil
	}
	out := make([]domain.OrderRecord, 0, len(raw))
	for _, r := range raw {
		var rec domain.OrderRecord
		if err := json.Unmarshal(r, &rec); err != nil || rec.ID == "" {
			logger.Warn("skipping unreadable order record", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sortByDate(out)
	return out
}

func sortByDate(orders []domain.OrderRecord) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Date.After(orders[j].Date)
	})
}

// Load refreshes the history. With a stored auth token and a remote source the
// backend list is merged into the cache; otherwise the cache is re-read.
func (s *Store) Load(ctx context.Context) ([]domain.OrderRecord, error) {
	token, err := storage.GetString(ctx, s.state, storage.KeyAuthToken)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to read auth token: %w", err)
	}

	list, err := s.refresh(ctx, token)
	if errors.Is(err, ErrSessionExpired) {
		s.bus.Emit(events.LoginRequired{})
	}
	return list, err
}

func (s *Store) refresh(ctx context.Context, token string) ([]domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.readCache(ctx)
	if err != nil {
		return nil, err
	}
	s.orders = cached

	if s.remote == nil || token == "" {
		return cloneRecords(s.orders), nil
	}

	remote, err := s.remote.UserOrders(ctx, token)
	if errors.Is(err, api.ErrUnauthorized) {
		s.logger.Info("auth token rejected, clearing session")
		for _, key := range []string{storage.KeyAuthToken, storage.KeyUser} {
			if delErr := s.state.Delete(ctx, key); delErr != nil {
				s.logger.Error("failed to clear session key", zap.String("key", key), zap.Error(delErr))
			}
		}
		return nil, ErrSessionExpired
	}
	if err != nil {
		s.logger.Warn("failed to load remote orders", zap.Error(err))
		return []domain.OrderRecord{}, nil
	}

	merged := mergeRecords(s.orders, remote)
	if err := s.persistLocked(ctx, merged); err != nil {
		return nil, err
	}
	return cloneRecords(merged), nil
}

// mergeRecords lets the backend win on items, total and date while keeping
// locally known reviews, customers and local-only orders. The remote status
// only applies when it moves the order forward; received and not_received are
// recorded locally and the backend never hears about them.
func mergeRecords(local, remote []domain.OrderRecord) []domain.OrderRecord {
	byID := make(map[string]int, len(local))
	out := cloneRecords(local)
	for i, rec := range out {
		byID[rec.ID] = i
	}
	for _, r := range remote {
		i, ok := byID[r.ID]
		if !ok {
			byID[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		cur := &out[i]
		if cur.Status != r.Status && (!cur.Status.IsValid() || cur.Status.CanTransitionTo(r.Status)) {
			cur.Status = r.Status
		}
		cur.Items = domain.CloneItems(r.Items)
		cur.Total = r.Total
		if !r.Date.IsZero() {
			cur.Date = r.Date
		}
		if r.Review != nil && cur.Review == nil {
			cur.Review = r.Review
		}
		if cur.Customer == (domain.Customer{}) {
			cur.Customer = r.Customer
		}
	}
	sortByDate(out)
	return out
}

func (s *Store) MarkReceived(ctx context.Context, id string, confirm ConfirmFunc) error {
	return s.transition(ctx, id, domain.OrderStatusReceived, promptReceived, confirm)
}

func (s *Store) MarkNotReceived(ctx context.Context, id string, confirm ConfirmFunc) error {
	return s.transition(ctx, id, domain.OrderStatusNotReceived, promptNotReceived, confirm)
}

func (s *Store) transition(ctx context.Context, id string, next domain.OrderStatus, prompt string, confirm ConfirmFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrOrderNotFound
	}
	cur := s.orders[idx].Status
	if !cur.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	if confirm == nil || !confirm(prompt) {
		return ErrNotConfirmed
	}

	updated := cloneRecords(s.orders)
	updated[idx].Status = next
	if err := s.persistLocked(ctx, updated); err != nil {
		return err
	}
	s.logger.Info("order status changed",
		zap.String("order_id", id),
		zap.String("from", cur.String()),
		zap.String("to", next.String()))
	return nil
}

// SubmitReview attaches a review to a received order and appends it to the
// site-wide review list.
func (s *Store) SubmitReview(ctx context.Context, id string, rating int, comment string) error {
	if rating == 0 {
		s.notify(events.LevelError, "Veuillez sélectionner une note (1 à 5 étoiles)")
		return ErrRatingRequired
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	if err := s.attachReview(ctx, id, rating, comment); err != nil {
		return err
	}
	s.notify(events.LevelSuccess, "Merci pour ton avis ! Il sera affiché sur notre page d'accueil.")
	return nil
}

func (s *Store) attachReview(ctx context.Context, id string, rating int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrOrderNotFound
	}
	order := s.orders[idx]
	if order.Status != domain.OrderStatusReceived {
		return ErrReviewNotAllowed
	}
	if order.HasReview() {
		return ErrAlreadyReviewed
	}

	var text *string
	if c := strings.TrimSpace(comment); c != "" {
		text = &c
	}
	review := domain.Review{Rating: rating, Comment: text, Date: s.now().UTC()}

	reviews, err := s.readReviews(ctx)
	if err != nil {
		return err
	}

	// The order record guards against a second review, so it is written first.
	previous := s.orders
	updated := cloneRecords(s.orders)
	updated[idx].Review = &review
	if err := s.persistLocked(ctx, updated); err != nil {
		return err
	}

	reviews = append(reviews, domain.ReviewEntry{
		OrderID:      order.ID,
		Rating:       rating,
		Comment:      text,
		Date:         review.Date,
		CustomerName: order.Customer.DisplayName(),
	})
	if err := storage.SetJSON(ctx, s.state, storage.KeyReviews, reviews); err != nil {
		if rbErr := s.persistLocked(ctx, previous); rbErr != nil {
			s.logger.Error("failed to roll back order review",
				zap.String("order_id", id), zap.Error(rbErr))
		}
		return fmt.Errorf("failed to save review: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record with the same id.
func (s *Store) Upsert(ctx context.Context, rec domain.OrderRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("order record without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneRecords(s.orders)
	if idx := s.indexLocked(rec.ID); idx >= 0 {
		updated[idx] = rec
	} else {
		updated = append(updated, rec)
	}
	sortByDate(updated)
	return s.persistLocked(ctx, updated)
}

// SetStatus advances an order without asking the user; used for payment
// confirmations. Illegal transitions are rejected.
func (s *Store) SetStatus(ctx context.Context, id string, next domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return ErrOrderNotFound
	}
	cur := s.orders[idx].Status
	if cur == next {
		return nil
	}
	if !cur.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, cur, next)
	}
	updated := cloneRecords(s.orders)
	updated[idx].Status = next
	return s.persistLocked(ctx, updated)
}

// RemoveOrder deletes the record whose id matches. removed is false when no
// record matched; nothing is written then.
func (s *Store) RemoveOrder(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.readCache(ctx)
	if err != nil {
		return false, err
	}
	s.orders = cached

	idx := s.indexLocked(id)
	if idx < 0 {
		return false, nil
	}
	updated := make([]domain.OrderRecord, 0, len(s.orders)-1)
	updated = append(updated, s.orders[:idx]...)
	updated = append(updated, s.orders[idx+1:]...)
	if err := s.persistLocked(ctx, updated); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Get(id string) (domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return domain.OrderRecord{}, ErrOrderNotFound
	}
	return cloneRecords(s.orders[idx : idx+1])[0], nil
}

// List returns the cached history, newest first.
func (s *Store) List() []domain.OrderRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.orders)
}

// Reviews returns the site-wide review list.
func (s *Store) Reviews(ctx context.Context) ([]domain.ReviewEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readReviews(ctx)
}

func (s *Store) readReviews(ctx context.Context) ([]domain.ReviewEntry, error) {
	data, err := s.state.Get(ctx, storage.KeyReviews)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return []domain.ReviewEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	var reviews []domain.ReviewEntry
	if err := json.Unmarshal(data, &reviews); err != nil {
		s.logger.Warn("stored reviews are unreadable, starting over", zap.Error(err))
		return []domain.ReviewEntry{}, nil
	}
	return reviews, nil
}

func (s *Store) indexLocked(id string) int {
	for i, rec := range s.orders {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistLocked(ctx context.Context, orders []domain.OrderRecord) error {
	if err := storage.SetJSON(ctx, s.state, storage.KeyOrders, orders); err != nil {
		s.logger.Error("failed to persist orders", zap.Error(err))
		return fmt.Errorf("failed to save orders: %w", err)
	}
	s.orders = orders
	return nil
}

func (s *Store) notify(level events.Level, msg string) {
	s.bus.Emit(events.Notification{Level: level, Message: msg, TTL: s.notifyTTL})
}

func cloneRecords(in []domain.OrderRecord) []domain.OrderRecord {
	out := make([]domain.OrderRecord, len(in))
	for i, rec := range in {
		out[i] = rec
		out[i].Items = domain.CloneItems(rec.Items)
		if rec.Review != nil {
			r := *rec.Review
			out[i].Review = &r
		}
	}
	return out
}
