package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrStopped        = errors.New("chat stopped")
	ErrAlreadyStarted = errors.New("chat already started")
	ErrOrderGone      = errors.New("order no longer exists")
)

type State int

const (
	StateIdle State = iota
	StatePolling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HistoryClient is the backend side of the chat.
type HistoryClient interface {
	ChatHistory(ctx context.Context, orderID string) ([]domain.ChatMessage, error)
	SendMessage(ctx context.Context, orderID, content string, sender domain.Sender) error
}

// OrderRemover drops an order the backend no longer knows.
type OrderRemover interface {
	RemoveOrder(ctx context.Context, id string) (bool, error)
}

type Settings struct {
	PollInterval time.Duration
	ReloadAfter  time.Duration
	Sender       domain.Sender
}

// Synchronizer keeps the message list of one order in sync with the backend.
// Optimistic messages live until the next completed fetch.
type Synchronizer struct {
	mu        sync.Mutex
	orderID   string
	state     State
	seen      map[domain.MessageID]struct{}
	confirmed []domain.ChatMessage
	pending   []domain.ChatMessage
	visible   bool
	unread    int
	fetched   bool
	cancel    context.CancelFunc
	done      chan struct{}

	client   HistoryClient
	remover  OrderRemover
	bus      *events.Bus
	logger   *zap.Logger
	settings Settings
}

func New(orderID string, client HistoryClient, remover OrderRemover, bus *events.Bus, logger *zap.Logger, settings Settings) *Synchronizer {
	if settings.PollInterval <= 0 {
		settings.PollInterval = 5 * time.Second
	}
	if settings.ReloadAfter == 0 {
		settings.ReloadAfter = 2 * time.Second
	}
	if settings.Sender == "" {
		settings.Sender = domain.SenderUser
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		orderID:  orderID,
		seen:     make(map[domain.MessageID]struct{}),
		client:   client,
		remover:  remover,
		bus:      bus,
		logger:   logger.With(zap.String("order_id", orderID)),
		settings: settings,
	}
}

func (s *Synchronizer) OrderID() string { return s.orderID }

// Start fetches once, then polls every PollInterval until Stop, ctx
// cancellation or a 404 from the backend.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StatePolling:
		s.mu.Unlock()
		return ErrAlreadyStarted
	case StateStopped:
		s.mu.Unlock()
		return ErrStopped
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.state = StatePolling
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.run(loopCtx, done)
	return nil
}

func (s *Synchronizer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.poll(ctx) {
		return
	}
	ticker := time.NewTicker(s.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.poll(ctx) {
				return
			}
		}
	}
}

// poll reports whether the loop must end.
func (s *Synchronizer) poll(ctx context.Context) bool {
	err := s.Fetch(ctx)
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStopped), errors.Is(err, ErrOrderGone):
		return true
	case ctx.Err() != nil:
		return true
	default:
		s.logger.Warn("chat poll failed", zap.Error(err))
		return false
	}
}

// Stop ends polling and waits for the loop. It is idempotent. Do not call it
// from an event handler: handlers run on the polling goroutine.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	s.state = StateStopped
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Fetch pulls the full history once and merges it.
func (s *Synchronizer) Fetch(ctx context.Context) error {
	if s.State() == StateStopped {
		return ErrStopped
	}

	history, err := s.client.ChatHistory(ctx, s.orderID)
	if errors.Is(err, api.ErrNotFound) {
		s.handleGone(ctx)
		return ErrOrderGone
	}
	if err != nil {
		return fmt.Errorf("fetch chat history: %w", err)
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}
	before := len(s.confirmed)
	s.pending = nil
	var added []domain.ChatMessage
	for _, m := range history {
		if _, ok := s.seen[m.ID]; ok {
			continue
		}
		s.seen[m.ID] = struct{}{}
		s.confirmed = append(s.confirmed, m)
		added = append(added, m)
	}
	var unread int
	grew := len(s.confirmed) - before
	if s.fetched && !s.visible && grew > 0 {
		s.unread += grew
		unread = s.unread
	}
	s.fetched = true
	s.mu.Unlock()

	for _, m := range added {
		s.bus.Emit(events.MessageAppended{OrderID: s.orderID, Message: m})
	}
	if unread > 0 {
		s.bus.Emit(events.NewMessages{OrderID: s.orderID, Unread: unread})
	}
	return nil
}

// handleGone stops for good, drops the order from the history and asks the
// page to reload if something was removed.
func (s *Synchronizer) handleGone(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.logger.Info("order not found on backend, stopping chat")
	var removed bool
	if s.remover != nil {
		var err error
		removed, err = s.remover.RemoveOrder(context.WithoutCancel(ctx), s.orderID)
		if err != nil {
			s.logger.Error("failed to remove missing order", zap.Error(err))
		}
	}
	gone := events.OrderGone{OrderID: s.orderID, Removed: removed}
	if removed {
		gone.ReloadAfter = s.settings.ReloadAfter
	}
	s.bus.Emit(gone)
}

// Send shows the message right away, posts it, and re-fetches on success.
// Empty content is ignored.
func (s *Synchronizer) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrStopped
	}
	msg := domain.ChatMessage{
		ID:        domain.MessageID("tmp-" + uuid.NewString()),
		OrderID:   s.orderID,
		Sender:    s.settings.Sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	s.pending = append(s.pending, msg)
	s.mu.Unlock()
	s.bus.Emit(events.MessageAppended{OrderID: s.orderID, Message: msg, Pending: true})

	if err := s.client.SendMessage(ctx, s.orderID, content, s.settings.Sender); err != nil {
		s.logger.Warn("chat send failed", zap.Error(err))
		s.bus.Emit(events.SendFailed{OrderID: s.orderID, Err: err})
		return fmt.Errorf("send chat message: %w", err)
	}

	if err := s.Fetch(ctx); err != nil && !errors.Is(err, ErrStopped) && !errors.Is(err, ErrOrderGone) {
		s.logger.Warn("refresh after send failed", zap.Error(err))
	}
	return nil
}

// SetVisible marks the chat open or closed; opening clears the unread count.
func (s *Synchronizer) SetVisible(visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = visible
	if visible {
		s.unread = 0
	}
}

func (s *Synchronizer) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Messages returns the confirmed messages followed by the optimistic ones.
func (s *Synchronizer) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, 0, len(s.confirmed)+len(s.pending))
	out = append(out, s.confirmed...)
	return append(out, s.pending...)
}

// Snapshot returns copies of the confirmed and optimistic messages.
func (s *Synchronizer) Snapshot() (confirmed, pending []domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	confirmed = append([]domain.ChatMessage(nil), s.confirmed...)
	pending = append([]domain.ChatMessage(nil), s.pending...)
	return confirmed, pending
}

// Sender is the role messages are sent as.
func (s *Synchronizer) Sender() domain.Sender { return s.settings.Sender }

// PendingCount is the number of optimistic messages still shown.
func (s *Synchronizer) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
