package events

import (
	"time"

	"github.com/fjod/storefront/internal/domain"
)

// Event is anything published on the Bus.
type Event interface {
	Name() string
}

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient toast; TTL is how long it stays on screen.
type Notification struct {
	Level   Level
	Message string
	TTL     time.Duration
}

type CartChanged struct {
	Items []domain.CartItem
	Count int
	Total float64
}

type StepChanged struct {
	Step int
}

// ProcessingStatus replaces the text under the checkout spinner.
type ProcessingStatus struct {
	Message   string
	ShowRetry bool
}

// LoginRequired is emitted after the backend rejected the stored token.
type LoginRequired struct{}

type MessageAppended struct {
	OrderID string
	Message domain.ChatMessage
	Pending bool
}

// NewMessages is raised while the chat is hidden.
type NewMessages struct {
	OrderID string
	Unread  int
}

type SendFailed struct {
	OrderID string
	Err     error
}

// OrderGone asks the page to reload once the backend forgot the order.
type OrderGone struct {
	OrderID     string
	Removed     bool
	ReloadAfter time.Duration
}

func (Notification) Name() string     { return "notification" }
func (CartChanged) Name() string      { return "cart_changed" }
func (StepChanged) Name() string      { return "step_changed" }
func (ProcessingStatus) Name() string { return "processing_status" }
func (LoginRequired) Name() string    { return "login_required" }
func (MessageAppended) Name() string  { return "message_appended" }
func (NewMessages) Name() string      { return "new_messages" }
func (SendFailed) Name() string       { return "send_failed" }
func (OrderGone) Name() string        { return "order_gone" }
