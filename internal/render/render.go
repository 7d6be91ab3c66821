// Package render turns store state into HTML fragments. All user-supplied
// text goes through html/template contextual escaping.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var frMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

var badges = map[domain.OrderStatus]string{
	domain.OrderStatusPending:     "⏳ En attente",
	domain.OrderStatusPaid:        "💳 Payée",
	domain.OrderStatusProcessing:  "⚙️ En préparation",
	domain.OrderStatusDelivered:   "📦 Livrée",
	domain.OrderStatusReceived:    "✅ Reçue",
	domain.OrderStatusNotReceived: "❌ Non reçue",
}

var funcs = template.FuncMap{
	"amount": domain.FormatAmount,
	"clock":  clock,
	"frDate": frDate,
	"badge":  badge,
	"stars":  stars,
	"deref":  deref,
	"canReceive": func(o domain.OrderRecord) bool {
		return o.Status.CanTransitionTo(domain.OrderStatusReceived)
	},
	"canReject": func(o domain.OrderRecord) bool {
		return o.Status.CanTransitionTo(domain.OrderStatusNotReceived)
	},
	"canReview": func(o domain.OrderRecord) bool {
		return o.Status == domain.OrderStatusReceived && !o.HasReview()
	},
}

var templates = template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))

// ChatMessage is one rendered line; Sent marks messages authored by the viewer.
type ChatMessage struct {
	domain.ChatMessage
	Sent bool
}

type chatData struct {
	Messages []ChatMessage
	Pending  []domain.ChatMessage
}

// Chat writes confirmed messages followed by the optimistic ones.
func Chat(w io.Writer, me domain.Sender, confirmed, pending []domain.ChatMessage) error {
	data := chatData{Pending: pending}
	for _, m := range confirmed {
		data.Messages = append(data.Messages, ChatMessage{ChatMessage: m, Sent: m.Sender == me})
	}
	if err := templates.ExecuteTemplate(w, "chat", data); err != nil {
		return fmt.Errorf("render chat: %w", err)
	}
	return nil
}

// Orders writes one card per order, or the empty state.
func Orders(w io.Writer, orders []domain.OrderRecord) error {
	if err := templates.ExecuteTemplate(w, "orders", orders); err != nil {
		return fmt.Errorf("render orders: %w", err)
	}
	return nil
}

func clock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04")
}

func frDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d %s %d à %s", t.Day(), frMonths[t.Month()-1], t.Year(), t.Format("15:04"))
}

// badge falls back to the pending label, like the order list always did.
func badge(s domain.OrderStatus) string {
	if label, ok := badges[s]; ok {
		return label
	}
	return badges[domain.OrderStatusPending]
}

func stars(rating int) string {
	rating = min(max(rating, 0), 5)
	return strings.Repeat("⭐", rating) + strings.Repeat("☆", 5-rating)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
