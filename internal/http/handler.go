package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/chat"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Backend is the part of the API client used outside the stores.
type Backend interface {
	Health(ctx context.Context) error
	Shop(ctx context.Context, limit int) ([]catalog.ShopItem, error)
}

type Deps struct {
	Cart    *cart.Store
	Orders  *orders.Store
	Flow    *checkout.Flow
	Chats   *chat.Registry
	Backend Backend
	Bus     *events.Bus
	Timeout time.Duration
	Logger  *zap.Logger
}

// feedLimit bounds the event feed between two reads of /api/v1/events.
const feedLimit = 256

// Handler exposes the storefront stores over JSON and HTML fragments. Events
// published on the bus are queued for GET /api/v1/events.
type Handler struct {
	cart    *cart.Store
	orders  *orders.Store
	flow    *checkout.Flow
	chats   *chat.Registry
	backend Backend
	feed    *events.Recorder
	timeout time.Duration
	logger  *zap.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 30 * time.Second
	}
	h := &Handler{
		cart:    d.Cart,
		orders:  d.Orders,
		flow:    d.Flow,
		chats:   d.Chats,
		backend: d.Backend,
		feed:    &events.Recorder{Limit: feedLimit},
		timeout: d.Timeout,
		logger:  d.Logger,
	}
	if d.Bus != nil {
		d.Bus.Subscribe(h.feed.Handle)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/events", h.Events)
		r.Get("/shop", h.Shop)
		r.Get("/packages", h.Packages)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{id}", h.UpdateQuantity)
			r.Delete("/items/{id}", h.RemoveItem)
			r.Post("/packages", h.AddPackage)
			r.Post("/promo", h.ApplyPromo)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.Post("/details", h.SubmitDetails)
			r.Post("/method", h.SelectMethod)
			r.Post("/pay", h.Pay)
			r.Post("/retry", h.Retry)
			r.Post("/reset", h.ResetCheckout)
			r.Get("/pending", h.PendingOrder)
			r.Post("/complete", h.CompleteFromRedirect)
			r.Post("/local", h.CompleteLocal)
			r.Post("/whatsapp", h.WhatsApp)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Get("/fragment", h.OrdersFragment)
			r.Post("/{id}/received", h.MarkReceived)
			r.Post("/{id}/not-received", h.MarkNotReceived)
			r.Post("/{id}/review", h.SubmitReview)
		})
		r.Get("/reviews", h.Reviews)

		r.Route("/chat/{orderID}", func(r chi.Router) {
			r.Post("/", h.StartChat)
			r.Delete("/", h.StopChat)
			r.Get("/messages", h.ChatMessages)
			r.Post("/messages", h.SendChatMessage)
			r.Get("/fragment", h.ChatFragment)
			r.Put("/visibility", h.SetChatVisibility)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Backend: "up"}
	if err := h.backend.Health(ctx); err != nil {
		h.logger.Warn("backend health check failed", zap.Error(err))
		resp.Backend = "down"
	}
	respondJSON(w, http.StatusOK, resp)
}

type eventDTO struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Events drains the queued bus events.
func (h *Handler) Events(w http.ResponseWriter, _ *http.Request) {
	drained := h.feed.Drain()
	out := make([]eventDTO, 0, len(drained))
	for _, e := range drained {
		out = append(out, toEventDTO(e))
	}
	respondJSON(w, http.StatusOK, out)
}

func toEventDTO(e events.Event) eventDTO {
	switch v := e.(type) {
	case events.SendFailed:
		var msg string
		if v.Err != nil {
			msg = v.Err.Error()
		}
		return eventDTO{Name: v.Name(), Data: map[string]string{"order_id": v.OrderID, "error": msg}}
	case events.Notification:
		return eventDTO{Name: v.Name(), Data: map[string]any{
			"level":   v.Level,
			"message": v.Message,
			"ttl_ms":  v.TTL.Milliseconds(),
		}}
	case events.OrderGone:
		return eventDTO{Name: v.Name(), Data: map[string]any{
			"order_id":        v.OrderID,
			"removed":         v.Removed,
			"reload_after_ms": v.ReloadAfter.Milliseconds(),
		}}
	default:
		return eventDTO{Name: e.Name(), Data: e}
	}
}

func (h *Handler) Shop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := h.backend.Shop(ctx, limit)
	if err != nil {
		h.logger.Warn("shop fetch failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "backend_unavailable", "shop is unavailable")
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) Packages(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, catalog.All())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
