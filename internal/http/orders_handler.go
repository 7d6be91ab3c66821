package http

import (
	"bytes"
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/render"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// StatusRequestDTO carries the answer to the confirmation prompt.
type StatusRequestDTO struct {
	Confirm bool `json:"confirm"`
}

type ReviewRequestDTO struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// GET /api/v1/orders refreshes from the backend when a session exists.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.orders.Load(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	if list == nil {
		list = []domain.OrderRecord{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GET /api/v1/orders/fragment renders the cached list as order cards.
func (h *Handler) OrdersFragment(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := render.Orders(&buf, h.orders.List()); err != nil {
		h.logger.Error("failed to render orders", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "render_failed", "failed to render orders")
		return
	}
	respondHTML(w, buf.Bytes())
}

func (h *Handler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, true)
}

func (h *Handler) MarkNotReceived(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, false)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, received bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req StatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	confirm := func(string) bool { return req.Confirm }

	var err error
	if received {
		err = h.orders.MarkReceived(ctx, id, confirm)
	} else {
		err = h.orders.MarkNotReceived(ctx, id, confirm)
	}
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondOrder(w, id)
}

func (h *Handler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ReviewRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.orders.SubmitReview(ctx, id, req.Rating, req.Comment); err != nil {
		handleError(w, err)
		return
	}
	h.respondOrder(w, id)
}

func (h *Handler) respondOrder(w http.ResponseWriter, id string) {
	rec, err := h.orders.Get(id)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.Reviews(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	if list == nil {
		list = []domain.ReviewEntry{}
	}
	respondJSON(w, http.StatusOK, list)
}

func respondHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}
