package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
)

type CheckoutStateDTO struct {
	Step        int                `json:"step"`
	ProductType domain.ProductType `json:"product_type"`
	Customer    *domain.Customer   `json:"customer,omitempty"`
}

type SelectMethodRequestDTO struct {
	Method string `json:"method"`
}

type RedirectDTO struct {
	OrderID     string `json:"order_id"`
	PaymentLink string `json:"payment_link"`
}

type CompleteRequestDTO struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) checkoutState() CheckoutStateDTO {
	state := CheckoutStateDTO{
		Step:        int(h.flow.Step()),
		ProductType: h.flow.DetectProductType(),
	}
	if c, ok := h.flow.Customer(); ok {
		state.Customer = &c
	}
	return state
}

// GET /api/v1/checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.checkoutState())
}

// POST /api/v1/checkout/details
func (h *Handler) SubmitDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req checkout.CustomerDetails
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.flow.SubmitDetails(ctx, req); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutState())
}

// POST /api/v1/checkout/method
func (h *Handler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	var req SelectMethodRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.flow.SelectPaymentMethod(strings.TrimSpace(req.Method)); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.checkoutState())
}

// POST /api/v1/checkout/pay
//
// A request made while another payment is in flight gets 202 and no new
// attempt is started.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	redirect, err := h.flow.Pay(ctx)
	h.respondRedirect(w, redirect, err)
}

// POST /api/v1/checkout/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	redirect, err := h.flow.Retry(ctx)
	h.respondRedirect(w, redirect, err)
}

func (h *Handler) respondRedirect(w http.ResponseWriter, redirect checkout.Redirect, err error) {
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RedirectDTO{OrderID: redirect.OrderID, PaymentLink: redirect.URL})
}

func (h *Handler) ResetCheckout(w http.ResponseWriter, _ *http.Request) {
	h.flow.Reset()
	respondJSON(w, http.StatusOK, h.checkoutState())
}

func (h *Handler) PendingOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.flow.PendingOrder(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// POST /api/v1/checkout/complete is hit by the payment success page.
func (h *Handler) CompleteFromRedirect(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CompleteRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}
	rec, err := h.flow.CompleteFromRedirect(ctx, strings.TrimSpace(req.OrderID))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) CompleteLocal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.flow.CompleteLocal(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (h *Handler) WhatsApp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	link, err := h.flow.WhatsAppLink(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": link})
}
