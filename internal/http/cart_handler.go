package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type AddItemRequestDTO struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Price    float64        `json:"price"`
	Quantity int            `json:"quantity"`
	BaseID   string         `json:"baseId"`
	Metadata map[string]any `json:"metadata"`
}

type AddPackageRequestDTO struct {
	PackageID string `json:"package_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type PromoRequestDTO struct {
	Code string `json:"code"`
}

type CartResponseDTO struct {
	Items []domain.CartItem `json:"items"`
	Count int               `json:"count"`
	Total float64           `json:"total"`
}

func (h *Handler) cartResponse() CartResponseDTO {
	items := h.cart.Items()
	if items == nil {
		items = []domain.CartItem{}
	}
	return CartResponseDTO{Items: items, Count: h.cart.ItemsCount(), Total: h.cart.Total()}
}

func (h *Handler) GetCart(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	err := h.cart.AddItem(ctx, req.ID, req.Name, req.Price, req.Quantity, cart.AddOptions{
		BaseID:   req.BaseID,
		Metadata: req.Metadata,
	})
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.cartResponse())
}

func (h *Handler) AddPackage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddPackageRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := h.cart.AddPackage(ctx, req.PackageID, req.Quantity); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.cartResponse())
}

func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.cart.UpdateQuantity(ctx, chi.URLParam(r, "id"), req.Quantity); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.RemoveItem(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.ClearCart(ctx); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.cartResponse())
}

func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PromoRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.cart.ApplyPromo(ctx, req.Code)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
