package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/chat"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/orders"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps store errors onto HTTP statuses.
func handleError(w http.ResponseWriter, err error) {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   verr.Message,
			Code:    "validation_error",
			Details: verr.Field,
		})
		return
	}

	var httpStatus int
	var code string

	switch {
	case errors.Is(err, checkout.ErrPaymentInFlight):
		httpStatus, code = http.StatusAccepted, "payment_in_flight"
	case errors.Is(err, checkout.ErrEmptyCart):
		httpStatus, code = http.StatusBadRequest, "empty_cart"
	case errors.Is(err, checkout.ErrDetailsRequired):
		httpStatus, code = http.StatusBadRequest, "details_required"
	case errors.Is(err, checkout.ErrComingSoon):
		httpStatus, code = http.StatusBadRequest, "coming_soon"
	case errors.Is(err, checkout.ErrUnsupportedMethod):
		httpStatus, code = http.StatusBadRequest, "unsupported_method"
	case errors.Is(err, cart.ErrInvalidPromo):
		httpStatus, code = http.StatusBadRequest, "invalid_promo"
	case errors.Is(err, orders.ErrRatingRequired), errors.Is(err, orders.ErrInvalidRating):
		httpStatus, code = http.StatusBadRequest, "invalid_rating"
	case errors.Is(err, catalog.ErrPackageNotFound):
		httpStatus, code = http.StatusNotFound, "package_not_found"
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, chat.ErrOrderGone):
		httpStatus, code = http.StatusNotFound, "order_not_found"
	case errors.Is(err, checkout.ErrNoPendingOrder):
		httpStatus, code = http.StatusNotFound, "no_pending_order"
	case errors.Is(err, orders.ErrNotConfirmed):
		httpStatus, code = http.StatusPreconditionRequired, "not_confirmed"
	case errors.Is(err, orders.ErrIllegalTransition):
		httpStatus, code = http.StatusConflict, "illegal_transition"
	case errors.Is(err, orders.ErrReviewNotAllowed), errors.Is(err, orders.ErrAlreadyReviewed):
		httpStatus, code = http.StatusConflict, "review_rejected"
	case errors.Is(err, checkout.ErrPendingMismatch):
		httpStatus, code = http.StatusConflict, "pending_mismatch"
	case errors.Is(err, checkout.ErrSuperseded):
		httpStatus, code = http.StatusConflict, "superseded"
	case errors.Is(err, chat.ErrStopped):
		httpStatus, code = http.StatusConflict, "chat_stopped"
	case errors.Is(err, orders.ErrSessionExpired), errors.Is(err, api.ErrUnauthorized):
		httpStatus, code = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, checkout.ErrPaymentFailed):
		httpStatus, code = http.StatusBadGateway, "payment_failed"
	case errors.Is(err, checkout.ErrWhatsAppDisabled):
		httpStatus, code = http.StatusServiceUnavailable, "whatsapp_disabled"
	default:
		zap.L().Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
