package orders

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotConfirmed      = errors.New("action not confirmed")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrSessionExpired    = errors.New("session expired")
	ErrRatingRequired    = errors.New("rating is required")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrReviewNotAllowed  = errors.New("only received orders can be reviewed")
	ErrAlreadyReviewed   = errors.New("order already reviewed")
)
