package checkout

import "dessert_market/internal/apperr"

var (
	ErrEmptyCart        = apperr.New(apperr.Validation, "your cart is empty")
	ErrSessionNotFound  = apperr.New(apperr.NotFound, "checkout session not found")
	ErrSessionCancelled = apperr.New(apperr.Conflict, "checkout session was cancelled")
	ErrAlreadyCompleted = apperr.New(apperr.Conflict, "checkout session already completed")
	ErrNotPaid          = apperr.New(apperr.Conflict, "payment for this checkout session has not been received")
	ErrCartChanged      = apperr.New(apperr.Conflict, "your cart changed after checkout started; please check out again")
	ErrCheckoutBusy     = apperr.New(apperr.Conflict, "checkout for this cart is already in progress")
	ErrOrderNotFound    = apperr.New(apperr.NotFound, "order not found")
)
