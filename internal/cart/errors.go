package cart

import (
	"fmt"

	"dessert_market/internal/apperr"
)

var (
	ErrDessertNotFound  = apperr.New(apperr.NotFound, "dessert not found")
	ErrCartItemNotFound = apperr.New(apperr.NotFound, "cart item not found")
	ErrEmptyCartID      = apperr.New(apperr.Validation, "cart id is required")
	ErrInvalidQuantity  = apperr.New(apperr.Validation, "quantity must be at least 1")
)

// StockError 表示请求数量超过可售库存；Available 为用户还能拿到的数量。
type StockError struct {
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Only %d items available", e.Available)
}

func (e *StockError) Kind() apperr.Kind { return apperr.InsufficientStock }
