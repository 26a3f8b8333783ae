package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrEmptyOrder          = errors.New("order has no line items")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrProfitSplitMismatch = errors.New("profit split does not sum to order amount")
	ErrInvalidPhone        = errors.New("invalid beneficiary phone number")
	ErrInvalidQuantity     = errors.New("quantity must be at least 1")
)

// CooldownError rejects a beneficiary phone ordered again too soon.
type CooldownError struct {
	Phone     string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active for %s, retry in %ds", e.Phone, int(e.Remaining.Seconds()))
}
