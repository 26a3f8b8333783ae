package pricing

import (
	"time"

	"github.com/google/uuid"
)

// BuyerContext is the resolved principal a price is computed for. Guests
// carry Authenticated=false and always price at the admin base.
type BuyerContext struct {
	UserID        uuid.UUID
	Role          string
	Authenticated bool
}

// Quote is the result of walking the override chain for one product.
// UnitPrice is what the buyer pays; BaseCost is what the platform recognizes
// as revenue. Both in pesewas.
type Quote struct {
	UnitPrice int64
	BaseCost  int64
}

// Margin is the reseller's earning on one unit. Negative computed margins
// are clamped to zero: a reseller underpricing below cost sells at no
// profit, the sale is not blocked.
func (q Quote) Margin() int64 {
	m := q.UnitPrice - q.BaseCost
	if m < 0 {
		return 0
	}
	return m
}

// CustomPrice is a reseller-specific override for one product.
type CustomPrice struct {
	ResellerID uuid.UUID `db:"reseller_id" json:"reseller_id"`
	ProductID  uuid.UUID `db:"product_id" json:"product_id"`
	Price      int64     `db:"price" json:"price"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
