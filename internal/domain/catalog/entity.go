package catalog

import (
	"time"

	"github.com/google/uuid"
)

// ProductType discriminates the two sellable product families.
type ProductType string

const (
	ProductDataBundle    ProductType = "data_bundle"
	ProductResultChecker ProductType = "result_checker"
)

// Bundle is a sellable data package on one network. BasePrice is the
// intrinsic price in pesewas, the terminal fallback of the pricing chain.
type Bundle struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Network   string    `db:"network" json:"network"`
	Name      string    `db:"name" json:"name"`
	Capacity  string    `db:"capacity" json:"capacity"`
	BasePrice int64     `db:"base_price" json:"base_price"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ResultChecker is one unsold exam credential (BECE/WASSCE serial+pin).
type ResultChecker struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	CheckerType string     `db:"checker_type" json:"checker_type"`
	Serial      string     `db:"serial" json:"serial"`
	Pin         string     `db:"pin" json:"-"`
	Price       int64      `db:"price" json:"price"`
	Sold        bool       `db:"sold" json:"sold"`
	OrderRef    *string    `db:"order_ref" json:"order_ref,omitempty"`
	SoldAt      *time.Time `db:"sold_at" json:"sold_at,omitempty"`
}
