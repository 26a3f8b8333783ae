package pricing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines pricing data access
type Repository interface {
	// CustomPrice returns the reseller-specific override, if any.
	CustomPrice(ctx context.Context, resellerID, productID uuid.UUID) (int64, bool, error)
	// RolePrice returns the role-tier base price, if any.
	RolePrice(ctx context.Context, productID uuid.UUID, role string) (int64, bool, error)
	// AdminPrice returns the admin global base price, if any.
	AdminPrice(ctx context.Context, productID uuid.UUID) (int64, bool, error)
	// ProductBasePrice returns the product's intrinsic base price, the
	// terminal fallback of the chain.
	ProductBasePrice(ctx context.Context, productID uuid.UUID) (int64, bool, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates pricing repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CustomPrice(ctx context.Context, resellerID, productID uuid.UUID) (int64, bool, error) {
	var price int64
	err := r.db.GetContext(ctx, &price, `
		SELECT price FROM custom_prices
		WHERE reseller_id = $1 AND product_id = $2
	`, resellerID, productID)
	return scanOptionalPrice(price, err)
}

func (r *repository) RolePrice(ctx context.Context, productID uuid.UUID, role string) (int64, bool, error) {
	var price int64
	err := r.db.GetContext(ctx, &price, `
		SELECT price FROM role_prices
		WHERE product_id = $1 AND role = $2
	`, productID, role)
	return scanOptionalPrice(price, err)
}

func (r *repository) AdminPrice(ctx context.Context, productID uuid.UUID) (int64, bool, error) {
	var price int64
	err := r.db.GetContext(ctx, &price, `
		SELECT price FROM admin_prices
		WHERE product_id = $1
	`, productID)
	return scanOptionalPrice(price, err)
}

func (r *repository) ProductBasePrice(ctx context.Context, productID uuid.UUID) (int64, bool, error) {
	var price int64
	err := r.db.GetContext(ctx, &price, `
		SELECT base_price FROM bundles
		WHERE id = $1 AND active = true
	`, productID)
	return scanOptionalPrice(price, err)
}

func scanOptionalPrice(price int64, err error) (int64, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}
