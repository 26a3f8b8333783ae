package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrBundleNotFound  = errors.New("bundle not found")
	ErrBundleInactive  = errors.New("bundle is not active")
	ErrOutOfStock      = errors.New("not enough unsold checkers in stock")
	ErrCheckerNotFound = errors.New("result checker type not found")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetBundle returns an active bundle or ErrBundleNotFound/ErrBundleInactive.
func (r *Repository) GetBundle(ctx context.Context, id uuid.UUID) (*Bundle, error) {
	var b Bundle
	err := r.db.GetContext(ctx, &b, `
		SELECT id, network, name, capacity, base_price, active, created_at
		FROM bundles
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBundleNotFound
	}
	if err != nil {
		return nil, err
	}
	if !b.Active {
		return nil, ErrBundleInactive
	}
	return &b, nil
}

// CheckerPrice returns the configured price for a checker type, derived from
// the cheapest unsold credential row (all rows of a type carry one price).
func (r *Repository) CheckerPrice(ctx context.Context, checkerType string) (int64, error) {
	var price int64
	err := r.db.GetContext(ctx, &price, `
		SELECT price
		FROM result_checkers
		WHERE checker_type = $1 AND sold = false
		ORDER BY price
		LIMIT 1
	`, checkerType)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCheckerNotFound
	}
	return price, err
}

// ClaimCheckers atomically marks quantity unsold credentials of the given
// type as sold against the order reference and returns them. SKIP LOCKED
// keeps concurrent checkouts from fighting over the same rows.
func (r *Repository) ClaimCheckers(ctx context.Context, checkerType, orderRef string, quantity int) ([]ResultChecker, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be >= 1")
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var claimed []ResultChecker
	err = tx.SelectContext(ctx, &claimed, `
		UPDATE result_checkers
		SET sold = true, order_ref = $2, sold_at = now()
		WHERE id IN (
			SELECT id FROM result_checkers
			WHERE checker_type = $1 AND sold = false
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, checker_type, serial, pin, price, sold, order_ref, sold_at
	`, checkerType, orderRef, quantity)
	if err != nil {
		return nil, err
	}
	if len(claimed) < quantity {
		return nil, ErrOutOfStock
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

// CheckersByOrder returns credentials claimed for an order reference.
func (r *Repository) CheckersByOrder(ctx context.Context, orderRef string) ([]ResultChecker, error) {
	var out []ResultChecker
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, checker_type, serial, pin, price, sold, order_ref, sold_at
		FROM result_checkers
		WHERE order_ref = $1
		ORDER BY id
	`, orderRef)
	return out, err
}
