package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dataplug/dataplug-api/internal/domain/catalog"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const orderColumns = `
	id, reference, user_id, reseller_id, product_type, funding,
	amount, profit, agent_profit, status, delivery_status, payment_status,
	COALESCE(failure_reason, '') AS failure_reason,
	created_at, updated_at, completed_at`

const itemColumns = `
	id, order_id, phone, bundle_id, COALESCE(network, '') AS network,
	COALESCE(capacity, '') AS capacity, quantity, unit_price, base_cost,
	status, idempotency_key, COALESCE(provider_ref, '') AS provider_ref,
	COALESCE(provider_response, 'null') AS provider_response,
	COALESCE(failure_reason, '') AS failure_reason`

const itemColumnsPrefixed = `
	i.id, i.order_id, i.phone, i.bundle_id, COALESCE(i.network, '') AS network,
	COALESCE(i.capacity, '') AS capacity, i.quantity, i.unit_price, i.base_cost,
	i.status, i.idempotency_key, COALESCE(i.provider_ref, '') AS provider_ref,
	COALESCE(i.provider_response, 'null') AS provider_response,
	COALESCE(i.failure_reason, '') AS failure_reason`

// Create writes the order and its line items in one transaction. When a
// cooldown window is given, each distinct beneficiary phone is re-checked
// under a per-phone advisory lock: two racing checkouts for the same phone
// serialize here, and the loser sees the winner's committed row.
func (r *Repository) Create(ctx context.Context, o *Order, cooldownWindow time.Duration) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if o.ProductType == catalog.ProductDataBundle && cooldownWindow > 0 {
		seen := map[string]bool{}
		for i := range o.Items {
			phone := o.Items[i].Phone
			if seen[phone] {
				continue
			}
			seen[phone] = true

			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, phone); err != nil {
				return err
			}
			last, found, err := lastBundleOrderTimeTx(ctx, tx, phone)
			if err != nil {
				return err
			}
			if found {
				if remaining := cooldownWindow - time.Since(last); remaining > 0 {
					return &CooldownError{Phone: phone, Remaining: remaining}
				}
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, reference, user_id, reseller_id, product_type, funding,
			amount, profit, agent_profit, status, delivery_status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, o.ID, o.Reference, o.UserID, o.ResellerID, o.ProductType, o.Funding,
		o.Amount, o.Profit, o.AgentProfit, o.Status, o.DeliveryStatus, o.PaymentStatus); err != nil {
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, phone, bundle_id, network, capacity,
				quantity, unit_price, base_cost, status, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, item.ID, o.ID, item.Phone, item.BundleID, item.Network, item.Capacity,
			item.Quantity, item.UnitPrice, item.BaseCost, item.Status, item.IdempotencyKey); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*Order, error) {
	var o Order
	err := r.db.GetContext(ctx, &o, `SELECT `+orderColumns+` FROM orders WHERE reference = $1`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &o.Items, `
		SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id
	`, o.ID); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	var out []Order
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return out, err
}

// UpdateStatus advances the order through the transition table. Illegal
// moves return ErrInvalidTransition without writing.
func (r *Repository) UpdateStatus(ctx context.Context, reference string, status Status, delivery DeliveryStatus, failureReason string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current Status
	err = tx.GetContext(ctx, &current, `SELECT status FROM orders WHERE reference = $1 FOR UPDATE`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(current, status) {
		return ErrInvalidTransition
	}

	var completedAt interface{}
	if status == StatusCompleted {
		completedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, delivery_status = $2, failure_reason = $3,
		    completed_at = COALESCE($4, completed_at), updated_at = now()
		WHERE reference = $5
	`, status, delivery, failureReason, completedAt, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, reference string, payment PaymentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = now() WHERE reference = $2
	`, payment, reference)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateItem records one line item's provider outcome. The raw response is
// kept verbatim.
func (r *Repository) UpdateItem(ctx context.Context, itemID uuid.UUID, status DeliveryStatus, providerRef string, providerResponse []byte, failureReason string) error {
	var raw interface{}
	if len(providerResponse) > 0 {
		raw = providerResponse
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE order_items
		SET status = $1,
		    provider_ref = COALESCE(NULLIF($2, ''), provider_ref),
		    provider_response = COALESCE($3, provider_response),
		    failure_reason = $4
		WHERE id = $5
	`, status, providerRef, raw, failureReason, itemID)
	return err
}

// ListNonTerminalOlderThan feeds the reconciliation sweep: orders whose
// delivery is still in flight and that have not been touched recently.
func (r *Repository) ListNonTerminalOlderThan(ctx context.Context, age time.Duration, limit int) ([]Order, error) {
	var out []Order
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+orderColumns+` FROM orders
		WHERE status IN ($1, $2, $3)
		  AND payment_status = $4
		  AND created_at < now() - ($5 * interval '1 second')
		ORDER BY created_at
		LIMIT $6
	`, StatusPending, StatusConfirmed, StatusProcessing, PaymentPaid, int(age.Seconds()), limit)
	return out, err
}

// MarkPermanentlyFailed is the cleanup sweep: delivery-FAILED orders older
// than the retention window get the bookkeeping flag. Returns the number of
// orders marked.
func (r *Repository) MarkPermanentlyFailed(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET permanently_failed = true, updated_at = now()
		WHERE delivery_status = $1
		  AND permanently_failed = false
		  AND updated_at < now() - ($2 * interval '1 second')
	`, DeliveryFailed, int(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ItemByProviderKey locates a line item (and its order reference) by the
// provider's reference or by our idempotency key. Supplier webhooks carry
// one of the two.
func (r *Repository) ItemByProviderKey(ctx context.Context, key string) (*Item, string, error) {
	var row struct {
		Item
		OrderRef string `db:"order_ref"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT `+itemColumnsPrefixed+`, o.reference AS order_ref
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.provider_ref = $1 OR i.idempotency_key = $1
		LIMIT 1
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", ErrOrderNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return &row.Item, row.OrderRef, nil
}

const lastBundleOrderQuery = `
	SELECT o.created_at
	FROM orders o
	JOIN order_items i ON i.order_id = o.id
	WHERE i.phone = $1
	  AND o.product_type = 'data_bundle'
	  AND o.status NOT IN ('CANCELLED', 'REFUNDED')
	ORDER BY o.created_at DESC
	LIMIT 1`

// LastBundleOrderTime returns the creation time of the most recent
// data-bundle line for the normalized phone. Used by the cooldown guard.
func (r *Repository) LastBundleOrderTime(ctx context.Context, phone string) (time.Time, bool, error) {
	return lastBundleOrderTimeTx(ctx, r.db, phone)
}

func lastBundleOrderTimeTx(ctx context.Context, q sqlx.QueryerContext, phone string) (time.Time, bool, error) {
	var ts time.Time
	err := sqlx.GetContext(ctx, q, &ts, lastBundleOrderQuery, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}
