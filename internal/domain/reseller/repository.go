package reseller

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// lockBalance serializes profit mutations for one reseller.
func (r *Repository) lockBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profit_balances (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return 0, err
	}

	var balance int64
	err := tx.GetContext(ctx, &balance, `SELECT balance FROM profit_balances WHERE user_id = $1 FOR UPDATE`, userID)
	return balance, err
}

// CreditForOrder records the margin for a completed order. The unique
// order_ref makes this at-most-once: a second call for the same order is
// a no-op regardless of which sweep, webhook, or verify path got there
// first.
func (r *Repository) CreditForOrder(ctx context.Context, userID uuid.UUID, orderRef string, amount int64) error {
	if amount <= 0 {
		return nil
	}

	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := r.lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO profit_entries (id, user_id, order_ref, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_ref) DO NOTHING
	`, uuid.New(), userID, orderRef, amount)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profit_balances SET balance = $1, updated_at = now() WHERE user_id = $2
	`, balance+amount, userID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetSummary(ctx context.Context, userID uuid.UUID) (*ProfitSummary, error) {
	var summary ProfitSummary
	err := r.db.GetContext(ctx, &summary.Balance, `
		SELECT COALESCE(balance, 0) FROM profit_balances WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		summary.Balance = 0
	} else if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &summary.TotalEarned, `
		SELECT COALESCE(SUM(amount), 0) FROM profit_entries WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *Repository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ProfitEntry, error) {
	var out []ProfitEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, user_id, order_ref, amount, created_at
		FROM profit_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return out, err
}

// CreateWithdrawal deducts the amount from the profit balance and records
// the withdrawal in one transaction, so the balance can never be spent
// twice by concurrent requests.
func (r *Repository) CreateWithdrawal(ctx context.Context, wd *Withdrawal) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := r.lockBalance(ctx, tx, wd.UserID)
	if err != nil {
		return err
	}
	if balance < wd.Amount {
		return ErrInsufficientProfit
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profit_balances SET balance = $1, updated_at = now() WHERE user_id = $2
	`, balance-wd.Amount, wd.UserID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO withdrawals (id, reference, user_id, amount, status, account_number, bank_code, account_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, wd.ID, wd.Reference, wd.UserID, wd.Amount, wd.Status, wd.AccountNumber, wd.BankCode, wd.AccountName); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) GetWithdrawal(ctx context.Context, reference string) (*Withdrawal, error) {
	var wd Withdrawal
	err := r.db.GetContext(ctx, &wd, `
		SELECT id, reference, user_id, amount, status, account_number, bank_code, account_name,
		       COALESCE(transfer_code, '') AS transfer_code,
		       COALESCE(failure_reason, '') AS failure_reason,
		       created_at, updated_at
		FROM withdrawals
		WHERE reference = $1
	`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wd, nil
}

func (r *Repository) UpdateWithdrawal(ctx context.Context, reference string, status WithdrawalStatus, transferCode, failureReason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = $1,
		    transfer_code = COALESCE(NULLIF($2, ''), transfer_code),
		    failure_reason = $3,
		    updated_at = now()
		WHERE reference = $4
	`, status, transferCode, failureReason, reference)
	return err
}

// RefundWithdrawal puts the deducted amount back after a failed transfer.
// Guarded by the status transition so a replayed failure event cannot
// refund twice.
func (r *Repository) RefundWithdrawal(ctx context.Context, reference, failureReason string) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var wd Withdrawal
	err = tx.GetContext(ctx, &wd, `
		SELECT id, reference, user_id, amount, status
		FROM withdrawals
		WHERE reference = $1
		FOR UPDATE
	`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWithdrawalNotFound
	}
	if err != nil {
		return err
	}
	if wd.Status == WithdrawalStatusFailed || wd.Status == WithdrawalStatusCompleted {
		return nil
	}

	balance, err := r.lockBalance(ctx, tx, wd.UserID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE profit_balances SET balance = $1, updated_at = now() WHERE user_id = $2
	`, balance+wd.Amount, wd.UserID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE withdrawals SET status = $1, failure_reason = $2, updated_at = now() WHERE reference = $3
	`, WithdrawalStatusFailed, failureReason, reference); err != nil {
		return err
	}

	return tx.Commit()
}

// CompleteWithdrawal marks a transfer as paid out. A withdrawal already
// refunded as failed (the gateway timed out, then delivered the money
// anyway) gets its amount deducted again so the balance still reflects
// every paid withdrawal.
func (r *Repository) CompleteWithdrawal(ctx context.Context, reference string) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var wd Withdrawal
	err = tx.GetContext(ctx, &wd, `
		SELECT id, reference, user_id, amount, status
		FROM withdrawals
		WHERE reference = $1
		FOR UPDATE
	`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWithdrawalNotFound
	}
	if err != nil {
		return err
	}
	if wd.Status == WithdrawalStatusCompleted {
		return nil
	}

	if wd.Status == WithdrawalStatusFailed {
		balance, err := r.lockBalance(ctx, tx, wd.UserID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE profit_balances SET balance = $1, updated_at = now() WHERE user_id = $2
		`, balance-wd.Amount, wd.UserID); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE withdrawals SET status = $1, failure_reason = '', updated_at = now() WHERE reference = $2
	`, WithdrawalStatusCompleted, reference); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Withdrawal, error) {
	var out []Withdrawal
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, reference, user_id, amount, status, account_number, bank_code, account_name,
		       COALESCE(transfer_code, '') AS transfer_code,
		       COALESCE(failure_reason, '') AS failure_reason,
		       created_at, updated_at
		FROM withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return out, err
}
