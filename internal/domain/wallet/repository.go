package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := r.EnsureWallet(ctx, userID); err != nil {
		return 0, err
	}

	var balance int64
	err := r.db.GetContext(ctx, &balance, `SELECT balance FROM user_wallets WHERE user_id = $1`, userID)
	return balance, err
}

func (r *Repository) beginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

// lockWallet serializes all mutations for one account. Different accounts
// never block each other.
func (r *Repository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return 0, err
	}

	var balance int64
	err := tx.GetContext(ctx, &balance, `SELECT balance FROM user_wallets WHERE user_id = $1 FOR UPDATE`, userID)
	return balance, err
}

func (r *Repository) getTransactionAmountByRef(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, txType TransactionType, referenceID string) (int64, bool, error) {
	if referenceID == "" {
		return 0, false, nil
	}

	var amount int64
	err := tx.GetContext(ctx, &amount, `
		SELECT amount
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
		LIMIT 1
	`, userID, string(txType), referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return amount, true, nil
}

func (r *Repository) updateBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, balance int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE user_wallets SET balance = $1, updated_at = now() WHERE user_id = $2`, balance, userID)
	return err
}

func (r *Repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	var ref interface{}
	if referenceID == "" {
		ref = nil
	} else {
		ref = referenceID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (user_id, amount, type, reference_id)
		VALUES ($1, $2, $3, $4)
	`, userID, amount, string(txType), ref)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// apply performs one atomic balance mutation with its paired ledger entry.
// Retries with the same reference are absorbed; the same reference with a
// different amount is a conflict.
func (r *Repository) apply(ctx context.Context, userID uuid.UUID, amount int64, txType TransactionType, referenceID string) error {
	tx, err := r.beginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	balance, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		return err
	}

	existingAmount, exists, err := r.getTransactionAmountByRef(ctx, tx, userID, txType, referenceID)
	if err != nil {
		return err
	}
	if exists {
		if existingAmount != amount {
			return ErrReferenceConflict
		}
		return nil
	}

	nextBalance := balance + amount
	if nextBalance < 0 {
		return ErrInsufficientFunds
	}

	if err := r.updateBalance(ctx, tx, userID, nextBalance); err != nil {
		return err
	}

	if err := r.insertTransaction(ctx, tx, userID, amount, txType, referenceID); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			existingAmount, exists, checkErr := r.getTransactionAmountByRef(ctx, tx, userID, txType, referenceID)
			if checkErr != nil {
				return checkErr
			}
			if !exists || existingAmount != amount {
				return ErrReferenceConflict
			}
			return nil
		}
		return err
	}

	return tx.Commit()
}

func (r *Repository) TopUp(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	return r.apply(ctx, userID, amount, TransactionTypeTopUp, referenceID)
}

func (r *Repository) Spend(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	return r.apply(ctx, userID, -amount, TransactionTypePayment, referenceID)
}

func (r *Repository) Refund(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	return r.apply(ctx, userID, amount, TransactionTypeRefund, referenceID)
}

// DebitExists reports whether a payment debit for the reference was ever
// recorded. Reconciliation uses it to recover orders debited but never
// confirmed.
func (r *Repository) DebitExists(ctx context.Context, userID uuid.UUID, referenceID string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(1)
		FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
	`, userID, string(TransactionTypePayment), referenceID)
	return n > 0, err
}

// CreatePendingTopUp records a gateway top-up awaiting its charge.success.
func (r *Repository) CreatePendingTopUp(ctx context.Context, reference string, userID uuid.UUID, amount int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wallet_topups (reference, user_id, amount, status)
		VALUES ($1, $2, $3, $4)
	`, reference, userID, amount, TopUpStatusPending)
	return err
}

func (r *Repository) GetTopUp(ctx context.Context, reference string) (*TopUp, error) {
	var t TopUp
	err := r.db.GetContext(ctx, &t, `
		SELECT reference, user_id, amount, status, created_at, paid_at
		FROM wallet_topups
		WHERE reference = $1
	`, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTopUpNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) MarkTopUp(ctx context.Context, reference string, status TopUpStatus) error {
	var paidAt interface{}
	if status == TopUpStatusPaid {
		paidAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE wallet_topups SET status = $1, paid_at = COALESCE($2, paid_at)
		WHERE reference = $3
	`, status, paidAt, reference)
	return err
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	var out []Transaction
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, user_id, amount, type, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return out, err
}
