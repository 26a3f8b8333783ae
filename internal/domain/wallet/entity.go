package wallet

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeTopUp   TransactionType = "topup"
	TransactionTypePayment TransactionType = "order_payment"
	TransactionTypeRefund  TransactionType = "refund"
)

// Wallet is one buyer's prepaid balance in pesewas.
type Wallet struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is the paired ledger entry written with every balance
// mutation. ReferenceID ties the entry to an order or top-up and is the
// idempotency key for retries.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Amount      int64           `db:"amount" json:"amount"`
	Type        TransactionType `db:"type" json:"type"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

type TopUpStatus string

const (
	TopUpStatusPending TopUpStatus = "pending"
	TopUpStatusPaid    TopUpStatus = "paid"
	TopUpStatusFailed  TopUpStatus = "failed"
)

// TopUp is a pending gateway-funded wallet credit awaiting confirmation.
type TopUp struct {
	Reference string      `db:"reference" json:"reference"`
	UserID    uuid.UUID   `db:"user_id" json:"user_id"`
	Amount    int64       `db:"amount" json:"amount"`
	Status    TopUpStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	PaidAt    *time.Time  `db:"paid_at" json:"paid_at,omitempty"`
}
