package reseller

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus tracks a payout through the gateway.
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

// ProfitEntry is one margin credit for one completed order. The order
// reference is unique, which is what makes profit crediting at-most-once.
type ProfitEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	OrderRef  string    `db:"order_ref" json:"order_ref"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Withdrawal is a payout of accumulated profit to a bank or momo account.
type Withdrawal struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	Reference     string           `db:"reference" json:"reference"`
	UserID        uuid.UUID        `db:"user_id" json:"user_id"`
	Amount        int64            `db:"amount" json:"amount"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	AccountNumber string           `db:"account_number" json:"account_number"`
	BankCode      string           `db:"bank_code" json:"bank_code"`
	AccountName   string           `db:"account_name" json:"account_name"`
	TransferCode  string           `db:"transfer_code" json:"-"`
	FailureReason string           `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// ProfitSummary is the reseller-facing view of their ledger.
type ProfitSummary struct {
	Balance     int64 `json:"balance"`
	TotalEarned int64 `json:"total_earned"`
}
