package order

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dataplug/dataplug-api/internal/domain/catalog"
)

// Status is the payment-centric lifecycle of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// DeliveryStatus tracks the external provider independently of payment.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryProcessing DeliveryStatus = "PROCESSING"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
	DeliveryFailed     DeliveryStatus = "FAILED"
)

// PaymentStatus tracks the funding leg.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// FundingSource is how the buyer paid.
type FundingSource string

const (
	FundingWallet  FundingSource = "wallet"
	FundingGateway FundingSource = "gateway"
)

// statusTransitions is the closed transition table. Anything not listed is
// an invalid transition.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusFailed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {StatusRefunded, StatusCancelled},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether reconciliation should ignore further events.
// CANCELLED and REFUNDED are administrative and also terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

// MapProviderStatus folds a raw provider status into the order and delivery
// statuses. ok is false for unrecognized values, which must be logged and
// left unapplied, never guessed into a terminal state.
func MapProviderStatus(providerStatus string) (Status, DeliveryStatus, bool) {
	switch providerStatus {
	case "completed", "delivered", "success":
		return StatusCompleted, DeliveryDelivered, true
	case "failed", "error":
		return StatusFailed, DeliveryFailed, true
	case "processing", "pending", "queued":
		return StatusPending, DeliveryProcessing, true
	default:
		return "", "", false
	}
}

// Order is the settlement record for one purchase. Amounts are in pesewas;
// Profit is the platform margin and AgentProfit the reseller margin, and
// the two always sum to Amount.
type Order struct {
	ID             uuid.UUID           `db:"id" json:"id"`
	Reference      string              `db:"reference" json:"reference"`
	UserID         uuid.UUID           `db:"user_id" json:"user_id"`
	ResellerID     *uuid.UUID          `db:"reseller_id" json:"reseller_id,omitempty"`
	ProductType    catalog.ProductType `db:"product_type" json:"product_type"`
	Funding        FundingSource       `db:"funding" json:"funding"`
	Amount         int64               `db:"amount" json:"amount"`
	Profit         int64               `db:"profit" json:"profit"`
	AgentProfit    int64               `db:"agent_profit" json:"agent_profit"`
	Status         Status              `db:"status" json:"status"`
	DeliveryStatus DeliveryStatus      `db:"delivery_status" json:"delivery_status"`
	PaymentStatus  PaymentStatus       `db:"payment_status" json:"payment_status"`
	FailureReason  string              `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
	CompletedAt    *time.Time          `db:"completed_at" json:"completed_at,omitempty"`

	Items []Item `db:"-" json:"items,omitempty"`
}

// Item is one beneficiary line of an order. The idempotency key is
// reference + "-" + recipient so the provider collapses duplicate
// submissions. The raw provider response is retained verbatim.
type Item struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	OrderID          uuid.UUID       `db:"order_id" json:"-"`
	Phone            string          `db:"phone" json:"phone"`
	BundleID         *uuid.UUID      `db:"bundle_id" json:"bundle_id,omitempty"`
	Network          string          `db:"network" json:"network,omitempty"`
	Capacity         string          `db:"capacity" json:"capacity,omitempty"`
	Quantity         int             `db:"quantity" json:"quantity"`
	UnitPrice        int64           `db:"unit_price" json:"unit_price"`
	BaseCost         int64           `db:"base_cost" json:"base_cost"`
	Status           DeliveryStatus  `db:"status" json:"status"`
	IdempotencyKey   string          `db:"idempotency_key" json:"-"`
	ProviderRef      string          `db:"provider_ref" json:"-"`
	ProviderResponse json.RawMessage `db:"provider_response" json:"-"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason,omitempty"`
}
