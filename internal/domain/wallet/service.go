package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
)

// Gateway is the slice of the payment gateway the wallet needs.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionData, error)
}

type Service struct {
	repo    *Repository
	gateway Gateway
	newRef  func() string
	metrics *metrics.Metrics
}

func NewService(repo *Repository, gateway Gateway, newRef func() string, m *metrics.Metrics) *Service {
	return &Service{repo: repo, gateway: gateway, newRef: newRef, metrics: m}
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactions(ctx, userID, limit, offset)
}

// InitializeTopUp creates a pending top-up and a gateway checkout session.
// The wallet is only credited when the gateway confirms the charge.
func (s *Service) InitializeTopUp(ctx context.Context, userID uuid.UUID, amount int64, email string) (*paystack.InitializeResponse, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	reference := "TOP-" + s.newRef()
	if err := s.repo.CreatePendingTopUp(ctx, reference, userID, amount); err != nil {
		return nil, err
	}

	resp, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:     email,
		Amount:    amount,
		Reference: reference,
		Currency:  "GHS",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gateway topup: %w", err)
	}

	log.Info().Str("user_id", userID.String()).Int64("amount", amount).Str("reference", reference).Msg("wallet topup initialized")
	return resp, nil
}

// ConfirmTopUp applies a gateway-confirmed top-up. Safe to call from both
// the webhook and the verify endpoint: the ledger reference makes replays
// no-ops.
func (s *Service) ConfirmTopUp(ctx context.Context, reference string, paidAmount int64) error {
	topup, err := s.repo.GetTopUp(ctx, reference)
	if err != nil {
		return err
	}
	if topup.Status == TopUpStatusPaid {
		return nil
	}
	if paidAmount != topup.Amount {
		log.Error().Str("reference", reference).Int64("expected", topup.Amount).Int64("paid", paidAmount).Msg("topup amount mismatch")
		return ErrAmountMismatch
	}

	if err := s.repo.TopUp(ctx, topup.UserID, topup.Amount, reference); err != nil {
		return err
	}
	if err := s.repo.MarkTopUp(ctx, reference, TopUpStatusPaid); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.WalletMutationsTotal.WithLabelValues(string(TransactionTypeTopUp)).Inc()
	}
	log.Info().Str("reference", reference).Int64("amount", topup.Amount).Msg("wallet topup applied")
	return nil
}

// VerifyTopUp is the synchronous driver for a pending top-up: asks the
// gateway for the authoritative state and applies it.
func (s *Service) VerifyTopUp(ctx context.Context, reference string) (*TopUp, error) {
	topup, err := s.repo.GetTopUp(ctx, reference)
	if err != nil {
		return nil, err
	}
	if topup.Status == TopUpStatusPaid {
		return topup, nil
	}

	data, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if data.Status == "success" {
		if err := s.ConfirmTopUp(ctx, reference, data.Amount); err != nil {
			return nil, err
		}
	}
	return s.repo.GetTopUp(ctx, reference)
}

// Spend debits the wallet for an order. The order reference is the
// idempotency key: retried checkouts never double-debit.
func (s *Service) Spend(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	if amount <= 0 || referenceID == "" {
		return ErrInvalidAmount
	}
	if err := s.repo.Spend(ctx, userID, amount, referenceID); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return ErrInsufficientFunds
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.WalletMutationsTotal.WithLabelValues(string(TransactionTypePayment)).Inc()
	}
	log.Info().Str("user_id", userID.String()).Int64("amount", amount).Str("reference_id", referenceID).Msg("wallet payment applied")
	return nil
}

// Refund credits money back for an order. Administrative operation; there
// is no automatic partial refund on bulk failures.
// DebitExists reports whether a payment debit with this reference was
// recorded for the user.
func (s *Service) DebitExists(ctx context.Context, userID uuid.UUID, referenceID string) (bool, error) {
	return s.repo.DebitExists(ctx, userID, referenceID)
}

func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error {
	if amount <= 0 || referenceID == "" {
		return ErrInvalidAmount
	}
	if err := s.repo.Refund(ctx, userID, amount, referenceID); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.WalletMutationsTotal.WithLabelValues(string(TransactionTypeRefund)).Inc()
	}
	log.Info().Str("user_id", userID.String()).Int64("amount", amount).Str("reference_id", referenceID).Msg("wallet refund applied")
	return nil
}
