package reseller

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
)

// Gateway is the payout slice of the payment gateway.
type Gateway interface {
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*paystack.ResolvedAccount, error)
	CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*paystack.TransferRecipient, error)
	InitiateTransfer(ctx context.Context, amount int64, recipientCode, reference, reason string) (*paystack.TransferData, error)
	VerifyTransfer(ctx context.Context, reference string) (*paystack.TransferData, error)
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

// CreditOrderProfit credits the margin of one completed order. Replays are
// absorbed by the order_ref uniqueness in the repository.
func (s *Service) CreditOrderProfit(ctx context.Context, userID uuid.UUID, orderRef string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if err := s.repo.CreditForOrder(ctx, userID, orderRef, amount); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ProfitCreditsTotal.Inc()
	}
	log.Info().Str("user_id", userID.String()).Str("order_ref", orderRef).Int64("amount", amount).Msg("reseller profit credited")
	return nil
}

func (s *Service) GetSummary(ctx context.Context, userID uuid.UUID) (*ProfitSummary, error) {
	return s.repo.GetSummary(ctx, userID)
}

func (s *Service) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ProfitEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListEntries(ctx, userID, limit, offset)
}

func (s *Service) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListWithdrawals(ctx, userID, limit, offset)
}

// RequestWithdrawal deducts profit and pushes a gateway transfer. The
// deduction happens before the transfer so a gateway timeout can never
// leave paid-out money still spendable; a confirmed failure refunds it.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uuid.UUID, amount int64, accountNumber, bankCode string) (*Withdrawal, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.gateway.ResolveAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payout account: %w", err)
	}

	wd := &Withdrawal{
		ID:            uuid.New(),
		Reference:     "WDR-" + s.newRef(),
		UserID:        userID,
		Amount:        amount,
		Status:        WithdrawalStatusPending,
		AccountNumber: account.AccountNumber,
		BankCode:      bankCode,
		AccountName:   account.AccountName,
	}
	if err := s.repo.CreateWithdrawal(ctx, wd); err != nil {
		return nil, err
	}

	recipient, err := s.gateway.CreateTransferRecipient(ctx, account.AccountName, account.AccountNumber, bankCode)
	if err != nil {
		s.failWithdrawal(ctx, wd.Reference, "failed to register payout recipient")
		return nil, fmt.Errorf("failed to register payout recipient: %w", err)
	}

	transfer, err := s.gateway.InitiateTransfer(ctx, amount, recipient.RecipientCode, wd.Reference, "profit withdrawal")
	if err != nil {
		s.failWithdrawal(ctx, wd.Reference, "failed to initiate transfer")
		return nil, fmt.Errorf("failed to initiate transfer: %w", err)
	}

	if err := s.repo.UpdateWithdrawal(ctx, wd.Reference, WithdrawalStatusProcessing, transfer.TransferCode, ""); err != nil {
		return nil, err
	}

	log.Info().Str("user_id", userID.String()).Str("reference", wd.Reference).Int64("amount", amount).Msg("withdrawal initiated")
	return s.repo.GetWithdrawal(ctx, wd.Reference)
}

// ApplyTransferStatus maps a gateway transfer event onto the withdrawal.
// Fed by both the webhook and VerifyWithdrawal.
func (s *Service) ApplyTransferStatus(ctx context.Context, reference, status string) error {
	switch status {
	case "success":
		// CompleteWithdrawal re-deducts when the withdrawal was already
		// refunded as failed, so a transfer that succeeds after a timeout
		// cannot leave the reseller with both refund and payout.
		if err := s.repo.CompleteWithdrawal(ctx, reference); err != nil {
			return err
		}
		log.Info().Str("reference", reference).Msg("withdrawal completed")
		return nil
	case "failed", "reversed":
		if err := s.repo.RefundWithdrawal(ctx, reference, "transfer "+status); err != nil {
			return err
		}
		log.Warn().Str("reference", reference).Str("status", status).Msg("withdrawal failed, profit refunded")
		return nil
	default:
		log.Warn().Str("reference", reference).Str("status", status).Msg("unrecognized transfer status, withdrawal unchanged")
		return nil
	}
}

// VerifyWithdrawal polls the gateway for a withdrawal still in flight.
func (s *Service) VerifyWithdrawal(ctx context.Context, reference string) (*Withdrawal, error) {
	wd, err := s.repo.GetWithdrawal(ctx, reference)
	if err != nil {
		return nil, err
	}
	if wd.Status == WithdrawalStatusCompleted || wd.Status == WithdrawalStatusFailed {
		return wd, nil
	}

	transfer, err := s.gateway.VerifyTransfer(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyTransferStatus(ctx, reference, transfer.Status); err != nil {
		return nil, err
	}
	return s.repo.GetWithdrawal(ctx, reference)
}

func (s *Service) failWithdrawal(ctx context.Context, reference, reason string) {
	if err := s.repo.RefundWithdrawal(ctx, reference, reason); err != nil {
		log.Error().Err(err).Str("reference", reference).Msg("failed to refund withdrawal")
	}
}
