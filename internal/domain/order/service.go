package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/domain/catalog"
	"github.com/dataplug/dataplug-api/internal/domain/pricing"
	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
	"github.com/dataplug/dataplug-api/internal/pkg/phone"
)

// Catalog is the read side of the product inventory.
type Catalog interface {
	GetBundle(ctx context.Context, id uuid.UUID) (*catalog.Bundle, error)
	CheckerPrice(ctx context.Context, checkerType string) (int64, error)
	ClaimCheckers(ctx context.Context, checkerType, orderRef string, quantity int) ([]catalog.ResultChecker, error)
	CheckersByOrder(ctx context.Context, orderRef string) ([]catalog.ResultChecker, error)
}

// Pricer resolves what a buyer pays for one product.
type Pricer interface {
	Resolve(ctx context.Context, productID uuid.UUID, buyer pricing.BuyerContext) (pricing.Quote, error)
}

// WalletLedger is the buyer-side money movement the checkout needs.
type WalletLedger interface {
	Spend(ctx context.Context, userID uuid.UUID, amount int64, referenceID string) error
	DebitExists(ctx context.Context, userID uuid.UUID, referenceID string) (bool, error)
}

// ProfitLedger credits reseller margin, at most once per order reference.
type ProfitLedger interface {
	CreditOrderProfit(ctx context.Context, userID uuid.UUID, orderRef string, amount int64) error
}

// Gateway is the payment leg of a gateway-funded checkout.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionData, error)
}

// Dispatcher hands paid orders to the fulfillment side. Implemented by the
// fulfillment package and injected after construction to keep the
// dependency one-way.
type Dispatcher interface {
	// Submit queues the order for background dispatch. Returns false when
	// the queue is full or stopped; the sweep picks such orders up later.
	Submit(reference string) bool
	// Reconcile polls the provider for every in-flight item of the order
	// and folds the results back into the order state.
	Reconcile(ctx context.Context, reference string) error
}

// Buyer is the authenticated principal driving a checkout.
type Buyer struct {
	UserID   uuid.UUID
	Role     string
	Reseller bool
}

// CheckoutItem is one requested beneficiary line.
type CheckoutItem struct {
	Phone    string    `json:"phone" validate:"required"`
	BundleID uuid.UUID `json:"bundle_id" validate:"required"`
	Quantity int       `json:"quantity"`
}

// CheckoutRequest covers both product families: data bundles carry Items,
// result checkers carry CheckerType+Quantity.
type CheckoutRequest struct {
	ProductType catalog.ProductType `json:"product_type" validate:"required"`
	Items       []CheckoutItem      `json:"items,omitempty" validate:"omitempty,dive"`
	CheckerType string              `json:"checker_type,omitempty"`
	Quantity    int                 `json:"quantity,omitempty"`
	Email       string              `json:"email,omitempty"`
}

type Service struct {
	repo       *Repository
	catalog    Catalog
	pricer     Pricer
	wallet     WalletLedger
	profits    ProfitLedger
	gateway    Gateway
	cooldown   *CooldownGuard
	dispatcher Dispatcher
	newRef     func() string
	metrics    *metrics.Metrics
}

func NewService(repo *Repository, cat Catalog, pricer Pricer, wallet WalletLedger, profits ProfitLedger, gateway Gateway, cooldown *CooldownGuard, newRef func() string, m *metrics.Metrics) *Service {
	return &Service{
		repo:     repo,
		catalog:  cat,
		pricer:   pricer,
		wallet:   wallet,
		profits:  profits,
		gateway:  gateway,
		cooldown: cooldown,
		newRef:   newRef,
		metrics:  m,
	}
}

// SetDispatcher wires the fulfillment side in after both services exist.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// build resolves prices, runs the cooldown guard and assembles the order
// with its profit split. No money moves here.
func (s *Service) build(ctx context.Context, buyer Buyer, req CheckoutRequest) (*Order, error) {
	o := &Order{
		ID:             uuid.New(),
		Reference:      "ORD-" + s.newRef(),
		UserID:         buyer.UserID,
		ProductType:    req.ProductType,
		Status:         StatusPending,
		DeliveryStatus: DeliveryPending,
		PaymentStatus:  PaymentPending,
	}
	if buyer.Reseller {
		id := buyer.UserID
		o.ResellerID = &id
	}

	switch req.ProductType {
	case catalog.ProductDataBundle:
		if err := s.buildBundleItems(ctx, buyer, req.Items, o); err != nil {
			return nil, err
		}
	case catalog.ProductResultChecker:
		if err := s.buildCheckerItems(ctx, req, o); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown product type %q", req.ProductType)
	}

	// The split must balance before any balance mutation. A mismatch here
	// is a pricing bug, not a transient condition.
	if o.AgentProfit+o.Profit != o.Amount {
		log.Error().Str("reference", o.Reference).
			Int64("amount", o.Amount).Int64("profit", o.Profit).Int64("agent_profit", o.AgentProfit).
			Msg("profit split mismatch")
		return nil, ErrProfitSplitMismatch
	}
	return o, nil
}

func (s *Service) buildBundleItems(ctx context.Context, buyer Buyer, items []CheckoutItem, o *Order) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}

	buyerCtx := pricing.BuyerContext{
		UserID:        buyer.UserID,
		Role:          buyer.Role,
		Authenticated: buyer.UserID != uuid.Nil,
	}

	seen := map[string]bool{}
	for _, item := range items {
		if item.Quantity < 1 {
			item.Quantity = 1
		}

		normalized, err := phone.Normalize(item.Phone)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidPhone, item.Phone)
		}

		// One cooldown check per unique beneficiary, before any debit.
		if !seen[normalized] {
			seen[normalized] = true
			allowed, remaining, err := s.cooldown.Check(ctx, normalized)
			if err != nil {
				return err
			}
			if !allowed {
				return &CooldownError{Phone: normalized, Remaining: remaining}
			}
		}

		bundle, err := s.catalog.GetBundle(ctx, item.BundleID)
		if err != nil {
			return err
		}

		quote, err := s.pricer.Resolve(ctx, item.BundleID, buyerCtx)
		if err != nil {
			return err
		}

		bundleID := item.BundleID
		qty := int64(item.Quantity)
		o.Items = append(o.Items, Item{
			ID:             uuid.New(),
			OrderID:        o.ID,
			Phone:          normalized,
			BundleID:       &bundleID,
			Network:        bundle.Network,
			Capacity:       bundle.Capacity,
			Quantity:       item.Quantity,
			UnitPrice:      quote.UnitPrice,
			BaseCost:       quote.BaseCost,
			Status:         DeliveryPending,
			IdempotencyKey: o.Reference + "-" + normalized,
		})
		o.Amount += quote.UnitPrice * qty
		o.AgentProfit += quote.Margin() * qty
	}
	o.Profit = o.Amount - o.AgentProfit
	return nil
}

func (s *Service) buildCheckerItems(ctx context.Context, req CheckoutRequest, o *Order) error {
	if req.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if req.CheckerType == "" {
		return ErrEmptyOrder
	}

	price, err := s.catalog.CheckerPrice(ctx, req.CheckerType)
	if err != nil {
		return err
	}

	o.Items = append(o.Items, Item{
		ID:             uuid.New(),
		OrderID:        o.ID,
		Phone:          "",
		Capacity:       req.CheckerType,
		Quantity:       req.Quantity,
		UnitPrice:      price,
		BaseCost:       price,
		Status:         DeliveryPending,
		IdempotencyKey: o.Reference + "-" + req.CheckerType,
	})
	o.Amount = price * int64(req.Quantity)
	o.Profit = o.Amount
	o.AgentProfit = 0
	return nil
}

// InitializeCheckout creates a PENDING order and a gateway checkout
// session. The order confirms when the gateway reports the charge.
func (s *Service) InitializeCheckout(ctx context.Context, buyer Buyer, req CheckoutRequest) (*Order, *paystack.InitializeResponse, error) {
	o, err := s.build(ctx, buyer, req)
	if err != nil {
		return nil, nil, err
	}
	o.Funding = FundingGateway

	if err := s.repo.Create(ctx, o, s.cooldown.Window()); err != nil {
		return nil, nil, err
	}

	init, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:     req.Email,
		Amount:    o.Amount,
		Reference: o.Reference,
		Currency:  "GHS",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize gateway checkout: %w", err)
	}

	if s.metrics != nil {
		s.metrics.OrdersCreatedTotal.WithLabelValues(string(o.ProductType), string(o.Funding)).Inc()
	}
	log.Info().Str("reference", o.Reference).Int64("amount", o.Amount).Int("items", len(o.Items)).Msg("gateway checkout initialized")
	return o, init, nil
}

// WalletPay is the wallet-funded checkout: debit first, then confirm and
// dispatch. The debit is keyed on the order reference, so a retried request
// cannot double-debit.
func (s *Service) WalletPay(ctx context.Context, buyer Buyer, req CheckoutRequest) (*Order, error) {
	o, err := s.build(ctx, buyer, req)
	if err != nil {
		return nil, err
	}
	o.Funding = FundingWallet

	if err := s.repo.Create(ctx, o, s.cooldown.Window()); err != nil {
		return nil, err
	}

	if err := s.wallet.Spend(ctx, buyer.UserID, o.Amount, o.Reference); err != nil {
		if markErr := s.repo.UpdateStatus(ctx, o.Reference, StatusFailed, DeliveryFailed, "wallet debit failed"); markErr != nil {
			log.Error().Err(markErr).Str("reference", o.Reference).Msg("failed to mark unpaid order")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreatedTotal.WithLabelValues(string(o.ProductType), string(o.Funding)).Inc()
	}
	if err := s.ConfirmPayment(ctx, o.Reference); err != nil {
		return nil, err
	}
	return s.repo.GetByReference(ctx, o.Reference)
}

// ConfirmPayment moves a PENDING order to CONFIRMED once money is in, then
// hands it to fulfillment. Result checkers are fulfilled inline by claiming
// credential stock.
func (s *Service) ConfirmPayment(ctx context.Context, reference string) error {
	o, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if o.PaymentStatus == PaymentPaid {
		return nil
	}

	if err := s.repo.UpdatePaymentStatus(ctx, reference, PaymentPaid); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, reference, StatusConfirmed, DeliveryPending, ""); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	log.Info().Str("reference", reference).Msg("order payment confirmed")

	if o.ProductType == catalog.ProductResultChecker {
		return s.fulfillCheckers(ctx, o)
	}

	if s.dispatcher != nil {
		if !s.dispatcher.Submit(reference) {
			log.Warn().Str("reference", reference).Msg("fulfillment queue full, order left for sweep")
		}
	}
	return nil
}

// fulfillCheckers claims stock and completes the order in one step; there
// is no external provider leg for credentials.
func (s *Service) fulfillCheckers(ctx context.Context, o *Order) error {
	item := o.Items[0]
	if _, err := s.catalog.ClaimCheckers(ctx, item.Capacity, o.Reference, item.Quantity); err != nil {
		if markErr := s.repo.UpdateStatus(ctx, o.Reference, StatusFailed, DeliveryFailed, err.Error()); markErr != nil {
			log.Error().Err(markErr).Str("reference", o.Reference).Msg("failed to mark checker order failed")
		}
		return err
	}
	if err := s.repo.UpdateItem(ctx, item.ID, DeliveryDelivered, "", nil, ""); err != nil {
		return err
	}
	_, err := s.ApplyProviderStatus(ctx, o.Reference, "completed")
	return err
}

// CheckerCredential is a claimed exam credential exposed to the buyer on a
// paid checker order.
type CheckerCredential struct {
	CheckerType string `json:"checker_type"`
	Serial      string `json:"serial"`
	Pin         string `json:"pin"`
}

// CheckerCredentials returns the credentials claimed for a paid
// result-checker order.
func (s *Service) CheckerCredentials(ctx context.Context, o *Order) ([]CheckerCredential, error) {
	if o.ProductType != catalog.ProductResultChecker || o.PaymentStatus != PaymentPaid {
		return nil, nil
	}
	checkers, err := s.catalog.CheckersByOrder(ctx, o.Reference)
	if err != nil {
		return nil, err
	}
	out := make([]CheckerCredential, 0, len(checkers))
	for _, c := range checkers {
		out = append(out, CheckerCredential{CheckerType: c.CheckerType, Serial: c.Serial, Pin: c.Pin})
	}
	return out, nil
}

// VerifyTransaction is the synchronous reconciliation driver: confirms a
// gateway payment (two attempts, a second apart) and then re-polls delivery
// for anything still in flight.
func (s *Service) VerifyTransaction(ctx context.Context, reference string) (*Order, error) {
	o, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	if o.Funding == FundingGateway && o.PaymentStatus == PaymentPending {
		if err := s.verifyGatewayPayment(ctx, reference); err != nil {
			return nil, err
		}
		o, err = s.repo.GetByReference(ctx, reference)
		if err != nil {
			return nil, err
		}
	}

	// A wallet order can be left debited but unconfirmed if the process
	// died between Spend and ConfirmPayment. The debit row keyed on the
	// order reference is the source of truth.
	if o.Funding == FundingWallet && o.PaymentStatus == PaymentPending {
		debited, err := s.wallet.DebitExists(ctx, o.UserID, reference)
		if err != nil {
			return nil, err
		}
		if debited {
			if err := s.ConfirmPayment(ctx, reference); err != nil {
				return nil, err
			}
			o, err = s.repo.GetByReference(ctx, reference)
			if err != nil {
				return nil, err
			}
		}
	}

	if !o.Status.IsTerminal() && o.PaymentStatus == PaymentPaid && s.dispatcher != nil {
		if err := s.dispatcher.Reconcile(ctx, reference); err != nil {
			log.Warn().Err(err).Str("reference", reference).Msg("delivery reconcile failed")
		}
		return s.repo.GetByReference(ctx, reference)
	}
	return o, nil
}

func (s *Service) verifyGatewayPayment(ctx context.Context, reference string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		data, err := s.gateway.VerifyTransaction(ctx, reference)
		if err != nil {
			lastErr = err
			continue
		}
		if data.Status == "success" {
			return s.ConfirmPayment(ctx, reference)
		}
		return nil
	}
	return fmt.Errorf("gateway verification failed: %w", lastErr)
}

// ApplyProviderStatus is the single state-update contract shared by verify,
// webhooks and the sweep. Terminal orders absorb further events unchanged.
// The first transition to COMPLETED triggers the one reseller profit
// credit.
func (s *Service) ApplyProviderStatus(ctx context.Context, reference, providerStatus string) (*Order, error) {
	o, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		// The credit is idempotent per order reference, so re-attempt it
		// on replayed COMPLETED events: a transient ledger failure after
		// the status commit gets another chance instead of losing the
		// margin.
		if o.Status == StatusCompleted {
			if err := s.creditProfit(ctx, o); err != nil {
				return nil, err
			}
		}
		return o, nil
	}

	status, delivery, ok := MapProviderStatus(strings.ToLower(providerStatus))
	if !ok {
		log.Warn().Str("reference", reference).Str("provider_status", providerStatus).Msg("unrecognized provider status, order unchanged")
		return o, nil
	}
	if status == StatusPending {
		// In-flight provider statuses only move the delivery projection;
		// the order status stays where the lifecycle put it.
		status = o.Status
	}

	failureReason := o.FailureReason
	if status == StatusFailed && failureReason == "" {
		failureReason = "provider reported failure"
	}
	if err := s.repo.UpdateStatus(ctx, reference, status, delivery, failureReason); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			log.Warn().Str("reference", reference).Str("from", string(o.Status)).Str("to", string(status)).Msg("skipped invalid transition")
			return o, nil
		}
		return nil, err
	}

	switch status {
	case StatusCompleted:
		if err := s.creditProfit(ctx, o); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.OrdersCompletedTotal.WithLabelValues(string(o.ProductType)).Inc()
		}
		log.Info().Str("reference", reference).Msg("order completed")
	case StatusFailed:
		if s.metrics != nil {
			s.metrics.OrdersFailedTotal.WithLabelValues(string(o.ProductType)).Inc()
		}
		log.Warn().Str("reference", reference).Str("reason", failureReason).Msg("order failed")
	}

	return s.repo.GetByReference(ctx, reference)
}

func (s *Service) creditProfit(ctx context.Context, o *Order) error {
	if o.ResellerID == nil || o.AgentProfit <= 0 {
		return nil
	}
	return s.profits.CreditOrderProfit(ctx, *o.ResellerID, o.Reference, o.AgentProfit)
}

// RecomputeFromItems folds per-item outcomes into the aggregate: COMPLETED
// only when every item delivered; FAILED (with the failed recipients
// enumerated) once no item is still pending.
func (s *Service) RecomputeFromItems(ctx context.Context, reference string) (*Order, error) {
	o, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		// Same retry as ApplyProviderStatus: a redelivered supplier
		// webhook re-attempts a credit that failed after completion.
		if o.Status == StatusCompleted {
			if err := s.creditProfit(ctx, o); err != nil {
				return nil, err
			}
		}
		return o, nil
	}

	delivered := 0
	var failed []string
	pending := false
	for _, item := range o.Items {
		switch item.Status {
		case DeliveryDelivered:
			delivered++
		case DeliveryFailed:
			failed = append(failed, item.Phone)
		default:
			pending = true
		}
	}

	switch {
	case delivered == len(o.Items):
		return s.ApplyProviderStatus(ctx, reference, "completed")
	case !pending && len(failed) > 0:
		reason := "delivery failed for: " + strings.Join(failed, ", ")
		if err := s.repo.UpdateStatus(ctx, reference, StatusFailed, DeliveryFailed, reason); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.OrdersFailedTotal.WithLabelValues(string(o.ProductType)).Inc()
		}
		log.Warn().Str("reference", reference).Str("reason", reason).Msg("order failed")
		return s.repo.GetByReference(ctx, reference)
	default:
		if err := s.repo.UpdateStatus(ctx, reference, StatusProcessing, DeliveryProcessing, ""); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return s.repo.GetByReference(ctx, reference)
	}
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*Order, error) {
	return s.repo.GetByReference(ctx, reference)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
