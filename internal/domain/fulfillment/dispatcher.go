package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/domain/order"
	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
	"github.com/dataplug/dataplug-api/internal/worker"
)

// SupplyClient is the slice of the supplier API the dispatcher uses.
type SupplyClient interface {
	CreateOrder(ctx context.Context, creds supplier.Credentials, req supplier.CreateOrderRequest) (*supplier.OrderResponse, error)
	GetOrderStatus(ctx context.Context, creds supplier.Credentials, reference string) (*supplier.OrderResponse, error)
}

// ProviderResolver picks the supply provider for a network.
type ProviderResolver interface {
	ResolveByNetwork(ctx context.Context, network string) (*Provider, error)
}

// OrderStore is the order persistence the dispatcher needs.
type OrderStore interface {
	GetByReference(ctx context.Context, reference string) (*order.Order, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, status order.DeliveryStatus, providerRef string, providerResponse []byte, failureReason string) error
}

// OrderSettler folds per-item outcomes back into the order aggregate.
type OrderSettler interface {
	RecomputeFromItems(ctx context.Context, reference string) (*order.Order, error)
}

// Dispatcher pushes paid orders to supply providers, one request per
// beneficiary line item, off the request path via a bounded worker pool.
type Dispatcher struct {
	store     OrderStore
	settler   OrderSettler
	providers ProviderResolver
	client    SupplyClient
	pool      *worker.Pool
	timeout   time.Duration
	metrics   *metrics.Metrics
}

func NewDispatcher(store OrderStore, settler OrderSettler, providers ProviderResolver, client SupplyClient, pool *worker.Pool, timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		store:     store,
		settler:   settler,
		providers: providers,
		client:    client,
		pool:      pool,
		timeout:   timeout,
		metrics:   m,
	}
}

// Submit queues the order for background dispatch. The buyer's HTTP
// response never waits on provider calls.
func (d *Dispatcher) Submit(reference string) bool {
	return d.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := d.Dispatch(ctx, reference); err != nil {
			log.Error().Err(err).Str("reference", reference).Msg("fulfillment dispatch failed")
		}
	})
}

// Dispatch sends every undispatched line item to its provider. Item
// failures are independent: one rejection never aborts the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, reference string) error {
	o, err := d.store.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if o.Status.IsTerminal() || o.PaymentStatus != order.PaymentPaid {
		return nil
	}

	start := time.Now()
	for i := range o.Items {
		item := &o.Items[i]
		if item.ProviderRef != "" || item.Status == order.DeliveryDelivered || item.Status == order.DeliveryFailed {
			continue
		}
		d.dispatchItem(ctx, item)
	}
	if d.metrics != nil {
		d.metrics.FulfillmentDuration.Observe(time.Since(start).Seconds())
	}

	_, err = d.settler.RecomputeFromItems(ctx, reference)
	return err
}

func (d *Dispatcher) dispatchItem(ctx context.Context, item *order.Item) {
	provider, err := d.providers.ResolveByNetwork(ctx, item.Network)
	if err != nil {
		d.markItem(ctx, item, order.DeliveryFailed, "", nil, err.Error())
		d.countItem("none", "no_provider")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.client.CreateOrder(callCtx, provider.Credentials(), supplier.CreateOrderRequest{
		Network:        item.Network,
		Recipient:      item.Phone,
		Capacity:       item.Capacity,
		IdempotencyKey: item.IdempotencyKey,
	})
	if err != nil {
		// Transport failure is retryable: the item stays PENDING and the
		// sweep re-submits it under the same idempotency key.
		log.Warn().Err(err).Str("idempotency_key", item.IdempotencyKey).Str("provider", provider.Code).Msg("provider call failed")
		d.countItem(provider.Code, "transport_error")
		return
	}

	status := itemStatusFrom(resp.Status)
	reason := ""
	if status == order.DeliveryFailed {
		reason = resp.Message
		if reason == "" {
			reason = "provider rejected item"
		}
	}
	d.markItem(ctx, item, status, resp.Reference, resp.Raw, reason)
	d.countItem(provider.Code, string(status))
}

// Reconcile re-polls the provider for every in-flight item and folds the
// results back. Items never dispatched (queue overflow, transport errors)
// are dispatched now.
func (d *Dispatcher) Reconcile(ctx context.Context, reference string) error {
	o, err := d.store.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if o.Status.IsTerminal() {
		return nil
	}
	if o.PaymentStatus != order.PaymentPaid {
		return nil
	}

	for i := range o.Items {
		item := &o.Items[i]
		switch {
		case item.Status == order.DeliveryDelivered || item.Status == order.DeliveryFailed:
			continue
		case item.ProviderRef == "":
			d.dispatchItem(ctx, item)
		default:
			d.reconcileItem(ctx, item)
		}
	}

	_, err = d.settler.RecomputeFromItems(ctx, reference)
	return err
}

func (d *Dispatcher) reconcileItem(ctx context.Context, item *order.Item) {
	provider, err := d.providers.ResolveByNetwork(ctx, item.Network)
	if err != nil {
		log.Warn().Err(err).Str("network", item.Network).Msg("no provider for reconcile")
		return
	}

	// Two attempts a second apart, same cadence as the gateway verify.
	var resp *supplier.OrderResponse
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		resp, err = d.client.GetOrderStatus(callCtx, provider.Credentials(), item.ProviderRef)
		cancel()
		if err == nil {
			break
		}
	}
	if err != nil {
		log.Warn().Err(err).Str("provider_ref", item.ProviderRef).Msg("status poll failed")
		d.countReconcile(provider.Code, "error")
		return
	}

	if _, _, ok := order.MapProviderStatus(resp.Status); !ok {
		log.Warn().Str("provider_ref", item.ProviderRef).Str("status", resp.Status).Msg("unrecognized provider status, item unchanged")
		d.countReconcile(provider.Code, "unrecognized")
		return
	}

	status := itemStatusFrom(resp.Status)
	reason := ""
	if status == order.DeliveryFailed {
		reason = resp.Message
		if reason == "" {
			reason = "provider reported failure"
		}
	}
	d.markItem(ctx, item, status, resp.Reference, resp.Raw, reason)
	d.countReconcile(provider.Code, resp.Status)
}

// itemStatusFrom maps a provider status onto one line item.
func itemStatusFrom(providerStatus string) order.DeliveryStatus {
	status, _, ok := order.MapProviderStatus(providerStatus)
	if !ok {
		return order.DeliveryProcessing
	}
	switch status {
	case order.StatusCompleted:
		return order.DeliveryDelivered
	case order.StatusFailed:
		return order.DeliveryFailed
	default:
		return order.DeliveryProcessing
	}
}

func (d *Dispatcher) markItem(ctx context.Context, item *order.Item, status order.DeliveryStatus, providerRef string, raw []byte, reason string) {
	if err := d.store.UpdateItem(ctx, item.ID, status, providerRef, raw, reason); err != nil {
		log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to update item")
		return
	}
	item.Status = status
	if providerRef != "" {
		item.ProviderRef = providerRef
	}
}

func (d *Dispatcher) countItem(provider, outcome string) {
	if d.metrics != nil {
		d.metrics.FulfillmentItemsTotal.WithLabelValues(provider, outcome).Inc()
	}
}

func (d *Dispatcher) countReconcile(provider, status string) {
	if d.metrics != nil {
		d.metrics.ReconciliationTotal.WithLabelValues(provider, status).Inc()
	}
}
