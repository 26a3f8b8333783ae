package fulfillment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dataplug/dataplug-api/internal/domain/fulfillment"
	"github.com/dataplug/dataplug-api/internal/domain/order"
	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
	"github.com/dataplug/dataplug-api/internal/worker"
)

type memStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order
}

func newMemStore(orders ...*order.Order) *memStore {
	s := &memStore{orders: map[string]*order.Order{}}
	for _, o := range orders {
		s.orders[o.Reference] = o
	}
	return s
}

func (s *memStore) GetByReference(_ context.Context, reference string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[reference]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	copied := *o
	copied.Items = append([]order.Item(nil), o.Items...)
	return &copied, nil
}

func (s *memStore) UpdateItem(_ context.Context, itemID uuid.UUID, status order.DeliveryStatus, providerRef string, providerResponse []byte, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		for i := range o.Items {
			if o.Items[i].ID == itemID {
				o.Items[i].Status = status
				if providerRef != "" {
					o.Items[i].ProviderRef = providerRef
				}
				if len(providerResponse) > 0 {
					o.Items[i].ProviderResponse = json.RawMessage(providerResponse)
				}
				o.Items[i].FailureReason = failureReason
				return nil
			}
		}
	}
	return order.ErrOrderNotFound
}

func (s *memStore) ItemByProviderKey(_ context.Context, key string) (*order.Item, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, o := range s.orders {
		for i := range o.Items {
			if o.Items[i].ProviderRef == key || o.Items[i].IdempotencyKey == key {
				item := o.Items[i]
				return &item, ref, nil
			}
		}
	}
	return nil, "", order.ErrOrderNotFound
}

type memSettler struct {
	mu    sync.Mutex
	calls []string
}

func (s *memSettler) RecomputeFromItems(_ context.Context, reference string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, reference)
	return nil, nil
}

type memResolver struct {
	provider *fulfillment.Provider
	err      error
}

func (r *memResolver) ResolveByNetwork(_ context.Context, _ string) (*fulfillment.Provider, error) {
	return r.provider, r.err
}

func (r *memResolver) ListActive(_ context.Context) ([]fulfillment.Provider, error) {
	if r.provider == nil {
		return nil, nil
	}
	return []fulfillment.Provider{*r.provider}, nil
}

type memClient struct {
	mu         sync.Mutex
	created    []supplier.CreateOrderRequest
	failPhones map[string]string // recipient -> rejection message
	errPhones  map[string]error  // recipient -> transport error
	statuses   map[string]string // providerRef -> status
	statusErrN map[string]int    // providerRef -> failures before answering
	polls      int
}

func (c *memClient) CreateOrder(_ context.Context, _ supplier.Credentials, req supplier.CreateOrderRequest) (*supplier.OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.errPhones[req.Recipient]; ok {
		return nil, err
	}
	c.created = append(c.created, req)
	if msg, ok := c.failPhones[req.Recipient]; ok {
		return &supplier.OrderResponse{Reference: "", Status: "failed", Message: msg, Raw: json.RawMessage(`{"status":"failed"}`)}, nil
	}
	return &supplier.OrderResponse{
		Reference: "SUP-" + req.Recipient,
		Status:    "pending",
		Raw:       json.RawMessage(`{"status":"pending"}`),
	}, nil
}

func (c *memClient) GetOrderStatus(_ context.Context, _ supplier.Credentials, reference string) (*supplier.OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.statusErrN[reference] > 0 {
		c.statusErrN[reference]--
		return nil, fmt.Errorf("gateway timeout")
	}
	status, ok := c.statuses[reference]
	if !ok {
		return nil, fmt.Errorf("unknown reference %s", reference)
	}
	return &supplier.OrderResponse{Reference: reference, Status: status, Raw: json.RawMessage(`{}`)}, nil
}

func testProvider() *fulfillment.Provider {
	return &fulfillment.Provider{
		ID: uuid.New(), Code: "primary", Name: "Primary", BaseURL: "https://supply.test",
		APIKey: "key", APISecret: "secret", IsDefault: true, IsActive: true,
	}
}

func paidOrder(phones ...string) *order.Order {
	o := &order.Order{
		ID:             uuid.New(),
		Reference:      "ORD-" + uuid.New().String()[:8],
		UserID:         uuid.New(),
		ProductType:    "data_bundle",
		Funding:        order.FundingWallet,
		Status:         order.StatusConfirmed,
		DeliveryStatus: order.DeliveryPending,
		PaymentStatus:  order.PaymentPaid,
	}
	for _, p := range phones {
		o.Items = append(o.Items, order.Item{
			ID: uuid.New(), OrderID: o.ID, Phone: p, Network: "MTN", Capacity: "1GB",
			Quantity: 1, Status: order.DeliveryPending,
			IdempotencyKey: o.Reference + "-" + p,
		})
	}
	return o
}

func newDispatcher(store *memStore, settler *memSettler, client *memClient, resolver *memResolver) *fulfillment.Dispatcher {
	pool := worker.NewPool(2, 8)
	return fulfillment.NewDispatcher(store, settler, resolver, client, pool, time.Second, nil)
}

func TestDispatchItemFailuresAreIndependent(t *testing.T) {
	o := paidOrder("0551000001", "0551000002", "0551000003")
	store := newMemStore(o)
	settler := &memSettler{}
	client := &memClient{failPhones: map[string]string{"0551000002": "number barred"}}
	d := newDispatcher(store, settler, client, &memResolver{provider: testProvider()})

	if err := d.Dispatch(context.Background(), o.Reference); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	got, _ := store.GetByReference(context.Background(), o.Reference)
	byPhone := map[string]order.Item{}
	for _, item := range got.Items {
		byPhone[item.Phone] = item
	}

	if byPhone["0551000001"].Status != order.DeliveryProcessing {
		t.Errorf("item 1 = %s, want PROCESSING", byPhone["0551000001"].Status)
	}
	if byPhone["0551000002"].Status != order.DeliveryFailed {
		t.Errorf("item 2 = %s, want FAILED", byPhone["0551000002"].Status)
	}
	if byPhone["0551000002"].FailureReason != "number barred" {
		t.Errorf("item 2 reason = %q", byPhone["0551000002"].FailureReason)
	}
	if byPhone["0551000003"].Status != order.DeliveryProcessing {
		t.Errorf("item 3 = %s, want PROCESSING", byPhone["0551000003"].Status)
	}
	if len(settler.calls) != 1 || settler.calls[0] != o.Reference {
		t.Fatalf("settler calls = %v", settler.calls)
	}
	// Raw provider responses retained.
	if len(byPhone["0551000001"].ProviderResponse) == 0 {
		t.Error("provider response not retained")
	}
}

func TestDispatchTransportErrorLeavesItemPending(t *testing.T) {
	o := paidOrder("0551000004")
	store := newMemStore(o)
	client := &memClient{errPhones: map[string]error{"0551000004": errors.New("dial timeout")}}
	d := newDispatcher(store, &memSettler{}, client, &memResolver{provider: testProvider()})

	if err := d.Dispatch(context.Background(), o.Reference); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryPending {
		t.Fatalf("item = %s after transport error, want PENDING for retry", got.Items[0].Status)
	}
	if got.Items[0].ProviderRef != "" {
		t.Fatal("item must not carry a provider ref after transport error")
	}
}

func TestDispatchUsesIdempotencyKey(t *testing.T) {
	o := paidOrder("0551000005")
	store := newMemStore(o)
	client := &memClient{}
	d := newDispatcher(store, &memSettler{}, client, &memResolver{provider: testProvider()})

	if err := d.Dispatch(context.Background(), o.Reference); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if len(client.created) != 1 {
		t.Fatalf("created %d provider orders, want 1", len(client.created))
	}
	want := o.Reference + "-0551000005"
	if client.created[0].IdempotencyKey != want {
		t.Fatalf("idempotency key = %q, want %q", client.created[0].IdempotencyKey, want)
	}
}

func TestDispatchSkipsUnpaidAndTerminalOrders(t *testing.T) {
	unpaid := paidOrder("0551000006")
	unpaid.PaymentStatus = order.PaymentPending
	terminal := paidOrder("0551000007")
	terminal.Status = order.StatusFailed

	store := newMemStore(unpaid, terminal)
	client := &memClient{}
	d := newDispatcher(store, &memSettler{}, client, &memResolver{provider: testProvider()})

	if err := d.Dispatch(context.Background(), unpaid.Reference); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if err := d.Dispatch(context.Background(), terminal.Reference); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(client.created) != 0 {
		t.Fatalf("created %d provider orders for unpaid/terminal, want 0", len(client.created))
	}
}

func TestReconcileAppliesProviderStatuses(t *testing.T) {
	o := paidOrder("0551000008", "0551000009")
	o.Items[0].Status = order.DeliveryProcessing
	o.Items[0].ProviderRef = "SUP-A"
	o.Items[1].Status = order.DeliveryProcessing
	o.Items[1].ProviderRef = "SUP-B"

	store := newMemStore(o)
	settler := &memSettler{}
	client := &memClient{statuses: map[string]string{"SUP-A": "delivered", "SUP-B": "failed"}}
	d := newDispatcher(store, settler, client, &memResolver{provider: testProvider()})

	if err := d.Reconcile(context.Background(), o.Reference); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryDelivered {
		t.Errorf("item A = %s, want DELIVERED", got.Items[0].Status)
	}
	if got.Items[1].Status != order.DeliveryFailed {
		t.Errorf("item B = %s, want FAILED", got.Items[1].Status)
	}
	if len(settler.calls) != 1 {
		t.Fatalf("settler calls = %v", settler.calls)
	}
}

func TestReconcileRetriesStatusPollOnce(t *testing.T) {
	o := paidOrder("0551000015")
	o.Items[0].Status = order.DeliveryProcessing
	o.Items[0].ProviderRef = "SUP-R"

	store := newMemStore(o)
	client := &memClient{
		statuses:   map[string]string{"SUP-R": "delivered"},
		statusErrN: map[string]int{"SUP-R": 1},
	}
	d := newDispatcher(store, &memSettler{}, client, &memResolver{provider: testProvider()})

	if err := d.Reconcile(context.Background(), o.Reference); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryDelivered {
		t.Errorf("item = %s after poll retry, want DELIVERED", got.Items[0].Status)
	}
	if client.polls != 2 {
		t.Fatalf("polls = %d, want 2", client.polls)
	}
}

func TestReconcileLeavesUnrecognizedStatusUnchanged(t *testing.T) {
	o := paidOrder("0551000010")
	o.Items[0].Status = order.DeliveryProcessing
	o.Items[0].ProviderRef = "SUP-C"

	store := newMemStore(o)
	client := &memClient{statuses: map[string]string{"SUP-C": "on-hold"}}
	d := newDispatcher(store, &memSettler{}, client, &memResolver{provider: testProvider()})

	if err := d.Reconcile(context.Background(), o.Reference); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryProcessing {
		t.Fatalf("item = %s after unrecognized status, want PROCESSING", got.Items[0].Status)
	}
}

func TestReconcileDispatchesUndispatchedItems(t *testing.T) {
	o := paidOrder("0551000011")
	store := newMemStore(o)
	client := &memClient{}
	d := newDispatcher(store, &memSettler{}, client, &memResolver{provider: testProvider()})

	if err := d.Reconcile(context.Background(), o.Reference); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(client.created) != 1 {
		t.Fatalf("created %d provider orders, want 1 (late dispatch)", len(client.created))
	}
}

func TestSubmitRunsDispatchOnPool(t *testing.T) {
	o := paidOrder("0551000012")
	store := newMemStore(o)
	settler := &memSettler{}
	client := &memClient{}
	pool := worker.NewPool(1, 4)
	d := fulfillment.NewDispatcher(store, settler, &memResolver{provider: testProvider()}, client, pool, time.Second, nil)

	if !d.Submit(o.Reference) {
		t.Fatal("submit rejected with free queue")
	}
	pool.Stop()

	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryProcessing {
		t.Fatalf("item = %s after pooled dispatch, want PROCESSING", got.Items[0].Status)
	}
}
