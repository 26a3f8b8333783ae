package fulfillment_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dataplug/dataplug-api/internal/domain/fulfillment"
	"github.com/dataplug/dataplug-api/internal/domain/order"
	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
)

func signedWebhookRequest(t *testing.T, secret string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/supplier", bytes.NewReader(body))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	base := supplier.BuildSignatureBase(ts, http.MethodPost, "/webhooks/supplier", string(body))
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", supplier.Sign(base, secret))
	return req
}

func TestSupplierWebhookAppliesDelivery(t *testing.T) {
	provider := testProvider()
	o := paidOrder("0551000020")
	o.Items[0].Status = order.DeliveryProcessing
	o.Items[0].ProviderRef = "SUP-X"
	store := newMemStore(o)
	settler := &memSettler{}

	h := fulfillment.NewHandler(&memResolver{provider: provider}, store, settler, nil, nil)

	body := []byte(`{"reference":"SUP-X","status":"delivered"}`)
	rec := httptest.NewRecorder()
	h.SupplierWebhook(rec, signedWebhookRequest(t, provider.APISecret, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryDelivered {
		t.Fatalf("item = %s, want DELIVERED", got.Items[0].Status)
	}
	if len(settler.calls) != 1 || settler.calls[0] != o.Reference {
		t.Fatalf("settler calls = %v", settler.calls)
	}
}

func TestSupplierWebhookRejectsBadSignature(t *testing.T) {
	provider := testProvider()
	o := paidOrder("0551000021")
	o.Items[0].ProviderRef = "SUP-Y"
	store := newMemStore(o)

	h := fulfillment.NewHandler(&memResolver{provider: provider}, store, &memSettler{}, nil, nil)

	body := []byte(`{"reference":"SUP-Y","status":"delivered"}`)
	rec := httptest.NewRecorder()
	h.SupplierWebhook(rec, signedWebhookRequest(t, "wrong-secret", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryPending {
		t.Fatal("item must be unchanged after rejected webhook")
	}
}

func TestSupplierWebhookIgnoresUnrecognizedStatus(t *testing.T) {
	provider := testProvider()
	o := paidOrder("0551000022")
	o.Items[0].Status = order.DeliveryProcessing
	o.Items[0].ProviderRef = "SUP-Z"
	store := newMemStore(o)
	settler := &memSettler{}

	h := fulfillment.NewHandler(&memResolver{provider: provider}, store, settler, nil, nil)

	body := []byte(`{"reference":"SUP-Z","status":"otp-required"}`)
	rec := httptest.NewRecorder()
	h.SupplierWebhook(rec, signedWebhookRequest(t, provider.APISecret, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got, _ := store.GetByReference(context.Background(), o.Reference)
	if got.Items[0].Status != order.DeliveryProcessing {
		t.Fatalf("item = %s, want PROCESSING unchanged", got.Items[0].Status)
	}
	if len(settler.calls) != 0 {
		t.Fatal("unrecognized status must not trigger recompute")
	}
}

type memSweepStore struct {
	orders []order.Order
	marked int64
}

func (s *memSweepStore) ListNonTerminalOlderThan(_ context.Context, _ time.Duration, _ int) ([]order.Order, error) {
	return s.orders, nil
}

func (s *memSweepStore) MarkPermanentlyFailed(_ context.Context, _ time.Duration) (int64, error) {
	return s.marked, nil
}

type memReconciler struct {
	calls []string
}

func (r *memReconciler) Reconcile(_ context.Context, reference string) error {
	r.calls = append(r.calls, reference)
	return nil
}

func TestCronEndpointsDriveSweeps(t *testing.T) {
	store := &memSweepStore{
		orders: []order.Order{{Reference: "ORD-1"}, {Reference: "ORD-2"}},
		marked: 3,
	}
	rec2 := &memReconciler{}
	sweeper := fulfillment.NewSweeper(store, rec2, 0, time.Minute, 0, 24*time.Hour, nil)
	h := fulfillment.NewHandler(nil, nil, nil, sweeper, nil)

	rec := httptest.NewRecorder()
	h.UpdateOrderStatuses(rec, httptest.NewRequest(http.MethodPost, "/cron/update-order-statuses", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status sweep = %d", rec.Code)
	}
	if len(rec2.calls) != 2 {
		t.Fatalf("reconciled %d orders, want 2", len(rec2.calls))
	}

	rec = httptest.NewRecorder()
	h.CleanupFailedOrders(rec, httptest.NewRequest(http.MethodPost, "/cron/cleanup-failed-orders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup sweep = %d", rec.Code)
	}
}
