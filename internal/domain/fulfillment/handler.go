package fulfillment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/domain/order"
	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/response"
	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
)

// ProviderLister exposes the secrets needed to verify an inbound webhook.
type ProviderLister interface {
	ListActive(ctx context.Context) ([]Provider, error)
}

// WebhookStore locates and updates the line item a webhook refers to.
type WebhookStore interface {
	ItemByProviderKey(ctx context.Context, key string) (*order.Item, string, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, status order.DeliveryStatus, providerRef string, providerResponse []byte, failureReason string) error
}

// Handler exposes the supplier webhook and the cron sweep triggers.
type Handler struct {
	providers ProviderLister
	store     WebhookStore
	settler   OrderSettler
	sweeper   *Sweeper
	metrics   *metrics.Metrics
}

func NewHandler(providers ProviderLister, store WebhookStore, settler OrderSettler, sweeper *Sweeper, m *metrics.Metrics) *Handler {
	return &Handler{providers: providers, store: store, settler: settler, sweeper: sweeper, metrics: m}
}

type supplierEvent struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// SupplierWebhook receives delivery pushes. The sender is identified by
// which active provider's secret verifies the HMAC.
func (h *Handler) SupplierWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	timestamp := r.Header.Get("X-Timestamp")
	signature := r.Header.Get("X-Signature")

	providers, err := h.providers.ListActive(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}

	var sender *Provider
	for i := range providers {
		if supplier.VerifyWebhook(providers[i].APISecret, timestamp, r.URL.Path, body, signature) {
			sender = &providers[i]
			break
		}
	}
	if sender == nil {
		h.count("supplier", "bad_signature")
		response.Unauthorized(w, "invalid signature")
		return
	}

	var event supplierEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Reference == "" {
		h.count("supplier", "malformed")
		response.BadRequest(w, "invalid payload")
		return
	}

	item, orderRef, err := h.store.ItemByProviderKey(r.Context(), event.Reference)
	if err != nil {
		h.count("supplier", "unknown_reference")
		response.NotFound(w, "unknown reference")
		return
	}

	if _, _, ok := order.MapProviderStatus(event.Status); !ok {
		log.Warn().Str("reference", event.Reference).Str("status", event.Status).Msg("unrecognized supplier status, item unchanged")
		h.count("supplier", "unrecognized_status")
		response.OK(w, map[string]string{"status": "ignored"})
		return
	}

	status := itemStatusFrom(event.Status)
	reason := ""
	if status == order.DeliveryFailed {
		reason = event.Message
		if reason == "" {
			reason = "provider reported failure"
		}
	}
	if err := h.store.UpdateItem(r.Context(), item.ID, status, event.Reference, body, reason); err != nil {
		h.count("supplier", "error")
		response.InternalError(w)
		return
	}
	if _, err := h.settler.RecomputeFromItems(r.Context(), orderRef); err != nil {
		log.Error().Err(err).Str("reference", orderRef).Msg("recompute after supplier webhook failed")
		h.count("supplier", "error")
		response.InternalError(w)
		return
	}

	h.count("supplier", "applied")
	response.OK(w, map[string]string{"status": "ok"})
}

// UpdateOrderStatuses is the external cron trigger for the status sweep.
func (h *Handler) UpdateOrderStatuses(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.SweepStatuses(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("cron status sweep failed")
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"reconciled": n})
}

// CleanupFailedOrders is the external cron trigger for the cleanup sweep.
func (h *Handler) CleanupFailedOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.CleanupFailed(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("cron cleanup sweep failed")
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]interface{}{"marked": n})
}

func (h *Handler) count(source, disposition string) {
	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(source, disposition).Inc()
	}
}
