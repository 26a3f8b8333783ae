package order

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dataplug/dataplug-api/internal/domain/reseller"
	"github.com/dataplug/dataplug-api/internal/domain/wallet"
	"github.com/dataplug/dataplug-api/internal/pkg/metrics"
	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
	"github.com/dataplug/dataplug-api/internal/pkg/response"
)

// WebhookHandler receives payment gateway events. One endpoint settles all
// three money flows: checkout charges, wallet top-ups and payout transfers.
type WebhookHandler struct {
	orders    *Service
	wallets   *wallet.Service
	resellers *reseller.Service
	secretKey string
	rdb       *redis.Client
	metrics   *metrics.Metrics
}

func NewWebhookHandler(orders *Service, wallets *wallet.Service, resellers *reseller.Service, secretKey string, rdb *redis.Client, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		orders:    orders,
		wallets:   wallets,
		resellers: resellers,
		secretKey: secretKey,
		rdb:       rdb,
		metrics:   m,
	}
}

func (h *WebhookHandler) Paystack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	if !paystack.VerifyWebhookSignature(h.secretKey, body, r.Header.Get("x-paystack-signature")) {
		h.count("paystack", "bad_signature")
		response.Unauthorized(w, "invalid signature")
		return
	}

	event, err := paystack.ParseEvent(body)
	if err != nil {
		h.count("paystack", "malformed")
		response.BadRequest(w, "invalid payload")
		return
	}

	if h.seenBefore(r.Context(), body) {
		h.count("paystack", "replay")
		response.OK(w, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.apply(r.Context(), event); err != nil {
		log.Error().Err(err).Str("event", event.Event).Msg("paystack webhook apply failed")
		h.count("paystack", "error")
		// Non-2xx makes the gateway redeliver; the handlers are idempotent
		// so a retry is safe.
		response.InternalError(w)
		return
	}

	h.count("paystack", "applied")
	response.OK(w, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) apply(ctx context.Context, event *paystack.Event) error {
	data, err := paystack.DecodeEventData(event)
	if err != nil {
		return err
	}

	switch event.Event {
	case "charge.success":
		if strings.HasPrefix(data.Reference, "TOP-") {
			return h.wallets.ConfirmTopUp(ctx, data.Reference, data.Amount)
		}
		return h.orders.ConfirmPayment(ctx, data.Reference)
	case "transfer.success":
		return h.resellers.ApplyTransferStatus(ctx, data.Reference, "success")
	case "transfer.failed":
		return h.resellers.ApplyTransferStatus(ctx, data.Reference, "failed")
	case "transfer.reversed":
		return h.resellers.ApplyTransferStatus(ctx, data.Reference, "reversed")
	default:
		log.Debug().Str("event", event.Event).Msg("ignoring paystack event")
		return nil
	}
}

// seenBefore suppresses replays by body hash. Redis is optional; without it
// the handlers' own idempotency still holds.
func (h *WebhookHandler) seenBefore(ctx context.Context, body []byte) bool {
	if h.rdb == nil {
		return false
	}

	sum := sha256.Sum256(body)
	key := "webhook:paystack:" + hex.EncodeToString(sum[:])
	set, err := h.rdb.SetNX(ctx, key, 1, 24*time.Hour).Result()
	if err != nil {
		log.Warn().Err(err).Msg("webhook dedupe store unavailable")
		return false
	}
	return !set
}

func (h *WebhookHandler) count(source, disposition string) {
	if h.metrics != nil {
		h.metrics.WebhookEventsTotal.WithLabelValues(source, disposition).Inc()
	}
}
