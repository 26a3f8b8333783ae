package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the settlement engine counters exposed on /metrics.
type Metrics struct {
	OrdersCreatedTotal   *prometheus.CounterVec
	OrdersCompletedTotal *prometheus.CounterVec
	OrdersFailedTotal    *prometheus.CounterVec

	FulfillmentItemsTotal    *prometheus.CounterVec
	FulfillmentDuration      prometheus.Histogram
	ReconciliationTotal      *prometheus.CounterVec
	WalletMutationsTotal     *prometheus.CounterVec
	ProfitCreditsTotal       prometheus.Counter
	CooldownRejectionsTotal  prometheus.Counter
	WebhookEventsTotal       *prometheus.CounterVec
	SweepOrdersExaminedTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		OrdersCreatedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders created, by product type and funding source",
		}, []string{"product_type", "funding"}),
		OrdersCompletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_completed_total",
			Help: "Orders that reached COMPLETED",
		}, []string{"product_type"}),
		OrdersFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_failed_total",
			Help: "Orders that reached FAILED",
		}, []string{"product_type"}),
		FulfillmentItemsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_items_total",
			Help: "Per-item fulfillment dispatch outcomes",
		}, []string{"provider", "outcome"}),
		FulfillmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fulfillment_dispatch_duration_seconds",
			Help:    "Wall time of a full order dispatch",
			Buckets: prometheus.DefBuckets,
		}),
		ReconciliationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_events_total",
			Help: "Status applications, by driver and resulting status",
		}, []string{"driver", "status"}),
		WalletMutationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_mutations_total",
			Help: "Wallet ledger mutations by type",
		}, []string{"type"}),
		ProfitCreditsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reseller_profit_credits_total",
			Help: "Reseller profit credits applied (at most one per order)",
		}),
		CooldownRejectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cooldown_rejections_total",
			Help: "Checkouts rejected by the beneficiary cooldown window",
		}),
		WebhookEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook deliveries, by source and disposition",
		}, []string{"source", "disposition"}),
		SweepOrdersExaminedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sweep_orders_examined_total",
			Help: "Orders re-polled by the periodic reconciliation sweep",
		}),
	}
}
