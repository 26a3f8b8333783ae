package order_test

import (
	"testing"

	"github.com/dataplug/dataplug-api/internal/domain/order"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to order.Status
		allowed  bool
	}{
		{order.StatusPending, order.StatusConfirmed, true},
		{order.StatusPending, order.StatusFailed, true},
		{order.StatusPending, order.StatusCancelled, true},
		{order.StatusPending, order.StatusCompleted, false},
		{order.StatusConfirmed, order.StatusProcessing, true},
		{order.StatusConfirmed, order.StatusCompleted, true},
		{order.StatusProcessing, order.StatusCompleted, true},
		{order.StatusProcessing, order.StatusFailed, true},
		{order.StatusProcessing, order.StatusConfirmed, false},
		{order.StatusCompleted, order.StatusRefunded, true},
		{order.StatusCompleted, order.StatusFailed, false},
		{order.StatusCompleted, order.StatusProcessing, false},
		{order.StatusFailed, order.StatusCompleted, false},
		{order.StatusFailed, order.StatusRefunded, true},
		{order.StatusCancelled, order.StatusConfirmed, false},
		{order.StatusRefunded, order.StatusCompleted, false},
	}

	for _, tc := range cases {
		if got := order.CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestSelfTransitionIsNoOp(t *testing.T) {
	for _, s := range []order.Status{
		order.StatusPending, order.StatusConfirmed, order.StatusProcessing,
		order.StatusCompleted, order.StatusFailed, order.StatusCancelled, order.StatusRefunded,
	} {
		if !order.CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s) = false, want true", s, s)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[order.Status]bool{
		order.StatusPending:    false,
		order.StatusConfirmed:  false,
		order.StatusProcessing: false,
		order.StatusCompleted:  true,
		order.StatusFailed:     true,
		order.StatusCancelled:  true,
		order.StatusRefunded:   true,
	}
	for s, want := range terminal {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in       string
		status   order.Status
		delivery order.DeliveryStatus
		ok       bool
	}{
		{"completed", order.StatusCompleted, order.DeliveryDelivered, true},
		{"delivered", order.StatusCompleted, order.DeliveryDelivered, true},
		{"success", order.StatusCompleted, order.DeliveryDelivered, true},
		{"failed", order.StatusFailed, order.DeliveryFailed, true},
		{"error", order.StatusFailed, order.DeliveryFailed, true},
		{"processing", order.StatusPending, order.DeliveryProcessing, true},
		{"pending", order.StatusPending, order.DeliveryProcessing, true},
		{"queued", order.StatusPending, order.DeliveryProcessing, true},
		{"on-hold", "", "", false},
		{"", "", "", false},
	}

	for _, tc := range cases {
		status, delivery, ok := order.MapProviderStatus(tc.in)
		if ok != tc.ok || status != tc.status || delivery != tc.delivery {
			t.Errorf("MapProviderStatus(%q) = (%s, %s, %v), want (%s, %s, %v)",
				tc.in, status, delivery, ok, tc.status, tc.delivery, tc.ok)
		}
	}
}
