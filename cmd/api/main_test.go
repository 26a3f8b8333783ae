package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// The wallet handler owns the /wallet subtree via Mount while the checkout
// path /wallet/pay is registered directly on the parent router. chi panics
// on conflicting patterns, so the registration order used in main must both
// register cleanly and route each path to its own handler.
func TestWalletMountDoesNotShadowWalletPay(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	root := chi.NewRouter()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				t.Fatalf("route registration panicked: %v", rec)
			}
		}()
		root.Route("/api/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Post("/wallet/pay", ok)
				r.Post("/checkout/initialize", ok)
			})
			sub := chi.NewRouter()
			sub.Get("/balance", ok)
			sub.Post("/topup/initialize", ok)
			r.Mount("/wallet", sub)
		})
	}()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/wallet/pay"},
		{http.MethodGet, "/api/v1/wallet/balance"},
		{http.MethodPost, "/api/v1/wallet/topup/initialize"},
		{http.MethodPost, "/api/v1/checkout/initialize"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rr := httptest.NewRecorder()
		root.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s %s: status %d, want 200", tc.method, tc.path, rr.Code)
		}
	}
}
