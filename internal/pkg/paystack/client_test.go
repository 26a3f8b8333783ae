package paystack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
)

func TestInitializeTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_abc" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]string{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         "ORD-1",
			},
		})
	}))
	defer srv.Close()

	client := paystack.NewClient(paystack.Config{BaseURL: srv.URL, SecretKey: "sk_test_abc"})
	resp, err := client.InitializeTransaction(context.Background(), paystack.InitializeRequest{
		Email:     "buyer@example.com",
		Amount:    300,
		Reference: "ORD-1",
	})
	if err != nil {
		t.Fatalf("InitializeTransaction failed: %v", err)
	}
	if resp.AuthorizationURL == "" || resp.Reference != "ORD-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ORD-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]interface{}{
				"reference": "ORD-1",
				"status":    "success",
				"amount":    300,
				"currency":  "GHS",
			},
		})
	}))
	defer srv.Close()

	client := paystack.NewClient(paystack.Config{BaseURL: srv.URL, SecretKey: "sk_test_abc"})
	data, err := client.VerifyTransaction(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("VerifyTransaction failed: %v", err)
	}
	if data.Status != "success" || data.Amount != 300 {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestCallRejectsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  false,
			"message": "Invalid key",
		})
	}))
	defer srv.Close()

	client := paystack.NewClient(paystack.Config{BaseURL: srv.URL, SecretKey: "sk_bad"})
	if _, err := client.VerifyTransaction(context.Background(), "ORD-1"); err == nil {
		t.Fatal("expected gateway error")
	}
}

func TestClientValidatesInput(t *testing.T) {
	client := paystack.NewClient(paystack.Config{SecretKey: "sk_test_abc"})

	if _, err := client.InitializeTransaction(context.Background(), paystack.InitializeRequest{Amount: 0, Reference: "x"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := client.InitializeTransaction(context.Background(), paystack.InitializeRequest{Amount: 100}); err == nil {
		t.Fatal("expected error for empty reference")
	}
	if _, err := client.InitiateTransfer(context.Background(), 0, "RCP_1", "WD-1", "payout"); err == nil {
		t.Fatal("expected error for zero transfer amount")
	}
}
