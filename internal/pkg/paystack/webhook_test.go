package paystack_test

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/dataplug/dataplug-api/internal/pkg/paystack"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ORD-1","status":"success","amount":300}}`)
	secret := "sk_test_abc"

	if !paystack.VerifyWebhookSignature(secret, body, sign(secret, body)) {
		t.Fatal("expected valid signature to verify")
	}
	if paystack.VerifyWebhookSignature(secret, body, sign("sk_other", body)) {
		t.Fatal("expected wrong secret to fail")
	}
	if paystack.VerifyWebhookSignature(secret, []byte(`{"tampered":true}`), sign(secret, body)) {
		t.Fatal("expected tampered body to fail")
	}
	if paystack.VerifyWebhookSignature("", body, sign(secret, body)) {
		t.Fatal("expected empty secret to fail")
	}
	if paystack.VerifyWebhookSignature(secret, body, "") {
		t.Fatal("expected empty signature to fail")
	}
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ORD-1","status":"success","amount":300}}`)

	event, err := paystack.ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if event.Event != "charge.success" {
		t.Fatalf("event = %q", event.Event)
	}

	data, err := paystack.DecodeEventData(event)
	if err != nil {
		t.Fatalf("DecodeEventData failed: %v", err)
	}
	if data.Reference != "ORD-1" || data.Status != "success" || data.Amount != 300 {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestParseEventRejectsMalformed(t *testing.T) {
	if _, err := paystack.ParseEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if _, err := paystack.ParseEvent([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for missing event type")
	}

	event := &paystack.Event{Event: "charge.success", Data: []byte(`{"status":"success"}`)}
	if _, err := paystack.DecodeEventData(event); err == nil {
		t.Fatal("expected error for missing reference")
	}
}
