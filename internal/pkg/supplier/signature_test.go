package supplier_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
)

func TestBuildSignatureBase(t *testing.T) {
	base := supplier.BuildSignatureBase("1700000000", "post", "/api/v1/orders", `{"a":1}`)
	want := "1700000000\nPOST\n/api/v1/orders\n{\"a\":1}"
	if base != want {
		t.Fatalf("base = %q, want %q", base, want)
	}
}

func TestSignMatchesReference(t *testing.T) {
	base := "1700000000\nGET\n/api/v1/balance\n"
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(base))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := supplier.Sign(base, "secret"); got != want {
		t.Fatalf("Sign = %q, want %q", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	sig := supplier.Sign("payload", "secret")

	if !supplier.VerifySignature(sig, sig) {
		t.Fatal("expected matching signatures to verify")
	}
	if !supplier.VerifySignature(sig, " "+sig+" ") {
		t.Fatal("expected trimmed signature to verify")
	}
	if supplier.VerifySignature(sig, supplier.Sign("payload", "other")) {
		t.Fatal("expected mismatched secret to fail")
	}
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"reference":"ORD-1","status":"delivered"}`)
	sig := supplier.Sign(supplier.BuildSignatureBase("1700000000", "POST", "/webhooks/supplier", string(body)), "s3cret")

	if !supplier.VerifyWebhook("s3cret", "1700000000", "/webhooks/supplier", body, sig) {
		t.Fatal("expected valid webhook to verify")
	}
	if supplier.VerifyWebhook("s3cret", "1700000001", "/webhooks/supplier", body, sig) {
		t.Fatal("expected changed timestamp to fail")
	}
	if supplier.VerifyWebhook("", "1700000000", "/webhooks/supplier", body, sig) {
		t.Fatal("expected empty secret to fail")
	}
}
