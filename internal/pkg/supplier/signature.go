package supplier

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// BuildSignatureBase assembles the canonical string the supply API signs:
// timestamp, uppercase method, request path and raw body, newline-joined.
func BuildSignatureBase(timestamp, method, path, body string) string {
	return strings.Join([]string{timestamp, strings.ToUpper(method), path, body}, "\n")
}

// Sign computes the hex HMAC-SHA256 of base with the provider secret.
func Sign(base, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a received hex signature in constant time.
func VerifySignature(expectedHex, receivedHex string) bool {
	expected := strings.ToLower(strings.TrimSpace(expectedHex))
	received := strings.ToLower(strings.TrimSpace(receivedHex))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// VerifyWebhook validates a supplier push: the signature header must match
// HMAC-SHA256(timestamp\nPOST\npath\nbody) under the provider secret.
func VerifyWebhook(secret, timestamp, path string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(BuildSignatureBase(timestamp, "POST", path, string(body)), secret)
	return VerifySignature(expected, signature)
}
