package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Event is a webhook delivery. Data is kept raw because the set of event
// payload shapes is open-ended; callers decode the slice they care about.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventData is the subset of transaction/transfer payload fields the
// settlement engine consumes.
type EventData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Channel   string `json:"channel"`
}

// VerifyWebhookSignature checks the x-paystack-signature header: hex
// HMAC-SHA512 of the raw request body under the account secret key. The raw
// body must be used — re-serialized JSON will not match.
func VerifyWebhookSignature(secretKey string, body []byte, signature string) bool {
	if secretKey == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	received := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("invalid webhook payload: missing event type")
	}
	return &event, nil
}

// DecodeEventData extracts the common fields from an event payload.
func DecodeEventData(event *Event) (*EventData, error) {
	var data EventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid webhook event data: %w", err)
	}
	if data.Reference == "" {
		return nil, fmt.Errorf("invalid webhook event data: missing reference")
	}
	return &data, nil
}
