package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Credentials identify one configured supply provider. Providers are stored
// rows, not static config, so every call carries its own credentials.
type Credentials struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// Client talks to a supply provider's signed REST API.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		now:        time.Now,
	}
}

// CreateOrderRequest is the canonical per-beneficiary order body.
type CreateOrderRequest struct {
	Network        string `json:"network"`
	Recipient      string `json:"recipient"`
	Capacity       string `json:"capacity"`
	IdempotencyKey string `json:"idempotency_key"`
}

// OrderResponse is a provider order acknowledgement or status report.
type OrderResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Message   string `json:"message"`

	// Raw retains the provider payload verbatim for audit.
	Raw json.RawMessage `json:"-"`
}

// BalanceResponse is the provider float balance.
type BalanceResponse struct {
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// PriceListItem is one row of the provider price list.
type PriceListItem struct {
	Network  string `json:"network"`
	Capacity string `json:"capacity"`
	Price    string `json:"price"`
}

// CreateOrder submits one beneficiary line item. The idempotency key makes
// duplicate submissions collapse into one provider order.
func (c *Client) CreateOrder(ctx context.Context, creds Credentials, req CreateOrderRequest) (*OrderResponse, error) {
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, fmt.Errorf("validation error: recipient must be non-empty")
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, fmt.Errorf("validation error: idempotency_key must be non-empty")
	}

	body, err := c.do(ctx, creds, http.MethodPost, "/api/v1/orders", req)
	if err != nil {
		return nil, err
	}
	return parseOrderResponse(body)
}

// GetOrderStatus looks up a previously submitted order by its reference.
func (c *Client) GetOrderStatus(ctx context.Context, creds Credentials, reference string) (*OrderResponse, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("validation error: reference must be non-empty")
	}

	body, err := c.do(ctx, creds, http.MethodGet, "/api/v1/orders/"+reference, nil)
	if err != nil {
		return nil, err
	}
	return parseOrderResponse(body)
}

// GetBalance queries the provider float balance.
func (c *Client) GetBalance(ctx context.Context, creds Credentials) (*BalanceResponse, error) {
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v1/balance", nil)
	if err != nil {
		return nil, err
	}
	var out BalanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse supplier response: %w", err)
	}
	return &out, nil
}

// GetPriceList fetches the provider's current price sheet.
func (c *Client) GetPriceList(ctx context.Context, creds Credentials) ([]PriceListItem, error) {
	body, err := c.do(ctx, creds, http.MethodGet, "/api/v1/prices", nil)
	if err != nil {
		return nil, err
	}
	var out []PriceListItem
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse supplier response: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, path string, payload interface{}) ([]byte, error) {
	if strings.TrimSpace(creds.BaseURL) == "" {
		return nil, fmt.Errorf("supplier config error: base_url is empty")
	}
	if strings.TrimSpace(creds.APIKey) == "" || strings.TrimSpace(creds.APISecret) == "" {
		return nil, fmt.Errorf("supplier config error: credentials are empty")
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode supplier request: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(creds.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("supplier api call failed: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := Sign(BuildSignatureBase(timestamp, method, path, string(bodyBytes)), creds.APISecret)

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)
	httpReq.Header.Set("X-Timestamp", timestamp)
	httpReq.Header.Set("X-Signature", signature)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("supplier api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("supplier api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("supplier api returned non-2xx status: %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func parseOrderResponse(body []byte) (*OrderResponse, error) {
	var out OrderResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse supplier response: %w", err)
	}
	out.Raw = json.RawMessage(body)
	return &out, nil
}
