package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds Paystack API configuration
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client represents the Paystack payment gateway client
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new Paystack API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
	}
}

// InitializeRequest starts a hosted checkout. Amount is in minor units.
type InitializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

// InitializeResponse carries the authorization URL the buyer is sent to.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransactionData is the verified state of a gateway transaction.
type TransactionData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
	Channel   string `json:"channel"`
}

// ResolvedAccount is a validated bank account.
type ResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// TransferRecipient identifies a stored payout destination.
type TransferRecipient struct {
	RecipientCode string `json:"recipient_code"`
	Active        bool   `json:"active"`
}

// TransferData is the state of a payout transfer.
type TransferData struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction creates a hosted payment page for the reference.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return nil, fmt.Errorf("validation error: reference must be non-empty")
	}

	var out InitializeResponse
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the authoritative state of a transaction.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*TransactionData, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("validation error: reference must be non-empty")
	}

	var out TransactionData
	if err := c.call(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveAccount validates a bank account number against a bank code.
func (c *Client) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*ResolvedAccount, error) {
	path := fmt.Sprintf("/bank/resolve?account_number=%s&bank_code=%s",
		url.QueryEscape(accountNumber), url.QueryEscape(bankCode))

	var out ResolvedAccount
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransferRecipient registers a payout destination for withdrawals.
func (c *Client) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (*TransferRecipient, error) {
	payload := map[string]string{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
		"currency":       "GHS",
	}

	var out TransferRecipient
	if err := c.call(ctx, http.MethodPost, "/transferrecipient", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer starts a payout. Amount is in minor units; the reference
// doubles as the idempotency key on the gateway side.
func (c *Client) InitiateTransfer(ctx context.Context, amount int64, recipientCode, reference, reason string) (*TransferData, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	payload := map[string]interface{}{
		"source":    "balance",
		"amount":    amount,
		"recipient": recipientCode,
		"reference": reference,
		"reason":    reason,
	}

	var out TransferData
	if err := c.call(ctx, http.MethodPost, "/transfer", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransfer fetches the state of a payout by its reference.
func (c *Client) VerifyTransfer(ctx context.Context, reference string) (*TransferData, error) {
	var out TransferData
	if err := c.call(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, out interface{}) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("paystack client is not initialized")
	}
	if strings.TrimSpace(c.config.SecretKey) == "" {
		return fmt.Errorf("paystack config error: secret_key is empty")
	}
	base := strings.TrimRight(c.config.BaseURL, "/")
	if base == "" {
		base = "https://api.paystack.co"
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode paystack request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	timeout := c.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return fmt.Errorf("paystack api call failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.SecretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("paystack api call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("paystack api call failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse paystack response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("paystack api error: status %d, message: %s", resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse paystack response: %w", err)
		}
	}
	return nil
}
