// Package ach provides the payment gateway client used to settle approved
// claims. When no gateway is configured the client runs in simulation mode
// and mints deterministic-looking transaction IDs locally.
package ach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client submits ACH transfers to the payment gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a payment gateway client. An empty baseURL enables
// simulation mode.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Settle submits one transfer and returns the gateway transaction ID. The
// payout ID doubles as the gateway idempotency key, so retried submissions
// of the same payout settle at most once.
func (c *Client) Settle(ctx context.Context, payoutID, policyID string, amount decimal.Decimal) (string, error) {
	if c.baseURL == "" {
		txn := "SIM-" + uuid.NewString()
		c.logger.Info("simulated settlement", "payout_id", payoutID, "transaction_id", txn)
		return txn, nil
	}

	payload, err := json.Marshal(transferRequest{
		IdempotencyKey: payoutID,
		PolicyID:       policyID,
		Amount:         amount,
		Currency:       "USD",
		Method:         "ach_transfer",
	})
	if err != nil {
		return "", fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", payoutID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transfer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway error: status %d: %s", resp.StatusCode, body)
	}

	var transfer transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&transfer); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if transfer.TransactionID == "" {
		return "", fmt.Errorf("gateway returned no transaction id for payout %s", payoutID)
	}
	return transfer.TransactionID, nil
}

type transferRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	PolicyID       string          `json:"policy_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Method         string          `json:"method"`
}

type transferResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}
