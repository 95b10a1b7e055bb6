// Package webhook posts settlement notifications to a configured endpoint.
// Delivery is best effort: failures are logged and counted, never retried,
// and never block the payout pipeline.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Notifier delivers payout notifications over HTTP POST.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	onFailure  func()
}

// Notification is the JSON body posted for each completed payout.
type Notification struct {
	PayoutID      string          `json:"payout_id"`
	ClaimID       string          `json:"claim_id"`
	PolicyID      string          `json:"policy_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// NewNotifier creates a notifier. An empty url disables delivery entirely.
// onFailure is invoked once per failed delivery and may be nil.
func NewNotifier(url string, timeout time.Duration, logger *slog.Logger, onFailure func()) *Notifier {
	return &Notifier{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:    logger,
		onFailure: onFailure,
	}
}

// Notify posts one notification. It never returns an error; outcomes are
// observable only through logs and the failure counter.
func (n *Notifier) Notify(ctx context.Context, note Notification) {
	if n.url == "" {
		return
	}
	if err := n.post(ctx, note); err != nil {
		n.logger.Warn("notification delivery failed",
			"payout_id", note.PayoutID, "error", err)
		if n.onFailure != nil {
			n.onFailure()
		}
		return
	}
	n.logger.Debug("notification delivered", "payout_id", note.PayoutID)
}

func (n *Notifier) post(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notifier endpoint: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
