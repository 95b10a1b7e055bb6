package ach_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parametric-claims/internal/adapter/ach"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Settle_SimulationMode(t *testing.T) {
	c := ach.NewClient("", "", 5*time.Second, discardLogger())

	txn, err := c.Settle(context.Background(), "PAY-1234", "POL-1", decimal.RequireFromString("837.50"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txn, "SIM-"), "got %q", txn)

	txn2, err := c.Settle(context.Background(), "PAY-1234", "POL-1", decimal.RequireFromString("837.50"))
	require.NoError(t, err)
	assert.NotEqual(t, txn, txn2)
}

func TestClient_Settle(t *testing.T) {
	var gotPath, gotAuth, gotIdem string
	var gotReq struct {
		IdempotencyKey string          `json:"idempotency_key"`
		PolicyID       string          `json:"policy_id"`
		Amount         decimal.Decimal `json:"amount"`
		Currency       string          `json:"currency"`
		Method         string          `json:"method"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"transaction_id":"TXN-8842","status":"settled"}`)
	}))
	defer srv.Close()

	c := ach.NewClient(srv.URL, "gw-key", 5*time.Second, discardLogger())
	txn, err := c.Settle(context.Background(), "PAY-1234", "POL-1", decimal.RequireFromString("837.50"))
	require.NoError(t, err)

	assert.Equal(t, "TXN-8842", txn)
	assert.Equal(t, "/v1/transfers", gotPath)
	assert.Equal(t, "Bearer gw-key", gotAuth)
	assert.Equal(t, "PAY-1234", gotIdem)
	assert.Equal(t, "PAY-1234", gotReq.IdempotencyKey)
	assert.Equal(t, "POL-1", gotReq.PolicyID)
	assert.Equal(t, "837.5", gotReq.Amount.String())
	assert.Equal(t, "USD", gotReq.Currency)
	assert.Equal(t, "ach_transfer", gotReq.Method)
}

func TestClient_Settle_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"account not found"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := ach.NewClient(srv.URL, "gw-key", 5*time.Second, discardLogger())
	_, err := c.Settle(context.Background(), "PAY-1234", "POL-1", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "account not found")
}

func TestClient_Settle_MissingTransactionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"settled"}`)
	}))
	defer srv.Close()

	c := ach.NewClient(srv.URL, "gw-key", 5*time.Second, discardLogger())
	_, err := c.Settle(context.Background(), "PAY-1234", "POL-1", decimal.NewFromInt(100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction id")
}
