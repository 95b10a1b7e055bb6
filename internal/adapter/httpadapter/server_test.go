package httpadapter_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/parametric-claims/internal/adapter/httpadapter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alwaysReady(context.Context) error { return nil }

func TestServer_Healthz(t *testing.T) {
	srv := httpadapter.NewServer(":0", httpadapter.ReadinessFunc(alwaysReady), discardLogger())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_ReadyzReady(t *testing.T) {
	srv := httpadapter.NewServer(":0", httpadapter.ReadinessFunc(alwaysReady), discardLogger())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestServer_ReadyzNotReady(t *testing.T) {
	notReady := httpadapter.ReadinessFunc(func(context.Context) error {
		return errors.New("outage monitor has not completed a scan")
	})
	srv := httpadapter.NewServer(":0", notReady, discardLogger())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "outage monitor")
}

func TestServer_Metrics(t *testing.T) {
	srv := httpadapter.NewServer(":0", httpadapter.ReadinessFunc(alwaysReady), discardLogger())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_HealthzRejectsPost(t *testing.T) {
	srv := httpadapter.NewServer(":0", httpadapter.ReadinessFunc(alwaysReady), discardLogger())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
