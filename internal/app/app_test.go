package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbook/internal/docstore/docstoretest"
	"github.com/odyssey-erp/cashbook/internal/ledger"
	ledgerhttp "github.com/odyssey-erp/cashbook/internal/ledger/http"
	"github.com/odyssey-erp/cashbook/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.LedgerStrictAccounts)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{StorageBackend: "Docstore"}
	assert.Error(t, cfg.Validate())
	cfg.DocstoreURL = "https://example.firebaseio.com"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StorageDocstore, cfg.StorageBackend)

	cfg = &Config{StorageBackend: "sqlite"}
	assert.Error(t, cfg.Validate())
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestRouterServesAPIAndHealth(t *testing.T) {
	svc := ledger.NewService(ledger.Options{})
	handler := NewRouter(RouterParams{
		Config:        &Config{},
		LedgerHandler: ledgerhttp.NewHandler(nil, svc),
		Metrics:       observability.NewMetrics(),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/locks/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cashbook_http_requests_total")
}

func TestHealthReportsFailingDependency(t *testing.T) {
	handler := NewRouter(RouterParams{
		Config: &Config{},
		HealthChecks: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("down") },
		},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestOpenLedgerStorageDocstore(t *testing.T) {
	srv := docstoretest.New()
	t.Cleanup(srv.Close)
	cfg := &Config{StorageBackend: StorageDocstore, DocstoreURL: srv.URL}
	storage, err := OpenLedgerStorage(context.Background(), cfg, NewDocstoreClient(cfg), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer storage.Close()
	require.NotNil(t, storage.Repository)

	svc := ledger.NewService(ledger.Options{Repository: storage.Repository})
	seeded, err := svc.SeedDemo(context.Background())
	require.NoError(t, err)
	assert.True(t, seeded)

	reloaded := ledger.NewService(ledger.Options{Repository: storage.Repository})
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Len(t, reloaded.Snapshot().Transactions, len(ledger.DemoTransactions()))
}

func TestOpenLedgerStorageMemory(t *testing.T) {
	storage, err := OpenLedgerStorage(context.Background(), &Config{StorageBackend: StorageMemory}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Nil(t, storage.Repository)
	assert.Nil(t, NewDocstoreClient(&Config{}))
}
