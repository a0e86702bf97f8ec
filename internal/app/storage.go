package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/cashbook/internal/docstore"
	"github.com/odyssey-erp/cashbook/internal/ledger"
	"github.com/odyssey-erp/cashbook/internal/platform/db"
)

// LedgerStorage bundles the configured ledger repository with the resources
// backing it.
type LedgerStorage struct {
	Repository ledger.Repository
	Pool       *pgxpool.Pool
}

// Close releases the database pool, if any.
func (s *LedgerStorage) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// NewDocstoreClient returns a client for DOCSTORE_URL, or nil when unset.
func NewDocstoreClient(cfg *Config) *docstore.Client {
	if cfg == nil || cfg.DocstoreURL == "" {
		return nil
	}
	opts := []docstore.Option{docstore.WithHTTPClient(&http.Client{Timeout: cfg.DocstoreTimeout})}
	if cfg.DocstoreToken != "" {
		opts = append(opts, docstore.WithAuthToken(cfg.DocstoreToken))
	}
	return docstore.NewClient(cfg.DocstoreURL, opts...)
}

// OpenLedgerStorage connects the backend selected by STORAGE_BACKEND. The
// memory backend has no repository.
func OpenLedgerStorage(ctx context.Context, cfg *Config, docs *docstore.Client, logger *slog.Logger) (*LedgerStorage, error) {
	switch cfg.StorageBackend {
	case StoragePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		repo := ledger.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("ledger storage ready", slog.String("backend", StoragePostgres))
		return &LedgerStorage{Repository: repo, Pool: pool}, nil
	case StorageDocstore:
		if docs == nil {
			return nil, fmt.Errorf("ledger storage: %w", docstore.ErrNotConfigured)
		}
		if err := docs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ledger storage: %w", err)
		}
		logger.Info("ledger storage ready", slog.String("backend", StorageDocstore))
		return &LedgerStorage{Repository: ledger.NewDocumentRepository(docs)}, nil
	default:
		logger.Warn("ledger storage is in-memory; data is lost on restart")
		return &LedgerStorage{}, nil
	}
}
