package reports

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

// Report kinds.
const (
	KindBranch   = "branch"
	KindMarket   = "market"
	KindCashFlow = "cashflow"
	KindProducts = "products"
)

// Source yields consistent ledger snapshots.
type Source interface {
	Snapshot() ledger.Snapshot
}

// Service builds management reports from ledger snapshots through the cache.
type Service struct {
	source Source
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService wires a snapshot source with a Cache helper.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

// Branch returns the branch report.
func (s *Service) Branch(ctx context.Context, q Query) (BranchReport, error) {
	var out BranchReport
	err := s.fetch(ctx, KindBranch, q, &out, func(txns []ledger.Transaction) any { return BuildBranchReport(txns, q) })
	return out, err
}

// Market returns the market report.
func (s *Service) Market(ctx context.Context, q Query) (MarketReport, error) {
	var out MarketReport
	err := s.fetch(ctx, KindMarket, q, &out, func(txns []ledger.Transaction) any { return BuildMarketReport(txns, q) })
	return out, err
}

// CashFlow returns the three-month cash-flow report.
func (s *Service) CashFlow(ctx context.Context, q Query) (CashFlowReport, error) {
	var out CashFlowReport
	err := s.fetch(ctx, KindCashFlow, q, &out, func(txns []ledger.Transaction) any { return BuildCashFlowReport(txns, q) })
	return out, err
}

// Products returns the business results report.
func (s *Service) Products(ctx context.Context, q Query) (ProductReport, error) {
	var out ProductReport
	err := s.fetch(ctx, KindProducts, q, &out, func(txns []ledger.Transaction) any { return BuildProductReport(txns, q) })
	return out, err
}

// Warm builds every unfiltered report for month so the cache is hot.
func (s *Service) Warm(ctx context.Context, month ledger.Month) error {
	q := Query{Month: month}
	if _, err := s.Branch(ctx, q); err != nil {
		return err
	}
	if _, err := s.Market(ctx, q); err != nil {
		return err
	}
	if _, err := s.CashFlow(ctx, q); err != nil {
		return err
	}
	_, err := s.Products(ctx, q)
	return err
}

// LedgerChanged invalidates cached reports. It implements ledger.Notifier.
func (s *Service) LedgerChanged(ctx context.Context, change ledger.Change) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.String("kind", string(change.Kind)), slog.Any("error", err))
	}
}

func (s *Service) fetch(ctx context.Context, kind string, q Query, dest any, build func([]ledger.Transaction) any) error {
	if _, err := ledger.ParseMonth(string(q.Month)); err != nil {
		return err
	}
	key, err := s.cache.BuildKey(ctx, reportKey(kind, q)...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return s.fetchUncached(ctx, strings.Join(reportKey(kind, q), ":"), dest, build)
	}
	err = s.cache.FetchJSON(ctx, key, dest, func(ctx context.Context) (any, error) {
		return s.buildShared(ctx, key, build)
	})
	if err != nil {
		return fmt.Errorf("reports: %s: %w", kind, err)
	}
	return nil
}

func (s *Service) fetchUncached(ctx context.Context, key string, dest any, build func([]ledger.Transaction) any) error {
	return (*Cache)(nil).FetchJSON(ctx, key, dest, func(ctx context.Context) (any, error) {
		return s.buildShared(ctx, key, build)
	})
}

// buildShared collapses concurrent builds of the same key.
func (s *Service) buildShared(ctx context.Context, key string, build func([]ledger.Transaction) any) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return build(s.source.Snapshot().Transactions), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}
