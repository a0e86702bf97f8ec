package datasheet

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/cashbook/internal/docstore"
)

const (
	ordersPath = "datasheet/F3"
	ratesPath  = "settings/exchange_rates"

	// SyncLimit is the number of most recent orders fetched per sync.
	SyncLimit = 2000
)

// ImportResult summarises a spreadsheet import.
type ImportResult struct {
	MergeResult
	Skipped int `json:"skipped"`
}

// SyncResult summarises a sync from the document store.
type SyncResult struct {
	MergeResult
	Fetched int `json:"fetched"`
}

// Service keeps the order book and rates in memory and mirrors them to the
// document store.
type Service struct {
	mu sync.RWMutex
	// saveMu serialises remote writes so an order code is posted at most once.
	saveMu sync.Mutex
	book   *Book
	rates  Rates
	client *docstore.Client
	logger *slog.Logger
}

// NewService constructs a datasheet service. client may be nil, in which
// case remote operations fail with docstore.ErrNotConfigured.
func NewService(client *docstore.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		book:   NewBook(),
		rates:  DefaultRates(),
		client: client,
		logger: logger,
	}
}

func (s *Service) remote() (*docstore.Client, error) {
	if !s.client.Configured() {
		return nil, docstore.ErrNotConfigured
	}
	return s.client, nil
}

// Sync fetches the latest orders and the exchange rates concurrently and
// merges them into memory.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	client, err := s.remote()
	if err != nil {
		return SyncResult{}, err
	}

	var (
		docs  map[string]Order
		rates Rates
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query := url.Values{
			"orderBy":     {`"$key"`},
			"limitToLast": {fmt.Sprint(SyncLimit)},
		}
		if err := client.Get(gctx, ordersPath, query, &docs); err != nil {
			return fmt.Errorf("datasheet: fetch orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := client.Get(gctx, ratesPath, nil, &rates); err != nil {
			return fmt.Errorf("datasheet: fetch rates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return SyncResult{}, err
	}

	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	incoming := make([]Order, 0, len(keys))
	for _, k := range keys {
		o := docs[k]
		o.ID = k
		incoming = append(incoming, o)
	}

	s.mu.Lock()
	res := s.book.Merge(incoming)
	if len(rates) > 0 {
		merged := DefaultRates()
		for code, rate := range rates {
			if rate.IsPositive() {
				merged[code] = rate
			}
		}
		s.rates = merged
	}
	s.mu.Unlock()

	s.logger.Info("datasheet synced",
		slog.Int("fetched", len(incoming)),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated))
	return SyncResult{MergeResult: res, Fetched: len(incoming)}, nil
}

// Import merges spreadsheet rows into memory. Rows without an order code are skipped.
func (s *Service) Import(rows []Row) ImportResult {
	orders := make([]Order, 0, len(rows))
	skipped := 0
	for _, r := range rows {
		o, ok := OrderFromRow(r)
		if !ok {
			skipped++
			continue
		}
		orders = append(orders, o)
	}
	s.mu.Lock()
	res := s.book.Merge(orders)
	s.mu.Unlock()
	return ImportResult{MergeResult: res, Skipped: skipped}
}

// Save stores one order remotely: PUT when it has a document key, POST
// otherwise. The saved order is merged into memory with its key.
func (s *Service) Save(ctx context.Context, o Order) (Order, error) {
	if o.OrderCode == "" {
		return Order{}, ErrMissingCode
	}
	client, err := s.remote()
	if err != nil {
		return Order{}, err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	if existing, ok := s.book.Get(o.OrderCode); ok && o.ID == "" {
		o.ID = existing.ID
	}
	s.mu.RUnlock()

	if o.ID != "" {
		if err := client.Put(ctx, ordersPath+"/"+o.ID, o); err != nil {
			return Order{}, fmt.Errorf("datasheet: save %s: %w", o.OrderCode, err)
		}
	} else {
		key, err := client.Post(ctx, ordersPath, o)
		if err != nil {
			return Order{}, fmt.Errorf("datasheet: save %s: %w", o.OrderCode, err)
		}
		o.ID = key
	}

	s.mu.Lock()
	s.book.Merge([]Order{o})
	s.book.SetID(o.OrderCode, o.ID)
	s.mu.Unlock()
	return o, nil
}

// SaveAll posts every order that has no document key yet and returns how
// many were saved. It stops at the first failure.
func (s *Service) SaveAll(ctx context.Context) (int, error) {
	client, err := s.remote()
	if err != nil {
		return 0, err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	pending := s.book.Unsaved()
	s.mu.RUnlock()

	saved := 0
	for _, o := range pending {
		key, err := client.Post(ctx, ordersPath, o)
		if err != nil {
			return saved, fmt.Errorf("datasheet: save %s: %w", o.OrderCode, err)
		}
		s.mu.Lock()
		s.book.SetID(o.OrderCode, key)
		s.mu.Unlock()
		saved++
	}
	if saved > 0 {
		s.logger.Info("datasheet saved", slog.Int("orders", saved))
	}
	return saved, nil
}

// Rates returns a copy of the current exchange rates.
func (s *Service) Rates() Rates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Rates, len(s.rates))
	for k, v := range s.rates {
		out[k] = v
	}
	return out
}

// SetRates validates and stores the rates remotely, then in memory.
func (s *Service) SetRates(ctx context.Context, rates Rates) error {
	if err := rates.Validate(); err != nil {
		return err
	}
	client, err := s.remote()
	if err != nil {
		return err
	}
	if err := client.Put(ctx, ratesPath, rates); err != nil {
		return fmt.Errorf("datasheet: save rates: %w", err)
	}
	s.mu.Lock()
	merged := DefaultRates()
	for k, v := range rates {
		merged[k] = v
	}
	s.rates = merged
	s.mu.Unlock()
	return nil
}

// Orders returns one page of filtered orders, newest first.
func (s *Service) Orders(f Filter) Page {
	s.mu.RLock()
	all := s.book.Orders()
	s.mu.RUnlock()
	return Paginate(Select(all, f), f.Page)
}

// Totals sums the filtered orders using the current rates.
func (s *Service) Totals(f Filter) Totals {
	s.mu.RLock()
	all := s.book.Orders()
	rates := s.rates
	s.mu.RUnlock()
	return ComputeTotals(Select(all, f), rates)
}

// Options lists filter choices over every order.
func (s *Service) Options() Options {
	s.mu.RLock()
	all := s.book.Orders()
	s.mu.RUnlock()
	return CollectOptions(all)
}

// Len returns the number of orders in memory.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Len()
}
