package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

type countingSource struct {
	mu    sync.Mutex
	txns  []ledger.Transaction
	calls atomic.Int32
}

func (s *countingSource) Snapshot() ledger.Snapshot {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Transaction, len(s.txns))
	copy(out, s.txns)
	return ledger.Snapshot{Transactions: out}
}

func newTestService(t *testing.T, src Source) (*Service, *Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(src, cache, nil), cache, mr
}

func TestServiceCachesUntilLedgerChanges(t *testing.T) {
	src := &countingSource{txns: ledger.DemoTransactions()}
	svc, _, mr := newTestService(t, src)
	ctx := context.Background()
	q := Query{Month: "2025-12"}

	first, err := svc.Branch(ctx, q)
	require.NoError(t, err)
	second, err := svc.Branch(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.True(t, first.Total.Revenue.Equal(second.Total.Revenue))
	assert.True(t, mr.Exists("reports:branch:2025-12:-:-:-:1"))

	src.mu.Lock()
	src.txns = append(src.txns, ledger.Transaction{Date: "2025-12-30", Type: ledger.TypeRevenue, Branch: ledger.BranchCompany, AccountCode: "x", Amount: dec("1000")})
	src.mu.Unlock()
	svc.LedgerChanged(ctx, ledger.Change{Kind: ledger.ChangeTransactionAdded})

	third, err := svc.Branch(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "568001000", third.Total.Revenue.String())
}

func TestServiceRejectsBadMonth(t *testing.T) {
	svc, _, _ := newTestService(t, &countingSource{})
	_, err := svc.CashFlow(context.Background(), Query{Month: "december"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestServiceWithoutRedis(t *testing.T) {
	src := &countingSource{txns: ledger.DemoTransactions()}
	svc := NewService(src, NewCache(nil, time.Minute), nil)
	r, err := svc.Market(context.Background(), Query{Month: "2025-12"})
	require.NoError(t, err)
	assert.Len(t, r.Rows, 3)
	_, err = svc.Market(context.Background(), Query{Month: "2025-12"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestServiceWarm(t *testing.T) {
	src := &countingSource{txns: ledger.DemoTransactions()}
	svc, _, mr := newTestService(t, src)
	require.NoError(t, svc.Warm(context.Background(), "2025-12"))
	assert.Equal(t, int32(4), src.calls.Load())
	for _, kind := range []string{KindBranch, KindMarket, KindCashFlow, KindProducts} {
		assert.True(t, mr.Exists("reports:"+kind+":2025-12:-:-:-:1"), kind)
	}
}

func TestCacheBumpPublishes(t *testing.T) {
	_, cache, _ := newTestService(t, &countingSource{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int64, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(v int64) { got <- v }))

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))

	select {
	case v := <-got:
		assert.Equal(t, ver+1, v)
	case <-time.After(2 * time.Second):
		t.Fatal("bump not received")
	}
}

func TestWriteCSVs(t *testing.T) {
	txns := ledger.DemoTransactions()
	q := Query{Month: "2025-12"}

	buf := &bytes.Buffer{}
	require.NoError(t, WriteBranchCSV(buf, BuildBranchReport(txns, q)))
	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, TotalLabel, records[4][0])
	assert.Contains(t, records[1][1], "405.000.000")

	buf.Reset()
	require.NoError(t, WriteMarketCSV(buf, BuildMarketReport(txns, q)))
	records, err = csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, NoteHighEfficiency, records[1][5])

	buf.Reset()
	require.NoError(t, WriteCashFlowCSV(buf, BuildCashFlowReport(txns, q)))
	records, err = csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)

	buf.Reset()
	require.NoError(t, WriteProductCSV(buf, BuildProductReport(txns, q)))
	records, err = csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestFormatVND(t *testing.T) {
	assert.Contains(t, FormatVND(dec("1234567.6")), "1.234.568")
	assert.Contains(t, FormatVND(dec("-68000000")), "68.000.000")
}
