package datasheet_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbook/internal/datasheet"
	"github.com/odyssey-erp/cashbook/internal/docstore"
	"github.com/odyssey-erp/cashbook/internal/docstore/docstoretest"
)

func newService(t *testing.T) (*datasheet.Service, *docstoretest.Server) {
	t.Helper()
	srv := docstoretest.New()
	t.Cleanup(srv.Close)
	return datasheet.NewService(docstore.NewClient(srv.URL), nil), srv
}

func TestSyncMergesOrdersAndRates(t *testing.T) {
	svc, srv := newService(t)
	srv.Set("datasheet/F3", map[string]any{
		"-K1": map[string]any{"Mã_đơn_hàng": "A1", "Ngày_lên_đơn": "2025-12-01", "Khu_vực": "US", "Tiền_Hàng": 10},
		"-K2": map[string]any{"Mã_đơn_hàng": "A2", "Ngày_lên_đơn": "2025-12-02", "Khu_vực": "CAN", "Tiền_Hàng": 5},
	})
	srv.Set("settings/exchange_rates", map[string]any{"US": 25000})

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Inserted)

	rates := svc.Rates()
	assert.True(t, rates["US"].Equal(decimal.NewFromInt(25000)))
	assert.True(t, rates["CAD"].Equal(decimal.NewFromInt(18884)))

	tot := svc.Totals(datasheet.Filter{})
	assert.True(t, tot.GoodsVND.Equal(decimal.NewFromInt(10*25000+5*18884)), tot.GoodsVND.String())

	var sawQuery bool
	for _, r := range srv.Requests() {
		if strings.HasPrefix(r, "GET /datasheet/F3.json") {
			assert.Contains(t, r, "limitToLast=2000")
			sawQuery = true
		}
	}
	assert.True(t, sawQuery)

	again, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, again.Updated)
	assert.Equal(t, 2, svc.Len())
}

func TestImportThenSaveAll(t *testing.T) {
	svc, srv := newService(t)
	res := svc.Import([]datasheet.Row{
		{"Mã đơn hàng": "A1", "Khu vực": "US", "Tiền Hàng": "10"},
		{"Mã đơn hàng": "A2", "Khu vực": "JP"},
		{"Khu vực": "US"},
	})
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Skipped)

	res = svc.Import([]datasheet.Row{{"Mã đơn hàng": "A1", "Khu vực": "CAN"}})
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, svc.Len())

	saved, err := svc.SaveAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, saved)

	stored, ok := srv.Value("datasheet/F3").(map[string]any)
	require.True(t, ok)
	assert.Len(t, stored, 2)

	saved, err = svc.SaveAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, saved)
}

func TestSaveUsesPutForKnownOrders(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()

	first, err := svc.Save(ctx, datasheet.Order{OrderCode: "A1", Market: "US"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := svc.Save(ctx, datasheet.Order{OrderCode: "A1", Market: "CAN"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0], "POST /datasheet/F3.json")
	assert.Contains(t, reqs[1], fmt.Sprintf("PUT /datasheet/F3/%s.json", first.ID))

	node, ok := srv.Value("datasheet/F3/" + first.ID).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CAN", node["Khu_vực"])

	_, err = svc.Save(ctx, datasheet.Order{})
	assert.ErrorIs(t, err, datasheet.ErrMissingCode)
}

func TestConcurrentSavesPostOnce(t *testing.T) {
	svc, srv := newService(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			saved, err := svc.Save(ctx, datasheet.Order{OrderCode: "B7", Market: "US"})
			assert.NoError(t, err)
			ids[i] = saved.ID
		}(i)
	}
	wg.Wait()

	posts := 0
	for _, req := range srv.Requests() {
		if strings.HasPrefix(req, "POST ") {
			posts++
		}
	}
	assert.Equal(t, 1, posts)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	nodes, ok := srv.Value("datasheet/F3").(map[string]any)
	require.True(t, ok)
	assert.Len(t, nodes, 1)
	assert.Equal(t, 1, svc.Len())
}

func TestSetRates(t *testing.T) {
	svc, srv := newService(t)
	rates := datasheet.Rates{"US": datasheet.NewAmount(decimal.NewFromInt(25500))}
	require.NoError(t, svc.SetRates(context.Background(), rates))
	assert.True(t, svc.Rates()["US"].Equal(decimal.NewFromInt(25500)))
	assert.Equal(t, map[string]any{"US": float64(25500)}, srv.Value("settings/exchange_rates"))

	bad := datasheet.Rates{"US": datasheet.NewAmount(decimal.NewFromInt(-1))}
	var rerr *datasheet.RateError
	assert.True(t, errors.As(svc.SetRates(context.Background(), bad), &rerr))
}

func TestRemoteOperationsNeedClient(t *testing.T) {
	svc := datasheet.NewService(nil, nil)
	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)
	_, err = svc.SaveAll(context.Background())
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)

	res := svc.Import([]datasheet.Row{{"Mã_đơn_hàng": "A1", "Ngày_lên_đơn": "2025-12-01"}})
	assert.Equal(t, 1, res.Inserted)
	page := svc.Orders(datasheet.Filter{Page: 1})
	assert.Equal(t, 1, page.Total)
}
