package docstore_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbook/internal/docstore"
	"github.com/odyssey-erp/cashbook/internal/docstore/docstoretest"
)

type item struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestClientRoundTrip(t *testing.T) {
	srv := docstoretest.New()
	defer srv.Close()
	client := docstore.NewClient(srv.URL + "/")
	ctx := context.Background()

	key, err := client.Post(ctx, "items", item{Name: "a", Value: 1})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	require.NoError(t, client.Put(ctx, "items/"+key, item{Name: "a", Value: 2}))

	var got map[string]item
	require.NoError(t, client.Get(ctx, "items", nil, &got))
	assert.Equal(t, map[string]item{key: {Name: "a", Value: 2}}, got)

	require.NoError(t, client.Delete(ctx, "items/"+key))
	got = nil
	require.NoError(t, client.Get(ctx, "items", nil, &got))
	assert.Empty(t, got)
}

func TestClientQueryAndAuth(t *testing.T) {
	srv := docstoretest.New()
	defer srv.Close()
	client := docstore.NewClient(srv.URL, docstore.WithAuthToken("secret"))

	var out map[string]any
	q := url.Values{"orderBy": {`"$key"`}, "limitToLast": {"2000"}}
	require.NoError(t, client.Get(context.Background(), "orders", q, &out))

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0], "GET /orders.json?")
	assert.Contains(t, reqs[0], "auth=secret")
	assert.Contains(t, reqs[0], "limitToLast=2000")
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "permission denied", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := docstore.NewClient(srv.URL).Put(context.Background(), "x", 1)
	var statusErr *docstore.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
}

func TestClientNotConfigured(t *testing.T) {
	err := docstore.NewClient("").Delete(context.Background(), "x")
	assert.ErrorIs(t, err, docstore.ErrNotConfigured)
}
