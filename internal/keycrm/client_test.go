package keycrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/42", r.URL.Path)
		assert.Equal(t, "products.offer", r.URL.Query().Get("include"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"status_id":13,"products":[{"quantity":2,"offer":{"id":7,"sku":"001-BK-M"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret", time.Second, 0)
	details, err := client.FetchOrder(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, int64(42), details.ID)
	require.NotNil(t, details.StatusID)
	assert.Equal(t, int64(13), *details.StatusID)
	require.Len(t, details.ProductLines(), 1)
}

func TestFetchOrderWithoutToken(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", time.Second, 0)
	assert.False(t, client.Enabled())

	details, err := client.FetchOrder(context.Background(), 1)
	assert.NoError(t, err)
	assert.Nil(t, details)
}

func TestFetchOrderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second, 0)
	details, err := client.FetchOrder(context.Background(), 7)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Nil(t, details)
}

func TestFetchOrderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", 20*time.Millisecond, 0)
	_, err := client.FetchOrder(context.Background(), 7)
	assert.Error(t, err)
}

func TestFetchOrderRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"products":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", time.Second, 1)
	_, err := client.FetchOrder(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.FetchOrder(ctx, 1)
	assert.Error(t, err)
}

func TestNilDetailsProductLines(t *testing.T) {
	var details *OrderDetails
	assert.Nil(t, details.ProductLines())
}
