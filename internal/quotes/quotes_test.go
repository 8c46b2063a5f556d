package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stock/NVDA/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol": "NVDA", "companyName": "NVIDIA Corporation", "latestPrice": 875.25}`))
	})
	mux.HandleFunc("/stock/BAD/quote", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "BAD", "companyName": "Bad Co", "latestPrice": 0}`))
	})
	mux.HandleFunc("/stock/FLAKY/quote", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream error", http.StatusInternalServerError)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Lookup(t *testing.T) {
	srv := newTestServer(t)
	client := NewClient(srv.URL, "test-key", 2*time.Second)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		quote, err := client.Lookup(ctx, "NVDA")
		require.NoError(t, err)
		assert.Equal(t, "NVDA", quote.Symbol)
		assert.Equal(t, "NVIDIA Corporation", quote.Name)
		assert.Equal(t, "875.25", quote.Price.String())
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		quote, err := client.Lookup(ctx, "  nvda ")
		require.NoError(t, err)
		assert.Equal(t, "NVDA", quote.Symbol)
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		_, err := client.Lookup(ctx, "ZZZZ")
		assert.ErrorIs(t, err, ErrUnknownSymbol)
	})

	t.Run("EmptySymbol", func(t *testing.T) {
		_, err := client.Lookup(ctx, "   ")
		assert.ErrorIs(t, err, ErrUnknownSymbol)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		_, err := client.Lookup(ctx, "BAD")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("UpstreamError", func(t *testing.T) {
		_, err := client.Lookup(ctx, "FLAKY")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestClient_Lookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 50*time.Millisecond)
	_, err := client.Lookup(context.Background(), "NVDA")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "NVDA", Normalize(" nvda\t"))
	assert.Equal(t, "", Normalize("  "))
}
