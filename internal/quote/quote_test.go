package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/papertrade/internal/apperr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-key", time.Second, nil, nil)
	c.BaseURL = srv.URL
	return c, &calls
}

func TestClient_Lookup(t *testing.T) {
	var gotSymbol, gotToken string
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		gotToken = r.URL.Query().Get("token")
		assert.Equal(t, "/quote", r.URL.Path)
		w.Write([]byte(`{"c":150.0,"d":1.2,"dp":0.8,"h":151,"l":148,"o":149,"pc":148.8,"t":1700000000}`))
	})

	q := c.Lookup(context.Background(), "  aapl ")
	require.NotNil(t, q)

	assert.Equal(t, "AAPL", gotSymbol)
	assert.Equal(t, "test-key", gotToken)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "AAPL", q.Name)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(150)))
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestClient_Lookup_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "ZeroPrice",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
			},
		},
		{
			name: "SubCentPrice",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"c":0.004}`))
			},
		},
		{
			name: "NegativePrice",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"c":-3.5}`))
			},
		},
		{
			name: "MissingPrice",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"no data"}`))
			},
		},
		{
			name: "ServerError",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "Unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"Invalid API key"}`, http.StatusUnauthorized)
			},
		},
		{
			name: "MalformedBody",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>not json</html>`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			assert.Nil(t, c.Lookup(context.Background(), "AAPL"))
		})
	}
}

func TestClient_Lookup_EmptySymbolSkipsNetwork(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c":1}`))
	})

	assert.Nil(t, c.Lookup(context.Background(), ""))
	assert.Nil(t, c.Lookup(context.Background(), "   "))
	assert.EqualValues(t, 0, atomic.LoadInt32(calls))
}

func TestClient_Lookup_Timeout(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.HTTP.Timeout = 50 * time.Millisecond

	start := time.Now()
	assert.Nil(t, c.Lookup(context.Background(), "AAPL"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_Fetch_Kinds(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "DOWN" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"c":0}`))
	})

	_, err := c.Fetch(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperr.ErrUnknownSymbol))

	_, err = c.Fetch(context.Background(), "down")
	assert.True(t, errors.Is(err, apperr.ErrProviderUnavailable))
	assert.NotContains(t, err.Error(), "test-key")
}

func TestClient_Fetch_NetworkErrorHidesToken(t *testing.T) {
	c := NewClient("secret-token", 100*time.Millisecond, nil, nil)
	c.BaseURL = "http://127.0.0.1:1"

	_, err := c.Fetch(context.Background(), "AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrProviderUnavailable))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestClient_Fetch_PriceRoundsToCents(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "PENNY":
			w.Write([]byte(`{"c":0.004}`))
		default:
			w.Write([]byte(`{"c":0.005}`))
		}
	})

	_, err := c.Fetch(context.Background(), "penny")
	assert.True(t, errors.Is(err, apperr.ErrUnknownSymbol), "got %v", err)

	q, err := c.Fetch(context.Background(), "dime")
	require.NoError(t, err)
	assert.Equal(t, "0.01", q.Price.StringFixed(2))
}
