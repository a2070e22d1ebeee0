package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/retry"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	policy := retry.NewPolicy(3, time.Millisecond, time.Millisecond, zerolog.Nop())
	client := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
	}, nil, policy, zerolog.Nop())

	return client, server
}

// TestGetBalances tests balance fetching, zero-balance filtering and request signing.
func TestGetBalances(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		assert.NotEmpty(t, r.URL.Query().Get("timestamp"))

		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"1.00000000","locked":"0.00000000"},
			{"asset":"USDT","free":"5000.00000000","locked":"0.00000000"},
			{"asset":"DUST","free":"0.00000000","locked":"0.00000000"}
		]}`))
	}))

	balances, err := client.GetBalances(context.Background())
	require.NoError(t, err)

	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.True(t, balances[0].Free.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "USDT", balances[1].Asset)
}

// TestGetAllPrices tests the ticker price map.
func TestGetAllPrices(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"))

		w.Write([]byte(`[
			{"symbol":"BTCUSDT","price":"50000.00000000"},
			{"symbol":"ETHUSDT","price":"3000.50000000"}
		]`))
	}))

	prices, err := client.GetAllPrices(context.Background())
	require.NoError(t, err)

	require.Len(t, prices, 2)
	assert.True(t, prices["BTCUSDT"].Equal(decimal.NewFromInt(50000)))
	assert.True(t, prices["ETHUSDT"].Equal(decimal.RequireFromString("3000.5")))
}

// TestGetSymbolRules tests LOT_SIZE and NOTIONAL filter parsing.
func TestGetSymbolRules(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("symbols"), "BTCUSDT")

		w.Write([]byte(`{"symbols":[{
			"symbol":"BTCUSDT",
			"filters":[
				{"filterType":"LOT_SIZE","stepSize":"0.00001000","minQty":"0.00001000","maxQty":"9000"},
				{"filterType":"NOTIONAL","minNotional":"5.00000000"}
			]
		}]}`))
	}))

	rules, err := client.GetSymbolRules(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)

	rule, ok := rules["BTCUSDT"]
	require.True(t, ok)
	assert.True(t, rule.StepSize.Equal(decimal.RequireFromString("0.00001")))
	assert.True(t, rule.MinQty.Equal(decimal.RequireFromString("0.00001")))
	assert.True(t, rule.MinNotional.Equal(decimal.NewFromInt(5)))
}

// TestRetryOnServerError tests that 5xx responses are retried.
func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"code":-1000,"msg":"unknown error"}`))
			return
		}
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"50000"}]`))
	}))

	prices, err := client.GetAllPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, prices, 1)
}

// TestRetryBudgetExhausted tests that persistent transient failures
// eventually surface as a data source error.
func TestRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":-1000,"msg":"unknown error"}`))
	}))

	_, err := client.GetAllPrices(context.Background())
	require.Error(t, err)

	var dsErr *domain.DataSourceError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "binance", dsErr.Source)
	assert.Equal(t, int32(3), calls.Load())
}

// TestInvalidCredentialsNotRetried tests that credential rejections abort
// immediately and map to the domain error.
func TestInvalidCredentialsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	}))

	_, err := client.GetBalances(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsInvalidCredentials(err))
	assert.Equal(t, int32(1), calls.Load())
}

// TestCreateMarketOrder tests order placement and quantity formatting.
func TestCreateMarketOrder(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "BTCUSDT", r.PostForm.Get("symbol"))
		assert.Equal(t, "SELL", r.PostForm.Get("side"))
		assert.Equal(t, "MARKET", r.PostForm.Get("type"))
		assert.Equal(t, "0.45", r.PostForm.Get("quantity"))
		assert.NotEmpty(t, r.PostForm.Get("signature"))

		w.Write([]byte(`{"orderId":123456,"status":"FILLED"}`))
	}))

	orderID, err := client.CreateMarketOrder(context.Background(), "BTCUSDT", domain.SideSell, decimal.RequireFromString("0.45"))
	require.NoError(t, err)
	assert.Equal(t, "123456", orderID)
}

// TestTestMarketOrder tests the validation-only endpoint.
func TestTestMarketOrder(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/order/test", r.URL.Path)
		w.Write([]byte(`{}`))
	}))

	err := client.TestMarketOrder(context.Background(), "BTCUSDT", domain.SideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)
}

// TestSignature tests the HMAC-SHA256 signature against a known vector.
func TestSignature(t *testing.T) {
	client := &Client{apiSecret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"}

	// Reference vector from the exchange API documentation
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	sig := client.sign(payload)
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", sig)
}
