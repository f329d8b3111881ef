package spot_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/pkg/exchanges/binance/spot"
	"trading-engine/pkg/exchanges/common"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

func newTestClient(t *testing.T, handler http.Handler) *spot.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return spot.New(spot.Config{
		APIKey:    testKey,
		APISecret: testSecret,
		BaseURL:   server.URL,
	})
}

func TestSubmitOrder_LimitFOK(t *testing.T) {
	var gotPath, gotAPIKey string
	var gotForm map[string]string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-MBX-APIKEY")
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		fmt.Fprint(w, `{
			"symbol": "BTCUSDT",
			"orderId": 12345,
			"clientOrderId": "entry-1",
			"status": "FILLED",
			"executedQty": "0.00500000",
			"cummulativeQuoteQty": "250.00000000"
		}`)
	}))

	res, err := client.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol:      "BTCUSDT",
		Side:        common.SideBuy,
		Type:        common.OrderTypeLimit,
		TimeInForce: common.TIFFOK,
		Qty:         decimal.RequireFromString("0.005"),
		Price:       decimal.RequireFromString("50000"),
		ClientID:    "entry-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/v3/order", gotPath)
	assert.Equal(t, testKey, gotAPIKey)
	assert.Equal(t, "BTCUSDT", gotForm["symbol"])
	assert.Equal(t, "BUY", gotForm["side"])
	assert.Equal(t, "LIMIT", gotForm["type"])
	assert.Equal(t, "FOK", gotForm["timeInForce"])
	assert.Equal(t, "0.005", gotForm["quantity"])
	assert.Equal(t, "50000", gotForm["price"])
	assert.Equal(t, "entry-1", gotForm["newClientOrderId"])
	assert.Equal(t, "FULL", gotForm["newOrderRespType"])

	assert.Equal(t, "12345", res.ExchangeOrderID)
	assert.Equal(t, common.StatusFilled, res.Status)
	assert.True(t, res.ExecutedQty.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, res.CumQuoteQty.Equal(decimal.RequireFromString("250")))
}

func TestSubmitOrder_SignatureCoversPayload(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := readBody(t, r)
		idx := strings.LastIndex(body, "&signature=")
		require.Positive(t, idx, "signature must be the last parameter")
		payload, sig := body[:idx], body[idx+len("&signature="):]

		mac := hmac.New(sha256.New, []byte(testSecret))
		mac.Write([]byte(payload))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)

		assert.Contains(t, payload, "timestamp=")
		assert.Contains(t, payload, "recvWindow=5000")
		fmt.Fprint(w, `{"orderId": 1, "status": "NEW"}`)
	}))

	_, err := client.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   common.SideBuy,
		Type:   common.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	})
	require.NoError(t, err)
}

func TestSubmitOCO(t *testing.T) {
	var gotForm map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/order/oco", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		fmt.Fprint(w, `{
			"orderListId": 9001,
			"orders": [
				{"clientOrderId": "tp-1"},
				{"clientOrderId": "stop-1"}
			]
		}`)
	}))

	res, err := client.SubmitOCO(context.Background(), common.OCORequest{
		Symbol:          "BTCUSDT",
		Side:            common.SideSell,
		Qty:             decimal.RequireFromString("0.005"),
		TakeProfitPrice: decimal.RequireFromString("55000"),
		StopPrice:       decimal.RequireFromString("47500"),
		StopLimitPrice:  decimal.RequireFromString("47400"),
		TakeProfitID:    "tp-1",
		StopID:          "stop-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "SELL", gotForm["side"])
	assert.Equal(t, "55000", gotForm["price"])
	assert.Equal(t, "47500", gotForm["stopPrice"])
	assert.Equal(t, "47400", gotForm["stopLimitPrice"])
	assert.Equal(t, "tp-1", gotForm["limitClientOrderId"])
	assert.Equal(t, "stop-1", gotForm["stopClientOrderId"])

	assert.Equal(t, "9001", res.ListID)
	assert.Equal(t, "tp-1", res.TakeProfitID)
	assert.Equal(t, "stop-1", res.StopID)
}

func TestCancelOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "stop-7", r.URL.Query().Get("origClientOrderId"))
		fmt.Fprint(w, `{"status": "CANCELED"}`)
	}))

	err := client.CancelOrder(context.Background(), "ETHUSDT", "stop-7")
	require.NoError(t, err)
}

func TestSubmitOrder_TooManyRequests(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "11")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code": -1003, "msg": "Too much request weight used."}`)
	}))

	_, err := client.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol: "BTCUSDT",
		Side:   common.SideBuy,
		Type:   common.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	})
	require.Error(t, err)

	wait, ok := common.IsTooManyRequests(err)
	require.True(t, ok)
	assert.Equal(t, 11*time.Second, wait)
}

func TestSubmitOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"insufficient balance", 400, `{"code": -2010, "msg": "Account has insufficient balance for requested action."}`, common.ErrInsufficientBalance},
		{"prohibited", 400, `{"code": -2010, "msg": "This action is not permitted on this account."}`, common.ErrTradingProhibited},
		{"unknown order", 400, `{"code": -2013, "msg": "Order does not exist."}`, common.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			_, err := client.SubmitOrder(context.Background(), common.OrderRequest{
				Symbol: "BTCUSDT",
				Side:   common.SideBuy,
				Type:   common.OrderTypeMarket,
				Qty:    decimal.NewFromInt(1),
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExchangeInfo(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		fmt.Fprint(w, `{
			"symbols": [
				{
					"symbol": "BTCUSDT",
					"status": "TRADING",
					"filters": [
						{"filterType": "PRICE_FILTER", "tickSize": "0.01", "minPrice": "0.01"},
						{"filterType": "LOT_SIZE", "stepSize": "0.00001", "minQty": "0.00001"},
						{"filterType": "NOTIONAL", "minNotional": "10.00000000"}
					]
				},
				{
					"symbol": "DELISTED",
					"status": "BREAK",
					"filters": []
				}
			]
		}`)
	}))

	rules, err := client.ExchangeInfo(context.Background())
	require.NoError(t, err)

	require.Contains(t, rules.Symbols, "BTCUSDT")
	assert.NotContains(t, rules.Symbols, "DELISTED")

	r := rules.Symbols["BTCUSDT"]
	assert.True(t, r.TickSize.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, r.StepSize.Equal(decimal.RequireFromString("0.00001")))
	assert.True(t, r.MinNotional.Equal(decimal.RequireFromString("10")))
	assert.False(t, rules.FetchedAt.IsZero())
}

func TestPrices(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"symbol": "BTCUSDT", "price": "50123.45000000"},
			{"symbol": "ETHUSDT", "price": "3010.10000000"}
		]`)
	}))

	prices, err := client.Prices(context.Background())
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.True(t, prices["BTCUSDT"].Equal(decimal.RequireFromString("50123.45")))
	assert.True(t, prices["ETHUSDT"].Equal(decimal.RequireFromString("3010.1")))
}

func readBody(t *testing.T, r *http.Request) string {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return string(b)
}
