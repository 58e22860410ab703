package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/metrics"
	"github.com/0x5487/tradesim/internal/server"
	"github.com/0x5487/tradesim/internal/tradelog"
	"github.com/0x5487/tradesim/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*httptest.Server, *server.Dispatcher) {
	t.Helper()
	m := metrics.New()
	levels := match.NewAggregatedBook()
	engine := match.NewMatchingEngine(match.WithPublishLog(levels))
	d := server.NewDispatcher(engine, tradelog.New(10), server.WithMetrics(m))
	ts := httptest.NewServer(New(d, WithMetrics(m), WithLevels(levels)).Routes())
	t.Cleanup(ts.Close)
	return ts, d
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPlaceOrder(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := do(t, ts, http.MethodPost, "/orders", `{"client":"s1","side":"sell","type":"limit","qty":50,"price":"10.20"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, contentTypeJSON, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	exec := decode[match.Execution](t, resp)
	assert.Equal(t, match.OrderID(1), exec.OrderID)
	assert.True(t, exec.Rested)
	assert.Empty(t, exec.Trades)

	resp = do(t, ts, http.MethodPost, "/orders", `{"client":"b1","side":"BUY","type":"market","qty":80}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	exec = decode[match.Execution](t, resp)
	assert.Equal(t, match.OrderID(2), exec.OrderID)
	assert.False(t, exec.Rested)
	assert.Equal(t, match.Qty(30), exec.Remaining)
	require.Len(t, exec.Trades, 1)
	assert.Equal(t, match.Trade{
		ID:          1,
		MakerID:     1,
		TakerID:     2,
		Qty:         50,
		Price:       match.MustParsePrice("10.20"),
		MakerClient: "s1",
		TakerClient: "b1",
		MakerSide:   match.Sell,
		TakerSide:   match.Buy,
	}, exec.Trades[0])

	resp = do(t, ts, http.MethodGet, "/trades", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trades := decode[protocol.GetTradesResponse](t, resp)
	assert.Equal(t, exec.Trades, trades.Trades)
}

func TestPlaceOrderRejects(t *testing.T) {
	ts, d := newTestAPI(t)

	tests := []struct {
		name   string
		body   string
		reason protocol.RejectReason
	}{
		{name: "malformed json", body: `{"client":`, reason: protocol.RejectReasonInvalidPayload},
		{name: "unknown side", body: `{"side":"hold","type":"limit","qty":1,"price":"1"}`, reason: protocol.RejectReasonInvalidSide},
		{name: "missing side", body: `{"type":"market","qty":1}`, reason: protocol.RejectReasonInvalidSide},
		{name: "zero qty", body: `{"side":"buy","type":"market","qty":0}`, reason: protocol.RejectReasonInvalidQuantity},
		{name: "negative qty", body: `{"side":"buy","type":"limit","qty":-5,"price":"1"}`, reason: protocol.RejectReasonInvalidQuantity},
		{name: "bad price", body: `{"side":"buy","type":"limit","qty":1,"price":"1.00001"}`, reason: protocol.RejectReasonInvalidPrice},
		{name: "missing price", body: `{"side":"buy","type":"limit","qty":1}`, reason: protocol.RejectReasonInvalidPrice},
		{name: "unknown type", body: `{"side":"buy","type":"stop","qty":1}`, reason: protocol.RejectReasonInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, ts, http.MethodPost, "/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, contentTypeProblem, resp.Header.Get("Content-Type"))

			problem := decode[protocol.Problem](t, resp)
			assert.Equal(t, tt.reason, problem.Reason)
			assert.Equal(t, http.StatusBadRequest, problem.Status)
			assert.Equal(t, "/orders", problem.Instance)
			assert.NotEmpty(t, problem.RequestID)
		})
	}

	// Rejected orders never consume an id or touch the book.
	assert.Equal(t, match.BookStats{}, d.Engine().Stats())
	resp := do(t, ts, http.MethodPost, "/orders", `{"side":"buy","type":"limit","qty":1,"price":"1"}`)
	assert.Equal(t, match.OrderID(1), decode[match.Execution](t, resp).OrderID)
}

func TestCancelOrder(t *testing.T) {
	ts, d := newTestAPI(t)

	_, err := d.Submit(protocol.OrderTypeLimit, "mm", match.Buy, 10, match.MustParsePrice("9.95"))
	require.NoError(t, err)

	resp := do(t, ts, http.MethodDelete, "/orders/1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, protocol.CancelOrderResponse{OrderID: 1, Cancelled: true}, decode[protocol.CancelOrderResponse](t, resp))

	resp = do(t, ts, http.MethodDelete, "/orders/1", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, protocol.RejectReasonOrderNotFound, decode[protocol.Problem](t, resp).Reason)

	resp = do(t, ts, http.MethodDelete, "/orders/abc", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, protocol.RejectReasonInvalidParam, decode[protocol.Problem](t, resp).Reason)
}

func TestBookAndDepth(t *testing.T) {
	ts, d := newTestAPI(t)

	resp := do(t, ts, http.MethodGet, "/book", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, match.TopOfBook{}, decode[match.TopOfBook](t, resp))

	for _, px := range []string{"10.00", "10.05", "10.10"} {
		_, err := d.Submit(protocol.OrderTypeLimit, "mm", match.Sell, 3, match.MustParsePrice(px))
		require.NoError(t, err)
	}
	_, err := d.Submit(protocol.OrderTypeLimit, "mm", match.Buy, 7, match.MustParsePrice("9.90"))
	require.NoError(t, err)

	resp = do(t, ts, http.MethodGet, "/book", "")
	assert.Equal(t, match.TopOfBook{
		HasBid:   true,
		BidPrice: match.MustParsePrice("9.90"),
		BidQty:   7,
		HasAsk:   true,
		AskPrice: match.MustParsePrice("10.00"),
		AskQty:   3,
	}, decode[match.TopOfBook](t, resp))

	resp = do(t, ts, http.MethodGet, "/depth?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	depth := decode[match.Depth](t, resp)
	require.Len(t, depth.Asks, 2)
	assert.Equal(t, match.MustParsePrice("10.05"), depth.Asks[1].Price)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, uint64(4), depth.UpdateID)

	resp = do(t, ts, http.MethodGet, "/depth", "")
	assert.Len(t, decode[match.Depth](t, resp).Asks, 3)

	for _, q := range []string{"0", "-1", "x"} {
		resp = do(t, ts, http.MethodGet, "/depth?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestTradesLimit(t *testing.T) {
	ts, d := newTestAPI(t)

	_, err := d.Submit(protocol.OrderTypeLimit, "mm", match.Sell, 5, match.MustParsePrice("10"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = d.Submit(protocol.OrderTypeMarket, "rnd", match.Buy, 1, 0)
		require.NoError(t, err)
	}

	resp := do(t, ts, http.MethodGet, "/trades?limit=2", "")
	trades := decode[protocol.GetTradesResponse](t, resp).Trades
	require.Len(t, trades, 2)
	assert.Equal(t, uint64(2), trades[0].ID)
	assert.Equal(t, uint64(3), trades[1].ID)

	resp = do(t, ts, http.MethodGet, "/trades?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmptyTradesIsArray(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := do(t, ts, http.MethodGet, "/trades", "")
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["trades"]))
}

func TestMetricsAndRouting(t *testing.T) {
	ts, _ := newTestAPI(t)

	do(t, ts, http.MethodPost, "/orders", `{"side":"buy","type":"market","qty":0}`)

	resp := do(t, ts, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tradesim_rejects_total{reason="invalid_quantity"} 1`)
	assert.Contains(t, string(body), `command="POST /orders"`)

	resp = do(t, ts, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, contentTypeProblem, resp.Header.Get("Content-Type"))

	resp = do(t, ts, http.MethodPut, "/book", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestLevels(t *testing.T) {
	ts, d := newTestAPI(t)

	for _, px := range []string{"9.90", "9.95", "9.95"} {
		_, err := d.Submit(protocol.OrderTypeLimit, "mm", match.Buy, 2, match.MustParsePrice(px))
		require.NoError(t, err)
	}
	_, err := d.Submit(protocol.OrderTypeMarket, "rnd", match.Sell, 3, 0)
	require.NoError(t, err)

	resp := do(t, ts, http.MethodGet, "/levels?side=buy", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	levels := decode[protocol.GetLevelsResponse](t, resp)
	assert.Equal(t, match.Buy, levels.Side)
	assert.Equal(t, uint64(5), levels.SequenceID)
	require.Len(t, levels.Levels, 2)
	assert.Equal(t, match.MustParsePrice("9.95"), levels.Levels[0].Price)
	assert.Equal(t, match.Qty(1), levels.Levels[0].Size)
	assert.Equal(t, match.Qty(2), levels.Levels[1].Size)

	resp = do(t, ts, http.MethodGet, "/levels?side=sell&limit=1", "")
	assert.Empty(t, decode[protocol.GetLevelsResponse](t, resp).Levels)

	resp = do(t, ts, http.MethodGet, "/levels?side=up", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = do(t, ts, http.MethodGet, "/levels?side=buy&limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
