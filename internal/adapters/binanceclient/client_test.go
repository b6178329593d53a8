package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/planner"
	"signalArmyBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// BTCUSDT trades in 0.001 steps.
const exchangeInfoJSON = `{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","filters":[
	{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"},
	{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"0.01","maxPrice":"1000000"}]}]}`

const positionRiskJSON = `[{"symbol":"BTCUSDT","positionAmt":"-0.100","entryPrice":"100000",
	"markPrice":"100100","unRealizedProfit":"-10.0","liquidationPrice":"0","leverage":"10"}]`

const openOrdersJSON = `[{"orderId":9,"clientOrderId":"oid-9","symbol":"BTCUSDT","side":"SELL",
	"type":"TAKE_PROFIT_MARKET","price":"0","stopPrice":"110000","origQty":"0.025","status":"NEW"}]`

type recordedCall struct {
	path string
	form url.Values
}

// venueStub plays the exchange REST surface and records what it receives.
type venueStub struct {
	server *httptest.Server

	mu    sync.Mutex
	calls []recordedCall

	orderStatus int
	orderBody   string
}

func newVenueStub(t *testing.T) *venueStub {
	t.Helper()
	s := &venueStub{orderStatus: http.StatusOK}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		s.mu.Lock()
		s.calls = append(s.calls, recordedCall{path: r.URL.Path, form: r.Form})
		s.mu.Unlock()

		switch {
		case strings.Contains(r.URL.Path, "exchangeInfo"):
			fmt.Fprint(w, exchangeInfoJSON)
		case strings.Contains(r.URL.Path, "positionRisk"):
			fmt.Fprint(w, positionRiskJSON)
		case strings.Contains(r.URL.Path, "leverage"):
			fmt.Fprint(w, `{"leverage":10,"maxNotionalValue":"1000000","symbol":"BTCUSDT"}`)
		case strings.Contains(r.URL.Path, "allOrders") || strings.Contains(r.URL.Path, "openOrders"):
			fmt.Fprint(w, openOrdersJSON)
		case strings.Contains(r.URL.Path, "order"):
			if s.orderStatus != http.StatusOK {
				w.WriteHeader(s.orderStatus)
				fmt.Fprint(w, s.orderBody)
				return
			}
			fmt.Fprintf(w, `{"orderId":777,"clientOrderId":%q,"symbol":"BTCUSDT","status":"NEW"}`,
				r.Form.Get("newClientOrderId"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

// callsTo returns the recorded requests whose path contains the fragment, in
// arrival order.
func (s *venueStub) callsTo(fragment string) []recordedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedCall
	for _, c := range s.calls {
		if strings.Contains(c.path, fragment) {
			out = append(out, c)
		}
	}
	return out
}

func (s *venueStub) firstIndex(fragment string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.calls {
		if strings.Contains(c.path, fragment) {
			return i
		}
	}
	return -1
}

func newTestClient(t *testing.T, stub *venueStub) *Client {
	t.Helper()
	client, err := New(Config{
		Credential: domain.Credential{APIKey: "test-key", APISecret: "test-secret"},
		Logger:     &mockLogger{},
	})
	require.NoError(t, err)
	client.futuresClient.BaseURL = stub.server.URL
	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Credential: domain.Credential{APIKey: "k", APISecret: "s"}})
	assert.True(t, errors.Is(err, ports.ErrConfiguration), "missing logger")

	_, err = New(Config{Logger: &mockLogger{}})
	assert.True(t, errors.Is(err, ports.ErrConfiguration), "missing credential")
}

// An entry sized from a 1000 USDT balance at 10x and price 100000 affords
// 0.1 BTC, i.e. 100 lots of 0.001. The venue must receive 0.100, not the raw
// lot count.
func TestPlaceOrder_EntryQuantityInBaseUnits(t *testing.T) {
	stub := newVenueStub(t)
	client := newTestClient(t, stub)
	ctx := context.Background()

	contract, err := client.ContractInfo(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.001, contract.LotSize)

	lots, err := planner.LotSize(1000, 10, contract, 100000)
	require.NoError(t, err)
	require.Equal(t, int64(100), lots)

	conf, err := client.PlaceOrder(ctx, &domain.Order{
		ClientOID: "oid-entry",
		Symbol:    "BTCUSDT",
		Side:      domain.Buy,
		Type:      domain.OrderTypeMarket,
		Size:      lots,
		Leverage:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, "777", conf.OrderID)
	assert.Equal(t, "oid-entry", conf.ClientOID)

	orders := stub.callsTo("/order")
	require.Len(t, orders, 1)
	form := orders[0].form
	assert.Equal(t, "0.100", form.Get("quantity"))
	assert.Equal(t, "MARKET", form.Get("type"))
	assert.Equal(t, "BUY", form.Get("side"))
}

func TestPlaceOrder_AlignsLeverageBeforeEntry(t *testing.T) {
	stub := newVenueStub(t)
	client := newTestClient(t, stub)
	ctx := context.Background()

	_, err := client.PlaceOrder(ctx, &domain.Order{
		ClientOID: "oid-entry",
		Symbol:    "BTCUSDT",
		Side:      domain.Buy,
		Type:      domain.OrderTypeLimit,
		Price:     100000,
		Size:      100,
		Leverage:  10,
	})
	require.NoError(t, err)

	leverageCalls := stub.callsTo("/leverage")
	require.Len(t, leverageCalls, 1)
	assert.Equal(t, "BTCUSDT", leverageCalls[0].form.Get("symbol"))
	assert.Equal(t, "10", leverageCalls[0].form.Get("leverage"))
	assert.Less(t, stub.firstIndex("/leverage"), stub.firstIndex("/order"),
		"leverage must be aligned before the entry is submitted")
}

func TestPlaceOrder_StopLegSkipsLeverageChange(t *testing.T) {
	stub := newVenueStub(t)
	client := newTestClient(t, stub)

	_, err := client.PlaceOrder(context.Background(), &domain.Order{
		ClientOID: "oid-tp",
		Symbol:    "BTCUSDT",
		Side:      domain.Sell,
		Type:      domain.OrderTypeMarket,
		Size:      25,
		Leverage:  1,
		Stop:      domain.StopUp,
		StopPrice: 110000,
	})
	require.NoError(t, err)

	assert.Empty(t, stub.callsTo("/leverage"),
		"stop legs must not reset the account's leverage")

	orders := stub.callsTo("/order")
	require.Len(t, orders, 1)
	form := orders[0].form
	assert.Equal(t, "TAKE_PROFIT_MARKET", form.Get("type"))
	assert.Equal(t, "0.025", form.Get("quantity"))
	assert.Equal(t, "110000", form.Get("stopPrice"))
	assert.Empty(t, form.Get("closePosition"))
}

// An immediate close must go out as a reduce-only market order sized at the
// live position, not as closePosition (which the venue only accepts on
// trigger orders).
func TestPlaceOrder_MarketCloseIsReduceOnly(t *testing.T) {
	stub := newVenueStub(t)
	client := newTestClient(t, stub)

	conf, err := client.PlaceOrder(context.Background(), &domain.Order{
		ClientOID: "BTCUSDT",
		Symbol:    "BTCUSDT",
		Side:      domain.Buy, // closing a short
		Type:      domain.OrderTypeMarket,
		Leverage:  10,
		Close:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", conf.ClientOID)

	require.NotEqual(t, -1, stub.firstIndex("positionRisk"), "the close must size itself from the live position")
	assert.Empty(t, stub.callsTo("/leverage"), "closing must not touch account leverage")

	orders := stub.callsTo("/order")
	require.Len(t, orders, 1)
	form := orders[0].form
	assert.Equal(t, "MARKET", form.Get("type"))
	assert.Equal(t, "true", form.Get("reduceOnly"))
	assert.Equal(t, "0.100", form.Get("quantity"), "|positionAmt| of the short")
	assert.Empty(t, form.Get("closePosition"))
}

func TestOrders_SizesReportedInLots(t *testing.T) {
	stub := newVenueStub(t)
	client := newTestClient(t, stub)

	orders, err := client.Orders(context.Background(), ports.OrderQuery{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(25), orders[0].Size, "0.025 base units at step 0.001")
	assert.Equal(t, domain.StopUp, orders[0].Stop)
	assert.True(t, orders[0].Active)

	_, err = client.Orders(context.Background(), ports.OrderQuery{})
	assert.True(t, errors.Is(err, ports.ErrInvalidInput), "this venue cannot list across symbols")
}

func TestPlaceOrder_RejectionBecomesExchangeError(t *testing.T) {
	stub := newVenueStub(t)
	stub.orderStatus = http.StatusBadRequest
	stub.orderBody = `{"code":-2019,"msg":"Margin is insufficient."}`
	client := newTestClient(t, stub)

	_, err := client.PlaceOrder(context.Background(), &domain.Order{
		ClientOID: "oid-entry",
		Symbol:    "BTCUSDT",
		Side:      domain.Buy,
		Type:      domain.OrderTypeMarket,
		Size:      1,
		Leverage:  10,
	})
	require.Error(t, err)

	var exchangeErr *ports.ExchangeError
	require.True(t, errors.As(err, &exchangeErr))
	assert.Equal(t, "-2019", exchangeErr.Code)
	assert.Equal(t, "Margin is insufficient.", exchangeErr.Message)
}
