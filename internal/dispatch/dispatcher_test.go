package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockDirectory struct {
	trader *domain.Trader
	users  []*domain.User
}

func (m *mockDirectory) FindTrader(ctx context.Context, traderID int64) (*domain.Trader, error) {
	if m.trader == nil || m.trader.ID != traderID {
		return nil, ports.ErrNotFound
	}
	return m.trader, nil
}

func (m *mockDirectory) ActiveSubscribers(ctx context.Context, traderID int64) ([]*domain.User, error) {
	return m.users, nil
}

type mockSink struct {
	mu       sync.Mutex
	recorded []*domain.ExecutionResult
	err      error
}

func (m *mockSink) Record(ctx context.Context, result *domain.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, result)
	return m.err
}

// mockExchange drives one user's behavior by API key: "fail" rejects the
// entry, "fail-late" rejects the stop-loss, "panic" panics on PlaceOrder.
type mockExchange struct {
	behavior string

	mu     sync.Mutex
	placed int
}

func (m *mockExchange) AccountOverview(ctx context.Context, currency string) (*ports.AccountOverview, error) {
	return &ports.AccountOverview{Currency: currency, AvailableBalance: 1000}, nil
}

func (m *mockExchange) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	return 1000, nil
}

func (m *mockExchange) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderConfirmation, error) {
	if m.behavior == "panic" {
		panic("wire decode blew up")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.behavior == "fail" {
		return nil, &ports.ExchangeError{HTTPStatus: 400, Code: "300003", Message: "balance insufficient"}
	}
	m.placed++
	if m.behavior == "fail-late" && order.Stop == domain.StopDown {
		return nil, &ports.ExchangeError{HTTPStatus: 400, Code: "100001", Message: "bad stop price"}
	}
	return &domain.OrderConfirmation{OrderID: "ok", ClientOID: order.ClientOID}, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) ([]string, error) {
	return nil, nil
}
func (m *mockExchange) Orders(ctx context.Context, q ports.OrderQuery) ([]ports.OrderInfo, error) {
	return nil, nil
}
func (m *mockExchange) CancelAllLimitOrders(ctx context.Context, symbol string) ([]string, error) {
	return nil, nil
}
func (m *mockExchange) CancelAllStopOrders(ctx context.Context, symbol string) ([]string, error) {
	return nil, nil
}
func (m *mockExchange) ActiveContracts(ctx context.Context) ([]string, error) { return nil, nil }
func (m *mockExchange) ContractInfo(ctx context.Context, symbol string) (*ports.ContractInfo, error) {
	return &ports.ContractInfo{Symbol: symbol, LotSize: 1, Multiplier: 1}, nil
}
func (m *mockExchange) Positions(ctx context.Context) ([]ports.PositionInfo, error) {
	return nil, nil
}
func (m *mockExchange) UntriggeredStopOrders(ctx context.Context, symbol string) ([]ports.OrderInfo, error) {
	return nil, nil
}

var _ ports.ExchangeClient = (*mockExchange)(nil)

func testSignal() *domain.Signal {
	return &domain.Signal{
		ID:              11,
		TraderID:        1,
		Pair:            "XBTUSDTM",
		OrderType:       domain.OrderTypeMarket,
		Type:            domain.Long,
		Entry:           100,
		Targets:         []float64{110, 120},
		StopLoss:        90,
		CapitalFraction: 0.5,
		Leverage:        5,
	}
}

func testUser(id int64, apiKey string) *domain.User {
	return &domain.User{
		ID:       id,
		TraderID: 1,
		Active:   true,
		Strategy: domain.RiskLow,
		Credential: domain.Credential{
			APIKey:        apiKey,
			APISecret:     "secret",
			APIPassphrase: "pass",
		},
	}
}

// trackingFactory builds one mockExchange per call and remembers which
// credential each was bound to.
type trackingFactory struct {
	mu      sync.Mutex
	clients map[string]*mockExchange
}

func newTrackingFactory() *trackingFactory {
	return &trackingFactory{clients: map[string]*mockExchange{}}
}

func (f *trackingFactory) build(cred domain.Credential) (ports.ExchangeClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	client := &mockExchange{behavior: cred.APIKey}
	f.clients[cred.APIKey] = client
	return client, nil
}

func newTestDispatcher(t *testing.T, directory ports.UserDirectory, factory ports.ExchangeFactory, sink ports.ResultSink) *Dispatcher {
	t.Helper()
	d, err := New(Config{
		Directory:      directory,
		Factory:        factory,
		Sink:           sink,
		Logger:         &mockLogger{},
		MaxConcurrent:  4,
		PerUserTimeout: time.Second,
	})
	require.NoError(t, err)
	return d
}

func TestDispatch_IsolatesUserFailures(t *testing.T) {
	directory := &mockDirectory{
		trader: &domain.Trader{ID: 1},
		users: []*domain.User{
			testUser(1, "ok-a"),
			testUser(2, "fail"),
			testUser(3, "ok-b"),
		},
	}
	factory := newTrackingFactory()
	sink := &mockSink{}
	d := newTestDispatcher(t, directory, factory.build, sink)

	summary, err := d.Dispatch(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Users)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Partial)

	// Results stay in directory order regardless of completion order.
	require.Len(t, summary.Results, 3)
	assert.Equal(t, int64(1), summary.Results[0].UserID)
	assert.Equal(t, domain.ExecutionSucceeded, summary.Results[0].Status)
	assert.Equal(t, int64(2), summary.Results[1].UserID)
	assert.Equal(t, domain.ExecutionFailed, summary.Results[1].Status)
	assert.Error(t, summary.Results[1].Err)
	assert.Equal(t, domain.ExecutionSucceeded, summary.Results[2].Status)

	// Each user got a client bound to their own credential.
	assert.Len(t, factory.clients, 3)
	assert.Zero(t, factory.clients["fail"].placed)
	assert.NotZero(t, factory.clients["ok-a"].placed)

	assert.Len(t, sink.recorded, 3)
}

func TestDispatch_PartialIsCountedAndFlagged(t *testing.T) {
	directory := &mockDirectory{
		trader: &domain.Trader{ID: 1},
		users:  []*domain.User{testUser(1, "fail-late"), testUser(2, "ok")},
	}
	factory := newTrackingFactory()
	d := newTestDispatcher(t, directory, factory.build, nil)

	summary, err := d.Dispatch(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Partial)
	assert.Equal(t, 0, summary.Failed)

	partial := summary.Results[0]
	assert.Equal(t, domain.ExecutionPartial, partial.Status)
	assert.True(t, partial.Unprotected())
	assert.NotNil(t, partial.Entry, "the entry was accepted before the stop-loss failed")
	assert.Nil(t, partial.StopLoss)

	var partialErr *ports.PartialExecutionError
	require.True(t, errors.As(partial.Err, &partialErr))
}

func TestDispatch_ContainsPanics(t *testing.T) {
	directory := &mockDirectory{
		trader: &domain.Trader{ID: 1},
		users:  []*domain.User{testUser(1, "panic"), testUser(2, "ok")},
	}
	factory := newTrackingFactory()
	d := newTestDispatcher(t, directory, factory.build, nil)

	summary, err := d.Dispatch(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Contains(t, summary.Results[0].Err.Error(), "panicked")
}

func TestDispatch_FactoryFailureIsPerUser(t *testing.T) {
	directory := &mockDirectory{
		trader: &domain.Trader{ID: 1},
		users:  []*domain.User{testUser(1, "ok-a"), testUser(2, "broken")},
	}
	factory := func(cred domain.Credential) (ports.ExchangeClient, error) {
		if cred.APIKey == "broken" {
			return nil, errors.New("credential rejected")
		}
		return &mockExchange{behavior: cred.APIKey}, nil
	}
	d := newTestDispatcher(t, directory, factory, nil)

	summary, err := d.Dispatch(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, summary.Results[1].Err.Error(), "build exchange client")
}

func TestDispatch_UnknownTrader(t *testing.T) {
	directory := &mockDirectory{trader: &domain.Trader{ID: 99}}
	d := newTestDispatcher(t, directory, newTrackingFactory().build, nil)

	_, err := d.Dispatch(context.Background(), testSignal())
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestDispatch_InvalidSignal(t *testing.T) {
	directory := &mockDirectory{trader: &domain.Trader{ID: 1}}
	d := newTestDispatcher(t, directory, newTrackingFactory().build, nil)

	bad := testSignal()
	bad.StopLoss = bad.Entry

	_, err := d.Dispatch(context.Background(), bad)
	assert.True(t, errors.Is(err, ports.ErrInvalidInput))
}

func TestDispatch_SinkErrorDoesNotFailRun(t *testing.T) {
	directory := &mockDirectory{
		trader: &domain.Trader{ID: 1},
		users:  []*domain.User{testUser(1, "ok")},
	}
	sink := &mockSink{err: errors.New("disk full")}
	d := newTestDispatcher(t, directory, newTrackingFactory().build, sink)

	summary, err := d.Dispatch(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Len(t, sink.recorded, 1)
}

func TestDispatch_NoSubscribers(t *testing.T) {
	directory := &mockDirectory{trader: &domain.Trader{ID: 1}}
	d := newTestDispatcher(t, directory, newTrackingFactory().build, nil)

	summary, err := d.Dispatch(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Zero(t, summary.Users)
	assert.Empty(t, summary.Results)
}
