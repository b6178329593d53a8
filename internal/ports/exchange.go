package ports

import (
	"context"

	"signalArmyBot/internal/domain"
)

// AccountOverview is the account snapshot reported by the exchange.
type AccountOverview struct {
	Currency         string
	AccountEquity    float64
	UnrealisedPNL    float64
	MarginBalance    float64
	PositionMargin   float64
	OrderMargin      float64
	FrozenFunds      float64
	AvailableBalance float64
}

// ContractInfo holds the contract terms needed to convert a notional balance
// into a whole-lot order size.
type ContractInfo struct {
	Symbol      string
	LotSize     float64 // minimum lot size in contracts
	Multiplier  float64 // contract multiplier
	TickSize    float64
	MaxLeverage int
}

// PositionInfo is a live position as reported by the exchange.
type PositionInfo struct {
	ID               string
	Symbol           string
	CurrentQty       float64 // positive long, negative short
	AvgEntryPrice    float64
	UnrealisedPnl    float64
	LiquidationPrice float64
	Leverage         int
	IsOpen           bool
}

// OrderInfo is an existing order as reported by the exchange.
type OrderInfo struct {
	ID        string
	ClientOID string
	Symbol    string
	Side      domain.OrderSide
	Type      string
	Price     float64
	Size      int64
	Stop      domain.StopDirection
	StopPrice float64
	Active    bool
}

// OrderQuery filters order listings. Zero-value fields are omitted.
type OrderQuery struct {
	Status string // "active" or "done"
	Symbol string
	Side   domain.OrderSide
	Type   string
}

// ExchangeClient is the interface to one exchange account. An instance is
// bound to a single user's credential at construction; using one instance per
// credential keeps request signing free of cross-user contention.
//
// Implementations return *TransportError for network-level faults and
// *ExchangeError for non-2xx exchange responses.
type ExchangeClient interface {
	// AccountOverview fetches the account snapshot for a settlement currency.
	AccountOverview(ctx context.Context, currency string) (*AccountOverview, error)

	// AvailableBalance returns the balance usable for new orders.
	AvailableBalance(ctx context.Context, currency string) (float64, error)

	// PlaceOrder submits one order leg and returns the exchange confirmation.
	PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderConfirmation, error)

	// CancelOrder cancels a single order (including stop orders) by exchange
	// ID. Some venues need the symbol to route the cancellation; venues that
	// do not may ignore it.
	CancelOrder(ctx context.Context, symbol, orderID string) ([]string, error)

	// Orders lists orders matching the query.
	Orders(ctx context.Context, q OrderQuery) ([]OrderInfo, error)

	// CancelAllLimitOrders cancels all open non-stop orders, optionally
	// restricted to one symbol. Returns the cancelled order IDs.
	CancelAllLimitOrders(ctx context.Context, symbol string) ([]string, error)

	// CancelAllStopOrders cancels all untriggered stop orders, optionally
	// restricted to one symbol. Returns the cancelled order IDs.
	CancelAllStopOrders(ctx context.Context, symbol string) ([]string, error)

	// ActiveContracts lists the symbols of all currently open contracts.
	ActiveContracts(ctx context.Context) ([]string, error)

	// ContractInfo fetches the contract terms for a symbol.
	ContractInfo(ctx context.Context, symbol string) (*ContractInfo, error)

	// Positions lists the account's positions.
	Positions(ctx context.Context) ([]PositionInfo, error)

	// UntriggeredStopOrders lists stop orders that have not triggered yet.
	UntriggeredStopOrders(ctx context.Context, symbol string) ([]OrderInfo, error)
}

// ExchangeFactory builds an ExchangeClient bound to one user's credential.
// The dispatcher calls it once per user per dispatch.
type ExchangeFactory func(cred domain.Credential) (ExchangeClient, error)
