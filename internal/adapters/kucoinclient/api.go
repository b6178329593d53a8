package kucoinclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

// Wire formats. KuCoin reports account and position figures as numbers but
// order prices as strings.

type wireOverview struct {
	Currency         string  `json:"currency"`
	AccountEquity    float64 `json:"accountEquity"`
	UnrealisedPNL    float64 `json:"unrealisedPNL"`
	MarginBalance    float64 `json:"marginBalance"`
	PositionMargin   float64 `json:"positionMargin"`
	OrderMargin      float64 `json:"orderMargin"`
	FrozenFunds      float64 `json:"frozenFunds"`
	AvailableBalance float64 `json:"availableBalance"`
}

type wireContract struct {
	Symbol      string  `json:"symbol"`
	LotSize     float64 `json:"lotSize"`
	Multiplier  float64 `json:"multiplier"`
	TickSize    float64 `json:"tickSize"`
	MaxLeverage int     `json:"maxLeverage"`
}

type wireOrder struct {
	ID        string `json:"id"`
	ClientOID string `json:"clientOid"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Price     string `json:"price"`
	Size      int64  `json:"size"`
	Stop      string `json:"stop"`
	StopPrice string `json:"stopPrice"`
	IsActive  bool   `json:"isActive"`
}

type wireOrderPage struct {
	Items []wireOrder `json:"items"`
}

type wirePosition struct {
	ID               string  `json:"id"`
	Symbol           string  `json:"symbol"`
	CurrentQty       float64 `json:"currentQty"`
	AvgEntryPrice    float64 `json:"avgEntryPrice"`
	UnrealisedPnl    float64 `json:"unrealisedPnl"`
	LiquidationPrice float64 `json:"liquidationPrice"`
	RealLeverage     float64 `json:"realLeverage"`
	IsOpen           bool    `json:"isOpen"`
}

func translateOrder(o wireOrder) ports.OrderInfo {
	price, _ := strconv.ParseFloat(o.Price, 64)
	stopPrice, _ := strconv.ParseFloat(o.StopPrice, 64)
	return ports.OrderInfo{
		ID:        o.ID,
		ClientOID: o.ClientOID,
		Symbol:    o.Symbol,
		Side:      domain.OrderSide(o.Side),
		Type:      o.Type,
		Price:     price,
		Size:      o.Size,
		Stop:      domain.StopDirection(o.Stop),
		StopPrice: stopPrice,
		Active:    o.IsActive,
	}
}

// AccountOverview fetches the account snapshot for a settlement currency.
func (c *Client) AccountOverview(ctx context.Context, currency string) (*ports.AccountOverview, error) {
	params := map[string]interface{}{}
	if currency != "" {
		params["currency"] = currency
	}
	data, err := c.call(ctx, "get_account_overview", params)
	if err != nil {
		return nil, err
	}
	var w wireOverview
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode account overview: %w", err)
	}
	return &ports.AccountOverview{
		Currency:         w.Currency,
		AccountEquity:    w.AccountEquity,
		UnrealisedPNL:    w.UnrealisedPNL,
		MarginBalance:    w.MarginBalance,
		PositionMargin:   w.PositionMargin,
		OrderMargin:      w.OrderMargin,
		FrozenFunds:      w.FrozenFunds,
		AvailableBalance: w.AvailableBalance,
	}, nil
}

// AvailableBalance returns the balance usable for new orders.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	overview, err := c.AccountOverview(ctx, currency)
	if err != nil {
		return 0, err
	}
	return overview.AvailableBalance, nil
}

// PlaceOrder submits one order leg. Stop legs carry the trigger direction and
// price; market orders omit the price; close orders flag closeOrder.
func (c *Client) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderConfirmation, error) {
	params := map[string]interface{}{
		"clientOid": order.ClientOID,
		"side":      string(order.Side),
		"symbol":    order.Symbol,
		"type":      string(order.Type),
		"leverage":  strconv.Itoa(order.Leverage),
	}
	if order.Size > 0 {
		params["size"] = order.Size
	}
	if order.Type == domain.OrderTypeLimit && order.Price > 0 {
		params["price"] = formatPrice(order.Price)
	}
	if order.IsStop() {
		params["stop"] = string(order.Stop)
		params["stopPriceType"] = "TP"
		params["stopPrice"] = formatPrice(order.StopPrice)
	}
	if order.Close {
		params["closeOrder"] = true
	}

	data, err := c.call(ctx, "place_order", params)
	if err != nil {
		return nil, err
	}
	var w struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode order confirmation: %w", err)
	}
	return &domain.OrderConfirmation{OrderID: w.OrderID, ClientOID: order.ClientOID}, nil
}

// CancelOrder cancels a single order by its exchange-assigned ID. The symbol
// is not needed on this venue and is ignored.
func (c *Client) CancelOrder(ctx context.Context, _ string, orderID string) ([]string, error) {
	data, err := c.call(ctx, "cancel_order", map[string]interface{}{"order_id": orderID})
	if err != nil {
		return nil, err
	}
	return decodeCancelled(data)
}

// Orders lists orders matching the query.
func (c *Client) Orders(ctx context.Context, q ports.OrderQuery) ([]ports.OrderInfo, error) {
	params := map[string]interface{}{}
	if q.Status != "" {
		params["status"] = q.Status
	}
	if q.Symbol != "" {
		params["symbol"] = q.Symbol
	}
	if q.Side != "" {
		params["side"] = string(q.Side)
	}
	if q.Type != "" {
		params["type"] = q.Type
	}
	data, err := c.call(ctx, "get_order_list", params)
	if err != nil {
		return nil, err
	}
	return decodeOrderPage(data)
}

// CancelAllLimitOrders cancels all open non-stop orders.
func (c *Client) CancelAllLimitOrders(ctx context.Context, symbol string) ([]string, error) {
	return c.massCancel(ctx, "limit_order_mass_cancellation", symbol)
}

// CancelAllStopOrders cancels all untriggered stop orders.
func (c *Client) CancelAllStopOrders(ctx context.Context, symbol string) ([]string, error) {
	return c.massCancel(ctx, "stop_order_mass_cancellation", symbol)
}

func (c *Client) massCancel(ctx context.Context, point, symbol string) ([]string, error) {
	params := map[string]interface{}{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	data, err := c.call(ctx, point, params)
	if err != nil {
		return nil, err
	}
	return decodeCancelled(data)
}

// ActiveContracts lists the symbols of all currently open contracts.
func (c *Client) ActiveContracts(ctx context.Context) ([]string, error) {
	data, err := c.call(ctx, "get_open_contract_list", nil)
	if err != nil {
		return nil, err
	}
	var contracts []wireContract
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("decode contract list: %w", err)
	}
	symbols := make([]string, 0, len(contracts))
	for _, contract := range contracts {
		symbols = append(symbols, contract.Symbol)
	}
	return symbols, nil
}

// ContractInfo fetches the contract terms for a symbol.
func (c *Client) ContractInfo(ctx context.Context, symbol string) (*ports.ContractInfo, error) {
	data, err := c.call(ctx, "get_contract_info", map[string]interface{}{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	var w wireContract
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode contract info: %w", err)
	}
	return &ports.ContractInfo{
		Symbol:      w.Symbol,
		LotSize:     w.LotSize,
		Multiplier:  w.Multiplier,
		TickSize:    w.TickSize,
		MaxLeverage: w.MaxLeverage,
	}, nil
}

// Positions lists the account's positions.
func (c *Client) Positions(ctx context.Context) ([]ports.PositionInfo, error) {
	data, err := c.call(ctx, "get_position_list", nil)
	if err != nil {
		return nil, err
	}
	var wire []wirePosition
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode position list: %w", err)
	}
	positions := make([]ports.PositionInfo, 0, len(wire))
	for _, p := range wire {
		positions = append(positions, ports.PositionInfo{
			ID:               p.ID,
			Symbol:           p.Symbol,
			CurrentQty:       p.CurrentQty,
			AvgEntryPrice:    p.AvgEntryPrice,
			UnrealisedPnl:    p.UnrealisedPnl,
			LiquidationPrice: p.LiquidationPrice,
			Leverage:         int(p.RealLeverage),
			IsOpen:           p.IsOpen,
		})
	}
	return positions, nil
}

// UntriggeredStopOrders lists stop orders that have not triggered yet.
func (c *Client) UntriggeredStopOrders(ctx context.Context, symbol string) ([]ports.OrderInfo, error) {
	params := map[string]interface{}{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	data, err := c.call(ctx, "get_untriggered_stop_order_list", params)
	if err != nil {
		return nil, err
	}
	return decodeOrderPage(data)
}

func decodeOrderPage(data json.RawMessage) ([]ports.OrderInfo, error) {
	var page wireOrderPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("decode order page: %w", err)
	}
	orders := make([]ports.OrderInfo, 0, len(page.Items))
	for _, item := range page.Items {
		orders = append(orders, translateOrder(item))
	}
	return orders, nil
}

func decodeCancelled(data json.RawMessage) ([]string, error) {
	var w struct {
		CancelledOrderIDs []string `json:"cancelledOrderIds"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode cancellation response: %w", err)
	}
	return w.CancelledOrderIDs, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ ports.ExchangeClient = (*Client)(nil)
