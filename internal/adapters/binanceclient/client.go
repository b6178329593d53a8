// Package binanceclient implements the ports.ExchangeClient interface for
// Binance USDT-M futures using the go-binance library, letting the engine run
// against Binance instead of KuCoin. Domain stop directions are translated
// into the venue's STOP_MARKET / TAKE_PROFIT_MARKET order types.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client adapts go-binance to the exchange port. One instance is bound to one
// credential; the library signs each request itself, so no in-flight guard is
// needed here.
//
// Order sizes cross the port as counts of the contract's LOT_SIZE step; this
// venue wants base-asset quantities, so every outgoing size is multiplied by
// the step before submission. Steps are cached per symbol.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger

	mu    sync.Mutex
	steps map[string]float64 // symbol -> LOT_SIZE step
}

// Config holds configuration specific to the Binance adapter.
type Config struct {
	Credential domain.Credential
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for Binance client", ports.ErrConfiguration)
	}
	if cfg.Credential.APIKey == "" || cfg.Credential.APISecret == "" {
		return nil, fmt.Errorf("%w: incomplete Binance credential", ports.ErrConfiguration)
	}

	client := futures.NewClient(cfg.Credential.APIKey, cfg.Credential.APISecret)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		steps:         make(map[string]float64),
	}, nil
}

// handleError translates library errors into the ports taxonomy: API errors
// become *ExchangeError, everything else is a transport-level fault.
func (c *Client) handleError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error(ctx, err, op+" rejected by exchange", map[string]interface{}{
			"code": apiErr.Code,
		})
		return &ports.ExchangeError{
			Code:    strconv.FormatInt(apiErr.Code, 10),
			Message: apiErr.Message,
		}
	}
	c.logger.Error(ctx, err, op+" failed")
	return &ports.TransportError{Op: op, Err: err}
}

// AccountOverview fetches the futures account snapshot for one asset.
func (c *Client) AccountOverview(ctx context.Context, currency string) (*ports.AccountOverview, error) {
	op := "AccountOverview"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, asset := range account.Assets {
		if asset.Asset != currency {
			continue
		}
		walletBalance, _ := strconv.ParseFloat(asset.WalletBalance, 64)
		marginBalance, _ := strconv.ParseFloat(asset.MarginBalance, 64)
		unrealized, _ := strconv.ParseFloat(asset.UnrealizedProfit, 64)
		positionMargin, _ := strconv.ParseFloat(asset.PositionInitialMargin, 64)
		orderMargin, _ := strconv.ParseFloat(asset.OpenOrderInitialMargin, 64)
		available, _ := strconv.ParseFloat(asset.MaxWithdrawAmount, 64)
		return &ports.AccountOverview{
			Currency:         currency,
			AccountEquity:    marginBalance,
			UnrealisedPNL:    unrealized,
			MarginBalance:    walletBalance,
			PositionMargin:   positionMargin,
			OrderMargin:      orderMargin,
			AvailableBalance: available,
		}, nil
	}
	return nil, fmt.Errorf("%w: asset %s not present in account", ports.ErrNotFound, currency)
}

// AvailableBalance returns the balance usable for new orders.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	overview, err := c.AccountOverview(ctx, currency)
	if err != nil {
		return 0, err
	}
	return overview.AvailableBalance, nil
}

// PlaceOrder submits one order leg, translating stop directions into the
// venue's trigger order types and lot counts into base-asset quantities.
func (c *Client) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderConfirmation, error) {
	op := "PlaceOrder"

	step, err := c.lotStep(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}

	// Venue leverage is per-symbol account state, not an order field. Align it
	// on the entry leg so margin matches what the position was sized with.
	if !order.IsStop() && !order.Close && order.Leverage > 0 {
		if err := c.SetLeverage(ctx, order.Symbol, order.Leverage); err != nil {
			return nil, err
		}
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(futuresSide(order.Side)).
		NewClientOrderID(order.ClientOID)

	switch {
	case order.IsStop():
		svc = svc.Type(stopOrderType(order)).StopPrice(formatPrice(order.StopPrice))
		if order.Close {
			// closePosition is only valid on trigger order types.
			svc = svc.ClosePosition(true)
		} else {
			svc = svc.Quantity(formatQuantity(order.Size, step))
		}
	case order.Close:
		// The venue rejects closePosition on plain MARKET orders; an immediate
		// close is a reduce-only market order for the full position size.
		qty, err := c.positionQuantity(ctx, order.Symbol)
		if err != nil {
			return nil, err
		}
		svc = svc.Type(futures.OrderTypeMarket).
			Quantity(strconv.FormatFloat(qty, 'f', stepDecimals(step), 64)).
			ReduceOnly(true)
	case order.Type == domain.OrderTypeLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatPrice(order.Price)).
			Quantity(formatQuantity(order.Size, step))
	default:
		svc = svc.Type(futures.OrderTypeMarket).
			Quantity(formatQuantity(order.Size, step))
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.logger.Info(ctx, op+" accepted", map[string]interface{}{
		"symbol":  order.Symbol,
		"side":    order.Side,
		"orderID": resp.OrderID,
	})
	return &domain.OrderConfirmation{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		ClientOID: resp.ClientOrderID,
	}, nil
}

// SetLeverage changes the account's leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol":   symbol,
		"leverage": leverage,
	})
	return nil
}

// lotStep returns the symbol's LOT_SIZE step, fetching contract terms on
// first use.
func (c *Client) lotStep(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	step, ok := c.steps[symbol]
	c.mu.Unlock()
	if ok {
		return step, nil
	}
	contract, err := c.ContractInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return contract.LotSize, nil
}

// positionQuantity returns the absolute size of the live position on a symbol
// in base-asset units.
func (c *Client) positionQuantity(ctx context.Context, symbol string) (float64, error) {
	risks, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, "PositionRisk")
	}
	for _, r := range risks {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if qty != 0 {
			return math.Abs(qty), nil
		}
	}
	return 0, fmt.Errorf("%w: no open position on %s", ports.ErrNotFound, symbol)
}

// CancelOrder cancels a single order; Binance routes cancellations by symbol.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) ([]string, error) {
	op := "CancelOrder"
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: order ID %q is not numeric", ports.ErrInvalidInput, orderID)
	}
	resp, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return []string{strconv.FormatInt(resp.OrderID, 10)}, nil
}

// Orders lists orders for a symbol. The venue cannot enumerate across all
// symbols, so the query must name one.
func (c *Client) Orders(ctx context.Context, q ports.OrderQuery) ([]ports.OrderInfo, error) {
	op := "Orders"
	if q.Symbol == "" {
		return nil, fmt.Errorf("%w: this venue requires a symbol to list orders", ports.ErrInvalidInput)
	}
	step, err := c.lotStep(ctx, q.Symbol)
	if err != nil {
		return nil, err
	}
	orders, err := c.futuresClient.NewListOrdersService().Symbol(q.Symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	infos := make([]ports.OrderInfo, 0, len(orders))
	for _, o := range orders {
		info := translateOrder(o, step)
		if q.Side != "" && info.Side != q.Side {
			continue
		}
		if q.Status == "active" && !info.Active {
			continue
		}
		if q.Status == "done" && info.Active {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// CancelAllLimitOrders cancels every open order on the symbol. The venue has
// no limit-only mass cancel; stop orders on the symbol are cancelled too.
func (c *Client) CancelAllLimitOrders(ctx context.Context, symbol string) ([]string, error) {
	op := "CancelAllLimitOrders"
	if err := c.futuresClient.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return nil, nil
}

// CancelAllStopOrders cancels the untriggered trigger orders on the symbol
// one by one; the venue has no stop-only mass cancel.
func (c *Client) CancelAllStopOrders(ctx context.Context, symbol string) ([]string, error) {
	op := "CancelAllStopOrders"
	open, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	var cancelled []string
	for _, o := range open {
		if o.Type != futures.OrderTypeStopMarket && o.Type != futures.OrderTypeTakeProfitMarket {
			continue
		}
		if _, err := c.futuresClient.NewCancelOrderService().Symbol(symbol).OrderID(o.OrderID).Do(ctx); err != nil {
			return cancelled, c.handleError(ctx, err, op)
		}
		cancelled = append(cancelled, strconv.FormatInt(o.OrderID, 10))
	}
	return cancelled, nil
}

// ActiveContracts lists the symbols currently open for trading.
func (c *Client) ActiveContracts(ctx context.Context) ([]string, error) {
	op := "ActiveContracts"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

// ContractInfo derives contract terms from the exchange-info filters. Binance
// futures quantities are expressed directly in base-asset steps, so the
// multiplier is 1 and the lot size comes from the LOT_SIZE filter.
func (c *Client) ContractInfo(ctx context.Context, symbol string) (*ports.ContractInfo, error) {
	op := "ContractInfo"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Symbol != symbol {
			continue
		}
		contract := &ports.ContractInfo{Symbol: symbol, LotSize: 1, Multiplier: 1}
		if f := s.LotSizeFilter(); f != nil {
			if step, err := strconv.ParseFloat(f.StepSize, 64); err == nil && step > 0 {
				contract.LotSize = step
			}
		}
		if f := s.PriceFilter(); f != nil {
			if tick, err := strconv.ParseFloat(f.TickSize, 64); err == nil {
				contract.TickSize = tick
			}
		}
		c.mu.Lock()
		c.steps[symbol] = contract.LotSize
		c.mu.Unlock()
		return contract, nil
	}
	return nil, fmt.Errorf("%w: contract %s not listed", ports.ErrNotFound, symbol)
}

// Positions lists the account's non-flat positions.
func (c *Client) Positions(ctx context.Context) ([]ports.PositionInfo, error) {
	op := "Positions"
	risks, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	positions := make([]ports.PositionInfo, 0, len(risks))
	for _, r := range risks {
		qty, _ := strconv.ParseFloat(r.PositionAmt, 64)
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		liq, _ := strconv.ParseFloat(r.LiquidationPrice, 64)
		leverage, _ := strconv.Atoi(r.Leverage)
		positions = append(positions, ports.PositionInfo{
			ID:               r.Symbol, // the venue has no position ID; the symbol is unique per position
			Symbol:           r.Symbol,
			CurrentQty:       qty,
			AvgEntryPrice:    entry,
			UnrealisedPnl:    pnl,
			LiquidationPrice: liq,
			Leverage:         leverage,
			IsOpen:           qty != 0,
		})
	}
	return positions, nil
}

// UntriggeredStopOrders lists the open trigger orders on a symbol.
func (c *Client) UntriggeredStopOrders(ctx context.Context, symbol string) ([]ports.OrderInfo, error) {
	op := "UntriggeredStopOrders"
	step, err := c.lotStep(ctx, symbol)
	if err != nil {
		return nil, err
	}
	open, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	var infos []ports.OrderInfo
	for _, o := range open {
		if o.Type != futures.OrderTypeStopMarket && o.Type != futures.OrderTypeTakeProfitMarket {
			continue
		}
		infos = append(infos, translateOrder(o, step))
	}
	return infos, nil
}

// --- Translation helpers ---

func futuresSide(side domain.OrderSide) futures.SideType {
	if side == domain.Buy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

// stopOrderType picks the venue order type for a stop leg. A leg that takes
// profit triggers in the direction the position gains (sell exits trigger up,
// buy exits trigger down); the reverse combination is a protective stop.
func stopOrderType(order *domain.Order) futures.OrderType {
	takesProfit := (order.Side == domain.Sell && order.Stop == domain.StopUp) ||
		(order.Side == domain.Buy && order.Stop == domain.StopDown)
	if takesProfit {
		return futures.OrderTypeTakeProfitMarket
	}
	return futures.OrderTypeStopMarket
}

// translateOrder converts a venue order back into port terms; the base-asset
// quantity becomes a count of LOT_SIZE steps.
func translateOrder(o *futures.Order, step float64) ports.OrderInfo {
	price, _ := strconv.ParseFloat(o.Price, 64)
	stopPrice, _ := strconv.ParseFloat(o.StopPrice, 64)
	quantity, _ := strconv.ParseFloat(o.OrigQuantity, 64)
	size := quantity
	if step > 0 {
		size = math.Round(quantity / step)
	}

	var stop domain.StopDirection
	side := domain.OrderSide("")
	switch o.Side {
	case futures.SideTypeBuy:
		side = domain.Buy
	case futures.SideTypeSell:
		side = domain.Sell
	}
	switch o.Type {
	case futures.OrderTypeTakeProfitMarket:
		if side == domain.Sell {
			stop = domain.StopUp
		} else {
			stop = domain.StopDown
		}
	case futures.OrderTypeStopMarket:
		if side == domain.Sell {
			stop = domain.StopDown
		} else {
			stop = domain.StopUp
		}
	}

	return ports.OrderInfo{
		ID:        strconv.FormatInt(o.OrderID, 10),
		ClientOID: o.ClientOrderID,
		Symbol:    o.Symbol,
		Side:      side,
		Type:      string(o.Type),
		Price:     price,
		Size:      int64(size),
		Stop:      stop,
		StopPrice: stopPrice,
		Active:    o.Status == futures.OrderStatusTypeNew,
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatQuantity renders a lot count as a base-asset quantity at the step's
// own precision, e.g. 100 lots of 0.001 -> "0.100".
func formatQuantity(lots int64, step float64) string {
	return strconv.FormatFloat(float64(lots)*step, 'f', stepDecimals(step), 64)
}

func stepDecimals(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

var _ ports.ExchangeClient = (*Client)(nil)
