// Package account binds one user's credential and capital settings to one
// exchange-client instance and runs the signal execution pipeline against it.
package account

import (
	"context"
	"fmt"
	"time"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/planner"
	"signalArmyBot/internal/ports"
	"signalArmyBot/internal/sizing"
)

const defaultSettlementCurrency = "USDT"

// Account executes signals on behalf of a single user. One Account wraps one
// ExchangeClient, so all orders it places are signed with that user's
// credential.
type Account struct {
	user     *domain.User
	client   ports.ExchangeClient
	logger   ports.Logger
	currency string
	now      func() time.Time
}

// Config holds configuration for an Account.
type Config struct {
	User     *domain.User
	Client   ports.ExchangeClient
	Logger   ports.Logger
	Currency string           // settlement currency, defaults to USDT
	Now      func() time.Time // injectable clock for tests
}

// New creates an Account for one user.
func New(cfg Config) (*Account, error) {
	if cfg.User == nil {
		return nil, fmt.Errorf("%w: user is required", ports.ErrConfiguration)
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: exchange client is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}
	currency := cfg.Currency
	if currency == "" {
		currency = defaultSettlementCurrency
	}
	clock := cfg.Now
	if clock == nil {
		clock = time.Now
	}
	return &Account{
		user:     cfg.User,
		client:   cfg.Client,
		logger:   cfg.Logger,
		currency: currency,
		now:      clock,
	}, nil
}

// ExecuteSignal runs the full pipeline for one signal: size the position from
// the user's balance and risk strategy, build the order plan, then submit the
// legs sequentially (entry, take-profits in target order, stop-loss). The
// first failing leg aborts the remaining ones. The returned result always
// carries a status; the error return reports the same failure for callers
// that branch on it.
func (a *Account) ExecuteSignal(ctx context.Context, signal *domain.Signal) (*domain.ExecutionResult, error) {
	result := &domain.ExecutionResult{
		SignalID: signal.ID,
		UserID:   a.user.ID,
	}
	fail := func(err error) (*domain.ExecutionResult, error) {
		result.Status = domain.ExecutionFailed
		if result.Entry != nil {
			result.Status = domain.ExecutionPartial
		}
		result.Err = err
		result.FinishedAt = a.now()
		return result, err
	}

	if err := signal.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", ports.ErrInvalidInput, err))
	}

	plan, err := a.buildPlan(ctx, signal)
	if err != nil {
		return fail(err)
	}

	entryConf, err := a.client.PlaceOrder(ctx, &plan.Entry)
	if err != nil {
		return fail(fmt.Errorf("place entry order: %w", err))
	}
	result.Entry = entryConf
	a.logger.Info(ctx, "entry order placed", map[string]interface{}{
		"userID":   a.user.ID,
		"signalID": signal.ID,
		"orderID":  entryConf.OrderID,
		"size":     plan.Entry.Size,
	})

	for i := range plan.TakeProfits {
		leg := &plan.TakeProfits[i]
		conf, err := a.client.PlaceOrder(ctx, leg)
		if err != nil {
			return fail(&ports.PartialExecutionError{
				Entry:     entryConf,
				Placed:    result.TakeProfit,
				FailedLeg: fmt.Sprintf("take-profit %d/%d", i+1, len(plan.TakeProfits)),
				Err:       err,
			})
		}
		result.TakeProfit = append(result.TakeProfit, *conf)
	}

	slConf, err := a.client.PlaceOrder(ctx, &plan.StopLoss)
	if err != nil {
		return fail(&ports.PartialExecutionError{
			Entry:     entryConf,
			Placed:    result.TakeProfit,
			FailedLeg: "stop-loss",
			Err:       err,
		})
	}
	result.StopLoss = slConf

	result.Status = domain.ExecutionSucceeded
	result.FinishedAt = a.now()
	a.logger.Info(ctx, "signal executed", map[string]interface{}{
		"userID":      a.user.ID,
		"signalID":    signal.ID,
		"takeProfits": len(result.TakeProfit),
	})
	return result, nil
}

// buildPlan sizes the position from the live balance and assembles the order
// legs. Sizing uses the signal's entry price as the reference even for market
// entries.
func (a *Account) buildPlan(ctx context.Context, signal *domain.Signal) (*domain.OrderPlan, error) {
	balance, err := a.client.AvailableBalance(ctx, a.currency)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}

	usable := balance * a.user.UsableFraction(signal)
	if usable <= 0 {
		return nil, fmt.Errorf("%w: no usable balance (balance %v, fraction %v)",
			ports.ErrInvalidInput, balance, a.user.UsableFraction(signal))
	}

	contract, err := a.client.ContractInfo(ctx, signal.Pair)
	if err != nil {
		return nil, fmt.Errorf("fetch contract info: %w", err)
	}

	totalLots, err := planner.LotSize(usable, signal.Leverage, contract, signal.Entry)
	if err != nil {
		return nil, err
	}

	shares, err := sizing.TargetShares(a.user.Strategy, len(signal.Targets))
	if err != nil {
		return nil, err
	}

	return planner.BuildPlan(signal, totalLots, shares)
}

// ClosePosition market-closes the live position on a symbol. The position's
// exchange ID doubles as the client order ID so a repeated close attempt for
// the same position is rejected as a duplicate instead of double-closing.
func (a *Account) ClosePosition(ctx context.Context, symbol string) (*domain.OrderConfirmation, error) {
	positions, err := a.client.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	for _, pos := range positions {
		if pos.Symbol != symbol || !pos.IsOpen || pos.CurrentQty == 0 {
			continue
		}
		side := domain.Sell
		if pos.CurrentQty < 0 {
			side = domain.Buy
		}
		conf, err := a.client.PlaceOrder(ctx, &domain.Order{
			ClientOID: pos.ID,
			Symbol:    symbol,
			Side:      side,
			Type:      domain.OrderTypeMarket,
			Leverage:  pos.Leverage,
			Close:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("close position %s: %w", symbol, err)
		}
		a.logger.Info(ctx, "position closed", map[string]interface{}{
			"userID":  a.user.ID,
			"symbol":  symbol,
			"orderID": conf.OrderID,
		})
		return conf, nil
	}
	return nil, fmt.Errorf("%w: no open position on %s", ports.ErrNotFound, symbol)
}

// Read passthroughs. They exist so callers holding an Account never reach for
// the raw client and accidentally mix credentials.

func (a *Account) AvailableBalance(ctx context.Context) (float64, error) {
	return a.client.AvailableBalance(ctx, a.currency)
}

func (a *Account) Overview(ctx context.Context) (*ports.AccountOverview, error) {
	return a.client.AccountOverview(ctx, a.currency)
}

func (a *Account) Orders(ctx context.Context, q ports.OrderQuery) ([]ports.OrderInfo, error) {
	return a.client.Orders(ctx, q)
}

func (a *Account) Positions(ctx context.Context) ([]ports.PositionInfo, error) {
	return a.client.Positions(ctx)
}

func (a *Account) UntriggeredStopOrders(ctx context.Context, symbol string) ([]ports.OrderInfo, error) {
	return a.client.UntriggeredStopOrders(ctx, symbol)
}

func (a *Account) CancelOrder(ctx context.Context, symbol, orderID string) ([]string, error) {
	return a.client.CancelOrder(ctx, symbol, orderID)
}

func (a *Account) CancelAllLimitOrders(ctx context.Context, symbol string) ([]string, error) {
	return a.client.CancelAllLimitOrders(ctx, symbol)
}

func (a *Account) CancelAllStopOrders(ctx context.Context, symbol string) ([]string, error) {
	return a.client.CancelAllStopOrders(ctx, symbol)
}
