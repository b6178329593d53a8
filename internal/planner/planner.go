// Package planner turns a validated signal plus a computed lot size into the
// concrete multi-leg order set: one entry, N take-profit stop orders, one
// stop-loss stop order.
package planner

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

// Sides holds the resolved order sides and stop directions for a direction.
type Sides struct {
	Entry  domain.OrderSide
	Exit   domain.OrderSide
	TPStop domain.StopDirection
	SLStop domain.StopDirection
}

// ResolveSides maps a signal direction onto order sides and stop trigger
// directions. Long enters with a buy and exits with sells whose take-profits
// trigger upward; short reverses all four.
func ResolveSides(direction domain.Direction) Sides {
	if direction == domain.Long {
		return Sides{
			Entry:  domain.Buy,
			Exit:   domain.Sell,
			TPStop: domain.StopUp,
			SLStop: domain.StopDown,
		}
	}
	return Sides{
		Entry:  domain.Sell,
		Exit:   domain.Buy,
		TPStop: domain.StopDown,
		SLStop: domain.StopUp,
	}
}

// LotSize converts a usable balance into a whole number of contract lots:
// floor(balance * leverage / (lotSize * multiplier * entryPrice)).
// Truncation is intentional: fractional lots cannot be traded.
func LotSize(usableBalance float64, leverage int, contract *ports.ContractInfo, entryPrice float64) (int64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("%w: entry price must be positive, got %v", ports.ErrInvalidInput, entryPrice)
	}
	if contract.LotSize <= 0 || contract.Multiplier <= 0 {
		return 0, fmt.Errorf("%w: contract %s has non-positive lot size or multiplier", ports.ErrInvalidInput, contract.Symbol)
	}
	lots := (usableBalance * float64(leverage)) / (contract.LotSize * contract.Multiplier * entryPrice)
	return int64(math.Floor(lots)), nil
}

// BuildPlan assembles the order set for a signal. totalLots is the full order
// size in contract lots, shares the per-target fractions from the sizer (one
// entry per target). Take-profit legs whose floored size or price is zero are
// dropped, not submitted. The stop-loss leg always carries the full size.
func BuildPlan(signal *domain.Signal, totalLots int64, shares []float64) (*domain.OrderPlan, error) {
	if err := signal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidInput, err)
	}
	if len(shares) != len(signal.Targets) {
		return nil, fmt.Errorf("%w: %d shares for %d targets", ports.ErrInvalidInput, len(shares), len(signal.Targets))
	}
	if totalLots <= 0 {
		return nil, fmt.Errorf("%w: lot size %d leaves nothing to order", ports.ErrInvalidInput, totalLots)
	}

	sides := ResolveSides(signal.Type)

	entry := domain.Order{
		ClientOID: newClientOID(),
		Symbol:    signal.Pair,
		Side:      sides.Entry,
		Type:      signal.OrderType,
		Size:      totalLots,
		Leverage:  signal.Leverage,
	}
	if signal.OrderType == domain.OrderTypeLimit {
		entry.Price = signal.Entry
	}

	takeProfits := make([]domain.Order, 0, len(signal.Targets))
	for i, target := range signal.Targets {
		size := int64(math.Floor(shares[i] * float64(totalLots)))
		if size == 0 || target == 0 {
			continue
		}
		takeProfits = append(takeProfits, domain.Order{
			ClientOID: newClientOID(),
			Symbol:    signal.Pair,
			Side:      sides.Exit,
			Type:      domain.OrderTypeMarket,
			Size:      size,
			Leverage:  1,
			Stop:      sides.TPStop,
			StopPrice: target,
		})
	}

	stopLoss := domain.Order{
		ClientOID: newClientOID(),
		Symbol:    signal.Pair,
		Side:      sides.Exit,
		Type:      domain.OrderTypeMarket,
		Size:      totalLots,
		Leverage:  1,
		Stop:      sides.SLStop,
		StopPrice: signal.StopLoss,
	}

	return &domain.OrderPlan{
		Entry:       entry,
		TakeProfits: takeProfits,
		StopLoss:    stopLoss,
	}, nil
}

func newClientOID() string {
	return uuid.NewString()
}
