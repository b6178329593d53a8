package domain

import (
	"fmt"
	"math"
)

// OrderType is the entry order type of a signal.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Direction is the trade direction of a signal.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Timeframe is the chart timeframe a signal was drawn on. Informational only;
// execution never inspects it.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe45m Timeframe = "45m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe3h  Timeframe = "3h"
	Timeframe4h  Timeframe = "4h"
	Timeframe8h  Timeframe = "8h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1mo Timeframe = "1mo"
)

// SignalStatus tracks the lifecycle of a signal after publication.
type SignalStatus string

const (
	SignalNotFilled SignalStatus = "not_filled"
	SignalFilled    SignalStatus = "filled"
	SignalTargeted  SignalStatus = "targeted"
	SignalStopped   SignalStatus = "stopped"
)

// Signal is a trade idea published by a trader. It is immutable for execution
// purposes once created.
type Signal struct {
	ID              int64        `json:"id"`
	TraderID        int64        `json:"traderId"`
	Pair            string       `json:"pair"` // contract symbol, e.g. "XBTUSDTM"
	OrderType       OrderType    `json:"orderType"`
	Type            Direction    `json:"type"`
	Entry           float64      `json:"entry"`
	Targets         []float64    `json:"targets"` // take-profit prices, in order
	StopLoss        float64      `json:"stopLoss"`
	CapitalFraction float64      `json:"capitalFraction"` // fraction of balance per trade, in [0,1]
	Leverage        int          `json:"leverage"`
	Timeframe       Timeframe    `json:"timeframe,omitempty"`
	Status          SignalStatus `json:"status,omitempty"`
	RiskReward      float64      `json:"riskReward,omitempty"` // derived at creation, informational
}

// Validate checks the invariants required before a signal may be executed.
func (s *Signal) Validate() error {
	if s.Pair == "" {
		return fmt.Errorf("signal pair is empty")
	}
	if s.OrderType != OrderTypeLimit && s.OrderType != OrderTypeMarket {
		return fmt.Errorf("invalid order type %q", s.OrderType)
	}
	if s.Type != Long && s.Type != Short {
		return fmt.Errorf("invalid direction %q", s.Type)
	}
	if len(s.Targets) == 0 {
		return fmt.Errorf("signal has no targets")
	}
	if s.Entry == s.StopLoss {
		return fmt.Errorf("entry equals stop-loss")
	}
	if s.CapitalFraction < 0 || s.CapitalFraction > 1 {
		return fmt.Errorf("capital fraction %v outside [0,1]", s.CapitalFraction)
	}
	if s.Leverage < 1 || s.Leverage > 100 {
		return fmt.Errorf("leverage %d outside [1,100]", s.Leverage)
	}
	return nil
}

// ComputeRiskReward derives the risk/reward ratio of the signal:
// |avg(targets) - entry| / |entry - stopLoss|. It is computed once at creation
// and carried for display only.
func (s *Signal) ComputeRiskReward() float64 {
	if len(s.Targets) == 0 || s.Entry == s.StopLoss {
		return 0
	}
	sum := 0.0
	for _, t := range s.Targets {
		sum += t
	}
	avg := sum / float64(len(s.Targets))
	return math.Abs((avg - s.Entry) / (s.Entry - s.StopLoss))
}
