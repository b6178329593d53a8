package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSignal() *Signal {
	return &Signal{
		ID:              1,
		TraderID:        1,
		Pair:            "XBTUSDTM",
		OrderType:       OrderTypeLimit,
		Type:            Long,
		Entry:           100,
		Targets:         []float64{110, 120},
		StopLoss:        90,
		CapitalFraction: 0.5,
		Leverage:        10,
	}
}

func TestSignal_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Signal)
		wantErr bool
	}{
		{name: "valid limit long", mutate: func(s *Signal) {}},
		{name: "valid market short", mutate: func(s *Signal) {
			s.OrderType = OrderTypeMarket
			s.Type = Short
			s.Targets = []float64{90, 80}
			s.StopLoss = 110
		}},
		{name: "empty pair", mutate: func(s *Signal) { s.Pair = "" }, wantErr: true},
		{name: "bad order type", mutate: func(s *Signal) { s.OrderType = "stop" }, wantErr: true},
		{name: "bad direction", mutate: func(s *Signal) { s.Type = "sideways" }, wantErr: true},
		{name: "no targets", mutate: func(s *Signal) { s.Targets = nil }, wantErr: true},
		{name: "entry equals stop", mutate: func(s *Signal) { s.StopLoss = s.Entry }, wantErr: true},
		{name: "fraction above one", mutate: func(s *Signal) { s.CapitalFraction = 1.5 }, wantErr: true},
		{name: "negative fraction", mutate: func(s *Signal) { s.CapitalFraction = -0.1 }, wantErr: true},
		{name: "zero leverage", mutate: func(s *Signal) { s.Leverage = 0 }, wantErr: true},
		{name: "leverage above cap", mutate: func(s *Signal) { s.Leverage = 101 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSignal()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSignal_ComputeRiskReward(t *testing.T) {
	s := validSignal()
	// avg(110,120)=115; |115-100| / |100-90| = 1.5
	assert.InDelta(t, 1.5, s.ComputeRiskReward(), 1e-9)

	short := validSignal()
	short.Type = Short
	short.Targets = []float64{90, 80}
	short.StopLoss = 105
	// avg=85; |85-100| / |100-105| = 3
	assert.InDelta(t, 3.0, short.ComputeRiskReward(), 1e-9)

	degenerate := validSignal()
	degenerate.StopLoss = degenerate.Entry
	assert.Zero(t, degenerate.ComputeRiskReward())
}

func TestUser_UsableFraction(t *testing.T) {
	s := validSignal()

	withOverride := &User{CapitalFraction: 0.25}
	assert.Equal(t, 0.25, withOverride.UsableFraction(s), "user override wins")

	noOverride := &User{}
	assert.Equal(t, 0.5, noOverride.UsableFraction(s), "falls back to the signal's fraction")
}

func TestOrderSide_Opposite(t *testing.T) {
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestOrderPlan_Legs(t *testing.T) {
	plan := &OrderPlan{
		Entry:       Order{ClientOID: "e"},
		TakeProfits: []Order{{ClientOID: "tp1"}, {ClientOID: "tp2"}},
		StopLoss:    Order{ClientOID: "sl"},
	}
	legs := plan.Legs()
	require.Len(t, legs, 4)
	assert.Equal(t, "e", legs[0].ClientOID)
	assert.Equal(t, "tp1", legs[1].ClientOID)
	assert.Equal(t, "tp2", legs[2].ClientOID)
	assert.Equal(t, "sl", legs[3].ClientOID)
}
