package sizing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

func TestTargetShares_InvalidInput(t *testing.T) {
	_, err := TargetShares(domain.RiskMedium, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidInput))

	_, err = TargetShares(domain.RiskMedium, -3)
	assert.True(t, errors.Is(err, ports.ErrInvalidInput))

	_, err = TargetShares(domain.RiskStrategy("extreme"), 4)
	assert.True(t, errors.Is(err, ports.ErrInvalidInput))
}

func TestEffectiveStrategy_Downgrade(t *testing.T) {
	tests := []struct {
		name        string
		strategy    domain.RiskStrategy
		targetCount int
		want        domain.RiskStrategy
	}{
		{"single target forces low", domain.RiskHigh, 1, domain.RiskLow},
		{"single target keeps low", domain.RiskLow, 1, domain.RiskLow},
		{"two targets cap high at medium", domain.RiskHigh, 2, domain.RiskMedium},
		{"two targets cap medium at medium", domain.RiskMedium, 2, domain.RiskMedium},
		{"two targets never upgrade low", domain.RiskLow, 2, domain.RiskLow},
		{"three targets keep high", domain.RiskHigh, 3, domain.RiskHigh},
		{"many targets keep medium", domain.RiskMedium, 7, domain.RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveStrategy(tt.strategy, tt.targetCount))
		})
	}
}

func TestTargetShares_KnownVectors(t *testing.T) {
	tests := []struct {
		name        string
		strategy    domain.RiskStrategy
		targetCount int
		want        []float64
	}{
		{"low single target", domain.RiskLow, 1, []float64{1}},
		{"high single target downgrades to low", domain.RiskHigh, 1, []float64{1}},
		{"high two targets downgrades to medium", domain.RiskHigh, 2, []float64{0.4, 0.6}},
		{"medium six targets", domain.RiskMedium, 6, []float64{0.2, 0.2, 0.3, 0.3, 0, 0}},
		{"high three targets", domain.RiskHigh, 3, []float64{0.2, 0.3, 0.5}},
		{"high four targets", domain.RiskHigh, 4, []float64{0.1, 0.1, 0.3, 0.5}},
		{"low five targets", domain.RiskLow, 5, []float64{0.5, 0.5, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TargetShares(tt.strategy, tt.targetCount)
			require.NoError(t, err)
			require.Len(t, got, tt.targetCount)
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9, "share %d", i)
			}
		})
	}
}

// The output always has one share per target and sums to one, for every valid
// (strategy, targetCount) pair.
func TestTargetShares_LengthAndSumProperty(t *testing.T) {
	strategies := []domain.RiskStrategy{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}
	for _, strategy := range strategies {
		for count := 1; count <= 25; count++ {
			shares, err := TargetShares(strategy, count)
			require.NoError(t, err)
			require.Len(t, shares, count, "strategy=%s count=%d", strategy, count)

			sum := 0.0
			for _, s := range shares {
				require.GreaterOrEqual(t, s, 0.0)
				sum += s
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "strategy=%s count=%d", strategy, count)
		}
	}
}

// Identical inputs must produce identical output.
func TestTargetShares_Deterministic(t *testing.T) {
	first, err := TargetShares(domain.RiskHigh, 9)
	require.NoError(t, err)
	second, err := TargetShares(domain.RiskHigh, 9)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
