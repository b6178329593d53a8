// Package sizing splits one unit of order size into per-take-profit fractions
// based on a user's risk strategy and the number of targets in a signal.
package sizing

import (
	"fmt"

	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

// Base coefficients per strategy. Each vector assigns weight to the early,
// middle and late third of the target list.
var coefficients = map[domain.RiskStrategy][3]float64{
	domain.RiskLow:    {1, 0, 0},
	domain.RiskMedium: {0.4, 0.6, 0},
	domain.RiskHigh:   {0.2, 0.3, 0.5},
}

// EffectiveStrategy downgrades a nominal strategy that cannot be honoured with
// the available number of targets: fewer than two targets force low, exactly
// two cap anything above low at medium. Low is never upgraded.
func EffectiveStrategy(strategy domain.RiskStrategy, targetCount int) domain.RiskStrategy {
	if targetCount < 2 {
		return domain.RiskLow
	}
	if targetCount == 2 && strategy != domain.RiskLow {
		return domain.RiskMedium
	}
	return strategy
}

// TargetShares computes the ordered per-target fractions of total order size.
// The result has one entry per target and sums to 1.0 up to floating-point
// tolerance. The function is pure: identical (strategy, targetCount) inputs
// produce identical output.
func TargetShares(strategy domain.RiskStrategy, targetCount int) ([]float64, error) {
	if targetCount <= 0 {
		return nil, fmt.Errorf("%w: target count must be positive, got %d", ports.ErrInvalidInput, targetCount)
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("%w: unknown risk strategy %q", ports.ErrInvalidInput, strategy)
	}

	coeff := coefficients[EffectiveStrategy(strategy, targetCount)]

	// Partition the targets into 3 contiguous groups as evenly as possible,
	// extra slots going to the earlier groups.
	sizes := [3]int{targetCount / 3, targetCount / 3, targetCount / 3}
	for i := 0; i < targetCount%3; i++ {
		sizes[i]++
	}

	shares := make([]float64, 0, targetCount)
	for group := 0; group < 3; group++ {
		if sizes[group] == 0 {
			continue
		}
		perSlot := coeff[group] / float64(sizes[group])
		for i := 0; i < sizes[group]; i++ {
			shares = append(shares, perSlot)
		}
	}
	return shares, nil
}
