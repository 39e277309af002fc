// Package trend classifies a forecast against the historical baseline.
package trend

import (
	"fmt"

	"spendcast/internal/core"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Analyzer compares an estimate with a baseline. Changes within ±DeadBand
// percent are reported as flat.
type Analyzer struct {
	DeadBand float64
}

func Default() Analyzer {
	return Analyzer{DeadBand: 1.0}
}

// Analyze returns the percentage change from baseline to estimate, rounded to
// one decimal place, and its direction. A zero baseline has no defined change.
func (a Analyzer) Analyze(estimate, baseline decimal.Decimal) (core.TrendSummary, error) {
	if baseline.IsZero() {
		return core.TrendSummary{}, fmt.Errorf("%w: baseline is zero", core.ErrUndefinedTrend)
	}

	pct := estimate.Sub(baseline).Div(baseline).Mul(hundred)
	band := decimal.NewFromFloat(a.DeadBand)

	dir := core.DirectionFlat
	switch {
	case pct.GreaterThan(band):
		dir = core.DirectionUp
	case pct.LessThan(band.Neg()):
		dir = core.DirectionDown
	}

	return core.TrendSummary{
		Percentage: pct.Round(1).InexactFloat64(),
		Direction:  dir,
	}, nil
}
