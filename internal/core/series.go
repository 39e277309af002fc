package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MonthKey identifies a calendar month.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month t falls in.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// Index is the absolute month number, so consecutive months differ by one.
func (m MonthKey) Index() int {
	return m.Year*12 + int(m.Month) - 1
}

// Add moves the key by n months (n may be negative).
func (m MonthKey) Add(n int) MonthKey {
	idx := m.Index() + n
	return MonthKey{Year: idx / 12, Month: time.Month(idx%12 + 1)}
}

func (m MonthKey) Next() MonthKey {
	return m.Add(1)
}

func (m MonthKey) FirstDay() time.Time {
	return NewDate(m.Year, m.Month, 1)
}

func (m MonthKey) LastDay() time.Time {
	return m.Next().FirstDay().AddDate(0, 0, -1)
}

func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthOf(t), nil
}

// MonthBucket is the total spend for one calendar month.
type MonthBucket struct {
	Month MonthKey
	Total decimal.Decimal
	Count int
}

// CorrectionPolicy selects how flagged months are neutralised before fitting.
type CorrectionPolicy string

const (
	PolicyCap    CorrectionPolicy = "cap"
	PolicyRemove CorrectionPolicy = "remove"
)

func (p CorrectionPolicy) IsValid() bool {
	switch p {
	case PolicyCap, PolicyRemove:
		return true
	default:
		return false
	}
}

// AdjustmentAction records what happened to a flagged month.
type AdjustmentAction string

const (
	ActionCapped  AdjustmentAction = "capped"
	ActionRemoved AdjustmentAction = "removed"
)

// Adjustment describes one month changed by outlier correction.
type Adjustment struct {
	Month    MonthKey
	Action   AdjustmentAction
	Original decimal.Decimal
	Value    decimal.Decimal // Zero when removed
}

// CorrectedSeries is the monthly series after outlier treatment.
// Original always holds the true totals; Fit is what the model sees.
type CorrectedSeries struct {
	Original      []MonthBucket
	Fit           []MonthBucket
	Adjustments   []Adjustment
	Policy        CorrectionPolicy
	Median        decimal.Decimal
	Spread        decimal.Decimal
	Multiple      float64
	LowConfidence bool
	Next          MonthKey
}

// Adjusted reports whether month m was changed by correction.
func (s CorrectedSeries) Adjusted(m MonthKey) (Adjustment, bool) {
	for _, a := range s.Adjustments {
		if a.Month == m {
			return a, true
		}
	}
	return Adjustment{}, false
}

// ForecastMethod names the model variant that produced a forecast.
type ForecastMethod string

const (
	MethodTrendSeasonal ForecastMethod = "trend_seasonal"
	MethodTrend         ForecastMethod = "trend"
	MethodLevel         ForecastMethod = "level"
)

// ForecastResult is the next-period estimate with its interval.
// Lower <= Estimate <= Upper and Estimate >= 0.
type ForecastResult struct {
	Month    MonthKey
	Estimate decimal.Decimal
	Lower    decimal.Decimal
	Upper    decimal.Decimal
	Baseline decimal.Decimal // Trailing average of the true monthly totals
	Level    float64
	Method   ForecastMethod
	Widened  bool
}

// Direction is the trend classification.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// TrendSummary compares a forecast with the historical baseline.
type TrendSummary struct {
	Percentage float64
	Direction  Direction
}
