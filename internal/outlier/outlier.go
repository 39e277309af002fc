// Package outlier flags anomalous monthly totals with a median/MAD rule and
// neutralises them before model fitting.
//
// The default policy is cap: flagged months are clamped to
// median ± Multiple × spread, which keeps the series regular for the seasonal
// regression. PolicyRemove drops them from the fit series instead.
package outlier

import (
	"errors"
	"fmt"
	"sort"

	"spendcast/internal/core"

	"github.com/shopspring/decimal"
)

var (
	two = decimal.NewFromInt(2)
	// sqrt(pi/2): scales a mean absolute deviation to a normal sigma.
	meanADScale = decimal.RequireFromString("1.2533")
)

type Config struct {
	Multiple   float64
	Policy     core.CorrectionPolicy
	MinHistory int
	MADScale   float64 // 1.4826 makes the MAD consistent with a normal sigma
}

func DefaultConfig() Config {
	return Config{
		Multiple:   3,
		Policy:     core.PolicyCap,
		MinHistory: 3,
		MADScale:   1.4826,
	}
}

func (c Config) Validate() error {
	if c.Multiple <= 0 {
		return fmt.Errorf("outlier multiple must be positive, got %v", c.Multiple)
	}
	if !c.Policy.IsValid() {
		return fmt.Errorf("unknown correction policy %q", c.Policy)
	}
	if c.MinHistory < 1 {
		return fmt.Errorf("minimum history must be at least 1, got %d", c.MinHistory)
	}
	if c.MADScale <= 0 {
		return errors.New("MAD scale must be positive")
	}
	return nil
}

type Corrector struct {
	cfg Config
}

func New(cfg Config) (*Corrector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Corrector{cfg: cfg}, nil
}

// Correct detects outliers in buckets and applies the configured policy.
// Original in the result is always the input series, untouched.
func (c *Corrector) Correct(buckets []core.MonthBucket) (core.CorrectedSeries, error) {
	if len(buckets) == 0 {
		return core.CorrectedSeries{}, fmt.Errorf("%w: no months to correct", core.ErrInsufficientHistory)
	}

	original := append([]core.MonthBucket(nil), buckets...)
	totals := make([]decimal.Decimal, len(original))
	for i, b := range original {
		totals[i] = b.Total
	}

	med := median(totals)
	spread := robustSpread(totals, med, decimal.NewFromFloat(c.cfg.MADScale))
	limit := spread.Mul(decimal.NewFromFloat(c.cfg.Multiple))

	out := core.CorrectedSeries{
		Original: original,
		Policy:   c.cfg.Policy,
		Median:   med,
		Spread:   spread,
		Multiple: c.cfg.Multiple,
		Next:     original[len(original)-1].Month.Next(),
	}

	var flagged []int
	if spread.IsPositive() {
		for i, v := range totals {
			if v.Sub(med).Abs().GreaterThan(limit) {
				flagged = append(flagged, i)
			}
		}
	}

	if len(original) < c.cfg.MinHistory || len(original)-len(flagged) < c.cfg.MinHistory {
		out.Fit = append([]core.MonthBucket(nil), original...)
		out.LowConfidence = true
		return out, nil
	}

	lo := decimal.Max(med.Sub(limit), decimal.Zero).Round(2)
	hi := med.Add(limit).Round(2)
	isFlagged := make(map[int]bool, len(flagged))
	for _, i := range flagged {
		isFlagged[i] = true
	}

	out.Fit = make([]core.MonthBucket, 0, len(original))
	for i, b := range original {
		if !isFlagged[i] {
			out.Fit = append(out.Fit, b)
			continue
		}
		switch c.cfg.Policy {
		case core.PolicyRemove:
			out.Adjustments = append(out.Adjustments, core.Adjustment{
				Month:    b.Month,
				Action:   core.ActionRemoved,
				Original: b.Total,
				Value:    decimal.Zero,
			})
		default:
			capped := hi
			if b.Total.LessThan(med) {
				capped = lo
			}
			out.Adjustments = append(out.Adjustments, core.Adjustment{
				Month:    b.Month,
				Action:   core.ActionCapped,
				Original: b.Total,
				Value:    capped,
			})
			b.Total = capped
			out.Fit = append(out.Fit, b)
		}
	}
	return out, nil
}

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := append([]decimal.Decimal(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(two)
}

// robustSpread is the scaled MAD. When more than half the months sit exactly
// on the median the MAD collapses to zero, so the scaled mean absolute
// deviation is used instead.
func robustSpread(values []decimal.Decimal, med, madScale decimal.Decimal) decimal.Decimal {
	devs := make([]decimal.Decimal, len(values))
	sum := decimal.Zero
	for i, v := range values {
		devs[i] = v.Sub(med).Abs()
		sum = sum.Add(devs[i])
	}
	if mad := median(devs); mad.IsPositive() {
		return mad.Mul(madScale)
	}
	meanAD := sum.Div(decimal.NewFromInt(int64(len(values))))
	return meanAD.Mul(meanADScale)
}
