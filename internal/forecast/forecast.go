// Package forecast fits the corrected monthly series and predicts next month's
// spend with an uncertainty interval.
//
// The default model is an additive regression, y = a + b·t + seasonal(t),
// where the seasonal part is a truncated yearly Fourier series. It is fitted by
// ordinary least squares. Short series drop the seasonal terms and fit the
// trend alone with a widened interval.
package forecast

import (
	"context"
	"fmt"
	"math"

	"spendcast/internal/core"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model produces a next-period forecast from a corrected series.
type Model interface {
	Fit(ctx context.Context, s core.CorrectedSeries) (core.ForecastResult, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, s core.CorrectedSeries) (core.ForecastResult, error)

func (f ModelFunc) Fit(ctx context.Context, s core.CorrectedSeries) (core.ForecastResult, error) {
	return f(ctx, s)
}

// Decomposition fits trend plus yearly seasonality when the history allows it
// and falls back to the trend alone otherwise.
type Decomposition struct {
	cfg Config
}

func NewDecomposition(cfg Config) (*Decomposition, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Decomposition{cfg: cfg}, nil
}

func (d *Decomposition) Fit(ctx context.Context, s core.CorrectedSeries) (core.ForecastResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ForecastResult{}, err
	}
	pts, err := points(s)
	if err != nil {
		return core.ForecastResult{}, err
	}
	seasonalParams := 2 + 2*d.cfg.Harmonics
	if len(pts.y) >= d.cfg.SeasonalMinMonths && len(pts.y) > seasonalParams {
		return estimate(s, pts, d.cfg, d.cfg.Harmonics, false)
	}
	return estimate(s, pts, d.cfg, 0, true)
}

// TrendOnly fits a straight line through the series.
type TrendOnly struct {
	cfg Config
}

func NewTrendOnly(cfg Config) (*TrendOnly, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TrendOnly{cfg: cfg}, nil
}

func (m *TrendOnly) Fit(ctx context.Context, s core.CorrectedSeries) (core.ForecastResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ForecastResult{}, err
	}
	pts, err := points(s)
	if err != nil {
		return core.ForecastResult{}, err
	}
	return estimate(s, pts, m.cfg, 0, false)
}

type fitPoints struct {
	t      []float64 // Months since the first fit month
	y      []float64
	idx    []int // Absolute month index, for seasonal phase
	target float64
	tIdx   int
	next   core.MonthKey
}

func points(s core.CorrectedSeries) (fitPoints, error) {
	if len(s.Fit) == 0 {
		return fitPoints{}, fmt.Errorf("%w: no months to fit", core.ErrInsufficientHistory)
	}
	first := s.Fit[0].Month.Index()
	p := fitPoints{
		t:   make([]float64, len(s.Fit)),
		y:   make([]float64, len(s.Fit)),
		idx: make([]int, len(s.Fit)),
	}
	for i, b := range s.Fit {
		p.idx[i] = b.Month.Index()
		p.t[i] = float64(p.idx[i] - first)
		p.y[i] = b.Total.InexactFloat64()
	}
	next := s.Next
	if next == (core.MonthKey{}) {
		next = s.Fit[len(s.Fit)-1].Month.Next()
	}
	p.next = next
	p.tIdx = next.Index()
	p.target = float64(p.tIdx - first)
	return p, nil
}

// estimate fits the model with the given number of harmonics (0 for trend
// only) and builds the interval around the prediction at the target month.
func estimate(s core.CorrectedSeries, pts fitPoints, cfg Config, harmonics int, fallback bool) (core.ForecastResult, error) {
	n := len(pts.y)
	method := core.MethodTrend
	if harmonics > 0 {
		method = core.MethodTrendSeasonal
	}

	var (
		yhat     float64
		leverage float64
		sigma    float64
		df       int
	)
	if n == 1 {
		method = core.MethodLevel
		fallback = true
		yhat = pts.y[0]
		leverage = 1
	} else {
		x := design(pts.t, pts.idx, harmonics)
		x0 := row(pts.target, pts.tIdx, harmonics)
		fit, err := solve(x, pts.y, x0)
		if err != nil {
			return core.ForecastResult{}, err
		}
		yhat, leverage, df = fit.prediction, fit.leverage, fit.df
		if df > 0 {
			sigma = math.Sqrt(fit.sse / float64(df))
		}
	}

	tail := 0.5 + cfg.Level/2
	var q float64
	if df > 0 {
		q = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(tail)
	} else {
		q = distuv.UnitNormal.Quantile(tail)
		sigma = fallbackSigma(pts.y, cfg.FallbackSpread)
	}

	half := q * sigma * math.Sqrt(1+leverage)
	widened := fallback || s.LowConfidence
	if widened {
		half *= cfg.WidenFactor
	}

	lower, upper := yhat-half, yhat+half
	if yhat < 0 {
		yhat, lower, upper = 0, 0, upper-lower
	} else if lower < 0 {
		lower = 0
	}
	for _, v := range []float64{yhat, lower, upper} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.ForecastResult{}, fmt.Errorf("%w: non-finite prediction", core.ErrModelFit)
		}
	}

	return core.ForecastResult{
		Month:    pts.next,
		Estimate: round(yhat),
		Lower:    round(lower),
		Upper:    round(upper),
		Baseline: Baseline(s.Original, cfg.TrailingWindow),
		Level:    cfg.Level,
		Method:   method,
		Widened:  widened,
	}, nil
}

// fallbackSigma is the sample standard deviation of the fit values, or a
// fraction of their mean magnitude when that is zero or undefined.
func fallbackSigma(y []float64, fraction float64) float64 {
	if len(y) > 1 {
		if sd := stat.StdDev(y, nil); sd > 0 && !math.IsNaN(sd) {
			return sd
		}
	}
	return fraction * math.Abs(stat.Mean(y, nil))
}

// Baseline is the mean of the last window true monthly totals.
func Baseline(original []core.MonthBucket, window int) decimal.Decimal {
	if len(original) == 0 {
		return decimal.Zero
	}
	if window < 1 || window > len(original) {
		window = len(original)
	}
	sum := decimal.Zero
	for _, b := range original[len(original)-window:] {
		sum = sum.Add(b.Total)
	}
	return sum.Div(decimal.NewFromInt(int64(window))).Round(2)
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
