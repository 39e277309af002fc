package forecast

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/outlier"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var jan = core.MonthKey{Year: 2023, Month: time.January}

func buckets(start core.MonthKey, totals ...float64) []core.MonthBucket {
	out := make([]core.MonthBucket, len(totals))
	for i, v := range totals {
		out[i] = core.MonthBucket{Month: start.Add(i), Total: decimal.NewFromFloat(v).Round(2)}
	}
	return out
}

func plainSeries(totals ...float64) core.CorrectedSeries {
	b := buckets(jan, totals...)
	return core.CorrectedSeries{
		Original: b,
		Fit:      b,
		Next:     b[len(b)-1].Month.Next(),
	}
}

func newDecomposition(t *testing.T) *Decomposition {
	t.Helper()
	m, err := NewDecomposition(DefaultConfig())
	require.NoError(t, err)
	return m
}

func assertOrdered(t *testing.T, r core.ForecastResult) {
	t.Helper()
	assert.False(t, r.Lower.IsNegative(), "lower %s", r.Lower)
	assert.True(t, r.Lower.LessThanOrEqual(r.Estimate), "lower %s > estimate %s", r.Lower, r.Estimate)
	assert.True(t, r.Estimate.LessThanOrEqual(r.Upper), "estimate %s > upper %s", r.Estimate, r.Upper)
}

func TestScenarioCappedSpike(t *testing.T) {
	corrector, err := outlier.New(outlier.DefaultConfig())
	require.NoError(t, err)
	series, err := corrector.Correct(buckets(jan, 10000, 10500, 9800, 50000, 11000, 10200))
	require.NoError(t, err)

	r, err := newDecomposition(t).Fit(context.Background(), series)
	require.NoError(t, err)

	assert.Equal(t, core.MethodTrend, r.Method)
	assert.True(t, r.Widened)
	assert.Equal(t, jan.Add(6), r.Month)
	est := r.Estimate.InexactFloat64()
	assert.InDelta(t, 11147.07, est, 0.05)
	assert.GreaterOrEqual(t, est, 10000.0)
	assert.LessOrEqual(t, est, 11500.0)
	assertOrdered(t, r)

	// Baseline uses the true totals, spike included.
	assert.True(t, r.Baseline.Equal(decimal.RequireFromString("16916.67")), "baseline %s", r.Baseline)
}

func TestTwoMonthSeriesFallsBackWithoutError(t *testing.T) {
	corrector, err := outlier.New(outlier.DefaultConfig())
	require.NoError(t, err)
	series, err := corrector.Correct(buckets(jan, 900, 1100))
	require.NoError(t, err)
	require.True(t, series.LowConfidence)

	r, err := newDecomposition(t).Fit(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, core.MethodTrend, r.Method)
	assert.True(t, r.Widened)
	assert.True(t, r.Estimate.Equal(decimal.NewFromInt(1300)), "estimate %s", r.Estimate)
	assert.True(t, r.Upper.GreaterThan(r.Estimate))
	assertOrdered(t, r)
}

func TestSingleMonthIsLevelOnly(t *testing.T) {
	r, err := newDecomposition(t).Fit(context.Background(), plainSeries(420))
	require.NoError(t, err)
	assert.Equal(t, core.MethodLevel, r.Method)
	assert.True(t, r.Widened)
	assert.True(t, r.Estimate.Equal(decimal.NewFromInt(420)))
	// 0.25·420 spread, normal quantile 1.2816, sqrt(2), widened 1.5
	assert.InDelta(t, 420+1.2815516*105*math.Sqrt2*1.5, r.Upper.InexactFloat64(), 0.05)
	assertOrdered(t, r)
}

func TestSeasonalFitOnLongHistory(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	var totals []float64
	truth := func(i int) float64 {
		return 2000 + 15*float64(i) + 400*math.Sin(2*math.Pi*float64(i%12)/12)
	}
	for i := range 36 {
		totals = append(totals, truth(i)+r.NormFloat64()*20)
	}

	res, err := newDecomposition(t).Fit(context.Background(), plainSeries(totals...))
	require.NoError(t, err)
	assert.Equal(t, core.MethodTrendSeasonal, res.Method)
	assert.False(t, res.Widened)
	assert.InDelta(t, truth(36), res.Estimate.InexactFloat64(), 60)
	assertOrdered(t, res)
	assert.True(t, res.Lower.LessThan(decimal.NewFromFloat(truth(36))))
	assert.True(t, res.Upper.GreaterThan(decimal.NewFromFloat(truth(36))))
}

func TestNegativeEstimateIsClamped(t *testing.T) {
	r, err := newDecomposition(t).Fit(context.Background(), plainSeries(3000, 2000, 1000, 10))
	require.NoError(t, err)
	assert.True(t, r.Estimate.IsZero())
	assert.True(t, r.Lower.IsZero())
	assert.True(t, r.Upper.IsPositive())
	assertOrdered(t, r)
}

func TestLowConfidenceWidensInterval(t *testing.T) {
	m, err := NewTrendOnly(DefaultConfig())
	require.NoError(t, err)

	s := plainSeries(100, 140, 120, 160, 150, 170)
	plain, err := m.Fit(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, plain.Widened)

	s.LowConfidence = true
	wide, err := m.Fit(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, wide.Widened)
	assert.True(t, plain.Estimate.Equal(wide.Estimate))

	plainWidth := plain.Upper.Sub(plain.Estimate).InexactFloat64()
	wideWidth := wide.Upper.Sub(wide.Estimate).InexactFloat64()
	assert.InDelta(t, plainWidth*1.5, wideWidth, 0.05)
}

func TestRemovedMonthsKeepCalendarSpacing(t *testing.T) {
	all := buckets(jan, 100, 200, 300, 9999, 500)
	s := core.CorrectedSeries{
		Original: all,
		Fit:      []core.MonthBucket{all[0], all[1], all[2], all[4]},
		Next:     jan.Add(5),
	}
	m, err := NewTrendOnly(DefaultConfig())
	require.NoError(t, err)

	r, err := m.Fit(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, r.Estimate.Equal(decimal.NewFromInt(600)), "estimate %s", r.Estimate)
}

func TestEmptyFitIsInsufficientHistory(t *testing.T) {
	_, err := newDecomposition(t).Fit(context.Background(), core.CorrectedSeries{})
	assert.ErrorIs(t, err, core.ErrInsufficientHistory)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newDecomposition(t).Fit(ctx, plainSeries(1, 2, 3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolveSingularDesign(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1, 0,
		1, 0,
		1, 0,
	})
	_, err := solve(x, []float64{1, 2, 3}, []float64{1, 2})
	assert.True(t, errors.Is(err, core.ErrModelFit), "got %v", err)
}

func TestIntervalOrderingProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	model := newDecomposition(t)

	for range 300 {
		n := 1 + r.Intn(40)
		totals := make([]float64, n)
		level := r.Float64() * 5000
		slope := (r.Float64() - 0.5) * 400
		for i := range totals {
			totals[i] = math.Max(0, level+slope*float64(i)+r.NormFloat64()*level*0.3)
		}
		s := plainSeries(totals...)
		s.LowConfidence = r.Intn(4) == 0

		res, err := model.Fit(context.Background(), s)
		require.NoError(t, err)
		assertOrdered(t, res)
	}
}

func TestBaseline(t *testing.T) {
	b := buckets(jan, 10, 20, 30, 40)
	assert.True(t, Baseline(b, 2).Equal(decimal.NewFromInt(35)))
	assert.True(t, Baseline(b, 12).Equal(decimal.NewFromInt(25)))
	assert.True(t, Baseline(nil, 12).IsZero())
}

func TestModelFunc(t *testing.T) {
	want := core.ForecastResult{Estimate: decimal.NewFromInt(1)}
	var m Model = ModelFunc(func(ctx context.Context, s core.CorrectedSeries) (core.ForecastResult, error) {
		return want, nil
	})
	got, err := m.Fit(context.Background(), core.CorrectedSeries{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConfigValidate(t *testing.T) {
	bad := []func(*Config){
		func(c *Config) { c.Level = 1 },
		func(c *Config) { c.Harmonics = 6 },
		func(c *Config) { c.SeasonalMinMonths = 6 },
		func(c *Config) { c.TrailingWindow = 0 },
		func(c *Config) { c.WidenFactor = 0.5 },
		func(c *Config) { c.FallbackSpread = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
	assert.NoError(t, DefaultConfig().Validate())
}
