package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"spendcast/internal/core"
	"spendcast/internal/forecast"
	"spendcast/internal/history"
	"spendcast/internal/outlier"
	"spendcast/internal/report"
	storemem "spendcast/internal/store/memory"
	"spendcast/internal/trend"
	upstreammem "spendcast/internal/upstream/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultReportConfig() ReportConfig {
	return ReportConfig{
		Outlier:  outlier.DefaultConfig(),
		Forecast: forecast.DefaultConfig(),
		Trend:    trend.Default(),
		Timeout:  time.Minute,
	}
}

func newReportService(t *testing.T, st *storemem.Store, sync *SyncService) *ReportService {
	t.Helper()
	svc, err := NewReportService(st, sync, defaultReportConfig(), nil)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC) }
	return svc
}

// seedMonths stores one transaction per month of 2025 starting in January.
func seedMonths(t *testing.T, st *storemem.Store, userID string, totals ...string) {
	t.Helper()
	txs := make([]core.Transaction, 0, len(totals))
	for i, total := range totals {
		txs = append(txs, core.Transaction{
			ID:         fmt.Sprintf("m%d", i+1),
			AccountRef: "acc-1",
			Amount:     decimal.RequireFromString(total),
			PostedOn:   core.NewDate(2025, time.Month(i+1), 10),
		})
	}
	_, err := st.UpsertTransactions(context.Background(), userID, txs)
	require.NoError(t, err)
}

func TestReportService_SpikeScenario(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	seedMonths(t, st, u.ID, "10000", "10500", "9800", "50000", "11000", "10200")
	// In-progress month is ignored by the default window
	_, err := st.UpsertTransactions(context.Background(), u.ID, []core.Transaction{
		{ID: "partial", AccountRef: "acc-1", Amount: decimal.NewFromInt(99), PostedOn: core.NewDate(2025, 7, 2)},
	})
	require.NoError(t, err)

	r, err := newReportService(t, st, nil).Generate(context.Background(), u.ID, ReportOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2025-07", r.Month)
	assert.Equal(t, report.StatusOK, r.Status)
	require.Len(t, r.Historical.Months, 6)
	assert.Equal(t, "50000.00", r.Historical.Months[3].Total)
	assert.True(t, r.Historical.Months[3].Adjusted)

	require.Len(t, r.Adjustments, 1)
	assert.Equal(t, "2025-04", r.Adjustments[0].Month)
	assert.Equal(t, core.ActionCapped, r.Adjustments[0].Action)

	require.NotNil(t, r.Forecast)
	amount := decimal.RequireFromString(r.Forecast.Amount)
	assert.True(t, amount.GreaterThanOrEqual(decimal.NewFromInt(10000)), "forecast %s", amount)
	assert.True(t, amount.LessThanOrEqual(decimal.NewFromInt(11500)), "forecast %s", amount)

	require.NotNil(t, r.Trend)
	assert.Equal(t, core.DirectionDown, r.Trend.Direction)
}

func TestReportService_ExplicitWindow(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	seedMonths(t, st, u.ID, "100", "200", "300", "400")

	rng := core.DateRange{Start: core.NewDate(2025, 2, 1), End: core.NewDate(2025, 3, 31)}
	r, err := newReportService(t, st, nil).Generate(context.Background(), u.ID, ReportOptions{Window: &rng})
	require.NoError(t, err)

	assert.Equal(t, "2025-04", r.Month)
	assert.Equal(t, report.StatusLowConfidence, r.Status)
	require.Len(t, r.Historical.Months, 2)
	require.NotNil(t, r.Forecast)
	assert.True(t, r.Forecast.Widened)
}

func TestReportService_Errors(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	svc := newReportService(t, st, nil)
	ctx := context.Background()

	_, err := svc.Generate(ctx, "ghost", ReportOptions{})
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	_, err = svc.Generate(ctx, u.ID, ReportOptions{})
	assert.ErrorIs(t, err, core.ErrNoTransactions)

	bad := core.DateRange{Start: core.NewDate(2025, 5, 1), End: core.NewDate(2025, 4, 1)}
	_, err = svc.Generate(ctx, u.ID, ReportOptions{Window: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidRange)

	empty := core.DateRange{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 3, 31)}
	_, err = svc.Generate(ctx, u.ID, ReportOptions{Window: &empty})
	assert.ErrorIs(t, err, core.ErrNoTransactions)

	_, err = svc.Generate(ctx, u.ID, ReportOptions{Refresh: true})
	assert.Error(t, err)
}

func TestReportService_ZeroBaselineOmitsTrend(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	// Spend only in January; a one-month baseline over March is zero
	seedMonths(t, st, u.ID, "100")

	cfg := defaultReportConfig()
	cfg.Forecast.TrailingWindow = 1
	cfg.Outlier.MinHistory = 1
	svc, err := NewReportService(st, nil, cfg, nil)
	require.NoError(t, err)

	rng := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 3, 31)}
	r, err := svc.Generate(context.Background(), u.ID, ReportOptions{Window: &rng})
	require.NoError(t, err)

	require.NotNil(t, r.Forecast)
	assert.Nil(t, r.Trend)
	assert.NotEmpty(t, r.Notices)
}

func TestReportService_RefreshSyncsFirst(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)

	src := upstreammem.New(10)
	for m := 1; m <= 6; m++ {
		src.Add("acc-1", debit(fmt.Sprintf("t%d", m), core.NewDate(2025, time.Month(m), 5), "-1000"))
	}
	sync := NewSyncService(st, history.NewFetcher(src, history.DefaultConfig(), nil), 12, nil)
	svc := newReportService(t, st, sync)

	rng := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 6, 30)}
	r, err := svc.Generate(context.Background(), u.ID, ReportOptions{Refresh: true, Window: &rng})
	require.NoError(t, err)

	require.NotNil(t, r.Forecast)
	assert.Equal(t, "1000.00", r.Forecast.Amount)
	require.NotNil(t, r.Trend)
	assert.Equal(t, core.DirectionFlat, r.Trend.Direction)
}

func TestReportService_Timeout(t *testing.T) {
	st := storemem.New()
	u := newUser(t, st)
	seedMonths(t, st, u.ID, "100", "200", "300")

	cfg := defaultReportConfig()
	cfg.Timeout = time.Nanosecond
	svc, err := NewReportService(st, nil, cfg, nil)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = svc.Generate(context.Background(), u.ID, ReportOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReportService_TrendMatchesPublishedAverage(t *testing.T) {
	tests := []struct {
		name      string
		totals    []string
		wantAvg   string
		wantTrend bool
	}{
		{
			name:      "older expensive months fall outside the trailing year",
			totals:    []string{"2000", "2000", "2000", "2000", "1000", "1000", "1000", "1000", "1000", "1000", "1000", "1000", "1000", "1000", "1000", "1000"},
			wantAvg:   "1000.00",
			wantTrend: true,
		},
		{
			name:      "zero trailing year omits the trend",
			totals:    []string{"5000", "5000", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0", "0"},
			wantAvg:   "0.00",
			wantTrend: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := storemem.New()
			u := newUser(t, st)

			var txs []core.Transaction
			for i, total := range tt.totals {
				amount := decimal.RequireFromString(total)
				if amount.IsZero() {
					continue
				}
				txs = append(txs, core.Transaction{
					ID:         fmt.Sprintf("m%d", i+1),
					AccountRef: "acc-1",
					Amount:     amount,
					PostedOn:   core.NewDate(2024, time.Month(i+1), 10),
				})
			}
			_, err := st.UpsertTransactions(context.Background(), u.ID, txs)
			require.NoError(t, err)

			last := core.NewDate(2024, time.Month(len(tt.totals)+1), 1).AddDate(0, 0, -1)
			rng := core.DateRange{Start: core.NewDate(2024, 1, 1), End: last}
			r, err := newReportService(t, st, nil).Generate(context.Background(), u.ID, ReportOptions{Window: &rng})
			require.NoError(t, err)

			require.Len(t, r.Historical.Months, len(tt.totals))
			assert.Equal(t, tt.wantAvg, r.Historical.AverageMonthly)

			if !tt.wantTrend {
				assert.Nil(t, r.Trend)
				assert.NotEmpty(t, r.Notices)
				return
			}

			require.NotNil(t, r.Forecast)
			require.NotNil(t, r.Trend)
			amount := decimal.RequireFromString(r.Forecast.Amount)
			avg := decimal.RequireFromString(r.Historical.AverageMonthly)
			want := amount.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
			assert.Equal(t, want, r.Trend.Percentage)
		})
	}
}
