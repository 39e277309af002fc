package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spendcast/internal/aggregate"
	"spendcast/internal/core"
	"spendcast/internal/forecast"
	"spendcast/internal/log"
	"spendcast/internal/outlier"
	"spendcast/internal/report"
	"spendcast/internal/store"
	"spendcast/internal/trend"
)

// ReportConfig holds the per-stage settings of the report pipeline.
type ReportConfig struct {
	Outlier  outlier.Config
	Forecast forecast.Config
	Trend    trend.Analyzer
	// Timeout bounds a whole report run, refresh included. Zero disables it.
	Timeout time.Duration
}

// ReportOptions tune a single report.
type ReportOptions struct {
	// Refresh syncs the window from upstream before reading the store.
	Refresh bool
	// Window limits the history used. Nil means from the first stored month
	// through the last complete month.
	Window *core.DateRange
}

// ReportService runs aggregate, correction, forecast and trend over a user's
// stored history and assembles the report.
type ReportService struct {
	store     store.Store
	sync      *SyncService
	corrector *outlier.Corrector
	model     forecast.Model
	trend     trend.Analyzer
	trailing  int
	timeout   time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// NewReportService builds the pipeline. sync may be nil, in which case
// Refresh is rejected.
func NewReportService(st store.Store, sync *SyncService, cfg ReportConfig, logger *log.Logger) (*ReportService, error) {
	corrector, err := outlier.New(cfg.Outlier)
	if err != nil {
		return nil, fmt.Errorf("outlier config: %w", err)
	}
	model, err := forecast.NewDecomposition(cfg.Forecast)
	if err != nil {
		return nil, fmt.Errorf("forecast config: %w", err)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportService{
		store:     st,
		sync:      sync,
		corrector: corrector,
		model:     model,
		trend:     cfg.Trend,
		trailing:  cfg.Forecast.TrailingWindow,
		timeout:   cfg.Timeout,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentReport),
	}, nil
}

func (s *ReportService) Generate(ctx context.Context, userID string, opts ReportOptions) (*report.Report, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if opts.Window != nil {
		if err := opts.Window.Validate(); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	if opts.Refresh {
		if s.sync == nil {
			return nil, errors.New("refresh requested but no upstream is configured")
		}
		if _, err := s.sync.Sync(ctx, userID, opts.Window); err != nil {
			return nil, err
		}
	}

	stored, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	rng, txs, err := s.window(stored, opts.Window)
	if err != nil {
		return nil, err
	}

	buckets, err := aggregate.Aggregate(txs, rng)
	if err != nil {
		return nil, err
	}

	series, err := s.corrector.Correct(buckets)
	if err != nil {
		return nil, err
	}

	// The published average and the trend share one baseline, available even
	// when the model cannot be fitted.
	in := report.Input{
		Series:  series,
		Average: forecast.Baseline(series.Original, s.trailing),
	}
	in.Forecast, in.ForecastErr = s.model.Fit(ctx, series)
	if in.ForecastErr == nil {
		in.Trend, in.TrendErr = s.trend.Analyze(in.Forecast.Estimate, in.Average)
	}

	r, err := report.Assemble(in)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Report generated",
		log.FieldUserID, userID,
		log.FieldRange, rng.String(),
		log.FieldCount, len(txs),
		"status", r.Status,
		"adjustments", len(series.Adjustments))
	return r, nil
}

// window resolves the analysed range and the transactions inside it.
func (s *ReportService) window(stored []core.Transaction, requested *core.DateRange) (core.DateRange, []core.Transaction, error) {
	if requested != nil {
		txs := aggregate.Within(stored, *requested)
		if len(txs) == 0 {
			return core.DateRange{}, nil, fmt.Errorf("%w in %s", core.ErrNoTransactions, requested)
		}
		return *requested, txs, nil
	}

	// The current month is still in progress and would drag the series down
	lastComplete := core.MonthOf(s.now().UTC()).Add(-1)
	upTo := lastComplete.LastDay()
	complete := make([]core.Transaction, 0, len(stored))
	for _, tx := range stored {
		if !core.TruncateDay(tx.PostedOn).After(upTo) {
			complete = append(complete, tx)
		}
	}
	rng, ok := aggregate.Window(complete, lastComplete)
	if !ok {
		return core.DateRange{}, nil, fmt.Errorf("%w before %s", core.ErrNoTransactions, lastComplete.Next())
	}
	return rng, complete, nil
}
