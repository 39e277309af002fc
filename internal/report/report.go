// Package report composes the outputs of the pipeline stages into the
// response document. It performs no computation of its own beyond formatting.
package report

import (
	"errors"
	"fmt"

	"spendcast/internal/core"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOK                  Status = "ok"
	StatusLowConfidence       Status = "low_confidence"
	StatusForecastUnavailable Status = "forecast_unavailable"
)

type Interval struct {
	Lower string `json:"lower"`
	Upper string `json:"upper"`
}

type Forecast struct {
	Amount             string              `json:"amount"`
	ConfidenceInterval Interval            `json:"confidence_interval"`
	Level              float64             `json:"level"`
	Method             core.ForecastMethod `json:"method"`
	Widened            bool                `json:"widened"`
}

type Trend struct {
	Percentage float64        `json:"percentage"`
	Direction  core.Direction `json:"direction"`
}

type Month struct {
	Month    string `json:"month"`
	Total    string `json:"total"`
	Count    int    `json:"count"`
	Adjusted bool   `json:"adjusted"`
}

type Historical struct {
	AverageMonthly string  `json:"average_monthly"`
	Months         []Month `json:"months"`
}

type Adjustment struct {
	Month    string                `json:"month"`
	Action   core.AdjustmentAction `json:"action"`
	Original string                `json:"original"`
	Value    string                `json:"value"`
}

// Report is the document returned to clients. Forecast and Trend are nil when
// they could not be produced; Notices says why.
type Report struct {
	Month       string       `json:"month"`
	Status      Status       `json:"status"`
	Forecast    *Forecast    `json:"next_month_forecast"`
	Trend       *Trend       `json:"trend"`
	Historical  Historical   `json:"historical"`
	Adjustments []Adjustment `json:"adjustments"`
	Notices     []string     `json:"notices"`
}

// Input carries each stage's result or error. Average is the historical
// baseline the trend was measured against.
type Input struct {
	Series      core.CorrectedSeries
	Average     decimal.Decimal
	Forecast    core.ForecastResult
	ForecastErr error
	Trend       core.TrendSummary
	TrendErr    error
}

// Assemble builds the report. A forecast error other than ErrModelFit, or a
// trend error other than ErrUndefinedTrend, is returned unchanged.
func Assemble(in Input) (*Report, error) {
	if in.ForecastErr != nil && !errors.Is(in.ForecastErr, core.ErrModelFit) {
		return nil, in.ForecastErr
	}
	if in.ForecastErr == nil && in.TrendErr != nil && !errors.Is(in.TrendErr, core.ErrUndefinedTrend) {
		return nil, in.TrendErr
	}

	r := &Report{
		Month:       in.Series.Next.String(),
		Status:      StatusOK,
		Historical:  historical(in.Series, in.Average),
		Adjustments: adjustments(in.Series),
		Notices:     []string{},
	}

	if in.Series.LowConfidence {
		r.Status = StatusLowConfidence
		r.Notices = append(r.Notices, fmt.Sprintf("only %d usable months of history; interval widened", len(in.Series.Fit)))
	}

	if in.ForecastErr != nil {
		r.Status = StatusForecastUnavailable
		r.Notices = append(r.Notices, "forecast unavailable: the model could not be fitted to this history")
		return r, nil
	}

	r.Forecast = &Forecast{
		Amount: money(in.Forecast.Estimate),
		ConfidenceInterval: Interval{
			Lower: money(in.Forecast.Lower),
			Upper: money(in.Forecast.Upper),
		},
		Level:   in.Forecast.Level,
		Method:  in.Forecast.Method,
		Widened: in.Forecast.Widened,
	}

	if in.TrendErr != nil {
		r.Notices = append(r.Notices, "trend omitted: historical baseline is zero")
		return r, nil
	}
	r.Trend = &Trend{Percentage: in.Trend.Percentage, Direction: in.Trend.Direction}
	return r, nil
}

func historical(s core.CorrectedSeries, avg decimal.Decimal) Historical {
	h := Historical{
		AverageMonthly: money(avg),
		Months:         make([]Month, 0, len(s.Original)),
	}
	for _, b := range s.Original {
		_, adjusted := s.Adjusted(b.Month)
		h.Months = append(h.Months, Month{
			Month:    b.Month.String(),
			Total:    money(b.Total),
			Count:    b.Count,
			Adjusted: adjusted,
		})
	}
	return h
}

func adjustments(s core.CorrectedSeries) []Adjustment {
	out := make([]Adjustment, 0, len(s.Adjustments))
	for _, a := range s.Adjustments {
		out = append(out, Adjustment{
			Month:    a.Month.String(),
			Action:   a.Action,
			Original: money(a.Original),
			Value:    money(a.Value),
		})
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
