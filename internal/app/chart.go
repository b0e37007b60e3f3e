package service

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tsarena/internal/domain/chart"
	"github.com/okian/tsarena/internal/domain/format"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
)

// seriesBundle is everything fetched once per series for its chart.
type seriesBundle struct {
	series    types.Series
	context   []types.DataPoint
	test      []types.DataPoint
	forecasts map[string]types.ForecastData
}

// ChartRequest selects a series chart.
type ChartRequest struct {
	RoundID  string
	SeriesID string
	Filter   chart.Filter
	Retry    bool
}

// ChartView is the expanded chart of one series.
type ChartView struct {
	RoundID     string        `json:"round_id"`
	SeriesID    string        `json:"series_id"`
	State       string        `json:"state"`
	Frequency   string        `json:"frequency"`
	Chart       chart.Chart   `json:"chart"`
	Filter      chart.Filter  `json:"filter"`
	ModelsError *SectionError `json:"models_error,omitempty"`
}

func seriesKey(roundID, seriesID string) string { return roundID + "/" + seriesID }

func itoa(n int) string { return strconv.Itoa(n) }

// SeriesChart loads the chart data of a series on first request and assembles
// it with the round's model registry. The round is checked first: a round still
// in registration yields ErrRoundNotStarted before any series data is fetched.
// A failed load stays failed until requested again with Retry.
func (s *Service) SeriesChart(ctx context.Context, req ChartRequest) (ChartView, error) {
	if s.up == nil {
		return ChartView{}, ErrNoUpstream
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()
	var calls atomic.Int64
	calls.Store(1)

	round, err := s.up.Round(ctx, req.RoundID)
	if err != nil {
		return ChartView{}, err
	}
	if !round.Status.Started() {
		observe("chart", start, int(calls.Load()))
		return ChartView{}, fmt.Errorf("round %s: %w", req.RoundID, ErrRoundNotStarted)
	}

	key := seriesKey(req.RoundID, req.SeriesID)
	if req.Retry {
		s.series.Retry(key)
		s.models.Retry(req.RoundID)
	}

	var (
		bundle    seriesBundle
		models    []types.Model
		modelsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bundle, err = s.series.Load(gctx, key, func(fctx context.Context) (seriesBundle, error) {
			calls.Add(4)
			return s.fetchBundle(fctx, req.RoundID, req.SeriesID)
		})
		return err
	})
	g.Go(func() error {
		models, modelsErr = s.models.Load(gctx, req.RoundID, func(fctx context.Context) ([]types.Model, error) {
			calls.Add(1)
			return s.up.RoundModels(fctx, req.RoundID)
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log().Warn(ctx, "series chart load failed",
			logger.String("round", req.RoundID),
			logger.String("series", req.SeriesID),
			logger.Error(err))
		observe("chart", start, int(calls.Load()))
		return ChartView{}, err
	}

	view := ChartView{
		RoundID:  req.RoundID,
		SeriesID: req.SeriesID,
		State:    s.series.State(key).String(),
		Filter:   req.Filter,
	}
	if modelsErr != nil {
		// Without a registry no forecast can be matched; the observed lines still render.
		s.log().Warn(ctx, "round models fetch failed", logger.String("round", req.RoundID), logger.Error(modelsErr))
		view.ModelsError = failed("models", modelsErr)
		models = nil
	}

	freq := ""
	if bundle.series.Frequency != nil {
		freq = *bundle.series.Frequency
	}
	view.Frequency = format.Frequency(freq)
	view.Chart = chart.Assemble(chart.Input{
		SeriesID:   bundle.series.ID,
		SeriesName: bundle.series.DisplayName(),
		Context:    bundle.context,
		Test:       bundle.test,
		Forecasts:  bundle.forecasts,
		Models:     models,
		Filter:     req.Filter,
		Visible:    s.visible,
	})

	observe("chart", start, int(calls.Load()))
	return view, nil
}

// fetchBundle looks up the series windows and then loads the context window,
// the test window and the forecasts concurrently.
func (s *Service) fetchBundle(ctx context.Context, roundID, seriesID string) (seriesBundle, error) {
	list, err := s.up.RoundSeries(ctx, roundID)
	if err != nil {
		return seriesBundle{}, err
	}
	var (
		found bool
		b     seriesBundle
	)
	for _, ser := range list {
		if itoa(ser.ID) == seriesID {
			b.series, found = ser, true
			break
		}
	}
	if !found {
		return seriesBundle{}, fmt.Errorf("series %s: %w", seriesID, ErrSeriesNotFound)
	}
	ctxStart, ctxEnd, end := b.series.ContextStartTime, b.series.ContextEndTime, b.series.EndTime
	if ctxStart == nil || ctxEnd == nil || end == nil || *ctxStart == "" || *ctxEnd == "" || *end == "" {
		return seriesBundle{}, fmt.Errorf("series %s: %w", seriesID, ErrMissingTimeRange)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	g.Go(func() error {
		d, err := s.up.SeriesData(gctx, roundID, seriesID, *ctxStart, *ctxEnd)
		b.context = d.Data
		return err
	})
	g.Go(func() error {
		d, err := s.up.SeriesData(gctx, roundID, seriesID, *ctxEnd, *end)
		b.test = d.Data
		return err
	})
	g.Go(func() error {
		f, err := s.up.SeriesForecasts(gctx, roundID, seriesID)
		b.forecasts = f.Forecasts
		return err
	})
	if err := g.Wait(); err != nil {
		return seriesBundle{}, err
	}
	return b, nil
}
