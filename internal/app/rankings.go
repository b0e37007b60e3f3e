package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tsarena/internal/adapters/upstream"
	"github.com/okian/tsarena/internal/domain/format"
	"github.com/okian/tsarena/internal/domain/rankings"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
)

// compactRows is how many rows a per-scope rankings table shows.
const compactRows = 10

// DateOption is one selectable calculation date.
type DateOption struct {
	Value      string `json:"value"`
	Label      string `json:"label"`
	IsMonthEnd bool   `json:"is_month_end"`
}

// ScopeRankings is the compact rankings table of one definition or frequency/horizon.
type ScopeRankings struct {
	Key      string                  `json:"key"`
	Title    string                  `json:"title"`
	Rankings Section[[]rankings.Row] `json:"rankings"`
}

// RankingsOverview is the landing page.
type RankingsOverview struct {
	CalculationDate    string                     `json:"calculation_date"`
	CalculationDates   []DateOption               `json:"calculation_dates"`
	Overall            Section[rankings.Result]   `json:"overall"`
	ByDefinition       []ScopeRankings            `json:"by_definition"`
	ByFrequencyHorizon []ScopeRankings            `json:"by_frequency_horizon"`
	Filters            types.RankingFilterOptions `json:"filters"`
}

// RankingsOverview fetches the filter options first, resolves the calculation
// date (newest when empty) and then fetches the overall, per-definition and
// per-frequency/horizon rankings concurrently. Each scope fails on its own.
func (s *Service) RankingsOverview(ctx context.Context, calculationDate string) (RankingsOverview, error) {
	if s.up == nil {
		return RankingsOverview{}, ErrNoUpstream
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()

	opts, err := s.up.RankingFilters(ctx)
	if err != nil {
		return RankingsOverview{}, err
	}

	view := RankingsOverview{
		Filters:            opts,
		CalculationDates:   make([]DateOption, 0, len(opts.CalculationDates)),
		ByDefinition:       make([]ScopeRankings, len(opts.Definitions)),
		ByFrequencyHorizon: make([]ScopeRankings, len(opts.FrequencyHorizons)),
	}
	for _, d := range opts.CalculationDates {
		view.CalculationDates = append(view.CalculationDates, DateOption{
			Value:      d.CalculationDate,
			Label:      format.CalculationDateLabel(d.CalculationDate, d.IsMonthEnd),
			IsMonthEnd: d.IsMonthEnd,
		})
	}

	base := upstream.RankingsQuery{Limit: s.rankingsLimit}
	switch {
	case calculationDate != "":
		sel, ok := findDate(opts.CalculationDates, calculationDate)
		if !ok {
			return RankingsOverview{}, fmt.Errorf("%q: %w", calculationDate, ErrNoCalculationDay)
		}
		view.CalculationDate = sel.CalculationDate
		// Only month-end snapshots are addressable; the newest one is served by default.
		if sel.IsMonthEnd {
			base.CalculationDate = sel.CalculationDate
		}
	case len(opts.CalculationDates) > 0:
		view.CalculationDate = opts.CalculationDates[0].CalculationDate
		if opts.CalculationDates[0].IsMonthEnd {
			base.CalculationDate = view.CalculationDate
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)

	g.Go(func() error {
		resp, err := s.up.Rankings(gctx, base)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			view.Overall.Error = failed("rankings", err)
			return nil
		}
		view.Overall.Data = rankings.Apply(resp.Rankings, rankings.Query{
			Sort:     rankings.DefaultSort,
			Page:     1,
			PageSize: s.pageSize,
		})
		return nil
	})
	for i, def := range opts.Definitions {
		q := base
		q.DefinitionID = strconv.Itoa(def.ID)
		g.Go(func() error {
			sec := s.scope(gctx, q)
			mu.Lock()
			view.ByDefinition[i] = ScopeRankings{Key: q.DefinitionID, Title: def.Name, Rankings: sec}
			mu.Unlock()
			return nil
		})
	}
	for i, fh := range opts.FrequencyHorizons {
		q := base
		q.FrequencyHorizon = fh
		g.Go(func() error {
			sec := s.scope(gctx, q)
			mu.Lock()
			view.ByFrequencyHorizon[i] = ScopeRankings{Key: fh, Title: format.FrequencyHorizon(fh), Rankings: sec}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return RankingsOverview{}, err
	}

	observe("rankings", start, 2+len(opts.Definitions)+len(opts.FrequencyHorizons))
	return view, nil
}

func (s *Service) scope(ctx context.Context, q upstream.RankingsQuery) Section[[]rankings.Row] {
	var sec Section[[]rankings.Row]
	resp, err := s.up.Rankings(ctx, q)
	if err != nil {
		s.log().Warn(ctx, "scoped rankings fetch failed",
			logger.String("definition", q.DefinitionID),
			logger.String("frequency_horizon", q.FrequencyHorizon),
			logger.Error(err))
		sec.Error = failed("rankings", err)
		sec.Data = []rankings.Row{}
		return sec
	}
	res := rankings.Apply(resp.Rankings, rankings.Query{Sort: rankings.DefaultSort, Page: 1, PageSize: compactRows})
	sec.Data = res.Page.Items
	return sec
}

func findDate(dates []types.CalculationDate, value string) (types.CalculationDate, bool) {
	for _, d := range dates {
		if d.CalculationDate == value {
			return d, true
		}
	}
	return types.CalculationDate{}, false
}

// TableRequest is a full rankings table request: the upstream scope plus the
// client-side table state.
type TableRequest struct {
	Scope upstream.RankingsQuery
	Query rankings.Query
}

// RankingsTable fetches the rankings of a scope and applies filtering,
// sorting and pagination.
func (s *Service) RankingsTable(ctx context.Context, req TableRequest) (rankings.Result, error) {
	if s.up == nil {
		return rankings.Result{}, ErrNoUpstream
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()
	scope := req.Scope
	if scope.Limit <= 0 {
		scope.Limit = s.rankingsLimit
	}
	resp, err := s.up.Rankings(ctx, scope)
	if err != nil {
		return rankings.Result{}, err
	}
	q := req.Query
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize
	}
	observe("rankings_table", start, 1)
	return rankings.Apply(resp.Rankings, q), nil
}
