package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	service "github.com/okian/tsarena/internal/app"
	"github.com/okian/tsarena/internal/adapters/upstream"
	"github.com/okian/tsarena/internal/domain/chart"
	"github.com/okian/tsarena/internal/domain/rankings"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }
func intp(v int) *int        { return &v }

// fakeUpstream serves canned data and counts calls per method.
type fakeUpstream struct {
	mu    sync.Mutex
	calls map[string]int

	round       types.Round
	roundErr    error
	leaderboard []types.LeaderboardEntry
	boardErr    error
	series      []types.Series
	data        map[string][]types.DataPoint // keyed by start time
	dataErr     error
	dataDelay   time.Duration
	forecasts   map[string]types.ForecastData
	models      []types.Model
	modelsErr   error
	filters     types.RankingFilterOptions
	rankings    map[string][]types.RankingEntry // keyed by scope
	rankingsErr map[string]error
	queries     []upstream.RankingsQuery
	defRounds   map[types.RoundStatus]types.DefinitionRoundsResponse
	defQueries  []upstream.DefinitionRoundsQuery
}

func (f *fakeUpstream) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeUpstream) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeUpstream) Round(context.Context, string) (types.Round, error) {
	f.hit("round")
	return f.round, f.roundErr
}

func (f *fakeUpstream) RoundSeries(context.Context, string) ([]types.Series, error) {
	f.hit("series")
	return f.series, nil
}

func (f *fakeUpstream) SeriesData(ctx context.Context, _, _, start, _ string) (types.TimeSeriesData, error) {
	f.hit("data")
	if f.dataDelay > 0 {
		select {
		case <-time.After(f.dataDelay):
		case <-ctx.Done():
			return types.TimeSeriesData{}, ctx.Err()
		}
	}
	if f.dataErr != nil {
		return types.TimeSeriesData{}, f.dataErr
	}
	return types.TimeSeriesData{Data: f.data[start]}, nil
}

func (f *fakeUpstream) SeriesForecasts(context.Context, string, string) (types.ForecastsResponse, error) {
	f.hit("forecasts")
	return types.ForecastsResponse{Forecasts: f.forecasts}, nil
}

func (f *fakeUpstream) RoundModels(context.Context, string) ([]types.Model, error) {
	f.hit("models")
	return f.models, f.modelsErr
}

func (f *fakeUpstream) RoundLeaderboard(context.Context, string) ([]types.LeaderboardEntry, error) {
	f.hit("leaderboard")
	return f.leaderboard, f.boardErr
}

func scopeKey(q upstream.RankingsQuery) string {
	switch {
	case q.DefinitionID != "":
		return "def:" + q.DefinitionID
	case q.FrequencyHorizon != "":
		return "fh:" + q.FrequencyHorizon
	}
	return "overall"
}

func (f *fakeUpstream) Rankings(_ context.Context, q upstream.RankingsQuery) (types.RankingsResponse, error) {
	f.hit("rankings")
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	key := scopeKey(q)
	if err := f.rankingsErr[key]; err != nil {
		return types.RankingsResponse{}, err
	}
	return types.RankingsResponse{Rankings: f.rankings[key]}, nil
}

func (f *fakeUpstream) RankingFilters(context.Context) (types.RankingFilterOptions, error) {
	f.hit("filters")
	return f.filters, nil
}

func (f *fakeUpstream) DefinitionRounds(_ context.Context, _ string, q upstream.DefinitionRoundsQuery) (types.DefinitionRoundsResponse, error) {
	f.hit("definition_rounds")
	f.mu.Lock()
	f.defQueries = append(f.defQueries, q)
	f.mu.Unlock()
	if q.Status == types.StatusCancelled {
		return types.DefinitionRoundsResponse{}, &upstream.StatusError{StatusCode: http.StatusServiceUnavailable}
	}
	return f.defRounds[q.Status], nil
}

func boardEntries() []types.LeaderboardEntry {
	return []types.LeaderboardEntry{
		{ModelID: 1, ModelName: "A", SeriesID: 10, SeriesName: "S10", Rank: intp(1), MASE: f64(0.5)},
		{ModelID: 2, ModelName: "B", SeriesID: 10, SeriesName: "S10", Rank: intp(2), MASE: f64(0.7)},
	}
}

func chartUpstream(status types.RoundStatus) *fakeUpstream {
	return &fakeUpstream{
		round:       types.Round{ID: 7, Name: "R7", Status: status, Frequency: "PT1H"},
		leaderboard: boardEntries(),
		series: []types.Series{{
			ID:               11,
			Name:             str("Load"),
			Frequency:        str("PT1H"),
			ContextStartTime: str("t0"),
			ContextEndTime:   str("t1"),
			EndTime:          str("t2"),
		}},
		data: map[string][]types.DataPoint{
			"t0": {{TS: "t0", Value: 1}, {TS: "t0b", Value: 2}},
			"t1": {{TS: "t1b", Value: 3}},
		},
		forecasts: map[string]types.ForecastData{
			"naive":   {Data: []types.ForecastPoint{{TS: "t1b", Y: 2.5}}, CurrentMASE: f64(1.2)},
			"timesfm": {Data: []types.ForecastPoint{{TS: "t1b", Y: 2.9}}, CurrentMASE: f64(0.6)},
		},
		models: []types.Model{
			{ReadableID: "naive", Name: "naive"},
			{ReadableID: "timesfm", Name: "timesfm", ModelSize: f64(200)},
		},
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service without an upstream", t, func() {
		svc := service.New()

		Convey("Then starting fails", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrNoUpstream), ShouldBeTrue)
		})

		Convey("And views report the missing upstream", func() {
			_, err := svc.RoundView(context.Background(), "1", 1)
			So(errors.Is(err, service.ErrNoUpstream), ShouldBeTrue)
		})
	})

	Convey("Given a wired service", t, func() {
		svc := service.New(service.WithUpstream(&fakeUpstream{}), service.WithPageSize(5))
		defer svc.Stop()

		So(svc.Start(context.Background()), ShouldBeNil)
		So(svc.Start(context.Background()), ShouldBeNil)

		Convey("Then stats reflect the configuration", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["pageSize"], ShouldEqual, 5)
			So(stats["seriesCached"], ShouldEqual, 0)
		})
	})
}

func TestService_RoundView(t *testing.T) {
	Convey("Given a round in registration that already has leaderboard data", t, func() {
		up := chartUpstream(types.StatusRegistration)
		svc := service.New(service.WithUpstream(up))

		view, err := svc.RoundView(context.Background(), "7", 1)

		Convey("Then the leaderboard is the placeholder", func() {
			So(err, ShouldBeNil)
			So(view.Leaderboard.Data.Placeholder, ShouldNotBeEmpty)
			So(view.Leaderboard.Data.Board, ShouldBeNil)
			So(view.Leaderboard.Error, ShouldBeNil)
		})

		Convey("And no series are listed or charted", func() {
			So(view.Series.Data.Placeholder, ShouldNotBeEmpty)
			So(up.count("series"), ShouldEqual, 0)
			So(up.count("data"), ShouldEqual, 0)
			So(up.count("forecasts"), ShouldEqual, 0)
		})
	})

	Convey("Given an active round", t, func() {
		up := chartUpstream(types.StatusActive)
		svc := service.New(service.WithUpstream(up))

		view, err := svc.RoundView(context.Background(), "7", 1)

		Convey("Then the preliminary board is aggregated", func() {
			So(err, ShouldBeNil)
			So(view.Round.Data.Name, ShouldEqual, "R7")
			So(view.FrequencyLabel, ShouldEqual, "1 hour")
			So(view.Leaderboard.Data.Title, ShouldEqual, "Preliminary Round Leaderboard")
			So(view.Leaderboard.Data.Board, ShouldNotBeNil)
			So(len(view.Leaderboard.Data.Board.Rows.Items), ShouldEqual, 2)
		})

		Convey("And the series list is summarised", func() {
			So(len(view.Series.Data.Items), ShouldEqual, 1)
			So(view.Series.Data.Items[0].Name, ShouldEqual, "Load")
			So(view.Series.Data.Items[0].DefaultExpand, ShouldBeTrue)
			So(view.Series.Data.Items[0].ChartState, ShouldEqual, "unfetched")
		})
	})

	Convey("Given a completed round whose leaderboard fails", t, func() {
		up := chartUpstream(types.StatusCompleted)
		up.boardErr = &upstream.StatusError{StatusCode: http.StatusNotFound}
		svc := service.New(service.WithUpstream(up))

		view, err := svc.RoundView(context.Background(), "7", 1)

		Convey("Then only the leaderboard section reports the failure", func() {
			So(err, ShouldBeNil)
			So(view.Round.Error, ShouldBeNil)
			So(view.Leaderboard.Error, ShouldNotBeNil)
			So(view.Leaderboard.Error.ExternalStatus, ShouldEqual, http.StatusNotFound)
			So(view.Leaderboard.Data.Title, ShouldEqual, "Round Leaderboard")
		})
	})

	Convey("Given a round fetch that fails", t, func() {
		up := chartUpstream(types.StatusActive)
		up.roundErr = upstream.ErrTransport
		svc := service.New(service.WithUpstream(up))

		view, err := svc.RoundView(context.Background(), "7", 1)

		Convey("Then the leaderboard still renders", func() {
			So(err, ShouldBeNil)
			So(view.Round.Error, ShouldNotBeNil)
			So(view.Round.Error.Message, ShouldEqual, "Failed to load round")
			So(view.Leaderboard.Data.Board, ShouldNotBeNil)
			So(view.Series.Error, ShouldNotBeNil)
		})
	})
}

func TestService_SeriesChart(t *testing.T) {
	Convey("Given a round in registration", t, func() {
		up := chartUpstream(types.StatusRegistration)
		svc := service.New(service.WithUpstream(up))

		_, err := svc.SeriesChart(context.Background(), service.ChartRequest{RoundID: "7", SeriesID: "11"})

		Convey("Then no chart data is fetched", func() {
			So(errors.Is(err, service.ErrRoundNotStarted), ShouldBeTrue)
			So(up.count("series"), ShouldEqual, 0)
			So(up.count("data"), ShouldEqual, 0)
			So(up.count("forecasts"), ShouldEqual, 0)
			So(up.count("models"), ShouldEqual, 0)
		})
	})

	Convey("Given an active round", t, func() {
		up := chartUpstream(types.StatusActive)
		svc := service.New(service.WithUpstream(up))
		req := service.ChartRequest{RoundID: "7", SeriesID: "11"}

		view, err := svc.SeriesChart(context.Background(), req)

		Convey("Then the chart is assembled from both windows and the forecasts", func() {
			So(err, ShouldBeNil)
			So(view.State, ShouldEqual, "loaded")
			So(view.Frequency, ShouldEqual, "1 hour")
			So(view.Chart.Title, ShouldEqual, "Load")
			So(up.count("data"), ShouldEqual, 2)
			So(up.count("forecasts"), ShouldEqual, 1)

			var names []string
			for _, tr := range view.Chart.Traces {
				if tr.Kind == chart.KindForecast {
					names = append(names, tr.ModelKey)
				}
			}
			So(names, ShouldResemble, []string{"timesfm", "naive"})
		})

		Convey("And a second request is served from the loaded data", func() {
			_, err := svc.SeriesChart(context.Background(), req)
			So(err, ShouldBeNil)
			So(up.count("data"), ShouldEqual, 2)
			So(up.count("models"), ShouldEqual, 1)
		})

		Convey("And filters apply without refetching", func() {
			req.Filter = chart.Filter{MaxSize: f64(100)}
			v, err := svc.SeriesChart(context.Background(), req)
			So(err, ShouldBeNil)
			So(v.Filter.MaxSize, ShouldNotBeNil)
			So(up.count("forecasts"), ShouldEqual, 1)
		})
	})

	Convey("Given series data slower than the view deadline", t, func() {
		up := chartUpstream(types.StatusActive)
		up.dataDelay = 2 * time.Second
		svc := service.New(service.WithUpstream(up), service.WithViewTimeout(50*time.Millisecond))

		start := time.Now()
		_, err := svc.SeriesChart(context.Background(), service.ChartRequest{RoundID: "7", SeriesID: "11"})

		Convey("Then the whole view gives up at the deadline", func() {
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})
	})

	Convey("Given series data that fails to load", t, func() {
		up := chartUpstream(types.StatusActive)
		up.dataErr = &upstream.StatusError{StatusCode: http.StatusBadGateway}
		svc := service.New(service.WithUpstream(up))
		req := service.ChartRequest{RoundID: "7", SeriesID: "11"}

		_, err := svc.SeriesChart(context.Background(), req)
		So(err, ShouldNotBeNil)
		fetched := up.count("series")

		Convey("Then the failure sticks until retried", func() {
			_, err := svc.SeriesChart(context.Background(), req)
			So(errors.Is(err, context.Canceled), ShouldBeFalse)
			var se *upstream.StatusError
			So(errors.As(err, &se), ShouldBeTrue)
			So(up.count("series"), ShouldEqual, fetched)

			up.mu.Lock()
			up.dataErr = nil
			up.mu.Unlock()
			req.Retry = true
			v, err := svc.SeriesChart(context.Background(), req)
			So(err, ShouldBeNil)
			So(v.State, ShouldEqual, "loaded")
		})
	})

	Convey("Given an unknown series", t, func() {
		up := chartUpstream(types.StatusActive)
		svc := service.New(service.WithUpstream(up))

		_, err := svc.SeriesChart(context.Background(), service.ChartRequest{RoundID: "7", SeriesID: "99"})
		So(errors.Is(err, service.ErrSeriesNotFound), ShouldBeTrue)
	})

	Convey("Given a models fetch that fails", t, func() {
		up := chartUpstream(types.StatusActive)
		up.modelsErr = upstream.ErrTransport
		svc := service.New(service.WithUpstream(up))

		view, err := svc.SeriesChart(context.Background(), service.ChartRequest{RoundID: "7", SeriesID: "11"})

		Convey("Then observed lines render and every forecast is dropped", func() {
			So(err, ShouldBeNil)
			So(view.ModelsError, ShouldNotBeNil)
			So(len(view.Chart.Dropped), ShouldEqual, 2)
		})
	})
}

func rankingFixture() *fakeUpstream {
	row := func(id, pos int) types.RankingEntry {
		return types.RankingEntry{ModelID: id, RankPosition: pos, EloMedian: 1500, EloCILower: 1490, EloCIUpper: 1510}
	}
	return &fakeUpstream{
		filters: types.RankingFilterOptions{
			Definitions:       []types.DefinitionRef{{ID: 1, Name: "Energy"}, {ID: 2, Name: "Retail"}},
			FrequencyHorizons: []string{"01:00:00::1 day"},
			CalculationDates: []types.CalculationDate{
				{CalculationDate: "2025-03-04", IsMonthEnd: false},
				{CalculationDate: "2025-02-28", IsMonthEnd: true},
			},
		},
		rankings: map[string][]types.RankingEntry{
			"overall":            {row(1, 2), row(2, 1)},
			"def:1":              {row(1, 1)},
			"fh:01:00:00::1 day": {row(2, 1)},
		},
		rankingsErr: map[string]error{"def:2": upstream.ErrTransport},
	}
}

func TestService_RankingsOverview(t *testing.T) {
	Convey("Given ranking filters with a recent and a month-end date", t, func() {
		up := rankingFixture()
		svc := service.New(service.WithUpstream(up), service.WithRankingsLimit(50))

		Convey("When no date is selected", func() {
			view, err := svc.RankingsOverview(context.Background(), "")

			Convey("Then the newest date is used without sending it", func() {
				So(err, ShouldBeNil)
				So(view.CalculationDate, ShouldEqual, "2025-03-04")
				for _, q := range up.queries {
					So(q.CalculationDate, ShouldEqual, "")
					So(q.Limit, ShouldEqual, 50)
				}
				So(view.CalculationDates[0].Label, ShouldEqual, "Recent")
				So(view.CalculationDates[1].Label, ShouldEqual, "Feb-2025")
			})

			Convey("And every scope is fetched after the filters", func() {
				So(up.count("filters"), ShouldEqual, 1)
				So(up.count("rankings"), ShouldEqual, 4)
				So(len(view.Overall.Data.Page.Items), ShouldEqual, 2)
				So(view.Overall.Data.Page.Items[0].ModelID, ShouldEqual, 2)
			})

			Convey("And a failing scope does not affect the others", func() {
				So(view.ByDefinition[0].Rankings.Error, ShouldBeNil)
				So(len(view.ByDefinition[0].Rankings.Data), ShouldEqual, 1)
				So(view.ByDefinition[1].Title, ShouldEqual, "Retail")
				So(view.ByDefinition[1].Rankings.Error, ShouldNotBeNil)
				So(view.ByFrequencyHorizon[0].Title, ShouldEqual, "1h / 1 day")
			})
		})

		Convey("When a month-end date is selected", func() {
			_, err := svc.RankingsOverview(context.Background(), "2025-02-28")
			So(err, ShouldBeNil)
			for _, q := range up.queries {
				So(q.CalculationDate, ShouldEqual, "2025-02-28")
			}
		})

		Convey("When an unknown date is selected", func() {
			_, err := svc.RankingsOverview(context.Background(), "1999-01-31")
			So(errors.Is(err, service.ErrNoCalculationDay), ShouldBeTrue)
			So(up.count("rankings"), ShouldEqual, 0)
		})
	})
}

func TestService_RankingsTable(t *testing.T) {
	Convey("Given rankings for a definition", t, func() {
		up := rankingFixture()
		svc := service.New(service.WithUpstream(up), service.WithPageSize(1))

		res, err := svc.RankingsTable(context.Background(), service.TableRequest{
			Scope: upstream.RankingsQuery{DefinitionID: "1"},
			Query: rankings.Query{Sort: rankings.DefaultSort, Page: 1},
		})

		Convey("Then the table is paged with the configured size", func() {
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 1)
			So(res.Page.PageSize, ShouldEqual, 1)
			So(up.queries[0].Limit, ShouldEqual, 100)
		})
	})
}

func TestService_DefinitionRoundsView(t *testing.T) {
	Convey("Given rounds under a definition", t, func() {
		up := &fakeUpstream{defRounds: map[types.RoundStatus]types.DefinitionRoundsResponse{
			types.StatusActive: {
				Items:      []types.DefinitionRound{{ID: 1, Status: types.StatusActive, Frequency: "PT15M"}},
				Pagination: types.PaginationInfo{Page: 2, TotalPages: 5},
			},
		}}
		svc := service.New(service.WithUpstream(up))

		view, err := svc.DefinitionRoundsView(context.Background(), "4", map[types.RoundStatus]int{types.StatusActive: 2})

		Convey("Then one group per status is returned in display order", func() {
			So(err, ShouldBeNil)
			So(len(view.Groups), ShouldEqual, 4)
			So(view.Groups[0].Status, ShouldEqual, types.StatusActive)
			So(view.Groups[0].Expanded, ShouldBeTrue)
			So(view.Groups[1].Expanded, ShouldBeTrue)
			So(view.Groups[2].Expanded, ShouldBeFalse)
			So(up.count("definition_rounds"), ShouldEqual, 4)
		})

		Convey("And the requested page is used", func() {
			So(view.Groups[0].Page, ShouldEqual, 2)
			So(view.Groups[1].Page, ShouldEqual, 1)
			So(view.Groups[0].Items.Data[0].FrequencyLabel, ShouldEqual, "15 minutes")
			So(len(view.Groups[0].Window), ShouldEqual, 5)
		})

		Convey("And a failing status is reported on its own", func() {
			So(view.Groups[3].Items.Error, ShouldNotBeNil)
			So(view.Groups[3].Items.Error.ExternalStatus, ShouldEqual, http.StatusServiceUnavailable)
			So(view.Groups[2].Items.Error, ShouldBeNil)
		})
	})
}
