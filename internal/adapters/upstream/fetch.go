package upstream

import (
	"context"
	"net/url"
	"strconv"

	"github.com/okian/tsarena/internal/domain/types"
)

// Endpoint names used for metrics labels.
const (
	EndpointRound            = "round"
	EndpointRoundSeries      = "round_series"
	EndpointSeriesData       = "series_data"
	EndpointSeriesForecasts  = "series_forecasts"
	EndpointRoundModels      = "round_models"
	EndpointRoundLeaderboard = "round_leaderboard"
	EndpointRankings         = "rankings"
	EndpointRankingFilters   = "ranking_filters"
	EndpointDefinitionRounds = "definition_rounds"
)

// RankingsQuery scopes a rankings request. Empty fields are omitted.
type RankingsQuery struct {
	DefinitionID     string
	FrequencyHorizon string
	CalculationDate  string
	Limit            int
}

func (q RankingsQuery) values() url.Values {
	v := url.Values{}
	if q.DefinitionID != "" {
		v.Set("definition_id", q.DefinitionID)
	}
	if q.FrequencyHorizon != "" {
		v.Set("frequency_horizon", q.FrequencyHorizon)
	}
	if q.CalculationDate != "" {
		v.Set("calculation_date", q.CalculationDate)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// DefinitionRoundsQuery selects one page of rounds under a definition.
type DefinitionRoundsQuery struct {
	Page     int
	PageSize int
	Status   types.RoundStatus
}

func (q DefinitionRoundsQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	return v
}

func roundPath(roundID string, rest ...string) string {
	p := "/api/v1/rounds/" + url.PathEscape(roundID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Round fetches the round detail.
func (c *Client) Round(ctx context.Context, roundID string) (types.Round, error) {
	var out types.Round
	err := c.GetJSON(ctx, EndpointRound, roundPath(roundID), nil, &out)
	return out, err
}

// RoundSeries lists the series of a round.
func (c *Client) RoundSeries(ctx context.Context, roundID string) ([]types.Series, error) {
	var out []types.Series
	err := c.GetJSON(ctx, EndpointRoundSeries, roundPath(roundID, "series"), nil, &out)
	return out, err
}

// SeriesData fetches observed points of a series between start and end.
func (c *Client) SeriesData(ctx context.Context, roundID, seriesID, start, end string) (types.TimeSeriesData, error) {
	var out types.TimeSeriesData
	q := url.Values{"start_time": {start}, "end_time": {end}}
	err := c.GetJSON(ctx, EndpointSeriesData, roundPath(roundID, "series", url.PathEscape(seriesID), "data"), q, &out)
	return out, err
}

// SeriesForecasts fetches every model's forecast for a series.
func (c *Client) SeriesForecasts(ctx context.Context, roundID, seriesID string) (types.ForecastsResponse, error) {
	var out types.ForecastsResponse
	err := c.GetJSON(ctx, EndpointSeriesForecasts, roundPath(roundID, "series", url.PathEscape(seriesID), "forecasts"), nil, &out)
	return out, err
}

// RoundModels lists the models participating in a round.
func (c *Client) RoundModels(ctx context.Context, roundID string) ([]types.Model, error) {
	var out types.ModelsResponse
	err := c.GetJSON(ctx, EndpointRoundModels, roundPath(roundID, "models"), nil, &out)
	return out.Models, err
}

// RoundLeaderboard fetches the per (model, series) results of a round.
func (c *Client) RoundLeaderboard(ctx context.Context, roundID string) ([]types.LeaderboardEntry, error) {
	var out []types.LeaderboardEntry
	err := c.GetJSON(ctx, EndpointRoundLeaderboard, roundPath(roundID, "leaderboard"), nil, &out)
	return out, err
}

// Rankings fetches the model rankings for a scope.
func (c *Client) Rankings(ctx context.Context, q RankingsQuery) (types.RankingsResponse, error) {
	var out types.RankingsResponse
	err := c.GetJSON(ctx, EndpointRankings, "/api/v1/models/rankings", q.values(), &out)
	return out, err
}

// RankingFilters fetches the scopes and calculation dates rankings exist for.
func (c *Client) RankingFilters(ctx context.Context) (types.RankingFilterOptions, error) {
	var out types.RankingFilterOptions
	err := c.GetJSON(ctx, EndpointRankingFilters, "/api/v1/models/ranking-filters", nil, &out)
	return out, err
}

// DefinitionRounds fetches one page of rounds under a definition.
func (c *Client) DefinitionRounds(ctx context.Context, definitionID string, q DefinitionRoundsQuery) (types.DefinitionRoundsResponse, error) {
	var out types.DefinitionRoundsResponse
	path := "/api/v1/definitions/" + url.PathEscape(definitionID) + "/rounds"
	err := c.GetJSON(ctx, EndpointDefinitionRounds, path, q.values(), &out)
	return out, err
}
