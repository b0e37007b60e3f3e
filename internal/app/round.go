package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tsarena/internal/domain/format"
	"github.com/okian/tsarena/internal/domain/leaderboard"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
)

// Leaderboard headings by round status.
const (
	leaderboardTitle            = "Round Leaderboard"
	leaderboardTitlePreliminary = "Preliminary Round Leaderboard"
	leaderboardNote             = "Model rankings per series based on MASE score"
	leaderboardNotePreliminary  = "Preliminary rankings while the round is still active. Final rankings for this round will be available once the round is completed."
	leaderboardPlaceholder      = "The leaderboard will be available once the round begins."
	seriesPlaceholder           = "The time series will be revealed once the round starts."
)

// LeaderboardSection is the leaderboard part of a round page.
type LeaderboardSection struct {
	Title       string             `json:"title"`
	Note        string             `json:"note"`
	Placeholder string             `json:"placeholder,omitempty"`
	Board       *leaderboard.Paged `json:"board,omitempty"`
}

// SeriesSummary lists a series without its chart data.
type SeriesSummary struct {
	SeriesID      int     `json:"series_id"`
	Name          string  `json:"name"`
	Frequency     string  `json:"frequency"`
	Domain        *string `json:"domain,omitempty"`
	Category      *string `json:"category,omitempty"`
	Subcategory   *string `json:"subcategory,omitempty"`
	ChartState    string  `json:"chart_state"`
	DefaultExpand bool    `json:"default_expanded"`
	ContextStart  *string `json:"context_start_time,omitempty"`
	ContextEnd    *string `json:"context_end_time,omitempty"`
	EndTime       *string `json:"end_time,omitempty"`
}

// SeriesSection is the series list of a round page.
type SeriesSection struct {
	Placeholder string          `json:"placeholder,omitempty"`
	Items       []SeriesSummary `json:"items"`
}

// RoundView is the round detail page.
type RoundView struct {
	RoundID        string                      `json:"round_id"`
	Round          Section[*types.Round]       `json:"round"`
	FrequencyLabel string                      `json:"frequency_label,omitempty"`
	Leaderboard    Section[LeaderboardSection] `json:"leaderboard"`
	Series         Section[SeriesSection]      `json:"series"`
}

// RoundView fetches the round and its leaderboard concurrently. A failure of
// either leaves the other intact. Registration rounds render the leaderboard
// placeholder whatever the upstream returned, and their series are not listed.
func (s *Service) RoundView(ctx context.Context, roundID string, page int) (RoundView, error) {
	if s.up == nil {
		return RoundView{}, ErrNoUpstream
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()
	calls := 2
	view := RoundView{RoundID: roundID}

	var (
		round      types.Round
		roundErr   error
		entries    []types.LeaderboardEntry
		entriesErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		round, roundErr = s.up.Round(ctx, roundID)
		return nil
	})
	g.Go(func() error {
		entries, entriesErr = s.up.RoundLeaderboard(ctx, roundID)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return RoundView{}, err
	}

	if roundErr != nil {
		s.log().Warn(ctx, "round fetch failed", logger.String("round", roundID), logger.Error(roundErr))
		view.Round.Error = failed("round", roundErr)
	} else {
		view.Round.Data = &round
		view.FrequencyLabel = format.Frequency(round.Frequency)
	}

	view.Leaderboard.Data = leaderboardSection(round.Status)
	if round.Status != types.StatusRegistration && entriesErr != nil {
		s.log().Warn(ctx, "leaderboard fetch failed", logger.String("round", roundID), logger.Error(entriesErr))
		view.Leaderboard.Error = failed("leaderboard", entriesErr)
	} else if view.Leaderboard.Data.Placeholder == "" {
		b := leaderboard.Aggregate(entries).Page(page, s.pageSize)
		view.Leaderboard.Data.Board = &b
	}

	// The series list depends on the round being known and started.
	switch {
	case roundErr != nil:
		view.Series.Error = failed("time series data", roundErr)
	case round.Status == types.StatusRegistration:
		view.Series.Data = SeriesSection{Placeholder: seriesPlaceholder, Items: []SeriesSummary{}}
	default:
		calls++
		list, err := s.up.RoundSeries(ctx, roundID)
		if err != nil {
			s.log().Warn(ctx, "series list fetch failed", logger.String("round", roundID), logger.Error(err))
			view.Series.Error = failed("time series data", err)
			break
		}
		view.Series.Data = SeriesSection{Items: s.summaries(roundID, list)}
	}

	observe("round", start, calls)
	return view, nil
}

func leaderboardSection(status types.RoundStatus) LeaderboardSection {
	sec := LeaderboardSection{Title: leaderboardTitle, Note: leaderboardNote}
	switch status {
	case types.StatusActive:
		sec.Title = leaderboardTitlePreliminary
		sec.Note = leaderboardNotePreliminary
	case types.StatusRegistration:
		sec.Placeholder = leaderboardPlaceholder
	}
	return sec
}

func (s *Service) summaries(roundID string, list []types.Series) []SeriesSummary {
	out := make([]SeriesSummary, 0, len(list))
	for i, ser := range list {
		freq := ""
		if ser.Frequency != nil {
			freq = *ser.Frequency
		}
		out = append(out, SeriesSummary{
			SeriesID:      ser.ID,
			Name:          ser.DisplayName(),
			Frequency:     format.Frequency(freq),
			Domain:        ser.Domain,
			Category:      ser.Category,
			Subcategory:   ser.Subcategory,
			ChartState:    s.series.State(seriesKey(roundID, itoa(ser.ID))).String(),
			DefaultExpand: i == 0,
			ContextStart:  ser.ContextStartTime,
			ContextEnd:    ser.ContextEndTime,
			EndTime:       ser.EndTime,
		})
	}
	return out
}
