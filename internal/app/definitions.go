package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/tsarena/internal/adapters/upstream"
	"github.com/okian/tsarena/internal/domain/format"
	"github.com/okian/tsarena/internal/domain/pagination"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
)

// RoundItem is a listed round with display labels.
type RoundItem struct {
	types.DefinitionRound
	FrequencyLabel string `json:"frequency_label"`
}

// RoundGroup is the rounds of one status under a definition.
type RoundGroup struct {
	Status     types.RoundStatus     `json:"status"`
	Label      string                `json:"label"`
	Expanded   bool                  `json:"expanded"`
	Page       int                   `json:"page"`
	Items      Section[[]RoundItem]  `json:"items"`
	Pagination *types.PaginationInfo `json:"pagination,omitempty"`
	Window     []pagination.Item     `json:"window,omitempty"`
}

// DefinitionRoundsView is the rounds list of a challenge definition.
type DefinitionRoundsView struct {
	DefinitionID string       `json:"definition_id"`
	Groups       []RoundGroup `json:"groups"`
}

var statusLabels = map[types.RoundStatus]string{
	types.StatusActive:       "Active",
	types.StatusRegistration: "Registration",
	types.StatusCompleted:    "Completed",
	types.StatusCancelled:    "Cancelled",
}

// DefinitionRoundsView fetches one page per round status concurrently. pages
// selects the page of each status and defaults to 1. Active and registration
// groups start expanded.
func (s *Service) DefinitionRoundsView(ctx context.Context, definitionID string, pages map[types.RoundStatus]int) (DefinitionRoundsView, error) {
	if s.up == nil {
		return DefinitionRoundsView{}, ErrNoUpstream
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	start := time.Now()
	view := DefinitionRoundsView{
		DefinitionID: definitionID,
		Groups:       make([]RoundGroup, len(types.RoundStatuses)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, status := range types.RoundStatuses {
		page := pages[status]
		if page < 1 {
			page = 1
		}
		g.Go(func() error {
			view.Groups[i] = s.roundGroup(gctx, definitionID, status, page)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return DefinitionRoundsView{}, err
	}

	observe("definition_rounds", start, len(types.RoundStatuses))
	return view, nil
}

func (s *Service) roundGroup(ctx context.Context, definitionID string, status types.RoundStatus, page int) RoundGroup {
	grp := RoundGroup{
		Status:   status,
		Label:    statusLabels[status],
		Expanded: status == types.StatusActive || status == types.StatusRegistration,
		Page:     page,
	}
	resp, err := s.up.DefinitionRounds(ctx, definitionID, upstream.DefinitionRoundsQuery{
		Page:     page,
		PageSize: s.pageSize,
		Status:   status,
	})
	if err != nil {
		s.log().Warn(ctx, "definition rounds fetch failed",
			logger.String("definition", definitionID),
			logger.String("status", string(status)),
			logger.Error(err))
		grp.Items.Error = failed(string(status)+" rounds", err)
		grp.Items.Data = []RoundItem{}
		return grp
	}

	items := make([]RoundItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		items = append(items, RoundItem{DefinitionRound: r, FrequencyLabel: format.Frequency(r.Frequency)})
	}
	grp.Items.Data = items
	info := resp.Pagination
	grp.Pagination = &info
	if info.TotalPages > 1 {
		grp.Window = pagination.Window(info.Page, info.TotalPages)
	}
	return grp
}
