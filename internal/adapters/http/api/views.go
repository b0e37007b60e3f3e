package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	service "github.com/okian/tsarena/internal/app"
	"github.com/okian/tsarena/internal/adapters/upstream"
	"github.com/okian/tsarena/internal/domain/chart"
	"github.com/okian/tsarena/internal/domain/rankings"
	"github.com/okian/tsarena/internal/domain/types"
)

// ViewsHandler serves the aggregated dashboard views.
type ViewsHandler struct {
	views Views
}

// NewViewsHandler creates a views handler.
func NewViewsHandler(views Views) *ViewsHandler {
	return &ViewsHandler{views: views}
}

// HandleRound handles GET /api/v1/views/rounds/{roundId}.
func (h *ViewsHandler) HandleRound(w http.ResponseWriter, r *http.Request) {
	const op = "api.view_round"
	roundID := r.PathValue("roundId")
	if !validID(roundID, segmentID) {
		h.fail(w, WrapKind(op, ErrInvalidID, errors.New("Invalid round ID")), "round")
		return
	}
	page, err := intParam(r.URL.Query(), "page", 1)
	if err != nil {
		h.fail(w, WrapKind(op, ErrBadRequest, err), "round")
		return
	}
	view, err := h.views.RoundView(r.Context(), roundID, page)
	if err != nil {
		h.fail(w, Wrap(op, err), "round")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleChart handles GET /api/v1/views/rounds/{roundId}/series/{seriesId}/chart.
func (h *ViewsHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.view_chart"
	roundID, seriesID := r.PathValue("roundId"), r.PathValue("seriesId")
	if !validID(roundID, segmentID) || !validID(seriesID, segmentID) {
		h.fail(w, WrapKind(op, ErrInvalidID, errors.New("Invalid round ID or series ID")), "series data")
		return
	}
	q := r.URL.Query()
	maxSize, err := floatParam(q, "max_size")
	if err != nil {
		h.fail(w, WrapKind(op, ErrBadRequest, err), "series data")
		return
	}
	retry, err := boolParam(q, "retry")
	if err != nil {
		h.fail(w, WrapKind(op, ErrBadRequest, err), "series data")
		return
	}
	view, err := h.views.SeriesChart(r.Context(), service.ChartRequest{
		RoundID:  roundID,
		SeriesID: seriesID,
		Filter: chart.Filter{
			MaxSize:      maxSize,
			Architecture: q.Get("architecture"),
			Search:       q.Get("search"),
		},
		Retry: retry,
	})
	if err != nil {
		h.fail(w, Wrap(op, err), "series data")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleRankings handles GET /api/v1/views/rankings.
func (h *ViewsHandler) HandleRankings(w http.ResponseWriter, r *http.Request) {
	const op = "api.view_rankings"
	view, err := h.views.RankingsOverview(r.Context(), r.URL.Query().Get("calculation_date"))
	if err != nil {
		h.fail(w, Wrap(op, err), "ranking filters")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleRankingsTable handles GET /api/v1/views/rankings/table.
func (h *ViewsHandler) HandleRankingsTable(w http.ResponseWriter, r *http.Request) {
	const op = "api.view_rankings_table"
	req, err := tableRequest(r.URL.Query())
	if err != nil {
		h.fail(w, WrapKind(op, ErrBadRequest, err), "rankings")
		return
	}
	res, err := h.views.RankingsTable(r.Context(), req)
	if err != nil {
		h.fail(w, Wrap(op, err), "rankings")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDefinitionRounds handles GET /api/v1/views/definitions/{definitionId}/rounds.
func (h *ViewsHandler) HandleDefinitionRounds(w http.ResponseWriter, r *http.Request) {
	const op = "api.view_definition_rounds"
	defID := r.PathValue("definitionId")
	if !validID(defID, segmentID) {
		h.fail(w, WrapKind(op, ErrInvalidID, errors.New("Invalid definition ID")), "rounds for definition")
		return
	}
	q := r.URL.Query()
	pages := make(map[types.RoundStatus]int, len(types.RoundStatuses))
	for _, st := range types.RoundStatuses {
		p, err := intParam(q, "page_"+string(st), 1)
		if err != nil {
			h.fail(w, WrapKind(op, ErrBadRequest, err), "rounds for definition")
			return
		}
		pages[st] = p
	}
	view, err := h.views.DefinitionRoundsView(r.Context(), defID, pages)
	if err != nil {
		h.fail(w, Wrap(op, err), "rounds for definition")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ViewsHandler) fail(w http.ResponseWriter, err error, resource string) {
	status, body := statusOf(err, resource)
	writeError(w, status, body)
}

func tableRequest(q url.Values) (service.TableRequest, error) {
	req := service.TableRequest{
		Scope: upstream.RankingsQuery{
			DefinitionID:     q.Get("definition_id"),
			FrequencyHorizon: q.Get("frequency_horizon"),
			CalculationDate:  q.Get("calculation_date"),
		},
		Query: rankings.Query{Sort: rankings.DefaultSort, Text: map[rankings.Column]string{}},
	}

	if s := q.Get("sort"); s != "" {
		col, err := rankings.ParseColumn(s)
		if err != nil {
			return req, err
		}
		req.Query.Sort = rankings.Sort{Column: col, Direction: rankings.Asc}
	}
	switch dir := strings.ToLower(q.Get("dir")); dir {
	case "":
	case "asc", "desc":
		req.Query.Sort.Direction = rankings.Direction(dir)
	case "none":
		req.Query.Sort = rankings.Sort{}
	default:
		return req, fmt.Errorf("dir must be asc, desc or none, got %q", dir)
	}

	for _, col := range []rankings.Column{rankings.ColModelName, rankings.ColReadableID} {
		if v := strings.TrimSpace(q.Get(string(col))); v != "" {
			req.Query.Text[col] = v
		}
	}
	maxSize, err := floatParam(q, "max_size")
	if err != nil {
		return req, err
	}
	req.Query.MaxSize = maxSize
	if req.Query.Page, err = intParam(q, "page", 1); err != nil {
		return req, err
	}
	return req, nil
}

// intParam parses a positive integer query value.
func intParam(q url.Values, name string, def int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return n, nil
}

func floatParam(q url.Values, name string) (*float64, error) {
	s := q.Get(name)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return nil, fmt.Errorf("%s must be a non-negative number", name)
	}
	return &f, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	s := q.Get(name)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return b, nil
}
