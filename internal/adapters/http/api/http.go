// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	service "github.com/okian/tsarena/internal/app"
	"github.com/okian/tsarena/internal/adapters/upstream"
	"github.com/okian/tsarena/internal/adapters/viewcache"
	"github.com/okian/tsarena/internal/domain/rankings"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
)

// Proxy relays one GET to the benchmark API.
type Proxy interface {
	Get(ctx context.Context, endpoint, path string, query url.Values) (*upstream.Response, error)
}

// Views builds the aggregated dashboard views.
type Views interface {
	RoundView(ctx context.Context, roundID string, page int) (service.RoundView, error)
	SeriesChart(ctx context.Context, req service.ChartRequest) (service.ChartView, error)
	RankingsOverview(ctx context.Context, calculationDate string) (service.RankingsOverview, error)
	RankingsTable(ctx context.Context, req service.TableRequest) (rankings.Result, error)
	DefinitionRoundsView(ctx context.Context, definitionID string, pages map[types.RoundStatus]int) (service.DefinitionRoundsView, error)
}

// Server wires HTTP routes for the dashboard API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	proxyHandler  *ProxyHandler
	viewsHandler  *ViewsHandler
	log           logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(proxy Proxy, views Views, statsProvider StatsProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		proxyHandler:  NewProxyHandler(proxy, log),
		viewsHandler:  NewViewsHandler(views),
		log:           log,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	handle := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(AccessLogMiddleware(MetricsMiddleware(h, endpoint), s.log)))
	}

	handle("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	handle("GET /metrics", "metrics", s.healthHandler.HandleMetrics)
	handle("GET /stats", "stats", s.statsHandler.HandleStats)

	for _, rt := range proxyRoutes {
		handle(rt.pattern, rt.name, s.proxyHandler.Handle(rt))
	}

	handle("GET /api/v1/views/rankings", "view_rankings", s.viewsHandler.HandleRankings)
	handle("GET /api/v1/views/rankings/table", "view_rankings_table", s.viewsHandler.HandleRankingsTable)
	handle("GET /api/v1/views/rounds/{roundId}", "view_round", s.viewsHandler.HandleRound)
	handle("GET /api/v1/views/rounds/{roundId}/series/{seriesId}/chart", "view_chart", s.viewsHandler.HandleChart)
	handle("GET /api/v1/views/definitions/{definitionId}/rounds", "view_definition_rounds", s.viewsHandler.HandleDefinitionRounds)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error          string `json:"error"`
	Details        string `json:"details,omitempty"`
	ExternalStatus int    `json:"externalStatus,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body errorResponse) {
	writeJSON(w, status, body)
}

// statusOf maps an error from the service or the upstream client to an HTTP
// status and body. resource names what was being fetched.
func statusOf(err error, resource string) (int, errorResponse) {
	var se *upstream.StatusError
	switch {
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrMissingArg), errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrNoCalculationDay):
		return http.StatusBadRequest, errorResponse{Error: message(err)}
	case errors.Is(err, service.ErrRoundNotStarted):
		return http.StatusConflict, errorResponse{Error: "Round has not started yet"}
	case errors.Is(err, service.ErrSeriesNotFound):
		return http.StatusNotFound, errorResponse{Error: "Series not found"}
	case errors.As(err, &se):
		return se.StatusCode, errorResponse{
			Error:          "Failed to fetch " + resource,
			Details:        string(se.Body),
			ExternalStatus: se.StatusCode,
		}
	case errors.Is(err, upstream.ErrContractViolation), errors.Is(err, service.ErrMissingTimeRange):
		return http.StatusBadGateway, errorResponse{Error: "upstream contract violation"}
	case errors.Is(err, upstream.ErrTransport):
		return http.StatusBadGateway, errorResponse{Error: "Upstream request failed", Details: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorResponse{Error: "Request cancelled"}
	case errors.Is(err, viewcache.ErrFetchFailed):
		return http.StatusBadGateway, errorResponse{Error: "Failed to fetch " + resource}
	}
	return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
}

// message returns the client-facing text of an input error.
func message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
