package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/tsarena/pkg/logger"
	"github.com/okian/tsarena/pkg/metrics"
)

// idKind says how a path identifier is validated.
type idKind int

const (
	// segmentID must be present and not the literal "undefined".
	segmentID idKind = iota
	// numericID must parse as an integer.
	numericID
)

// queryParam allow-lists one inbound query key.
type queryParam struct {
	name   string
	target string // downstream key when renamed
	multi  bool   // forward every value
	drop   string // value that is not forwarded
}

// proxyRoute is one forwarded endpoint. The downstream path equals the
// inbound path with each identifier path-escaped.
type proxyRoute struct {
	name     string
	pattern  string
	resource string
	ids      []string
	kind     idKind
	invalid  string
	query    []queryParam
	required []string
}

var proxyRoutes = []proxyRoute{
	{
		name:     "rounds",
		pattern:  "GET /api/v1/rounds",
		resource: "rounds",
		query: []queryParam{
			{name: "domain", multi: true},
			{name: "category", multi: true},
			{name: "frequency", multi: true},
			{name: "horizon", multi: true},
			{name: "from"},
			{name: "to"},
			{name: "status", drop: "all"},
			{name: "search"},
		},
	},
	{name: "rounds_metadata", pattern: "GET /api/v1/rounds/metadata", resource: "rounds metadata"},
	{
		name:     "round",
		pattern:  "GET /api/v1/rounds/{roundId}",
		resource: "round",
		ids:      []string{"roundId"},
		invalid:  "Invalid round ID",
	},
	{
		name:     "round_series",
		pattern:  "GET /api/v1/rounds/{roundId}/series",
		resource: "round series",
		ids:      []string{"roundId"},
		invalid:  "Invalid round ID",
	},
	{
		name:     "series_data",
		pattern:  "GET /api/v1/rounds/{roundId}/series/{seriesId}/data",
		resource: "series data",
		ids:      []string{"roundId", "seriesId"},
		invalid:  "Invalid round ID or series ID",
		query:    []queryParam{{name: "start_time"}, {name: "end_time"}},
		required: []string{"start_time", "end_time"},
	},
	{
		name:     "series_forecasts",
		pattern:  "GET /api/v1/rounds/{roundId}/series/{seriesId}/forecasts",
		resource: "forecasts",
		ids:      []string{"roundId", "seriesId"},
		invalid:  "Invalid round ID or series ID",
	},
	{
		name:     "round_models",
		pattern:  "GET /api/v1/rounds/{roundId}/models",
		resource: "models for round",
		ids:      []string{"roundId"},
		invalid:  "Invalid round ID",
	},
	{
		name:     "round_leaderboard",
		pattern:  "GET /api/v1/rounds/{roundId}/leaderboard",
		resource: "leaderboard",
		ids:      []string{"roundId"},
		invalid:  "Invalid round ID",
	},
	{name: "definitions", pattern: "GET /api/v1/definitions", resource: "definitions"},
	{
		name:     "definition_rounds",
		pattern:  "GET /api/v1/definitions/{definitionId}/rounds",
		resource: "rounds for definition",
		ids:      []string{"definitionId"},
		invalid:  "Invalid definition ID",
		query:    []queryParam{{name: "page"}, {name: "page_size"}, {name: "status"}},
	},
	{
		name:     "rankings",
		pattern:  "GET /api/v1/models/rankings",
		resource: "rankings",
		query: []queryParam{
			{name: "definition_id"},
			{name: "frequency_horizon"},
			{name: "calculation_date"},
			{name: "limit"},
		},
	},
	{name: "ranking_filters", pattern: "GET /api/v1/models/ranking-filters", resource: "ranking filters"},
	{
		name:     "model",
		pattern:  "GET /api/v1/models/{modelId}",
		resource: "model details",
		ids:      []string{"modelId"},
		kind:     numericID,
		invalid:  "Invalid model ID",
	},
	{
		name:     "model_rankings",
		pattern:  "GET /api/v1/models/{modelId}/rankings",
		resource: "model rankings",
		ids:      []string{"modelId"},
		kind:     numericID,
		invalid:  "Invalid model ID",
	},
	{
		name:     "model_series",
		pattern:  "GET /api/v1/models/{modelId}/series-by-definition",
		resource: "series by definition",
		ids:      []string{"modelId"},
		kind:     numericID,
		invalid:  "Invalid model ID",
	},
	{
		name:     "model_forecasts",
		pattern:  "GET /api/v1/models/{modelId}/definitions/{definitionId}/series/{seriesId}/forecasts",
		resource: "forecasts",
		ids:      []string{"modelId", "definitionId", "seriesId"},
		kind:     numericID,
		invalid:  "Invalid model ID, definition ID, or series ID",
		query: []queryParam{
			{name: "start_date", target: "start_time"},
			{name: "end_date", target: "end_time"},
		},
	},
}

// ProxyHandler forwards allow-listed GET requests to the benchmark API.
type ProxyHandler struct {
	proxy Proxy
	log   logger.Logger
}

// NewProxyHandler creates a proxy handler.
func NewProxyHandler(proxy Proxy, log logger.Logger) *ProxyHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ProxyHandler{proxy: proxy, log: log}
}

// Handle returns the handler of rt.
func (h *ProxyHandler) Handle(rt proxyRoute) http.HandlerFunc {
	op := "api.proxy." + rt.name
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := rt.path(r)
		if err != nil {
			h.fail(w, r, op, rt, WrapKind(op, ErrInvalidID, err))
			return
		}
		query, err := rt.values(r.URL.Query())
		if err != nil {
			h.fail(w, r, op, rt, WrapKind(op, ErrMissingArg, err))
			return
		}

		resp, err := h.proxy.Get(r.Context(), rt.name, path, query)
		if err != nil {
			h.fail(w, r, op, rt, Wrap(op, err))
			return
		}
		if !resp.OK() {
			h.log.Warn(r.Context(), "upstream returned error status",
				logger.String("route", rt.name),
				logger.Int("status", resp.StatusCode))
			writeError(w, resp.StatusCode, errorResponse{
				Error:          "Failed to fetch " + rt.resource,
				Details:        string(resp.Body),
				ExternalStatus: resp.StatusCode,
			})
			return
		}
		if !json.Valid(resp.Body) {
			metrics.RecordUpstreamError("contract")
			h.log.Warn(r.Context(), "upstream returned invalid JSON", logger.String("route", rt.name))
			writeError(w, http.StatusBadGateway, errorResponse{Error: "upstream contract violation"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}

func (h *ProxyHandler) fail(w http.ResponseWriter, r *http.Request, op string, rt proxyRoute, err error) {
	status, body := statusOf(err, rt.resource)
	if status >= http.StatusInternalServerError {
		h.log.Warn(r.Context(), "proxy request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, body)
}

// path validates the identifiers of r and builds the downstream path.
func (rt proxyRoute) path(r *http.Request) (string, error) {
	p := strings.TrimPrefix(rt.pattern, "GET ")
	for _, name := range rt.ids {
		v, ok := canonicalID(r.PathValue(name), rt.kind)
		if !ok {
			return "", errors.New(rt.invalid)
		}
		p = strings.Replace(p, "{"+name+"}", url.PathEscape(v), 1)
	}
	return p, nil
}

func validID(v string, kind idKind) bool {
	_, ok := canonicalID(v, kind)
	return ok
}

// canonicalID validates v. Numeric ids are forwarded in their parsed form,
// so "007" and "+5" reach the benchmark API as "7" and "5".
func canonicalID(v string, kind idKind) (string, bool) {
	if v == "" || v == "undefined" {
		return "", false
	}
	if kind == numericID {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", false
		}
		return strconv.Itoa(n), true
	}
	return v, true
}

// values copies the allow-listed keys of in and checks required ones.
func (rt proxyRoute) values(in url.Values) (url.Values, error) {
	for _, name := range rt.required {
		if in.Get(name) == "" {
			return nil, errors.New(requiredMessage(rt.required))
		}
	}
	out := url.Values{}
	for _, q := range rt.query {
		target := q.name
		if q.target != "" {
			target = q.target
		}
		vals := in[q.name]
		if !q.multi && len(vals) > 1 {
			vals = vals[:1]
		}
		for _, v := range vals {
			if v == "" || (q.drop != "" && v == q.drop) {
				continue
			}
			out.Add(target, v)
		}
	}
	return out, nil
}

func requiredMessage(names []string) string {
	return strings.Join(names, " and ") + " query parameters are required"
}
