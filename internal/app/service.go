// Package service assembles the dashboard views on top of the benchmark API.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/tsarena/internal/adapters/upstream"
	"github.com/okian/tsarena/internal/adapters/viewcache"
	"github.com/okian/tsarena/internal/domain/chart"
	"github.com/okian/tsarena/internal/domain/pagination"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
	"github.com/okian/tsarena/pkg/metrics"
)

// Upstream is the subset of the benchmark API the views read from.
type Upstream interface {
	Round(ctx context.Context, roundID string) (types.Round, error)
	RoundSeries(ctx context.Context, roundID string) ([]types.Series, error)
	SeriesData(ctx context.Context, roundID, seriesID, start, end string) (types.TimeSeriesData, error)
	SeriesForecasts(ctx context.Context, roundID, seriesID string) (types.ForecastsResponse, error)
	RoundModels(ctx context.Context, roundID string) ([]types.Model, error)
	RoundLeaderboard(ctx context.Context, roundID string) ([]types.LeaderboardEntry, error)
	Rankings(ctx context.Context, q upstream.RankingsQuery) (types.RankingsResponse, error)
	RankingFilters(ctx context.Context) (types.RankingFilterOptions, error)
	DefinitionRounds(ctx context.Context, definitionID string, q upstream.DefinitionRoundsQuery) (types.DefinitionRoundsResponse, error)
}

// Service builds the dashboard views.
type Service struct {
	mu sync.RWMutex

	up Upstream

	// Configuration
	fanout        int
	pageSize      int
	visible       int
	rankingsLimit int
	cacheSize     int
	cacheTTL      time.Duration
	viewTimeout   time.Duration

	// Lazily loaded per-entity data
	series *viewcache.Cache[seriesBundle]
	models *viewcache.Cache[[]types.Model]

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithUpstream sets the benchmark API client.
func WithUpstream(up Upstream) Option {
	return func(s *Service) {
		if up != nil {
			s.up = up
		}
	}
}

// WithFanoutLimit bounds the concurrent upstream calls of one view.
func WithFanoutLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanout = n
		}
	}
}

// WithPageSize sets the page size of paged tables.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithVisibleForecasts sets how many forecast traces a chart shows by default.
func WithVisibleForecasts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.visible = n
		}
	}
}

// WithRankingsLimit sets the limit sent with ranking requests.
func WithRankingsLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankingsLimit = n
		}
	}
}

// WithViewCache sizes the lazily loaded chart data.
func WithViewCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		if size > 0 {
			s.cacheSize = size
		}
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithViewTimeout bounds the whole assembly of one view, including every
// sequential upstream call it makes. Zero leaves only the caller's deadline.
func WithViewTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.viewTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		fanout:        8,
		pageSize:      pagination.DefaultPageSize,
		visible:       chart.DefaultVisible,
		rankingsLimit: 100,
		cacheSize:     viewcache.DefaultSize,
		cacheTTL:      viewcache.DefaultTTL,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	s.series = viewcache.New[seriesBundle]("series",
		viewcache.WithSize(s.cacheSize), viewcache.WithTTL(s.cacheTTL))
	s.models = viewcache.New[[]types.Model]("models",
		viewcache.WithSize(s.cacheSize), viewcache.WithTTL(s.cacheTTL))

	return s
}

// Start checks the wiring and marks the service ready.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.up == nil {
		return ErrNoUpstream
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "dashboard service started",
		logger.Int("fanout", s.fanout),
		logger.Int("pageSize", s.pageSize),
		logger.Int("cacheSize", s.cacheSize),
		logger.Duration("cacheTTL", s.cacheTTL))
	return nil
}

// Stop marks the service stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "dashboard service stopped")
}

// bound applies the view deadline to ctx.
func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.viewTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.viewTimeout)
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.logger == nil {
		return logger.Nop()
	}
	return s.logger
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"fanoutLimit":      s.fanout,
		"pageSize":         s.pageSize,
		"visibleForecasts": s.visible,
		"viewTimeoutMs":    s.viewTimeout.Milliseconds(),
		"seriesCached":     s.series.Len(),
		"modelsCached":     s.models.Len(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	}

	metrics.UpdateViewCacheEntries("series", s.series.Len())
	metrics.UpdateViewCacheEntries("models", s.models.Len())

	return stats
}

// SectionError is the failure of one independently fetched part of a view.
type SectionError struct {
	Message        string `json:"error"`
	ExternalStatus int    `json:"externalStatus,omitempty"`
}

// Section holds the data of one view part or why it failed.
type Section[T any] struct {
	Data  T             `json:"data"`
	Error *SectionError `json:"error,omitempty"`
}

func failed(resource string, err error) *SectionError {
	se := &SectionError{Message: "Failed to load " + resource}
	var st *upstream.StatusError
	if errors.As(err, &st) {
		se.ExternalStatus = st.StatusCode
	}
	return se
}

// observe records latency and fan-out of building view.
func observe(view string, start time.Time, calls int) {
	metrics.RecordViewBuildLatency(view, float64(time.Since(start).Milliseconds()))
	metrics.RecordFanoutRequests(view, calls)
}
