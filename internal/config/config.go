// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config holding the defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validate reports every invalid field wrapped in ErrInvalidConfig.
package config

import (
	"time"
)

// writeSlack is left between a handler deadline and the server write timeout.
const writeSlack = 10 * time.Second

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// UpstreamBaseURL is the benchmark API the dashboard fronts.
	UpstreamBaseURL string `koanf:"upstream_base_url" validate:"required,http_url"`

	// UpstreamAPIKey is sent as X-API-Key on every outbound request.
	UpstreamAPIKey string `koanf:"upstream_api_key"`

	// UpstreamTimeoutMS bounds one outbound request.
	UpstreamTimeoutMS int `koanf:"upstream_timeout_ms" validate:"gt=0"`

	// ViewTimeoutMS bounds one view request across all of its upstream calls.
	ViewTimeoutMS int `koanf:"view_timeout_ms" validate:"gt=0"`

	// FanoutLimit caps concurrent upstream calls of one view request.
	FanoutLimit int `koanf:"fanout_limit" validate:"gt=0"`

	// ViewCacheSize and ViewCacheTTLMS bound the lazily loaded chart data.
	ViewCacheSize  int `koanf:"view_cache_size" validate:"gt=0"`
	ViewCacheTTLMS int `koanf:"view_cache_ttl_ms" validate:"gte=0"`

	// PageSize is the page size of leaderboard and rankings tables.
	PageSize int `koanf:"page_size" validate:"gt=0"`

	// VisibleForecasts is how many forecasts a chart shows before the rest are hidden.
	VisibleForecasts int `koanf:"visible_forecasts" validate:"gt=0"`

	// RankingsLimit is the limit sent with rankings requests.
	RankingsLimit int `koanf:"rankings_limit" validate:"gt=0"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		UpstreamBaseURL:   "http://localhost:8000",
		UpstreamTimeoutMS: 30_000,
		ViewTimeoutMS:     45_000,
		FanoutLimit:       8,
		ViewCacheSize:     512,
		ViewCacheTTLMS:    300_000,
		PageSize:          10,
		VisibleForecasts:  3,
		RankingsLimit:     100,
	}
}

// UpstreamTimeout returns UpstreamTimeoutMS as a duration.
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutMS) * time.Millisecond
}

// ViewTimeout returns ViewTimeoutMS as a duration.
func (c *Config) ViewTimeout() time.Duration {
	return time.Duration(c.ViewTimeoutMS) * time.Millisecond
}

// WriteTimeout is how long the server may take to answer one request: the
// longest handler deadline plus slack to write the response.
func (c *Config) WriteTimeout() time.Duration {
	return max(c.UpstreamTimeout(), c.ViewTimeout()) + writeSlack
}

// ViewCacheTTL returns ViewCacheTTLMS as a duration. Zero disables expiry.
func (c *Config) ViewCacheTTL() time.Duration {
	return time.Duration(c.ViewCacheTTLMS) * time.Millisecond
}
