package smoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	service "github.com/okian/tsarena/internal/app"
	"github.com/okian/tsarena/internal/domain/types"
	"github.com/okian/tsarena/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// ErrChecksFailed is returned when at least one request or check failed.
var ErrChecksFailed = errors.New("smoke checks failed")

// Run crawls a running dashboard and verifies its views.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting dashboard smoke run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("definitions", config.Definitions),
		logger.Int("rounds", config.Rounds),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout))

	d, err := newDashboard(config)
	if err != nil {
		return nil, err
	}

	// Step 1: Check service health
	if err := d.health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Rankings overview
	var overview service.RankingsOverview
	_ = d.get(ctx, "/api/v1/views/rankings", &overview)

	// Step 3: Definitions and their rounds
	var defs []types.ChallengeDefinition
	if err := d.get(ctx, "/api/v1/definitions", &defs); err != nil {
		return nil, fmt.Errorf("definitions: %w", err)
	}
	if config.Definitions > 0 && len(defs) > config.Definitions {
		defs = defs[:config.Definitions]
	}
	stats.Definitions = len(defs)
	rounds := collectRounds(ctx, d, defs, config.Rounds)

	// Step 4: Round views
	stats.RoundsChecked = d.checkRounds(ctx, config, rounds)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	stats.Requests = int(d.requests.Load())
	stats.Succeeded = int(d.succeeded.Load())
	d.mu.Lock()
	stats.Failures = append([]Failure(nil), d.failures...)
	d.mu.Unlock()
	stats.Failed = len(stats.Failures)

	if config.ReportFile != "" {
		if err := saveReport(ctx, config.ReportFile, stats); err != nil {
			logger.Get().Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	displayFinalStats(ctx, stats)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%w: %d of %d", ErrChecksFailed, stats.Failed, stats.Requests)
	}
	logger.Get().Info(ctx, "smoke run completed successfully")
	return stats, nil
}

// collectRounds lists the rounds of every definition, up to limit in total.
func collectRounds(ctx context.Context, d *dashboard, defs []types.ChallengeDefinition, limit int) []RoundRef {
	var out []RoundRef
	for _, def := range defs {
		var view service.DefinitionRoundsView
		if err := d.get(ctx, "/api/v1/views/definitions/"+strconv.Itoa(def.ID)+"/rounds", &view); err != nil {
			continue
		}
		for _, grp := range view.Groups {
			for _, r := range grp.Items.Data {
				if limit > 0 && len(out) >= limit {
					return out
				}
				out = append(out, RoundRef{DefinitionID: def.ID, RoundID: r.ID, Status: grp.Status})
			}
		}
	}
	return out
}

// saveReport writes stats as indented JSON.
func saveReport(ctx context.Context, filename string, stats *Stats) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Get().Info(ctx, "report saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, requestsPerSecond float64

	if stats.Requests > 0 {
		successRate = float64(stats.Succeeded) / float64(stats.Requests) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		requestsPerSecond = float64(stats.Requests) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.String("requests", humanize.Comma(int64(stats.Requests))),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("definitions", stats.Definitions),
		logger.Int("roundsChecked", stats.RoundsChecked),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("requestsPerSecond", requestsPerSecond))

	for _, f := range stats.Failures {
		logger.Get().Warn(ctx, "check failed", logger.String("target", f.Target), logger.String("reason", f.Reason))
	}
}
