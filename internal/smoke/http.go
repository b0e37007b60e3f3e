package smoke

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tsarena/internal/adapters/upstream"
	service "github.com/okian/tsarena/internal/app"
	"github.com/okian/tsarena/pkg/logger"
)

const endpointSmoke = "smoke"

// dashboard issues checked requests against a running dashboard and counts them.
type dashboard struct {
	client *upstream.Client

	requests  atomic.Int64
	succeeded atomic.Int64

	mu       sync.Mutex
	failures []Failure
}

func newDashboard(cfg *Config) (*dashboard, error) {
	client, err := upstream.New(cfg.BaseURL, "",
		upstream.WithTimeout(cfg.Timeout),
		upstream.WithUserAgent("tsarena-smoke"),
	)
	if err != nil {
		return nil, err
	}
	return &dashboard{client: client}, nil
}

// get decodes the JSON answer of path into out and records the outcome.
func (d *dashboard) get(ctx context.Context, path string, out any) error {
	d.requests.Add(1)
	if err := d.client.GetJSON(ctx, endpointSmoke, path, nil, out); err != nil {
		d.fail(path, err.Error())
		return err
	}
	d.succeeded.Add(1)
	return nil
}

// health checks the liveness endpoint. Any 200 answer is healthy.
func (d *dashboard) health(ctx context.Context) error {
	d.requests.Add(1)
	resp, err := d.client.Get(ctx, endpointSmoke, "/healthz", nil)
	if err != nil {
		d.fail("/healthz", err.Error())
		return err
	}
	if !resp.OK() {
		d.fail("/healthz", fmt.Sprintf("status %d", resp.StatusCode))
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}
	d.succeeded.Add(1)
	return nil
}

func (d *dashboard) fail(target, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, Failure{Target: target, Reason: reason})
}

// checkRounds requests the view of every round with a pool of workers and
// verifies each one.
func (d *dashboard) checkRounds(ctx context.Context, cfg *Config, rounds []RoundRef) int {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	var (
		checked atomic.Int64
		wg      sync.WaitGroup
	)
	refs := make(chan RoundRef, workers*WorkerChannelMultiplier)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range refs {
				if ctx.Err() != nil {
					continue
				}
				start := time.Now()
				target := fmt.Sprintf("/api/v1/views/rounds/%d", ref.RoundID)
				var view service.RoundView
				if err := d.get(ctx, target, &view); err != nil {
					continue
				}
				checked.Add(1)
				if err := verifyRoundView(ref, view); err != nil {
					d.fail(target, err.Error())
					continue
				}
				if cfg.Verbose {
					logger.Get().Info(ctx, "round view ok",
						logger.Int("round", ref.RoundID),
						logger.String("status", string(ref.Status)),
						logger.Duration("latency", time.Since(start)))
				}
			}
		}()
	}

	go func() {
		defer close(refs)
		for _, ref := range rounds {
			select {
			case <-ctx.Done():
				return
			case refs <- ref:
			}
		}
	}()

	wg.Wait()
	return int(checked.Load())
}
