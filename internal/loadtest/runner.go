package loadtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/okian/certifica/internal/app"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/pkg/logger"
)

// Run constants.
const (
	reportInterval       = time.Second
	percentageMultiplier = 100
)

// ErrMismatch is returned when the service disagrees with the local scoring.
var ErrMismatch = errors.New("service results do not match local scoring")

var errNotSent = errors.New("not sent")

// Run executes a complete load test against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now(), ByTier: make(map[string]int)}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("evaluations", cfg.Evaluations),
		logger.Int("academies", cfg.Academies),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	// Step 1: Check service health
	if err := client.getJSON(ctx, "/stats", nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Load the taxonomy the service scores against
	var snap model.Snapshot
	if err := client.getJSON(ctx, "/taxonomy", &snap); err != nil {
		return stats, fmt.Errorf("taxonomy retrieval failed: %w", err)
	}
	tax := snap.Taxonomy()

	// Step 3: Generate submissions
	subs, err := generateSubmissions(cfg, tax, time.Now())
	if err != nil {
		return stats, fmt.Errorf("generation failed: %w", err)
	}
	stats.Generated = len(subs)

	// Step 4: Submit concurrently
	outcomes := submitEvaluations(ctx, log, client, cfg.Workers, subs)

	// Step 5: Verify totals and tiers
	verifySubmissions(ctx, log, cfg, tax, outcomes, stats)

	// Step 6: Cross-check the dashboard
	if err := verifyDashboard(ctx, log, client, outcomes); err != nil {
		log.Warn(ctx, "dashboard check failed", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.Mismatches > 0 {
		return stats, fmt.Errorf("%w: %d of %d", ErrMismatch, stats.Mismatches, stats.Submitted)
	}
	return stats, nil
}

// submitEvaluations posts every submission with a pool of workers. Outcomes
// keep the order of subs.
func submitEvaluations(ctx context.Context, log logger.Logger, client *httpClient, workers int, subs []service.Submission) []outcome {
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]outcome, len(subs))
	for i := range outcomes {
		outcomes[i] = outcome{sub: subs[i], err: errNotSent}
	}
	jobs := make(chan int, workers*2)

	var (
		submitted  int64
		lastReport atomic.Int64
		wg         sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o := outcome{sub: subs[i]}
				o.status, o.err = client.postJSON(ctx, "/evaluations", subs[i], &o.result)
				outcomes[i] = o

				n := atomic.AddInt64(&submitted, 1)
				now := time.Now().UnixNano()
				last := lastReport.Load()
				if time.Duration(now-last) >= reportInterval && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress", logger.Int("submitted", int(n)), logger.Int("total", len(subs)))
				}
			}
		}()
	}

feed:
	for i := range subs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes
}

// verifyDashboard checks that the dashboard counts at least the completed
// evaluations this run wrote through. A service without an evaluation reader
// is skipped.
func verifyDashboard(ctx context.Context, log logger.Logger, client *httpClient, outcomes []outcome) error {
	written := 0
	for _, o := range outcomes {
		if o.err == nil && !o.result.Queued && o.sub.Status == model.StatusCompleted {
			written++
		}
	}
	var s struct {
		CompletedEvaluations int `json:"completed_evaluations"`
	}
	if err := client.getJSON(ctx, "/dashboard", &s); err != nil {
		return err
	}
	if s.CompletedEvaluations < written {
		return fmt.Errorf("dashboard reports %d completed evaluations, %d were written", s.CompletedEvaluations, written)
	}
	log.Info(ctx, "dashboard consistent", logger.Int("completed", s.CompletedEvaluations), logger.Int("written", written))
	return nil
}

// displayFinalStats logs the final statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var successRate, perSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Written+stats.Queued) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("written", stats.Written),
		logger.Int("queued", stats.Queued),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("mismatches", stats.Mismatches),
		logger.Any("byTier", stats.ByTier),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("evaluationsPerSecond", perSecond))
}

func isRejected(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusUnprocessableEntity
}
