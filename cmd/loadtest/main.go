package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/certifica/internal/loadtest"
	"github.com/okian/certifica/pkg/logger"
)

// Default configuration constants.
const (
	defaultEvaluations = 1000
	defaultAcademies   = 50
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultDraftRatio  = 0.1
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		evaluations = flag.Int("evaluations", defaultEvaluations, "Number of evaluations to submit")
		academies   = flag.Int("academies", defaultAcademies, "Number of distinct academies")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		draftRatio  = flag.Float64("drafts", defaultDraftRatio, "Share of submissions sent as drafts")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Log every mismatch")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &loadtest.Config{
		BaseURL:     *baseURL,
		Evaluations: *evaluations,
		Academies:   *academies,
		Workers:     *workers,
		Timeout:     *timeout,
		DraftRatio:  *draftRatio,
		Verbose:     *verbose,
	}
	if _, err := loadtest.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("load test failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
