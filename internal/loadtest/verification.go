package loadtest

import (
	"context"

	"github.com/okian/certifica/internal/domain/certification"
	"github.com/okian/certifica/internal/domain/model"
	"github.com/okian/certifica/internal/domain/scoring"
	"github.com/okian/certifica/pkg/logger"
)

// verifySubmissions recomputes every accepted submission locally and counts
// disagreements on the total, the tier or the denormalized category.
func verifySubmissions(ctx context.Context, log logger.Logger, cfg *Config, tax *model.Taxonomy, outcomes []outcome, stats *Stats) {
	engine := scoring.NewEngine(tax)
	for _, o := range outcomes {
		if o.status == 0 && o.err != nil {
			stats.Failed++
			continue
		}
		stats.Submitted++
		switch {
		case o.err != nil && isRejected(o.status):
			stats.Rejected++
			continue
		case o.err != nil:
			stats.Failed++
			continue
		case o.result.Queued:
			stats.Queued++
		default:
			stats.Written++
		}

		want, err := engine.FinalScore(o.sub.Scores)
		if err != nil {
			stats.Mismatches++
			log.Warn(ctx, "service accepted a submission that fails local validation", logger.Error(err))
			continue
		}
		tier := certification.Classify(want)
		got := o.result
		stats.ByTier[got.Tier.Name]++
		if got.Evaluation.TotalScore == want && got.Tier.Name == tier.Name && got.Evaluation.Category == tier.Name {
			continue
		}
		stats.Mismatches++
		if cfg.Verbose {
			log.Warn(ctx, "mismatch",
				logger.String("evaluationID", got.Evaluation.ID),
				logger.Float64("wantTotal", want),
				logger.Float64("gotTotal", got.Evaluation.TotalScore),
				logger.String("wantTier", tier.Name),
				logger.String("gotTier", got.Tier.Name))
		}
	}
}
