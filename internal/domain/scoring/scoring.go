// Package scoring aggregates per-criterion scores into category and overall scores.
//
// Two scales are in play. Progress and per-category achievement are
// percentages (0-100). The persisted total lives on the 0-1000 certification
// scale; ToCertificationScale is the only place that converts between them.
package scoring

import (
	"fmt"
	"math"

	"github.com/okian/certifica/internal/domain/model"
)

// Scale constants.
const (
	// PercentScale is the top of category and progress percentages.
	PercentScale = 100
	// CertificationScale is the top of the persisted total score.
	CertificationScale = 1000
	// progressPointsPerKPI is the denominator per KPI used by live progress,
	// matching the 0-10 entry range of the evaluation form.
	progressPointsPerKPI = 10
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithProgressPointsPerKPI overrides the per-KPI denominator used by live progress.
func WithProgressPointsPerKPI(points float64) Option {
	return func(e *Engine) {
		if points > 0 {
			e.progressPoints = points
		}
	}
}

// Engine scores entries against a fixed taxonomy snapshot.
type Engine struct {
	taxonomy       *model.Taxonomy
	progressPoints float64
}

// NewEngine creates an engine for the given taxonomy snapshot.
func NewEngine(taxonomy *model.Taxonomy, opts ...Option) *Engine {
	if taxonomy == nil {
		taxonomy = model.NewTaxonomy(nil, nil)
	}
	e := &Engine{
		taxonomy:       taxonomy,
		progressPoints: progressPointsPerKPI,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Taxonomy returns the snapshot the engine scores against.
func (e *Engine) Taxonomy() *model.Taxonomy {
	return e.taxonomy
}

// CategoryBreakdown is the per-category view of a set of entries.
type CategoryBreakdown struct {
	CategoryID  string  `json:"category_id"`
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Progress    int     `json:"progress"`    // live, 0-100
	Achievement float64 `json:"achievement"` // sum / sum of max, 0-100
	Scored      int     `json:"scored"`
	KPIs        int     `json:"kpis"`
}

// CategoryProgress returns sum(scores) / (KPIs * 10) as a rounded percentage.
// Categories without KPIs report 0.
func (e *Engine) CategoryProgress(categoryID string, entries []model.ScoreEntry) int {
	return e.categoryProgress(categoryID, index(entries))
}

func (e *Engine) categoryProgress(categoryID string, scores map[string]float64) int {
	kpis := e.taxonomy.KPIs(categoryID)
	if len(kpis) == 0 {
		return 0
	}
	var sum float64
	for _, k := range kpis {
		sum += scores[k.ID]
	}
	return roundHalfUp(sum * PercentScale / (float64(len(kpis)) * e.progressPoints))
}

// OverallProgress returns round(sum(CategoryProgress * weight / 100)).
// It is a live 0-100 indicator, not the persisted total.
func (e *Engine) OverallProgress(entries []model.ScoreEntry) int {
	cats := e.taxonomy.Categories()
	if len(cats) == 0 {
		return 0
	}
	scores := index(entries)
	var weighted float64
	for _, c := range cats {
		weighted += float64(e.categoryProgress(c.ID, scores)) * c.Weight / PercentScale
	}
	return roundHalfUp(weighted)
}

// Breakdown returns progress and achievement for every category in display order.
func (e *Engine) Breakdown(entries []model.ScoreEntry) []CategoryBreakdown {
	scores := index(entries)
	cats := e.taxonomy.Categories()
	out := make([]CategoryBreakdown, 0, len(cats))
	for _, c := range cats {
		b := CategoryBreakdown{
			CategoryID:  c.ID,
			Name:        c.Name,
			Weight:      c.Weight,
			Progress:    e.categoryProgress(c.ID, scores),
			Achievement: e.achievement(c.ID, scores),
		}
		for _, k := range e.taxonomy.KPIs(c.ID) {
			b.KPIs++
			if _, ok := scores[k.ID]; ok {
				b.Scored++
			}
		}
		out = append(out, b)
	}
	return out
}

// achievement is sum(scores) / sum(max_score) as a 0-100 percentage.
func (e *Engine) achievement(categoryID string, scores map[string]float64) float64 {
	var sum, maxSum float64
	for _, k := range e.taxonomy.KPIs(categoryID) {
		sum += scores[k.ID]
		maxSum += k.MaxScore
	}
	if maxSum == 0 {
		return 0
	}
	return math.Min(PercentScale, sum*PercentScale/maxSum)
}

// WeightedPercent returns the weighted 0-100 score: the sum over categories of
// achievement * weight / 100. Weights are applied as authored.
func (e *Engine) WeightedPercent(entries []model.ScoreEntry) (float64, error) {
	if err := e.Validate(entries); err != nil {
		return 0, err
	}
	scores := index(entries)
	var weighted float64
	for _, c := range e.taxonomy.Categories() {
		weighted += e.achievement(c.ID, scores) * c.Weight / PercentScale
	}
	return weighted, nil
}

// FinalScore validates the entries and returns the total on the 0-1000 scale.
// KPIs without an entry count as 0.
func (e *Engine) FinalScore(entries []model.ScoreEntry) (float64, error) {
	weighted, err := e.WeightedPercent(entries)
	if err != nil {
		return 0, err
	}
	return ToCertificationScale(weighted), nil
}

// ToCertificationScale maps a 0-100 weighted percentage onto the 0-1000 scale,
// rounded to a whole point.
func ToCertificationScale(percent float64) float64 {
	return math.Floor(percent*(CertificationScale/PercentScale) + 0.5)
}

// Validate rejects entries for unknown KPIs, duplicate entries and scores
// outside [0, max_score].
func (e *Engine) Validate(entries []model.ScoreEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for _, en := range entries {
		if _, dup := seen[en.KPIID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, en.KPIID)
		}
		seen[en.KPIID] = struct{}{}
		if err := e.ValidateScore(en.KPIID, en.Score); err != nil {
			return err
		}
	}
	return nil
}

// ValidateScore checks a single assignment.
func (e *Engine) ValidateScore(kpiID string, score float64) error {
	k, ok := e.taxonomy.KPI(kpiID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKPI, kpiID)
	}
	if math.IsNaN(score) || score < 0 || score > k.MaxScore {
		return fmt.Errorf("%w: kpi %s score %g not in [0, %g]", ErrScoreOutOfRange, kpiID, score, k.MaxScore)
	}
	return nil
}

func index(entries []model.ScoreEntry) map[string]float64 {
	m := make(map[string]float64, len(entries))
	for _, en := range entries {
		m[en.KPIID] = en.Score
	}
	return m
}

// roundHalfUp rounds non-negative values the way the evaluation form does.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
