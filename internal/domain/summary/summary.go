// Package summary aggregates stored evaluations for the admin dashboard.
package summary

import (
	"github.com/okian/certifica/internal/domain/certification"
	"github.com/okian/certifica/internal/domain/model"
)

// TierCount is the number of completed evaluations denormalized to a tier.
type TierCount struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Count int    `json:"count"`
}

// Summary is the dashboard view over a set of evaluations.
type Summary struct {
	TotalEvaluations     int            `json:"total_evaluations"`
	CompletedEvaluations int            `json:"completed_evaluations"`
	DraftEvaluations     int            `json:"draft_evaluations"`
	AverageScore         float64        `json:"average_score"` // completed only, 0-1000
	Distribution         []TierCount    `json:"distribution"`  // tier order, completed only
	Uncategorized        int            `json:"uncategorized"`
	Academies            map[string]int `json:"academies_by_category"` // latest completed evaluation per academy
}

// Summarize builds the dashboard summary. Evaluations are expected in
// ascending date order; the last completed one per academy wins.
func Summarize(evaluations []model.Evaluation) Summary {
	s := Summary{
		TotalEvaluations: len(evaluations),
		Academies:        make(map[string]int),
	}

	counts := make(map[string]int)
	latest := make(map[string]string)
	var sum float64
	for _, e := range evaluations {
		switch e.Status {
		case model.StatusCompleted:
		case model.StatusDraft:
			s.DraftEvaluations++
			continue
		default:
			continue
		}
		s.CompletedEvaluations++
		sum += e.TotalScore
		if e.Category == "" {
			s.Uncategorized++
		} else {
			counts[e.Category]++
		}
		if e.AcademyID != "" && e.Category != "" {
			latest[e.AcademyID] = e.Category
		}
	}
	if s.CompletedEvaluations > 0 {
		s.AverageScore = sum / float64(s.CompletedEvaluations)
	}

	for _, t := range certification.Tiers() {
		s.Distribution = append(s.Distribution, TierCount{Name: t.Name, Level: t.Level, Count: counts[t.Name]})
		delete(counts, t.Name)
	}
	// Labels from a retired tier table still show up as uncategorized.
	for _, n := range counts {
		s.Uncategorized += n
	}
	for _, name := range latest {
		s.Academies[name]++
	}
	return s
}
