package loadtest

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	service "github.com/okian/certifica/internal/app"
	"github.com/okian/certifica/internal/domain/model"
)

const randomFloatDivisor = 1000000

// profile is the share of each KPI's max score an academy tends to reach.
type profile struct {
	name   string
	min    float64
	spread float64
}

// profiles spread academies over every certification tier.
var profiles = []profile{
	{name: "elite", min: 0.85, spread: 0.15},
	{name: "advanced", min: 0.65, spread: 0.2},
	{name: "basic", min: 0.45, spread: 0.2},
	{name: "pre", min: 0.3, spread: 0.15},
	{name: "low", min: 0, spread: 0.3},
}

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateSubmissions builds cfg.Evaluations submissions over the taxonomy.
// Academies keep one profile for the whole run.
func generateSubmissions(cfg *Config, tax *model.Taxonomy, now time.Time) ([]service.Submission, error) {
	kpis := tax.AllKPIs()
	if len(kpis) == 0 {
		return nil, fmt.Errorf("taxonomy has no KPIs")
	}
	academies := cfg.Academies
	if academies < 1 {
		academies = 1
	}
	academyIDs := make([]string, academies)
	for i := range academyIDs {
		academyIDs[i] = uuid.NewString()
	}
	evaluatorID := uuid.NewString()

	subs := make([]service.Submission, cfg.Evaluations)
	for i := range subs {
		a := i % academies
		p := profiles[a%len(profiles)]
		status := model.StatusCompleted
		if getRandomFloat() < cfg.DraftRatio {
			status = model.StatusDraft
		}
		scores := make([]model.ScoreEntry, 0, len(kpis))
		for _, k := range kpis {
			scores = append(scores, model.ScoreEntry{KPIID: k.ID, Score: drawScore(p, k.MaxScore)})
		}
		subs[i] = service.Submission{
			AcademyID:   academyIDs[a],
			EvaluatorID: evaluatorID,
			Date:        now.Add(time.Duration(i) * time.Second).UTC(),
			Status:      status,
			Notes:       "load test " + p.name,
			Scores:      scores,
		}
	}
	return subs, nil
}

// drawScore returns a whole score within [0, maxScore] for the profile.
func drawScore(p profile, maxScore float64) float64 {
	share := math.Min(1, p.min+p.spread*getRandomFloat())
	return math.Round(share * maxScore)
}
