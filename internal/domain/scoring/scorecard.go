package scoring

import (
	"sync"

	"github.com/okian/certifica/internal/domain/model"
)

// Scorecard holds the entries of one evaluation session while it is being filled in.
type Scorecard struct {
	engine  *Engine
	mu      sync.RWMutex
	entries map[string]model.ScoreEntry
}

// NewScorecard creates an empty scorecard scored by e.
func (e *Engine) NewScorecard() *Scorecard {
	return &Scorecard{
		engine:  e,
		entries: make(map[string]model.ScoreEntry),
	}
}

// Set records a score for a KPI, replacing any previous one. Out-of-range
// scores are rejected and leave the card unchanged.
func (s *Scorecard) Set(kpiID string, score float64, comments string) error {
	if err := s.engine.ValidateScore(kpiID, score); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[kpiID] = model.ScoreEntry{KPIID: kpiID, Score: score, Comments: comments}
	s.mu.Unlock()
	return nil
}

// Unset drops the entry for a KPI.
func (s *Scorecard) Unset(kpiID string) {
	s.mu.Lock()
	delete(s.entries, kpiID)
	s.mu.Unlock()
}

// Entries returns the recorded entries in taxonomy order.
func (s *Scorecard) Entries() []model.ScoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScoreEntry, 0, len(s.entries))
	for _, k := range s.engine.taxonomy.AllKPIs() {
		if en, ok := s.entries[k.ID]; ok {
			out = append(out, en)
		}
	}
	return out
}

// Progress is the live overall progress of the card.
func (s *Scorecard) Progress() int {
	return s.engine.OverallProgress(s.Entries())
}

// FinalScore is the 0-1000 total of the card.
func (s *Scorecard) FinalScore() (float64, error) {
	return s.engine.FinalScore(s.Entries())
}
