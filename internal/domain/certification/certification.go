// Package certification maps a 0-1000 total score to a certification tier.
package certification

import "math"

// Score line bounds.
const (
	MinScore = 0
	MaxScore = 1000
)

// Tier is one certification band. Min and Max are inclusive whole points.
type Tier struct {
	Level    int     `json:"level"` // 1 is the top tier
	Name     string  `json:"name"`
	Label    string  `json:"label"`
	Min      float64 `json:"min_score"`
	Max      float64 `json:"max_score"`
	Benefits string  `json:"benefits"`
}

// Contains reports whether total falls in the band. Fractions above Max but
// below the next band's Min belong to this band.
func (t Tier) Contains(total float64) bool {
	return total >= t.Min && total < t.Max+1
}

// tiers are ordered top down and cover [0, 1000] without gaps.
var tiers = []Tier{
	{Level: 1, Name: "Categoría 1 (Elite)", Label: "Elite", Min: 850, Max: 1000, Benefits: "Certificación máxima + todos los beneficios"},
	{Level: 2, Name: "Categoría 2 (Avanzado)", Label: "Avanzado", Min: 650, Max: 849, Benefits: "Certificación intermedia + beneficios estándar"},
	{Level: 3, Name: "Categoría 3 (Básico)", Label: "Básico", Min: 450, Max: 649, Benefits: "Certificación básica + beneficios limitados"},
	{Level: 4, Name: "Pre-Certificación", Label: "Pre-Certificación", Min: 300, Max: 449, Benefits: "Plan de mejora obligatorio"},
	{Level: 5, Name: "No Certificable", Label: "No Certificable", Min: 0, Max: 299, Benefits: "Reestructuración requerida"},
}

// Tiers returns the tiers from highest to lowest.
func Tiers() []Tier {
	return append([]Tier(nil), tiers...)
}

// Lowest is the tier used for totals outside the score line.
func Lowest() Tier {
	return tiers[len(tiers)-1]
}

// InRange reports whether total lies on the [0, 1000] score line.
func InRange(total float64) bool {
	return !math.IsNaN(total) && total >= MinScore && total <= MaxScore
}

// Classify returns the tier containing total. It always returns a tier:
// totals outside [0, 1000] (or NaN) get the lowest one. Callers that need to
// tell those apart check InRange first.
func Classify(total float64) Tier {
	if !InRange(total) {
		return Lowest()
	}
	for _, t := range tiers {
		if total >= t.Min {
			return t
		}
	}
	return Lowest()
}

// ByName looks up a tier by its full name.
func ByName(name string) (Tier, bool) {
	for _, t := range tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}
