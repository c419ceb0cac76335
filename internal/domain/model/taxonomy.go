package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// weightTolerance absorbs float noise when summing authored weights.
const weightTolerance = 1e-6

// ErrWeightSum is returned by CheckWeights when category weights do not add up to 100.
var ErrWeightSum = errors.New("category weights do not sum to 100")

// Taxonomy is an immutable, ordered snapshot of categories and their KPIs.
type Taxonomy struct {
	categories []Category
	owned      map[string]bool  // category ids
	kpis       map[string][]KPI // by category id, ordered
	byID       map[string]KPI
}

// NewTaxonomy orders categories and KPIs by order_index (ties keep input order).
// KPIs without a max score get DefaultMaxScore.
func NewTaxonomy(categories []Category, kpis []KPI) *Taxonomy {
	t := &Taxonomy{
		categories: append([]Category(nil), categories...),
		owned:      make(map[string]bool, len(categories)),
		kpis:       make(map[string][]KPI, len(categories)),
		byID:       make(map[string]KPI, len(kpis)),
	}
	sort.SliceStable(t.categories, func(i, j int) bool {
		return t.categories[i].OrderIndex < t.categories[j].OrderIndex
	})
	for _, c := range t.categories {
		t.owned[c.ID] = true
	}

	ordered := append([]KPI(nil), kpis...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})
	for _, k := range ordered {
		if k.MaxScore <= 0 {
			k.MaxScore = DefaultMaxScore
		}
		t.kpis[k.CategoryID] = append(t.kpis[k.CategoryID], k)
		t.byID[k.ID] = k
	}
	return t
}

// Categories returns the categories in display order.
func (t *Taxonomy) Categories() []Category {
	return append([]Category(nil), t.categories...)
}

// KPIs returns the KPIs of a category in display order.
func (t *Taxonomy) KPIs(categoryID string) []KPI {
	return append([]KPI(nil), t.kpis[categoryID]...)
}

// AllKPIs returns every KPI, grouped by category in display order.
func (t *Taxonomy) AllKPIs() []KPI {
	out := make([]KPI, 0, len(t.byID))
	for _, c := range t.categories {
		out = append(out, t.kpis[c.ID]...)
	}
	return out
}

// KPI looks up a KPI that belongs to one of the taxonomy's categories.
func (t *Taxonomy) KPI(id string) (KPI, bool) {
	k, ok := t.byID[id]
	if !ok || !t.owned[k.CategoryID] {
		return KPI{}, false
	}
	return k, true
}

// TotalWeight sums the category weights.
func (t *Taxonomy) TotalWeight() float64 {
	var sum float64
	for _, c := range t.categories {
		sum += c.Weight
	}
	return sum
}

// CheckWeights reports whether the weights sum to 100. Scoring applies weights
// literally either way; this is an authoring check.
func (t *Taxonomy) CheckWeights() error {
	if sum := t.TotalWeight(); math.Abs(sum-100) > weightTolerance {
		return fmt.Errorf("%w: got %g", ErrWeightSum, sum)
	}
	return nil
}

// Snapshot is the serializable form of a taxonomy.
type Snapshot struct {
	Categories []Category `json:"categories"`
	KPIs       []KPI      `json:"kpis"`
}

// Snapshot returns the serializable form of the taxonomy.
func (t *Taxonomy) Snapshot() Snapshot {
	return Snapshot{Categories: t.Categories(), KPIs: t.AllKPIs()}
}

// Taxonomy rebuilds a taxonomy from its serializable form.
func (s Snapshot) Taxonomy() *Taxonomy {
	return NewTaxonomy(s.Categories, s.KPIs)
}
