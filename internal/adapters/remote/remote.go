// Package remote talks to the backing database: it applies replayed
// mutations, reads the KPI taxonomy and lists stored evaluations.
package remote

import (
	"context"

	"github.com/okian/certifica/internal/domain/model"
)

// Resource names written by the service.
const (
	ResourceEvaluations      = "evaluations"
	ResourceEvaluationScores = "evaluation_scores"
	ResourceAcademies        = "academies"
	ResourceEvaluators       = "evaluators"
	ResourceKPICategories    = "kpi_categories"
	ResourceKPIs             = "kpis"
)

// DefaultResources is the allowlist used when none is configured.
var DefaultResources = []string{
	ResourceEvaluations,
	ResourceEvaluationScores,
	ResourceAcademies,
	ResourceEvaluators,
	ResourceKPICategories,
	ResourceKPIs,
}

// Sink applies mutations to the remote store. Every call may fail with a
// transient error.
type Sink interface {
	Insert(ctx context.Context, resource string, record map[string]any) error
	Update(ctx context.Context, resource, id string, partial map[string]any) error
	Delete(ctx context.Context, resource, id string) error
	Ping(ctx context.Context) error
}

// TaxonomySource loads the KPI taxonomy.
type TaxonomySource interface {
	LoadTaxonomy(ctx context.Context) (*model.Taxonomy, error)
}

// EvaluationReader lists stored evaluations.
type EvaluationReader interface {
	// ListEvaluations returns evaluations in ascending evaluation date.
	ListEvaluations(ctx context.Context) ([]model.Evaluation, error)
}
