package remote

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/okian/certifica/internal/domain/model"
)

// GormEvaluationReader lists evaluations from the evaluations table.
type GormEvaluationReader struct {
	db *gorm.DB
}

// NewGormEvaluationReader creates a reader over db.
func NewGormEvaluationReader(db *gorm.DB) *GormEvaluationReader {
	return &GormEvaluationReader{db: db}
}

// ListEvaluations returns every evaluation ordered by evaluation date.
func (r *GormEvaluationReader) ListEvaluations(ctx context.Context) ([]model.Evaluation, error) {
	var rows []evaluationRow
	err := r.db.WithContext(ctx).
		Select("id", "academy_id", "evaluator_id", "evaluation_date", "total_score", "category", "status", "notes").
		Order("evaluation_date").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	out := make([]model.Evaluation, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Evaluation{
			ID:          row.ID,
			AcademyID:   row.AcademyID,
			EvaluatorID: row.EvaluatorID,
			Date:        row.EvaluationDate,
			Status:      row.Status,
			Notes:       deref(row.Notes),
			TotalScore:  row.TotalScore,
			Category:    deref(row.Category),
		})
	}
	return out, nil
}
