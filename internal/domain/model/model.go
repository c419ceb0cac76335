// Package model contains domain models passed between layers.
package model

import (
	"time"
)

// Evaluation lifecycle states.
const (
	StatusDraft     = "draft"
	StatusCompleted = "completed"
)

// DefaultMaxScore is the max_score a KPI gets when none is authored.
const DefaultMaxScore = 10

// Category is a weighted group of KPIs.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Weight      float64 `json:"weight"` // percentage of the overall score
	OrderIndex  int     `json:"order_index"`
}

// KPI is a single scored criterion belonging to a category.
type KPI struct {
	ID          string  `json:"id"`
	CategoryID  string  `json:"category_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	MaxScore    float64 `json:"max_score"`
	OrderIndex  int     `json:"order_index"`
}

// ScoreEntry pairs a KPI with the score given during an evaluation.
type ScoreEntry struct {
	KPIID    string  `json:"kpi_id" validate:"required"`
	Score    float64 `json:"score"`
	Comments string  `json:"comments,omitempty"`
}

// Evaluation is a scored visit to an academy.
type Evaluation struct {
	ID          string    `json:"id"`
	AcademyID   string    `json:"academy_id"`
	EvaluatorID string    `json:"evaluator_id"`
	Date        time.Time `json:"evaluation_date"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	TotalScore  float64   `json:"total_score"` // 0-1000
	Category    string    `json:"category,omitempty"`
}
