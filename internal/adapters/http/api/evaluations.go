package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/certifica/internal/app"
	"github.com/okian/certifica/internal/domain/model"
)

// dateLayout is the calendar date accepted besides RFC3339.
const dateLayout = "2006-01-02"

// evaluationRequest is the body of POST /evaluations.
type evaluationRequest struct {
	AcademyID      string             `json:"academy_id"`
	EvaluatorID    string             `json:"evaluator_id"`
	EvaluationDate string             `json:"evaluation_date"`
	Status         string             `json:"status"`
	Notes          string             `json:"notes"`
	Scores         []model.ScoreEntry `json:"scores"`
}

func (e evaluationRequest) submission() (service.Submission, error) {
	sub := service.Submission{
		AcademyID:   e.AcademyID,
		EvaluatorID: e.EvaluatorID,
		Status:      e.Status,
		Notes:       e.Notes,
		Scores:      e.Scores,
	}
	if sub.Status == "" {
		sub.Status = model.StatusCompleted
	}
	raw := strings.TrimSpace(e.EvaluationDate)
	if raw == "" {
		return sub, nil
	}
	if d, err := time.Parse(dateLayout, raw); err == nil {
		sub.Date = d
		return sub, nil
	}
	d, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return sub, errors.New("invalid evaluation_date; must be YYYY-MM-DD or RFC3339")
	}
	sub.Date = d
	return sub, nil
}

// progressRequest is the body of POST /progress.
type progressRequest struct {
	Scores []model.ScoreEntry `json:"scores"`
}

// EvaluationsHandler handles evaluation form requests.
type EvaluationsHandler struct {
	deps EvaluationDependencies
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps EvaluationDependencies) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps}
}

// HandlePostEvaluation handles POST /evaluations requests. A submission that
// was queued for later sync is still accepted.
func (h *EvaluationsHandler) HandlePostEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_evaluation"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req evaluationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	sub, err := req.submission()
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.SubmitEvaluation(r.Context(), sub)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// HandlePostProgress handles POST /progress requests.
func (h *EvaluationsHandler) HandlePostProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_progress"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.Progress(r.Context(), req.Scores)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
