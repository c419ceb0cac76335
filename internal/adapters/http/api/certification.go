package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/okian/certifica/internal/domain/certification"
)

type classifyResponse struct {
	Score   float64            `json:"score"`
	InRange bool               `json:"in_range"`
	Tier    certification.Tier `json:"tier"`
}

// CertificationHandler exposes the certification tiers.
type CertificationHandler struct{}

// NewCertificationHandler creates a new certification handler.
func NewCertificationHandler() *CertificationHandler {
	return &CertificationHandler{}
}

// HandleClassify handles GET /certification?score=N requests.
func (h *CertificationHandler) HandleClassify(w http.ResponseWriter, r *http.Request) {
	const op = "api.classify"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	raw := r.URL.Query().Get("score")
	if raw == "" {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("missing score")))
		return
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("score must be a finite number")))
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{
		Score:   score,
		InRange: certification.InRange(score),
		Tier:    certification.Classify(score),
	})
}

// HandleTiers handles GET /certification/tiers requests.
func (h *CertificationHandler) HandleTiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, certification.Tiers())
}
