// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/certifica/internal/adapters/mq/reconciler"
	service "github.com/okian/certifica/internal/app"
	"github.com/okian/certifica/internal/domain/model"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EvaluationDependencies
	TaxonomyDependencies
	SyncDependencies
	DashboardDependencies
}

// EvaluationDependencies scores and stores evaluation forms.
type EvaluationDependencies interface {
	SubmitEvaluation(ctx context.Context, sub service.Submission) (service.SubmitResult, error)
	Progress(ctx context.Context, entries []model.ScoreEntry) (service.Progress, error)
}

// TaxonomyDependencies exposes the category and KPI snapshot.
type TaxonomyDependencies interface {
	Taxonomy() (*model.Taxonomy, error)
	RefreshTaxonomy(ctx context.Context) (*model.Taxonomy, error)
}

// SyncDependencies exposes the offline queue and the reconciler.
type SyncDependencies interface {
	PendingActions(ctx context.Context) ([]model.Action, error)
	Sync(ctx context.Context) (reconciler.Result, error)
	IsConnected() bool
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	evaluationsHandler   *EvaluationsHandler
	certificationHandler *CertificationHandler
	taxonomyHandler      *TaxonomyHandler
	syncHandler          *SyncHandler
	dashboardHandler     *dashboardHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(statsProvider),
		evaluationsHandler:   NewEvaluationsHandler(deps),
		certificationHandler: NewCertificationHandler(),
		taxonomyHandler:      NewTaxonomyHandler(deps),
		syncHandler:          NewSyncHandler(deps),
		dashboardHandler:     newDashboardHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/evaluations", MetricsMiddleware(s.evaluationsHandler.HandlePostEvaluation, "evaluations"))
	mux.HandleFunc("/progress", MetricsMiddleware(s.evaluationsHandler.HandlePostProgress, "progress"))
	mux.HandleFunc("/certification", MetricsMiddleware(s.certificationHandler.HandleClassify, "certification"))
	mux.HandleFunc("/certification/tiers", MetricsMiddleware(s.certificationHandler.HandleTiers, "certification_tiers"))
	mux.HandleFunc("/taxonomy", MetricsMiddleware(s.taxonomyHandler.HandleGetTaxonomy, "taxonomy"))
	mux.HandleFunc("/taxonomy/refresh", MetricsMiddleware(s.taxonomyHandler.HandleRefresh, "taxonomy_refresh"))
	mux.HandleFunc("/queue", MetricsMiddleware(s.syncHandler.HandleGetQueue, "queue"))
	mux.HandleFunc("/sync", MetricsMiddleware(s.syncHandler.HandlePostSync, "sync"))
	mux.HandleFunc("/dashboard", MetricsMiddleware(s.dashboardHandler.HandleDashboard, "dashboard"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err to a status and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
