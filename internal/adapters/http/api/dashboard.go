package api

import (
	"context"
	"net/http"

	"github.com/okian/certifica/internal/domain/summary"
)

// DashboardDependencies summarizes stored evaluations.
type DashboardDependencies interface {
	Dashboard(ctx context.Context) (summary.Summary, error)
}

type dashboardHandler struct {
	deps DashboardDependencies
}

func newDashboardHandler(deps DashboardDependencies) *dashboardHandler {
	return &dashboardHandler{deps: deps}
}

// HandleDashboard handles GET /dashboard requests.
func (h *dashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_dashboard"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s, err := h.deps.Dashboard(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}
