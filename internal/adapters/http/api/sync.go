package api

import (
	"net/http"

	"github.com/okian/certifica/internal/domain/model"
)

type queueResponse struct {
	Connected bool           `json:"connected"`
	Pending   int            `json:"pending"`
	Actions   []model.Action `json:"actions"`
}

// SyncHandler exposes the offline queue and manual reconciliation.
type SyncHandler struct {
	deps SyncDependencies
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncDependencies) *SyncHandler {
	return &SyncHandler{deps: deps}
}

// HandleGetQueue handles GET /queue requests.
func (h *SyncHandler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_queue"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	actions, err := h.deps.PendingActions(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	if actions == nil {
		actions = []model.Action{}
	}
	writeJSON(w, http.StatusOK, queueResponse{
		Connected: h.deps.IsConnected(),
		Pending:   len(actions),
		Actions:   actions,
	})
}

// HandlePostSync handles POST /sync requests. A pass that left actions in the
// queue is reported with 207 Multi-Status.
func (h *SyncHandler) HandlePostSync(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sync"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.Sync(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}
