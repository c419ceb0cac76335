package api

import (
	"net/http"
)

// TaxonomyHandler serves the category and KPI snapshot.
type TaxonomyHandler struct {
	deps TaxonomyDependencies
}

// NewTaxonomyHandler creates a new taxonomy handler.
func NewTaxonomyHandler(deps TaxonomyDependencies) *TaxonomyHandler {
	return &TaxonomyHandler{deps: deps}
}

// HandleGetTaxonomy handles GET /taxonomy requests.
func (h *TaxonomyHandler) HandleGetTaxonomy(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_taxonomy"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	tax, err := h.deps.Taxonomy()
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, tax.Snapshot())
}

// HandleRefresh handles POST /taxonomy/refresh requests.
func (h *TaxonomyHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	const op = "api.refresh_taxonomy"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	tax, err := h.deps.RefreshTaxonomy(r.Context())
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, tax.Snapshot())
}
