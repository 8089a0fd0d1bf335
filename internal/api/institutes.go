package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// InstitutesHandler exposes the shared institute directory used to pick
// transfer destinations.
type InstitutesHandler struct {
	DB *sql.DB
}

// List handles GET /api/institutes.
func (h *InstitutesHandler) List(w http.ResponseWriter, r *http.Request) {
	institutes, err := store.ListInstitutes(r.Context(), h.DB)
	if err != nil {
		storeError(w, r, err, "list institutes")
		return
	}
	if institutes == nil {
		institutes = []model.Institute{}
	}
	jsonResponse(w, http.StatusOK, "", map[string]any{"Institutes": institutes})
}

// Get handles GET /api/institutes/{id}.
func (h *InstitutesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "institute")
	if !ok {
		return
	}
	inst, err := store.GetInstitute(r.Context(), h.DB, id)
	if err != nil {
		storeError(w, r, err, "get institute")
		return
	}
	if inst == nil || inst.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "institute not found")
		return
	}
	jsonResponse(w, http.StatusOK, "", inst)
}
