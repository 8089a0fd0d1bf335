package api

import (
	"net/http"
	"strconv"

	"github.com/erazemk/zavod/internal/model"
)

// Paging holds the per-page defaults applied to list endpoints.
type Paging struct {
	DefaultPerPage int
	MaxPerPage     int
}

// page reads the page and per_page query parameters.
func (p Paging) page(r *http.Request) model.Page {
	q := r.URL.Query()
	pg := model.Page{Number: 1, PerPage: p.DefaultPerPage}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		pg.Number = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil && n > 0 {
		pg.PerPage = n
	}
	if p.MaxPerPage > 0 && pg.PerPage > p.MaxPerPage {
		pg.PerPage = p.MaxPerPage
	}
	return pg.Normalize()
}

// pathID parses the {id} path value. It writes a 400 response and returns
// false when the value is not a positive integer.
func pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter. Missing means
// zero; a malformed value writes a 422 response and returns false.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		validationError(w, name, "must be a positive integer")
		return 0, false
	}
	return id, true
}
