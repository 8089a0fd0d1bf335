package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// envelope wraps every JSON response body.
type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// jsonResponse writes a JSON envelope with the given status code. The
// envelope's status flag mirrors the HTTP status.
func jsonResponse(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(envelope{
		Status:  status < http.StatusBadRequest,
		Message: message,
		Data:    data,
	})
	if err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

// jsonError writes an error envelope without data.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, message, nil)
}

// jsonList writes one page of a collection under the given key.
func jsonList[T any](w http.ResponseWriter, key string, items []T, pg model.Pagination) {
	if items == nil {
		items = []T{}
	}
	jsonResponse(w, http.StatusOK, "", map[string]any{
		key:          items,
		"Pagination": pg,
	})
}

// storeError maps a store error to a response. Unexpected errors are logged
// and reported without detail.
func storeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var ve *store.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonResponse(w, http.StatusUnprocessableEntity, "validation failed", ve.Fields)
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		jsonError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, store.ErrInsufficientQuantity):
		jsonError(w, http.StatusConflict, "insufficient quantity")
	case errors.Is(err, store.ErrConflict):
		jsonError(w, http.StatusConflict, "already processed")
	case errors.Is(err, store.ErrInUse):
		jsonError(w, http.StatusConflict, "still in use")
	case errors.Is(err, store.ErrDuplicate):
		jsonError(w, http.StatusConflict, "already exists")
	default:
		slog.Error("failed to "+action, "error", err, "request_id", RequestID(r.Context()))
		jsonError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// validationError writes a 422 response for a single field.
func validationError(w http.ResponseWriter, field, message string) {
	jsonResponse(w, http.StatusUnprocessableEntity, "validation failed", map[string]string{field: message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(target)
}
