package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// UsersHandler handles user management endpoints (admin only). Every
// operation is confined to the admin's own institute.
type UsersHandler struct {
	DB     *sql.DB
	Paging Paging
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	users, pg, err := store.ListUsers(r.Context(), h.DB, a.InstituteID, r.URL.Query().Get("search"), h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "list users")
		return
	}
	jsonList(w, "Users", users, pg)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	fields := map[string]string{}
	if req.Username == "" {
		fields["username"] = "required"
	}
	if !model.ValidRole(req.Role) {
		fields["role"] = "must be admin, viceprincipal or staff"
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		fields["password"] = err.Error()
	}
	if len(fields) > 0 {
		jsonResponse(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	a := actor(r)
	user, err := store.CreateUser(r.Context(), h.DB, a.InstituteID, req.Username, string(hash), req.Role)
	if err != nil {
		storeError(w, r, err, "create user")
		return
	}

	slog.Info("user created", "user", a.Username, "new_user", req.Username, "role", req.Role)
	jsonResponse(w, http.StatusCreated, "user created", user)
}

// lookup loads the {id} user of the caller's institute or writes a 404.
func (h *UsersHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return nil, false
	}
	user, err := store.GetInstituteUser(r.Context(), h.DB, actor(r).InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get user")
		return nil, false
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, "", user)
}

// Update handles PUT /api/users/{id}.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		validationError(w, "role", "must be admin, viceprincipal or staff")
		return
	}

	a := actor(r)
	if err := store.UpdateUser(r.Context(), h.DB, a.InstituteID, user.ID, req.Role); err != nil {
		storeError(w, r, err, "update user")
		return
	}
	user.Role = req.Role

	slog.Info("user role updated", "user", a.Username, "target_user", user.Username, "new_role", req.Role)
	jsonResponse(w, http.StatusOK, "user updated", user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		validationError(w, "password", err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, user.ID, string(hash)); err != nil {
		storeError(w, r, err, "reset password")
		return
	}

	slog.Info("user password reset", "user", actor(r).Username, "target_user", user.Username)
	jsonResponse(w, http.StatusOK, "password reset", nil)
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r)
	if !ok {
		return
	}

	a := actor(r)
	if a.UserID == user.ID {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, a.InstituteID, user.ID); err != nil {
		storeError(w, r, err, "delete user")
		return
	}

	slog.Info("user deleted", "user", a.Username, "deleted_user", user.Username)
	jsonResponse(w, http.StatusOK, "user deleted", nil)
}
