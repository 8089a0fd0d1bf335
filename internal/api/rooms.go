package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// RoomsHandler handles room CRUD endpoints.
type RoomsHandler struct {
	DB     *sql.DB
	Paging Paging
}

type roomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// List handles GET /api/rooms.
func (h *RoomsHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, pg, err := store.ListRooms(r.Context(), h.DB, actor(r).InstituteID, r.URL.Query().Get("search"), h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "list rooms")
		return
	}
	jsonList(w, "Rooms", rooms, pg)
}

// Create handles POST /api/rooms.
func (h *RoomsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		validationError(w, "name", "required")
		return
	}

	a := actor(r)
	room, err := store.CreateRoom(r.Context(), h.DB, a.InstituteID, req.Name, req.Description)
	if err != nil {
		storeError(w, r, err, "create room")
		return
	}

	slog.Info("room created", "user", a.Username, "room", room.Name, "institute", a.InstituteID)
	jsonResponse(w, http.StatusCreated, "room created", room)
}

func (h *RoomsHandler) lookup(w http.ResponseWriter, r *http.Request) (*model.Room, bool) {
	id, ok := pathID(w, r, "room")
	if !ok {
		return nil, false
	}
	room, err := store.GetRoom(r.Context(), h.DB, actor(r).InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get room")
		return nil, false
	}
	if room == nil || room.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	return room, true
}

// Get handles GET /api/rooms/{id}.
func (h *RoomsHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, "", room)
}

// Update handles PUT /api/rooms/{id}.
func (h *RoomsHandler) Update(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		validationError(w, "name", "required")
		return
	}

	a := actor(r)
	if err := store.UpdateRoom(r.Context(), h.DB, a.InstituteID, room.ID, req.Name, req.Description); err != nil {
		storeError(w, r, err, "update room")
		return
	}
	room.Name, room.Description = req.Name, req.Description

	slog.Info("room updated", "user", a.Username, "room", room.Name)
	jsonResponse(w, http.StatusOK, "room updated", room)
}

// Delete handles DELETE /api/rooms/{id}.
func (h *RoomsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookup(w, r)
	if !ok {
		return
	}

	a := actor(r)
	if err := store.DeleteRoom(r.Context(), h.DB, a.InstituteID, room.ID); err != nil {
		slog.Warn("failed to delete room", "room", room.Name, "error", err)
		storeError(w, r, err, "delete room")
		return
	}

	slog.Info("room deleted", "user", a.Username, "room", room.Name)
	jsonResponse(w, http.StatusOK, "room deleted", nil)
}

// Inventory handles GET /api/rooms/{id}/inventory.
func (h *RoomsHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	room, ok := h.lookup(w, r)
	if !ok {
		return
	}

	items, pg, err := store.ListInventory(r.Context(), h.DB, room.InstituteID,
		store.InventoryFilter{RoomID: room.ID}, h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "get room inventory")
		return
	}
	jsonList(w, "Inventory", items, pg)
}
