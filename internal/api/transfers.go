package api

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/zavod/internal/metrics"
	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	DB      *sql.DB
	Paging  Paging
	Metrics *metrics.Metrics
}

type createTransferRequest struct {
	InventoryID            int64  `json:"inventory_id"`
	TargetType             string `json:"target_type"`
	DestinationRoomID      int64  `json:"destination_room_id"`
	DestinationInstituteID int64  `json:"destination_institute_id"`
	Quantity               int    `json:"quantity"`
	Notes                  string `json:"notes"`
}

type decisionRequest struct {
	Comments string `json:"comments"`
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.InventoryID <= 0 {
		validationError(w, "inventory_id", "required")
		return
	}

	a := actor(r)
	transfer, err := store.CreateTransfer(r.Context(), h.DB, a, model.TransferRequest{
		InventoryID:            req.InventoryID,
		TargetType:             model.TargetType(strings.ToLower(strings.TrimSpace(req.TargetType))),
		DestinationRoomID:      req.DestinationRoomID,
		DestinationInstituteID: req.DestinationInstituteID,
		Quantity:               req.Quantity,
		Notes:                  req.Notes,
	})
	if err != nil {
		storeError(w, r, err, "create transfer")
		return
	}

	slog.Info("transfer created", "user", a.Username, "institute", a.InstituteID,
		"transfer", transfer.ID, "inventory", transfer.InventoryID, "asset", transfer.AssetName,
		"quantity", transfer.Quantity, "target", transfer.TargetType)
	jsonResponse(w, http.StatusCreated, "transfer requested", transfer)
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TransferFilter{Search: q.Get("search")}

	var ok bool
	if f.InventoryID, ok = queryID(w, r, "inventory_id"); !ok {
		return
	}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseApprovalStatus(v)
		if err != nil {
			validationError(w, "status", err.Error())
			return
		}
		f.Status = st
	}
	switch d := q.Get("direction"); d {
	case "", store.DirectionOutgoing, store.DirectionIncoming:
		f.Direction = d
	default:
		validationError(w, "direction", "must be outgoing or incoming")
		return
	}

	transfers, pg, err := store.ListTransfers(r.Context(), h.DB, actor(r).InstituteID, f, h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "list transfers")
		return
	}
	jsonList(w, "Transfers", transfers, pg)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transfer")
	if !ok {
		return
	}

	transfer, err := store.GetTransfer(r.Context(), h.DB, actor(r).InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get transfer")
		return
	}
	if transfer == nil {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return
	}
	jsonResponse(w, http.StatusOK, "", transfer)
}

// Approve handles POST /api/transfers/{id}/approve.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transfer")
	if !ok {
		return
	}

	a := actor(r)
	transfer, err := store.ApproveTransfer(r.Context(), h.DB, a, id)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrInsufficientQuantity) {
			slog.Warn("transfer approval refused", "user", a.Username, "transfer", id, "error", err)
		}
		storeError(w, r, err, "approve transfer")
		return
	}

	h.Metrics.RecordTransferDecision(string(model.ApprovalApproved))
	slog.Info("transfer approved", "user", a.Username, "institute", a.InstituteID,
		"transfer", transfer.ID, "inventory", transfer.InventoryID, "quantity", transfer.Quantity)
	jsonResponse(w, http.StatusOK, "transfer approved", transfer)
}

// Reject handles POST /api/transfers/{id}/reject. The body with comments is optional.
func (h *TransfersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transfer")
	if !ok {
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := actor(r)
	transfer, err := store.RejectTransfer(r.Context(), h.DB, a, id, req.Comments)
	if err != nil {
		storeError(w, r, err, "reject transfer")
		return
	}

	h.Metrics.RecordTransferDecision(string(model.ApprovalRejected))
	slog.Info("transfer rejected", "user", a.Username, "institute", a.InstituteID, "transfer", transfer.ID)
	jsonResponse(w, http.StatusOK, "transfer rejected", transfer)
}
