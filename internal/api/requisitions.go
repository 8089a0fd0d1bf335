package api

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/erazemk/zavod/internal/metrics"
	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// RequisitionsHandler handles requisition endpoints.
type RequisitionsHandler struct {
	DB                *sql.DB
	Paging            Paging
	Metrics           *metrics.Metrics
	AllowSelfApproval bool
}

// requisitionRequest is used for create and update. An update carrying a
// status is a decision and is handled like approve/reject.
type requisitionRequest struct {
	AssetMasterID int64  `json:"asset_master_id"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Comments      string `json:"comments"`
}

// List handles GET /api/requisitions. mine=1 limits the list to the caller's
// own requisitions; queue=approval lists what an admin still has to decide.
func (h *RequisitionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a := actor(r)
	var f store.RequisitionFilter
	f.Search = q.Get("search")

	if v := q.Get("status"); v != "" {
		st, err := model.ParseApprovalStatus(v)
		if err != nil {
			validationError(w, "status", err.Error())
			return
		}
		f.Status = st
	}
	if q.Get("mine") == "1" || q.Get("mine") == "true" {
		f.RequestedBy = a.UserID
	}
	switch q.Get("queue") {
	case "":
	case "approval":
		if !a.CanDecideRequisitions() {
			jsonError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		f.Status = model.ApprovalPending
		f.ExcludeRequester = a.UserID
	default:
		validationError(w, "queue", "must be approval")
		return
	}

	reqs, pg, err := store.ListRequisitions(r.Context(), h.DB, a.InstituteID, f, h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "list requisitions")
		return
	}
	jsonList(w, "Requisitions", reqs, pg)
}

// Create handles POST /api/requisitions.
func (h *RequisitionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AssetMasterID <= 0 {
		validationError(w, "asset_master_id", "required")
		return
	}

	a := actor(r)
	rq, err := store.CreateRequisition(r.Context(), h.DB, a, req.AssetMasterID, req.Description)
	if err != nil {
		storeError(w, r, err, "create requisition")
		return
	}

	slog.Info("requisition created", "user", a.Username, "institute", a.InstituteID,
		"requisition", rq.ID, "asset", rq.AssetName)
	jsonResponse(w, http.StatusCreated, "requisition created", rq)
}

// Get handles GET /api/requisitions/{id}.
func (h *RequisitionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "requisition")
	if !ok {
		return
	}

	rq, err := store.GetRequisition(r.Context(), h.DB, actor(r).InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get requisition")
		return
	}
	if rq == nil {
		jsonError(w, http.StatusNotFound, "requisition not found")
		return
	}
	jsonResponse(w, http.StatusOK, "", rq)
}

// Update handles PUT /api/requisitions/{id}.
func (h *RequisitionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "requisition")
	if !ok {
		return
	}

	var req requisitionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Status != "" {
		st, err := model.ParseApprovalStatus(req.Status)
		if err != nil {
			validationError(w, "status", err.Error())
			return
		}
		h.decide(w, r, id, st, req.Comments)
		return
	}

	if req.AssetMasterID <= 0 {
		validationError(w, "asset_master_id", "required")
		return
	}

	a := actor(r)
	rq, err := store.UpdateRequisition(r.Context(), h.DB, a, id, req.AssetMasterID, req.Description)
	if err != nil {
		storeError(w, r, err, "update requisition")
		return
	}

	slog.Info("requisition updated", "user", a.Username, "requisition", rq.ID)
	jsonResponse(w, http.StatusOK, "requisition updated", rq)
}

// Delete handles DELETE /api/requisitions/{id}.
func (h *RequisitionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "requisition")
	if !ok {
		return
	}

	a := actor(r)
	if err := store.DeleteRequisition(r.Context(), h.DB, a, id); err != nil {
		storeError(w, r, err, "delete requisition")
		return
	}

	slog.Info("requisition withdrawn", "user", a.Username, "requisition", id)
	jsonResponse(w, http.StatusOK, "requisition deleted", nil)
}

// Approve handles POST /api/requisitions/{id}/approve.
func (h *RequisitionsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, model.ApprovalApproved)
}

// Reject handles POST /api/requisitions/{id}/reject.
func (h *RequisitionsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decision(w, r, model.ApprovalRejected)
}

func (h *RequisitionsHandler) decision(w http.ResponseWriter, r *http.Request, status model.ApprovalStatus) {
	id, ok := pathID(w, r, "requisition")
	if !ok {
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.decide(w, r, id, status, req.Comments)
}

func (h *RequisitionsHandler) decide(w http.ResponseWriter, r *http.Request, id int64, status model.ApprovalStatus, comments string) {
	a := actor(r)
	rq, err := store.DecideRequisition(r.Context(), h.DB, a, id, status, comments, h.AllowSelfApproval)
	if err != nil {
		storeError(w, r, err, "decide requisition")
		return
	}

	h.Metrics.RecordRequisitionDecision(string(status))
	if rq.RequestedBy == a.UserID {
		slog.Warn("requisition decided by its requester", "user", a.Username, "requisition", rq.ID, "status", status)
	}
	slog.Info("requisition "+string(status), "user", a.Username, "institute", a.InstituteID, "requisition", rq.ID)
	jsonResponse(w, http.StatusOK, "requisition "+string(status), rq)
}
