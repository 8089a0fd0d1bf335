package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// CatalogHandler handles asset categories and asset masters.
type CatalogHandler struct {
	DB     *sql.DB
	Paging Paging
}

type categoryRequest struct {
	Name string `json:"name"`
}

type assetMasterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CategoryID  int64  `json:"category_id"`
}

// ListCategories handles GET /api/categories.
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := store.ListCategories(r.Context(), h.DB, actor(r).InstituteID)
	if err != nil {
		storeError(w, r, err, "list categories")
		return
	}
	if categories == nil {
		categories = []model.AssetCategory{}
	}
	jsonResponse(w, http.StatusOK, "", map[string]any{"Categories": categories})
}

// CreateCategory handles POST /api/categories.
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
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
	c, err := store.CreateCategory(r.Context(), h.DB, a.InstituteID, req.Name)
	if err != nil {
		storeError(w, r, err, "create category")
		return
	}

	slog.Info("category created", "user", a.Username, "category", c.Name)
	jsonResponse(w, http.StatusCreated, "category created", c)
}

// UpdateCategory handles PUT /api/categories/{id}.
func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "category")
	if !ok {
		return
	}

	var req categoryRequest
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
	c, err := store.GetCategory(r.Context(), h.DB, a.InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get category")
		return
	}
	if c == nil {
		jsonError(w, http.StatusNotFound, "category not found")
		return
	}

	if err := store.UpdateCategory(r.Context(), h.DB, a.InstituteID, id, req.Name); err != nil {
		storeError(w, r, err, "update category")
		return
	}
	c.Name = req.Name

	slog.Info("category updated", "user", a.Username, "category", c.Name)
	jsonResponse(w, http.StatusOK, "category updated", c)
}

// DeleteCategory handles DELETE /api/categories/{id}.
func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "category")
	if !ok {
		return
	}

	a := actor(r)
	if err := store.DeleteCategory(r.Context(), h.DB, a.InstituteID, id); err != nil {
		storeError(w, r, err, "delete category")
		return
	}

	slog.Info("category deleted", "user", a.Username, "category_id", id)
	jsonResponse(w, http.StatusOK, "category deleted", nil)
}

// ListAssetMasters handles GET /api/asset-masters.
func (h *CatalogHandler) ListAssetMasters(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := queryID(w, r, "category_id")
	if !ok {
		return
	}

	masters, pg, err := store.ListAssetMasters(r.Context(), h.DB, actor(r).InstituteID,
		categoryID, r.URL.Query().Get("search"), h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "list asset masters")
		return
	}
	jsonList(w, "AssetMasters", masters, pg)
}

// CreateAssetMaster handles POST /api/asset-masters.
func (h *CatalogHandler) CreateAssetMaster(w http.ResponseWriter, r *http.Request) {
	var req assetMasterRequest
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
	am, err := store.CreateAssetMaster(r.Context(), h.DB, a.InstituteID, req.Name, req.Description, req.CategoryID)
	if err != nil {
		storeError(w, r, err, "create asset master")
		return
	}

	slog.Info("asset master created", "user", a.Username, "asset", am.Name)
	jsonResponse(w, http.StatusCreated, "asset master created", am)
}

func (h *CatalogHandler) lookupAssetMaster(w http.ResponseWriter, r *http.Request) (*model.AssetMaster, bool) {
	id, ok := pathID(w, r, "asset master")
	if !ok {
		return nil, false
	}
	am, err := store.GetAssetMaster(r.Context(), h.DB, actor(r).InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get asset master")
		return nil, false
	}
	if am == nil || am.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "asset master not found")
		return nil, false
	}
	return am, true
}

// GetAssetMaster handles GET /api/asset-masters/{id}.
func (h *CatalogHandler) GetAssetMaster(w http.ResponseWriter, r *http.Request) {
	am, ok := h.lookupAssetMaster(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, "", am)
}

// UpdateAssetMaster handles PUT /api/asset-masters/{id}.
func (h *CatalogHandler) UpdateAssetMaster(w http.ResponseWriter, r *http.Request) {
	am, ok := h.lookupAssetMaster(w, r)
	if !ok {
		return
	}

	var req assetMasterRequest
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
	if err := store.UpdateAssetMaster(r.Context(), h.DB, a.InstituteID, am.ID, req.Name, req.Description, req.CategoryID); err != nil {
		storeError(w, r, err, "update asset master")
		return
	}

	updated, err := store.GetAssetMaster(r.Context(), h.DB, a.InstituteID, am.ID)
	if err != nil {
		storeError(w, r, err, "get asset master")
		return
	}

	slog.Info("asset master updated", "user", a.Username, "asset", req.Name)
	jsonResponse(w, http.StatusOK, "asset master updated", updated)
}

// DeleteAssetMaster handles DELETE /api/asset-masters/{id}.
func (h *CatalogHandler) DeleteAssetMaster(w http.ResponseWriter, r *http.Request) {
	am, ok := h.lookupAssetMaster(w, r)
	if !ok {
		return
	}

	a := actor(r)
	if err := store.DeleteAssetMaster(r.Context(), h.DB, a.InstituteID, am.ID); err != nil {
		storeError(w, r, err, "delete asset master")
		return
	}

	slog.Info("asset master deleted", "user", a.Username, "asset", am.Name)
	jsonResponse(w, http.StatusOK, "asset master deleted", nil)
}

// Distribution handles GET /api/asset-masters/{id}/distribution.
func (h *CatalogHandler) Distribution(w http.ResponseWriter, r *http.Request) {
	am, ok := h.lookupAssetMaster(w, r)
	if !ok {
		return
	}

	dist, err := store.GetAssetDistribution(r.Context(), h.DB, am.InstituteID, am.ID)
	if err != nil {
		storeError(w, r, err, "get asset distribution")
		return
	}
	if dist == nil {
		dist = []model.Distribution{}
	}
	jsonResponse(w, http.StatusOK, "", map[string]any{"AssetMaster": am, "Distribution": dist})
}
