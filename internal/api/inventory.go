package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zavod/internal/export"
	"github.com/erazemk/zavod/internal/metrics"
	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

// InventoryHandler handles inventory endpoints.
type InventoryHandler struct {
	DB      *sql.DB
	Paging  Paging
	Metrics *metrics.Metrics
}

type createInventoryRequest struct {
	RoomID           int64               `json:"room_id"`
	AssetMasterID    int64               `json:"asset_master_id"`
	AssetCategoryIDs []int64             `json:"asset_category_ids"`
	Quantity         *int                `json:"quantity"`
	Status           string              `json:"status"`
	PurchaseDate     string              `json:"purchase_date"`
	PurchasePrice    decimal.NullDecimal `json:"purchase_price"`
	Remarks          string              `json:"remarks"`
}

// updateInventoryRequest mirrors store.InventoryUpdate. Absent fields keep
// their stored value; a room_id of 0 takes the row out of its room and an
// empty purchase_date clears the date.
type updateInventoryRequest struct {
	RoomID           *int64              `json:"room_id"`
	AssetMasterID    *int64              `json:"asset_master_id"`
	AssetCategoryIDs *[]int64            `json:"asset_category_ids"`
	Quantity         *int                `json:"quantity"`
	Status           *string             `json:"status"`
	ScrapedQuantity  *int                `json:"scraped_quantity"`
	ScrapedAmount    decimal.NullDecimal `json:"scraped_amount"`
	PurchaseDate     *string             `json:"purchase_date"`
	PurchasePrice    decimal.NullDecimal `json:"purchase_price"`
	Remarks          *string             `json:"remarks"`
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}

func negative(d decimal.NullDecimal) bool {
	return d.Valid && d.Decimal.IsNegative()
}

// filter reads the inventory list filters from the query string.
func (h *InventoryHandler) filter(w http.ResponseWriter, r *http.Request) (store.InventoryFilter, bool) {
	q := r.URL.Query()
	f := store.InventoryFilter{Search: q.Get("search")}

	var ok bool
	if f.RoomID, ok = queryID(w, r, "room_id"); !ok {
		return f, false
	}
	if f.AssetMasterID, ok = queryID(w, r, "asset_master_id"); !ok {
		return f, false
	}
	if v := q.Get("status"); v != "" {
		st, err := model.ParseInventoryStatus(v)
		if err != nil {
			validationError(w, "status", err.Error())
			return f, false
		}
		f.Status = st
	}
	return f, true
}

// List handles GET /api/inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	items, pg, err := store.ListInventory(r.Context(), h.DB, actor(r).InstituteID, f, h.Paging.page(r))
	if err != nil {
		storeError(w, r, err, "list inventory")
		return
	}
	jsonList(w, "Inventory", items, pg)
}

// Export handles GET /api/inventory/export. It accepts the list filters and
// returns every matching row as an XLSX workbook.
func (h *InventoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	a := actor(r)
	items, err := store.ListAllInventory(r.Context(), h.DB, a.InstituteID, f)
	if err != nil {
		storeError(w, r, err, "export inventory")
		return
	}

	filename := fmt.Sprintf("inventory-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := export.InventoryXLSX(w, items); err != nil {
		// Headers are already out; the client sees a truncated file.
		slog.Error("failed to write inventory export", "error", err, "request_id", RequestID(r.Context()))
		return
	}

	slog.Info("inventory exported", "user", a.Username, "institute", a.InstituteID, "rows", len(items))
}

// Create handles POST /api/inventory.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := store.InventoryInput{
		RoomID:           req.RoomID,
		AssetMasterID:    req.AssetMasterID,
		AssetCategoryIDs: req.AssetCategoryIDs,
		PurchasePrice:    req.PurchasePrice,
		Remarks:          req.Remarks,
	}

	fields := map[string]string{}
	if req.AssetMasterID <= 0 {
		fields["asset_master_id"] = "required"
	}
	if req.Quantity == nil {
		fields["quantity"] = "required"
	} else {
		in.Quantity = *req.Quantity
	}
	if req.Status != "" {
		st, err := model.ParseInventoryStatus(req.Status)
		if err != nil {
			fields["status"] = err.Error()
		}
		in.Status = st
	}
	if d, err := parseDate(req.PurchaseDate); err != nil {
		fields["purchase_date"] = err.Error()
	} else {
		in.PurchaseDate = d
	}
	if negative(req.PurchasePrice) {
		fields["purchase_price"] = "must not be negative"
	}
	if len(fields) > 0 {
		jsonResponse(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	a := actor(r)
	inv, err := store.CreateInventory(r.Context(), h.DB, a, in)
	if err != nil {
		storeError(w, r, err, "create inventory")
		return
	}

	h.Metrics.RecordInventoryOperation("create")
	slog.Info("inventory created", "user", a.Username, "institute", a.InstituteID,
		"inventory", inv.ID, "asset", inv.AssetName, "quantity", inv.Quantity)
	jsonResponse(w, http.StatusCreated, "inventory created", inv)
}

// Get handles GET /api/inventory/{id}.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "inventory")
	if !ok {
		return
	}

	inv, err := store.GetInventory(r.Context(), h.DB, actor(r).InstituteID, id)
	if err != nil {
		storeError(w, r, err, "get inventory")
		return
	}
	if inv == nil {
		jsonError(w, http.StatusNotFound, "inventory not found")
		return
	}
	jsonResponse(w, http.StatusOK, "", inv)
}

// Update handles PUT /api/inventory/{id}. Scraping part of a row answers
// with both the remaining row and the new scraped row.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "inventory")
	if !ok {
		return
	}

	var req updateInventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := store.InventoryUpdate{
		RoomID:           req.RoomID,
		AssetMasterID:    req.AssetMasterID,
		AssetCategoryIDs: req.AssetCategoryIDs,
		Quantity:         req.Quantity,
		ScrapedQuantity:  req.ScrapedQuantity,
		ScrapedAmount:    req.ScrapedAmount,
		PurchasePrice:    req.PurchasePrice,
		Remarks:          req.Remarks,
	}

	fields := map[string]string{}
	if req.Status != nil {
		st, err := model.ParseInventoryStatus(*req.Status)
		if err != nil {
			fields["status"] = err.Error()
		}
		upd.Status = &st
	}
	if req.PurchaseDate != nil {
		d, err := parseDate(*req.PurchaseDate)
		if err != nil {
			fields["purchase_date"] = err.Error()
		}
		upd.PurchaseDate = d
		upd.ClearPurchaseDate = d == nil && err == nil
	}
	if negative(req.PurchasePrice) {
		fields["purchase_price"] = "must not be negative"
	}
	if negative(req.ScrapedAmount) {
		fields["scraped_amount"] = "must not be negative"
	}
	if len(fields) > 0 {
		jsonResponse(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	a := actor(r)
	res, err := store.UpdateInventory(r.Context(), h.DB, a, id, upd)
	if err != nil {
		storeError(w, r, err, "update inventory")
		return
	}

	h.Metrics.RecordInventoryOperation("update")
	if res.Scraped != nil {
		h.Metrics.RecordScrapSplit()
		slog.Info("inventory scrap split", "user", a.Username, "institute", a.InstituteID,
			"inventory", res.Inventory.ID, "scraped_inventory", res.Scraped.ID,
			"scraped", res.Scraped.Quantity, "remaining", res.Inventory.Quantity)
		jsonResponse(w, http.StatusOK, "inventory scraped", res)
		return
	}

	slog.Info("inventory updated", "user", a.Username, "institute", a.InstituteID,
		"inventory", res.Inventory.ID, "status", res.Inventory.Status, "quantity", res.Inventory.Quantity)
	jsonResponse(w, http.StatusOK, "inventory updated", res)
}

// Delete handles DELETE /api/inventory/{id}.
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "inventory")
	if !ok {
		return
	}

	a := actor(r)
	if err := store.DeleteInventory(r.Context(), h.DB, a.InstituteID, id); err != nil {
		storeError(w, r, err, "delete inventory")
		return
	}

	h.Metrics.RecordInventoryOperation("delete")
	slog.Info("inventory deleted", "user", a.Username, "institute", a.InstituteID, "inventory", id)
	jsonResponse(w, http.StatusOK, "inventory deleted", nil)
}
