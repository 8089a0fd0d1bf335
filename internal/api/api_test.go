package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/zavod/internal/auth"
	"github.com/erazemk/zavod/internal/db"
	"github.com/erazemk/zavod/internal/metrics"
	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password1"
)

// testEnv is a running API with two institutes. North has an admin, a vice
// principal and a staff member; south has an admin.
type testEnv struct {
	server  *httptest.Server
	metrics *metrics.Metrics

	admin, vice, staff string
	otherAdmin         string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	database := db.NewTestDB(t)

	m := metrics.New()
	router := NewRouter(Options{
		DB:                database,
		JWTSecret:         testJWTSecret,
		AllowSelfApproval: true,
		Paging:            Paging{DefaultPerPage: 15, MaxPerPage: 100},
		Metrics:           m,
		ExposeMetrics:     true,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	north, err := store.CreateInstitute(ctx, database, "North School", "north")
	if err != nil {
		t.Fatalf("creating institute: %v", err)
	}
	south, err := store.CreateInstitute(ctx, database, "South School", "south")
	if err != nil {
		t.Fatalf("creating institute: %v", err)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	token := func(inst *model.Institute, username, role string) string {
		t.Helper()
		u, err := store.CreateUser(ctx, database, inst.ID, username, string(hash), role)
		if err != nil {
			t.Fatalf("creating user %s: %v", username, err)
		}
		tok, err := auth.GenerateToken(testJWTSecret, u, 0)
		if err != nil {
			t.Fatalf("generating token: %v", err)
		}
		return tok
	}

	env := &testEnv{server: server, metrics: m}
	store.CreateUser(ctx, database, north.ID, "admin", string(hash), model.RoleAdmin)
	env.admin = login(t, server, "admin", testPassword)
	env.vice = token(north, "vice", model.RoleVicePrincipal)
	env.staff = token(north, "staff", model.RoleStaff)
	env.otherAdmin = token(south, "south-admin", model.RoleAdmin)
	return env
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var env struct {
		Data loginResponse `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&env)
	if env.Data.Token == "" {
		t.Fatal("empty token from login")
	}
	return env.Data.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader io.Reader = bytes.NewReader(nil)
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

type response struct {
	code    int
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call sends a request and decodes the envelope.
func (e *testEnv) call(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	req, err := authRequest(method, e.server.URL+path, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	r := response{code: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("%s %s: decoding envelope: %v", method, path, err)
	}
	return r
}

// mustCall is call that fails the test unless the status code matches.
func (e *testEnv) mustCall(t *testing.T, want int, method, path, token string, body any, out any) response {
	t.Helper()
	r := e.call(t, method, path, token, body)
	if r.code != want {
		t.Fatalf("%s %s: expected %d, got %d (%s)", method, path, want, r.code, r.Message)
	}
	if out != nil {
		if err := json.Unmarshal(r.Data, out); err != nil {
			t.Fatalf("%s %s: decoding data: %v", method, path, err)
		}
	}
	return r
}

// seedStock creates a room, an asset master and an inventory row as the admin.
func (e *testEnv) seedStock(t *testing.T, quantity int) (room model.Room, inv model.Inventory) {
	t.Helper()
	e.mustCall(t, http.StatusCreated, "POST", "/api/rooms", e.admin, map[string]any{"name": "Lab 1"}, &room)

	var am model.AssetMaster
	e.mustCall(t, http.StatusCreated, "POST", "/api/asset-masters", e.admin, map[string]any{"name": "Chair"}, &am)

	e.mustCall(t, http.StatusCreated, "POST", "/api/inventory", e.admin, map[string]any{
		"room_id":         room.ID,
		"asset_master_id": am.ID,
		"quantity":        quantity,
		"status":          "Active Stock",
		"purchase_date":   "2024-09-01",
		"purchase_price":  "1200.00",
	}, &inv)
	return room, inv
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	r := env.call(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	if r.code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", r.code)
	}
	if r.Status {
		t.Error("expected status false in error envelope")
	}

	r = env.call(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin"})
	if r.code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for missing password, got %d", r.code)
	}

	var me model.User
	r = env.mustCall(t, http.StatusOK, "GET", "/api/auth/me", env.admin, nil, &me)
	if !r.Status {
		t.Error("expected status true in success envelope")
	}
	if me.Username != "admin" || me.Role != model.RoleAdmin {
		t.Errorf("unexpected user: %+v", me)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	if r := env.call(t, "GET", "/api/inventory", "", nil); r.code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", r.code)
	}
	if r := env.call(t, "GET", "/api/inventory", "not-a-token", nil); r.code != http.StatusUnauthorized {
		t.Errorf("expected 401 for garbage token, got %d", r.code)
	}
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)

	// Staff cannot manage rooms (viceprincipal+ required).
	if r := env.call(t, "POST", "/api/rooms", env.staff, map[string]string{"name": "Lab"}); r.code != http.StatusForbidden {
		t.Errorf("expected 403 for staff creating room, got %d", r.code)
	}

	// Only admins manage users.
	if r := env.call(t, "GET", "/api/users", env.vice, nil); r.code != http.StatusForbidden {
		t.Errorf("expected 403 for vice principal listing users, got %d", r.code)
	}

	// Vice principals manage rooms.
	env.mustCall(t, http.StatusCreated, "POST", "/api/rooms", env.vice, map[string]string{"name": "Lab"}, nil)
}

func TestListPagination(t *testing.T) {
	env := setupTestServer(t)

	for i := 1; i <= 3; i++ {
		env.mustCall(t, http.StatusCreated, "POST", "/api/rooms", env.admin, map[string]string{"name": fmt.Sprintf("Room %d", i)}, nil)
	}

	var list struct {
		Rooms      []model.Room     `json:"Rooms"`
		Pagination model.Pagination `json:"Pagination"`
	}
	env.mustCall(t, http.StatusOK, "GET", "/api/rooms?per_page=2&page=2", env.staff, nil, &list)
	if len(list.Rooms) != 1 {
		t.Errorf("expected 1 room on page 2, got %d", len(list.Rooms))
	}
	if list.Pagination.Total != 3 || list.Pagination.LastPage != 2 || list.Pagination.CurrentPage != 2 {
		t.Errorf("unexpected pagination: %+v", list.Pagination)
	}
}

func TestScrapSplitAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	_, inv := env.seedStock(t, 50)

	var res struct {
		Inventory        model.Inventory  `json:"Inventory"`
		ScrapedInventory *model.Inventory `json:"ScrapedInventory"`
	}
	env.mustCall(t, http.StatusOK, "PUT", fmt.Sprintf("/api/inventory/%d", inv.ID), env.staff, map[string]any{
		"status":           "Scraped",
		"scraped_quantity": 20,
		"scraped_amount":   "150.50",
	}, &res)

	if res.Inventory.Quantity != 30 || res.Inventory.Status != model.StatusActiveStock {
		t.Errorf("unexpected original row: quantity %d status %s", res.Inventory.Quantity, res.Inventory.Status)
	}
	if res.ScrapedInventory == nil {
		t.Fatal("expected a scraped row")
	}
	if res.ScrapedInventory.Quantity != 20 || res.ScrapedInventory.Status != model.StatusScraped {
		t.Errorf("unexpected scraped row: quantity %d status %s", res.ScrapedInventory.Quantity, res.ScrapedInventory.Status)
	}
	if res.ScrapedInventory.ScrapedAmount.Decimal.String() != "150.5" {
		t.Errorf("expected scraped amount 150.5, got %s", res.ScrapedInventory.ScrapedAmount.Decimal)
	}
}

func TestInventoryValidation(t *testing.T) {
	env := setupTestServer(t)
	_, inv := env.seedStock(t, 5)
	path := fmt.Sprintf("/api/inventory/%d", inv.ID)

	r := env.call(t, "PUT", path, env.staff, map[string]any{"status": "sold"})
	if r.code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d", r.code)
	}
	var fields map[string]string
	json.Unmarshal(r.Data, &fields)
	if fields["status"] == "" {
		t.Errorf("expected a status field error, got %v", fields)
	}

	if r := env.call(t, "PUT", path, env.staff, map[string]any{"purchase_price": "-1"}); r.code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for negative price, got %d", r.code)
	}
	if r := env.call(t, "GET", "/api/inventory/abc", env.staff, nil); r.code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", r.code)
	}
	if r := env.call(t, "GET", "/api/inventory/9999", env.staff, nil); r.code != http.StatusNotFound {
		t.Errorf("expected 404 for missing row, got %d", r.code)
	}
}

func TestClearPurchaseDateAPI(t *testing.T) {
	env := setupTestServer(t)
	_, inv := env.seedStock(t, 5)
	if inv.PurchaseDate == nil {
		t.Fatal("expected seeded purchase date")
	}

	var res struct {
		Inventory model.Inventory `json:"Inventory"`
	}
	env.mustCall(t, http.StatusOK, "PUT", fmt.Sprintf("/api/inventory/%d", inv.ID), env.staff, map[string]any{
		"purchase_date": "",
	}, &res)
	if res.Inventory.PurchaseDate != nil {
		t.Errorf("expected purchase date cleared, got %v", *res.Inventory.PurchaseDate)
	}
}

func TestTransferAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	_, inv := env.seedStock(t, 10)

	var room2 model.Room
	env.mustCall(t, http.StatusCreated, "POST", "/api/rooms", env.admin, map[string]any{"name": "Lab 2"}, &room2)

	r := env.call(t, "POST", "/api/transfers", env.staff, map[string]any{
		"inventory_id":        inv.ID,
		"target_type":         "room",
		"destination_room_id": room2.ID,
		"quantity":            11,
	})
	if r.code != http.StatusConflict || r.Message != "insufficient quantity" {
		t.Fatalf("expected 409 insufficient quantity, got %d %q", r.code, r.Message)
	}

	var tr model.Transfer
	env.mustCall(t, http.StatusCreated, "POST", "/api/transfers", env.staff, map[string]any{
		"inventory_id":        inv.ID,
		"target_type":         "room",
		"destination_room_id": room2.ID,
		"quantity":            10,
	}, &tr)
	approve := fmt.Sprintf("/api/transfers/%d/approve", tr.ID)

	if r := env.call(t, "POST", approve, env.staff, nil); r.code != http.StatusForbidden {
		t.Errorf("expected 403 for staff approving, got %d", r.code)
	}

	env.mustCall(t, http.StatusOK, "POST", approve, env.vice, nil, &tr)
	if tr.Status != model.ApprovalApproved || tr.ApprovedBy == nil {
		t.Errorf("unexpected transfer after approval: %+v", tr)
	}

	r = env.call(t, "POST", approve, env.vice, nil)
	if r.code != http.StatusConflict || r.Message != "already processed" {
		t.Errorf("expected 409 already processed, got %d %q", r.code, r.Message)
	}

	var moved model.Inventory
	env.mustCall(t, http.StatusOK, "GET", fmt.Sprintf("/api/inventory/%d", inv.ID), env.staff, nil, &moved)
	if moved.RoomID == nil || *moved.RoomID != room2.ID || moved.Quantity != 10 {
		t.Errorf("expected row relocated to room %d with 10 units, got %+v", room2.ID, moved)
	}
}

func TestRequisitionAPIFlow(t *testing.T) {
	env := setupTestServer(t)

	var am model.AssetMaster
	env.mustCall(t, http.StatusCreated, "POST", "/api/asset-masters", env.admin, map[string]any{"name": "Projector"}, &am)

	var rq model.Requisition
	env.mustCall(t, http.StatusCreated, "POST", "/api/requisitions", env.staff, map[string]any{
		"asset_master_id": am.ID,
		"description":     "For room 4",
	}, &rq)
	path := fmt.Sprintf("/api/requisitions/%d", rq.ID)

	if r := env.call(t, "POST", path+"/approve", env.staff, nil); r.code != http.StatusForbidden {
		t.Errorf("expected 403 for staff approving, got %d", r.code)
	}
	if r := env.call(t, "POST", path+"/reject", env.admin, map[string]string{"comments": " "}); r.code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for rejection without comments, got %d", r.code)
	}
	if r := env.call(t, "GET", "/api/requisitions?queue=approval", env.staff, nil); r.code != http.StatusForbidden {
		t.Errorf("expected 403 for staff approval queue, got %d", r.code)
	}

	var queue struct {
		Requisitions []model.Requisition `json:"Requisitions"`
	}
	env.mustCall(t, http.StatusOK, "GET", "/api/requisitions?queue=approval", env.admin, nil, &queue)
	if len(queue.Requisitions) != 1 {
		t.Errorf("expected 1 requisition awaiting approval, got %d", len(queue.Requisitions))
	}

	env.mustCall(t, http.StatusOK, "PUT", path, env.admin, map[string]any{"status": "approved"}, &rq)
	if rq.Status != model.ApprovalApproved {
		t.Errorf("expected approved, got %s", rq.Status)
	}

	if r := env.call(t, "POST", path+"/reject", env.admin, map[string]string{"comments": "late"}); r.code != http.StatusConflict {
		t.Errorf("expected 409 deciding twice, got %d", r.code)
	}
	if r := env.call(t, "DELETE", path, env.staff, nil); r.code != http.StatusConflict {
		t.Errorf("expected 409 withdrawing a decided requisition, got %d", r.code)
	}
}

func TestTenantIsolation(t *testing.T) {
	env := setupTestServer(t)
	room, inv := env.seedStock(t, 3)

	if r := env.call(t, "GET", fmt.Sprintf("/api/inventory/%d", inv.ID), env.otherAdmin, nil); r.code != http.StatusNotFound {
		t.Errorf("expected 404 for another institute's inventory, got %d", r.code)
	}
	if r := env.call(t, "DELETE", fmt.Sprintf("/api/rooms/%d", room.ID), env.otherAdmin, nil); r.code != http.StatusNotFound {
		t.Errorf("expected 404 deleting another institute's room, got %d", r.code)
	}

	var list struct {
		Inventory []model.Inventory `json:"Inventory"`
	}
	env.mustCall(t, http.StatusOK, "GET", "/api/inventory", env.otherAdmin, nil, &list)
	if len(list.Inventory) != 0 {
		t.Errorf("expected empty inventory for other institute, got %d rows", len(list.Inventory))
	}
}

func TestRequestID(t *testing.T) {
	env := setupTestServer(t)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req, _ := http.NewRequest("GET", env.server.URL+"/health", nil)
	req.Header.Set(RequestIDHeader, "trace-123")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "trace-123" {
		t.Errorf("expected echoed request id, got %q", got)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)
	token := login(t, env.server, "admin", testPassword)

	env.mustCall(t, http.StatusOK, "POST", "/api/auth/logout", token, nil, nil)

	r := env.call(t, "GET", "/api/auth/me", token, nil)
	if r.code != http.StatusUnauthorized {
		t.Errorf("expected 401 for revoked token, got %d", r.code)
	}

	// Other sessions stay valid.
	env.mustCall(t, http.StatusOK, "GET", "/api/auth/me", env.admin, nil, nil)
}

func TestInventoryExport(t *testing.T) {
	env := setupTestServer(t)
	env.seedStock(t, 4)

	req, _ := authRequest("GET", env.server.URL+"/api/inventory/export", env.staff, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("export request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("PK")) {
		t.Error("expected a zip based workbook")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	env.seedStock(t, 1)

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`zavod_http_requests_total{method="POST",path="POST /api/inventory",status="201"} 1`,
		`zavod_inventory_operations_total{operation="create"} 1`,
		`zavod_logins_total{result="success"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
