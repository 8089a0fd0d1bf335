package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/zavod/internal/metrics"
	"github.com/erazemk/zavod/internal/model"
)

// Options configures the API router.
type Options struct {
	DB                *sql.DB
	JWTSecret         string
	TokenTTL          time.Duration
	AllowSelfApproval bool
	Paging            Paging
	// Metrics may be nil. ExposeMetrics serves it at /metrics on this router.
	Metrics       *metrics.Metrics
	ExposeMetrics bool
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()
	db := opts.DB

	authHandler := &AuthHandler{DB: db, JWTSecret: opts.JWTSecret, TokenTTL: opts.TokenTTL, Metrics: opts.Metrics}
	usersHandler := &UsersHandler{DB: db, Paging: opts.Paging}
	institutesHandler := &InstitutesHandler{DB: db}
	roomsHandler := &RoomsHandler{DB: db, Paging: opts.Paging}
	catalogHandler := &CatalogHandler{DB: db, Paging: opts.Paging}
	inventoryHandler := &InventoryHandler{DB: db, Paging: opts.Paging, Metrics: opts.Metrics}
	transfersHandler := &TransfersHandler{DB: db, Paging: opts.Paging, Metrics: opts.Metrics}
	requisitionsHandler := &RequisitionsHandler{
		DB: db, Paging: opts.Paging, Metrics: opts.Metrics,
		AllowSelfApproval: opts.AllowSelfApproval,
	}

	authMW := AuthMiddleware(opts.JWTSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireVP := RequireRole(model.RoleVicePrincipal)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, "ok", nil)
	})
	if opts.ExposeMetrics && opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("GET /api/auth/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Institute directory (all roles).
	mux.Handle("GET /api/institutes", authMW(http.HandlerFunc(institutesHandler.List)))
	mux.Handle("GET /api/institutes/{id}", authMW(http.HandlerFunc(institutesHandler.Get)))

	// Rooms: read (all roles), write (viceprincipal+).
	mux.Handle("GET /api/rooms", authMW(http.HandlerFunc(roomsHandler.List)))
	mux.Handle("POST /api/rooms", authMW(requireVP(http.HandlerFunc(roomsHandler.Create))))
	mux.Handle("GET /api/rooms/{id}", authMW(http.HandlerFunc(roomsHandler.Get)))
	mux.Handle("PUT /api/rooms/{id}", authMW(requireVP(http.HandlerFunc(roomsHandler.Update))))
	mux.Handle("DELETE /api/rooms/{id}", authMW(requireVP(http.HandlerFunc(roomsHandler.Delete))))
	mux.Handle("GET /api/rooms/{id}/inventory", authMW(http.HandlerFunc(roomsHandler.Inventory)))

	// Catalog: read (all roles), write (viceprincipal+).
	mux.Handle("GET /api/categories", authMW(http.HandlerFunc(catalogHandler.ListCategories)))
	mux.Handle("POST /api/categories", authMW(requireVP(http.HandlerFunc(catalogHandler.CreateCategory))))
	mux.Handle("PUT /api/categories/{id}", authMW(requireVP(http.HandlerFunc(catalogHandler.UpdateCategory))))
	mux.Handle("DELETE /api/categories/{id}", authMW(requireVP(http.HandlerFunc(catalogHandler.DeleteCategory))))
	mux.Handle("GET /api/asset-masters", authMW(http.HandlerFunc(catalogHandler.ListAssetMasters)))
	mux.Handle("POST /api/asset-masters", authMW(requireVP(http.HandlerFunc(catalogHandler.CreateAssetMaster))))
	mux.Handle("GET /api/asset-masters/{id}", authMW(http.HandlerFunc(catalogHandler.GetAssetMaster)))
	mux.Handle("PUT /api/asset-masters/{id}", authMW(requireVP(http.HandlerFunc(catalogHandler.UpdateAssetMaster))))
	mux.Handle("DELETE /api/asset-masters/{id}", authMW(requireVP(http.HandlerFunc(catalogHandler.DeleteAssetMaster))))
	mux.Handle("GET /api/asset-masters/{id}/distribution", authMW(http.HandlerFunc(catalogHandler.Distribution)))

	// Inventory: all roles record and edit stock, deletion is viceprincipal+.
	mux.Handle("GET /api/inventory", authMW(http.HandlerFunc(inventoryHandler.List)))
	mux.Handle("POST /api/inventory", authMW(http.HandlerFunc(inventoryHandler.Create)))
	mux.Handle("GET /api/inventory/export", authMW(http.HandlerFunc(inventoryHandler.Export)))
	mux.Handle("GET /api/inventory/{id}", authMW(http.HandlerFunc(inventoryHandler.Get)))
	mux.Handle("PUT /api/inventory/{id}", authMW(http.HandlerFunc(inventoryHandler.Update)))
	mux.Handle("DELETE /api/inventory/{id}", authMW(requireVP(http.HandlerFunc(inventoryHandler.Delete))))

	// Transfers: any role requests, viceprincipal+ decides.
	mux.Handle("POST /api/transfers", authMW(http.HandlerFunc(transfersHandler.Create)))
	mux.Handle("GET /api/transfers", authMW(http.HandlerFunc(transfersHandler.List)))
	mux.Handle("GET /api/transfers/{id}", authMW(http.HandlerFunc(transfersHandler.Get)))
	mux.Handle("POST /api/transfers/{id}/approve", authMW(requireVP(http.HandlerFunc(transfersHandler.Approve))))
	mux.Handle("POST /api/transfers/{id}/reject", authMW(requireVP(http.HandlerFunc(transfersHandler.Reject))))

	// Requisitions: any role requests, admin decides.
	mux.Handle("GET /api/requisitions", authMW(http.HandlerFunc(requisitionsHandler.List)))
	mux.Handle("POST /api/requisitions", authMW(http.HandlerFunc(requisitionsHandler.Create)))
	mux.Handle("GET /api/requisitions/{id}", authMW(http.HandlerFunc(requisitionsHandler.Get)))
	mux.Handle("PUT /api/requisitions/{id}", authMW(http.HandlerFunc(requisitionsHandler.Update)))
	mux.Handle("DELETE /api/requisitions/{id}", authMW(http.HandlerFunc(requisitionsHandler.Delete)))
	mux.Handle("POST /api/requisitions/{id}/approve", authMW(requireAdmin(http.HandlerFunc(requisitionsHandler.Approve))))
	mux.Handle("POST /api/requisitions/{id}/reject", authMW(requireAdmin(http.HandlerFunc(requisitionsHandler.Reject))))

	var h http.Handler = mux
	if opts.Metrics != nil {
		h = opts.Metrics.Middleware(h)
	}
	return RequestIDMiddleware(LoggingMiddleware(h))
}
