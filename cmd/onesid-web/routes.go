package main

import (
	"net/http"

	onesid "github.com/MDR-Advocacia/OneSid"
	"github.com/MDR-Advocacia/OneSid/internal/storage"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *onesid.Engine, cfg *storage.Config) http.Handler {
	mux := http.NewServeMux()

	h := &handlers{engine: engine, cfg: cfg, auth: newAuth(cfg)}

	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/logout", h.handleLogout)
	mux.HandleFunc("GET /api/profile", h.handleProfile)

	mux.HandleFunc("GET /api/painel", h.requireUser(h.handlePanel))
	mux.HandleFunc("GET /api/historico", h.requireUser(h.handleHistory))
	mux.HandleFunc("POST /api/add-process", h.requireUser(h.handleAddProcess))
	mux.HandleFunc("POST /api/import-legal-one", h.requireUser(h.handleImportLegalOne))
	mux.HandleFunc("POST /api/marcar-ciencia", h.requireUser(h.handleAcknowledge))

	mux.HandleFunc("GET /api/itens-relevantes", h.requireUser(h.handleCatalogList))
	mux.HandleFunc("PUT /api/itens-relevantes", h.requireAdmin(h.handleCatalogReplace))
	mux.HandleFunc("GET /api/preferencias", h.requireUser(h.handlePreferences))
	mux.HandleFunc("PUT /api/preferencias/{itemID}", h.requireUser(h.handleSetPreference))

	return mux
}
