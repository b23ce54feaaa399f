package api

import (
	"net/http"

	"github.com/linkpulse/collector/internal/auth"
	"github.com/linkpulse/collector/internal/health"
	"github.com/linkpulse/collector/internal/metrics"
	"github.com/linkpulse/collector/internal/websocket"
)

type Router struct {
	mux          *http.ServeMux
	handlers     *Handlers
	authHandlers *auth.Handlers
	authService  *auth.Service
	wsHandler    *websocket.Handler
	health       *health.Handler
}

func NewRouter(handlers *Handlers, authHandlers *auth.Handlers, authService *auth.Service, wsHandler *websocket.Handler, healthHandler *health.Handler) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		handlers:     handlers,
		authHandlers: authHandlers,
		authService:  authService,
		wsHandler:    wsHandler,
		health:       healthHandler,
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Health check and metrics (no auth required)
	r.mux.HandleFunc("GET /health", r.health.HealthHandler)
	r.mux.HandleFunc("GET /metrics", metrics.Default().Handler())

	// Auth routes (no auth required)
	r.mux.HandleFunc("POST /api/v1/auth/token", r.authHandlers.Token)

	// Run control (auth required)
	r.mux.HandleFunc("POST /api/v1/runs/personal", r.withAuth(r.handlers.TriggerPersonal))
	r.mux.HandleFunc("POST /api/v1/runs/company", r.withAuth(r.handlers.TriggerCompany))
	r.mux.HandleFunc("GET /api/v1/runs", r.withAuth(r.handlers.Runs))

	// Configuration and status (auth required)
	r.mux.HandleFunc("PUT /api/v1/schedule", r.withAuth(r.handlers.UpdateSchedule))
	r.mux.HandleFunc("GET /api/v1/status", r.withAuth(r.handlers.Status))
	r.mux.HandleFunc("GET /api/v1/summary", r.withAuth(r.handlers.Summary))

	// One-off operations (auth required)
	r.mux.HandleFunc("POST /api/v1/export/download", r.withAuth(r.handlers.ExportDownload))
	r.mux.HandleFunc("POST /api/v1/export/upload", r.withAuth(r.handlers.ExportUpload))
	r.mux.HandleFunc("POST /api/v1/sheet/extract", r.withAuth(r.handlers.SheetExtract))
	r.mux.HandleFunc("POST /api/v1/compose", r.withAuth(r.handlers.Compose))

	// Progress stream (token validated in the handler)
	r.mux.HandleFunc("GET /ws/progress", r.wsHandler.ServeWS)
}

func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	middleware := auth.Middleware(r.authService)
	return func(w http.ResponseWriter, req *http.Request) {
		middleware(http.HandlerFunc(next)).ServeHTTP(w, req)
	}
}
