package api

import (
	"net/http"

	"github.com/heshamtamer/RPM/internal/auth"
	"github.com/heshamtamer/RPM/internal/health"
	"github.com/heshamtamer/RPM/internal/metrics"
)

type Router struct {
	mux             *http.ServeMux
	authHandlers    *auth.Handlers
	authService     *auth.Service
	patientHandlers *PatientHandlers
	healthChecker   *health.Checker
}

func NewRouter(authHandlers *auth.Handlers, authService *auth.Service, patientHandlers *PatientHandlers, healthChecker *health.Checker) *Router {
	r := &Router{
		mux:             http.NewServeMux(),
		authHandlers:    authHandlers,
		authService:     authService,
		patientHandlers: patientHandlers,
		healthChecker:   healthChecker,
	}
	r.setupRoutes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	// Operational endpoints
	r.mux.HandleFunc("GET /health", r.healthChecker.Handler())
	r.mux.HandleFunc("GET /metrics", metrics.Default().Handler())

	// User routes (no auth required)
	r.mux.HandleFunc("POST /api/users/register", r.authHandlers.Register)
	r.mux.HandleFunc("POST /api/users/login", r.authHandlers.Login)
	r.mux.HandleFunc("POST /api/users/refresh-token", r.authHandlers.Refresh)

	// User routes (auth required)
	r.mux.HandleFunc("GET /api/users/current", r.withAuth(r.authHandlers.CurrentUser))
	r.mux.HandleFunc("POST /api/users/logout", r.withAuth(r.authHandlers.Logout))

	// Patient routes (auth required, scoped to the authenticated user)
	r.mux.HandleFunc("GET /api/patients", r.withAuth(r.patientHandlers.List))
	r.mux.HandleFunc("POST /api/patients", r.withAuth(r.patientHandlers.Create))
	r.mux.HandleFunc("GET /api/patients/{id}", r.withAuth(r.patientHandlers.Get))
	r.mux.HandleFunc("PUT /api/patients/{id}", r.withAuth(r.patientHandlers.Update))
	r.mux.HandleFunc("DELETE /api/patients/{id}", r.withAuth(r.patientHandlers.Delete))

	// Device attach/detach (auth required)
	r.mux.HandleFunc("POST /api/patients/{id}/devices", r.withAuth(r.patientHandlers.AddDevice))
	r.mux.HandleFunc("DELETE /api/patients/{id}/devices", r.withAuth(r.patientHandlers.RemoveDevice))
}

func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	middleware := auth.Middleware(r.authService)
	return func(w http.ResponseWriter, req *http.Request) {
		middleware(http.HandlerFunc(next)).ServeHTTP(w, req)
	}
}
