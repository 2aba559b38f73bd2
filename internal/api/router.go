package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/strokeworks/strokeseg/internal/api/middleware"
	"github.com/strokeworks/strokeseg/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	AllowedOrigins []string

	RootHandler   http.HandlerFunc
	HealthHandler http.HandlerFunc
	ListCases     http.HandlerFunc
	CreateSegment http.HandlerFunc
	JobStatus     http.HandlerFunc
	ServeFile     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.CORS(deps.AllowedOrigins))

	r.Get("/", orNotImplemented(deps.RootHandler))
	r.Get("/health", orNotImplemented(deps.HealthHandler))

	r.Route("/api", func(r chi.Router) {
		r.Get("/cases", orNotImplemented(deps.ListCases))
		r.Post("/segment", orNotImplemented(deps.CreateSegment))
		r.Get("/jobs/{jobID}", orNotImplemented(deps.JobStatus))
	})

	// Result files go through the same middleware stack so CORS and
	// CORP headers reach the viewer's binary fetches.
	r.Get("/files/{jobID}/{caseID}/{filename}", orNotImplemented(deps.ServeFile))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
