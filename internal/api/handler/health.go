package handler

import (
	"net/http"
	"os"

	"github.com/strokeworks/strokeseg/internal/api/response"
)

// JobCounter reports how many jobs the registry currently holds.
type JobCounter interface {
	Len() int
}

// NewRootHandler returns the handler for GET /, a minimal liveness
// probe that also advertises the service identity.
func NewRootHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"status":   "healthy",
			"service":  "strokeseg-api",
			"version":  version,
			"features": []string{"async-jobs", "progress-tracking"},
		})
	}
}

// NewHealthHandler returns the handler for GET /health with registry
// and storage details.
func NewHealthHandler(countJobs JobCounter, resultsDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, statErr := os.Stat(resultsDir)
		response.JSON(w, map[string]any{
			"status":           "healthy",
			"jobsInMemory":     countJobs.Len(),
			"resultsDir":       resultsDir,
			"resultsDirExists": statErr == nil,
		})
	}
}
