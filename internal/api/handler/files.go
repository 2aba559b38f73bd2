package handler

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/strokeworks/strokeseg/internal/api/response"
	"github.com/strokeworks/strokeseg/internal/jobs"
)

// NewFileHandler returns the handler for GET /files/{jobID}/{caseID}/{filename}.
// It serves NIfTI result volumes from the results directory. Serving
// goes through http.ServeFile so Range requests work; the viewer
// fetches volumes with partial content requests.
func NewFileHandler(resultsDir string, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		caseID := chi.URLParam(r, "caseID")
		filename := chi.URLParam(r, "filename")

		if !jobs.IsSafeID(jobID) || !jobs.IsSafeID(caseID) || !safeFilename(filename) {
			logger.Warn("file request with unsafe path components blocked")
			response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
			return
		}

		base, err := filepath.Abs(resultsDir)
		if err != nil {
			response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
			return
		}
		path := filepath.Join(base, jobID, caseID, filename)
		if !pathWithin(base, path) {
			logger.Warn("file request escaping results dir blocked")
			response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found", nil)
			return
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			response.Error(w, http.StatusNotFound, "FILE_NOT_FOUND",
				"File not found. The job may have expired.", nil)
			return
		}

		switch {
		case strings.HasSuffix(filename, ".nii.gz"):
			w.Header().Set("Content-Type", "application/gzip")
		default:
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		http.ServeFile(w, r, path)
	}
}

// safeFilename accepts plain NIfTI file names, nothing that could walk
// the tree.
func safeFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	return strings.HasSuffix(name, ".nii") || strings.HasSuffix(name, ".nii.gz")
}

func pathWithin(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
