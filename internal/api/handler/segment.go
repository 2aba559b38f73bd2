package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/strokeworks/strokeseg/internal/api/response"
	"github.com/strokeworks/strokeseg/internal/jobs"
)

// Enqueuer creates a job and starts its segmentation run.
type Enqueuer interface {
	Enqueue(ctx context.Context, caseID string, fast bool) (jobs.Job, error)
}

// ActiveCounter reports how many jobs are pending or running.
type ActiveCounter interface {
	ActiveCount() int
}

// NewCreateSegmentHandler returns the handler for POST /api/segment.
// Inference takes tens of seconds, far beyond what a gateway will hold
// a connection open for, so the handler only registers the job and
// replies 202; callers poll the job endpoint for progress and results.
func NewCreateSegmentHandler(svc Enqueuer, active ActiveCounter, maxConcurrent int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CaseID   string `json:"caseId"`
			FastMode *bool  `json:"fastMode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.CaseID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "caseId is required", nil)
			return
		}
		if !jobs.IsSafeID(req.CaseID) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"caseId may only contain letters, digits, hyphens and underscores", nil)
			return
		}

		fast := true
		if req.FastMode != nil {
			fast = *req.FastMode
		}

		// Best-effort admission check. A burst between the check and
		// the create can briefly exceed the cap; that is acceptable
		// for a demo deployment and keeps the registry lock simple.
		if active.ActiveCount() >= maxConcurrent {
			response.Error(w, http.StatusServiceUnavailable, "SERVER_BUSY",
				"Too many segmentation jobs in flight, try again shortly", nil)
			return
		}

		job, err := svc.Enqueue(r.Context(), req.CaseID, fast)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create segmentation job", nil)
			return
		}

		response.Accepted(w, createJobResponse{
			JobID:   job.ID,
			Status:  string(job.Status),
			Message: fmt.Sprintf("Segmentation job queued for %s", req.CaseID),
		})
	}
}

type createJobResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
