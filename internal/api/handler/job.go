package handler

import (
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strokeworks/strokeseg/internal/api/response"
	"github.com/strokeworks/strokeseg/internal/jobs"
)

// JobGetter looks up a job by id.
type JobGetter interface {
	Get(id string) (jobs.Job, bool)
}

type jobStatusResponse struct {
	JobID           string                   `json:"jobId"`
	Status          string                   `json:"status"`
	Progress        int                      `json:"progress"`
	ProgressMessage string                   `json:"progressMessage"`
	ElapsedSeconds  *float64                 `json:"elapsedSeconds,omitempty"`
	Result          *jobs.SegmentationResult `json:"result,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

// NewJobStatusHandler returns the handler for GET /api/jobs/{jobID}.
func NewJobStatusHandler(store JobGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		job, ok := store.Get(jobID)
		if !ok {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND",
				"Job not found. Jobs expire one hour after completion.", nil)
			return
		}

		resp := jobStatusResponse{
			JobID:           job.ID,
			Status:          string(job.Status),
			Progress:        job.Progress,
			ProgressMessage: job.ProgressMessage,
		}
		if job.StartedAt != nil {
			elapsed := math.Round(job.ElapsedSeconds()*100) / 100
			resp.ElapsedSeconds = &elapsed
		}
		if job.Status == jobs.StatusCompleted {
			resp.Result = job.Result
		}
		if job.Status == jobs.StatusFailed {
			resp.Error = job.Err
		}

		response.JSON(w, resp)
	}
}
