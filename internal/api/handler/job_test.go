package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strokeworks/strokeseg/internal/jobs"
)

type mapJobGetter map[string]jobs.Job

func (m mapJobGetter) Get(id string) (jobs.Job, bool) {
	j, ok := m[id]
	return j, ok
}

func jobStatusReq(jobID string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", jobID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestJobStatus_NotFound(t *testing.T) {
	h := NewJobStatusHandler(mapJobGetter{})

	rec := httptest.NewRecorder()
	h(rec, jobStatusReq("missing1"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "JOB_NOT_FOUND" {
		t.Errorf("code = %q", code)
	}
}

func TestJobStatus_Pending(t *testing.T) {
	h := NewJobStatusHandler(mapJobGetter{
		"job1": {ID: "job1", Status: jobs.StatusPending, Progress: 0, ProgressMessage: "Queued"},
	})

	rec := httptest.NewRecorder()
	h(rec, jobStatusReq("job1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["status"] != "pending" {
		t.Errorf("status = %v", data["status"])
	}
	// Not started: no elapsed time, no result, no error.
	for _, absent := range []string{"elapsedSeconds", "result", "error"} {
		if _, ok := data[absent]; ok {
			t.Errorf("%s should be omitted for a pending job", absent)
		}
	}
}

func TestJobStatus_RunningHasElapsed(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	h := NewJobStatusHandler(mapJobGetter{
		"job1": {
			ID: "job1", Status: jobs.StatusRunning,
			Progress: 30, ProgressMessage: "Running DeepISLES inference...",
			StartedAt: &started,
		},
	})

	rec := httptest.NewRecorder()
	h(rec, jobStatusReq("job1"))

	data := decodeData(t, rec)
	elapsed, ok := data["elapsedSeconds"].(float64)
	if !ok || elapsed < 1.5 {
		t.Errorf("elapsedSeconds = %v", data["elapsedSeconds"])
	}
	if data["progress"] != float64(30) {
		t.Errorf("progress = %v", data["progress"])
	}
}

func TestJobStatus_CompletedIncludesResult(t *testing.T) {
	started := time.Now().Add(-10 * time.Second)
	completed := time.Now()
	dice := 0.87
	h := NewJobStatusHandler(mapJobGetter{
		"job1": {
			ID: "job1", Status: jobs.StatusCompleted,
			Progress: 100, ProgressMessage: "Segmentation complete",
			StartedAt: &started, CompletedAt: &completed,
			Result: &jobs.SegmentationResult{
				CaseID:        "sub-stroke0001",
				DiceScore:     &dice,
				PredictionURL: "http://localhost/files/job1/sub-stroke0001/lesion_msk.nii.gz",
			},
		},
	})

	rec := httptest.NewRecorder()
	h(rec, jobStatusReq("job1"))

	data := decodeData(t, rec)
	result, ok := data["result"].(map[string]any)
	if !ok {
		t.Fatalf("result missing: %v", data)
	}
	if result["caseId"] != "sub-stroke0001" {
		t.Errorf("caseId = %v", result["caseId"])
	}
	if result["diceScore"] != 0.87 {
		t.Errorf("diceScore = %v", result["diceScore"])
	}
	if _, ok := data["error"]; ok {
		t.Error("error should be omitted for a completed job")
	}
}

func TestJobStatus_FailedIncludesError(t *testing.T) {
	started := time.Now().Add(-time.Second)
	completed := time.Now()
	h := NewJobStatusHandler(mapJobGetter{
		"job1": {
			ID: "job1", Status: jobs.StatusFailed,
			Progress: 30, ProgressMessage: "Error occurred",
			StartedAt: &started, CompletedAt: &completed,
			Err: "model exploded",
		},
	})

	rec := httptest.NewRecorder()
	h(rec, jobStatusReq("job1"))

	data := decodeData(t, rec)
	if data["error"] != "model exploded" {
		t.Errorf("error = %v", data["error"])
	}
	if _, ok := data["result"]; ok {
		t.Error("result should be omitted for a failed job")
	}
	if data["progress"] != float64(30) {
		t.Errorf("progress = %v", data["progress"])
	}
}
