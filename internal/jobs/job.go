// Package jobs tracks asynchronous segmentation jobs in memory.
//
// The API returns a jobId on POST /api/segment; the client polls
// GET /api/jobs/{jobId} until status is completed or failed. Jobs are
// ephemeral: the process keeps them in a map and a background sweep
// evicts terminal jobs (and their result files) after a TTL.
package jobs

import "time"

// Status is the lifecycle state of a job. Transitions are one-directional:
// pending -> running -> completed|failed. Completed and failed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SegmentationResult is the payload attached to a completed job.
// DiceScore and VolumeML are nil when ground truth was unavailable or
// the metric computation failed.
type SegmentationResult struct {
	CaseID         string   `json:"caseId"`
	DiceScore      *float64 `json:"diceScore"`
	VolumeML       *float64 `json:"volumeMl"`
	ElapsedSeconds float64  `json:"elapsedSeconds"`
	DWIURL         string   `json:"dwiUrl"`
	PredictionURL  string   `json:"predictionUrl"`
}

// Job is one tracked segmentation request. Jobs are created and mutated
// only through Store operations; Store.Get hands out copies, so holding a
// Job never aliases store state.
//
// Result is non-nil iff Status is completed; Err is non-empty iff Status
// is failed.
type Job struct {
	ID              string
	Status          Status
	CaseID          string
	FastMode        bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Progress        int
	ProgressMessage string
	Result          *SegmentationResult
	Err             string
}

// ElapsedSeconds is the wall time since the job started, frozen at
// completion. Zero if the job has not started.
func (j *Job) ElapsedSeconds() float64 {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt).Seconds()
}
