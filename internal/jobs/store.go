package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long terminal jobs are kept before eviction,
	// measured from completion.
	DefaultTTL = time.Hour

	// DefaultSweepInterval is how often the cleanup scheduler runs.
	DefaultSweepInterval = 10 * time.Minute

	startProgress = 5
)

var (
	// ErrInvalidJobID means the id contains characters outside
	// [a-zA-Z0-9_-] and was rejected before touching the registry.
	ErrInvalidJobID = errors.New("invalid job id")

	// ErrJobExists means the id is already registered; this indicates an
	// id-generation bug upstream.
	ErrJobExists = errors.New("job already exists")
)

// Job ids are interpolated into result file paths, so they are restricted
// to characters that cannot traverse directories.
var safeJobID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsSafeID reports whether id is usable as a filesystem path component.
func IsSafeID(id string) bool {
	return safeJobID.MatchString(id)
}

// Store is a thread-safe in-memory job registry. All reads and writes of
// the registry happen under one mutex, held only for the map access; the
// cleanup sweep deletes result directories after releasing it.
//
// The store is a passive bulletin board: it never invokes inference
// itself. Background execution reports through Start, UpdateProgress,
// Complete and Fail.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*Job

	ttl        time.Duration
	sweepEvery time.Duration
	resultsDir string
	logger     *slog.Logger

	schedMu sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the retention for terminal jobs.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithSweepInterval overrides how often the cleanup scheduler fires.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepEvery = d }
}

// WithLogger overrides the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store. resultsDir is the root under which each job's
// result files live at resultsDir/<jobID>; the cleanup sweep only ever
// deletes those per-job subtrees. The cleanup scheduler is not started;
// call StartCleanupScheduler at application startup.
func NewStore(resultsDir string, opts ...Option) *Store {
	s := &Store{
		jobs:       make(map[string]*Job),
		ttl:        DefaultTTL,
		sweepEvery: DefaultSweepInterval,
		resultsDir: resultsDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new job in pending state.
//
// Returns ErrInvalidJobID if id fails the safe-identifier check and
// ErrJobExists if the id is already registered.
func (s *Store) Create(id, caseID string, fastMode bool) (Job, error) {
	if !IsSafeID(id) {
		return Job{}, fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}

	job := &Job{
		ID:              id,
		Status:          StatusPending,
		CaseID:          caseID,
		FastMode:        fastMode,
		CreatedAt:       time.Now(),
		ProgressMessage: "Queued",
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}
	s.jobs[id] = job

	// Case ids identify patients in some datasets; keep them out of logs.
	s.logger.Info("created job", "job_id", id)
	return *job, nil
}

// Get returns a copy of the job, or ok=false if the id is unknown.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ActiveCount returns the number of pending or running jobs. Used by the
// admission gate to bound concurrent inference attempts.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Start marks a job running. No-op for unknown ids.
func (s *Store) Start(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &now
	job.Progress = startProgress
	job.ProgressMessage = "Starting inference..."
	s.logger.Info("started job", "job_id", id)
}

// UpdateProgress records best-effort progress telemetry. It only applies
// to running jobs, so a stale callback can never resurrect a job that has
// already completed or failed. Progress is clamped into [0,100].
func (s *Store) UpdateProgress(id string, progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != StatusRunning {
		return
	}
	job.Progress = min(max(progress, 0), 100)
	job.ProgressMessage = message
}

// Complete marks a job completed with its result payload. No-op for
// unknown ids. StartedAt is back-filled if the execution side never
// called Start, so elapsed-time math stays well-defined.
func (s *Store) Complete(id string, result SegmentationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Progress = 100
	job.ProgressMessage = "Segmentation complete"
	job.Result = &result
	s.logger.Info("completed job", "job_id", id, "elapsed_s", job.ElapsedSeconds())
}

// Fail marks a job failed with a human-readable message. No-op for
// unknown ids. Progress is left where it was; partial progress is
// informative on a failed job.
func (s *Store) Fail(id, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.ProgressMessage = "Error occurred"
	job.Err = errMsg
	s.logger.Error("failed job", "job_id", id, "error", errMsg)
}

// CleanupExpired removes terminal jobs whose completion is older than the
// TTL and deletes their result directories. Pending and running jobs are
// never touched, regardless of age.
//
// Returns the number of registry entries removed. File deletion is
// best-effort: failures are logged and do not affect the count.
func (s *Store) CleanupExpired() int {
	now := time.Now()
	var expired []string

	s.mu.Lock()
	for id, job := range s.jobs {
		if job.CompletedAt != nil && now.Sub(*job.CompletedAt) > s.ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	// Disk I/O happens outside the lock so a slow filesystem cannot block
	// job creation or status polling.
	s.removeResultDirs(expired)

	if len(expired) > 0 {
		s.logger.Info("cleaned up expired jobs", "count", len(expired))
	}
	return len(expired)
}

func (s *Store) removeResultDirs(ids []string) {
	if len(ids) == 0 {
		return
	}
	base, err := filepath.Abs(s.resultsDir)
	if err != nil {
		s.logger.Warn("cannot resolve results dir", "dir", s.resultsDir, "error", err)
		return
	}
	for _, id := range ids {
		if !IsSafeID(id) {
			s.logger.Warn("skipping cleanup for unsafe job id", "job_id", id)
			continue
		}
		dir := filepath.Join(base, id)
		if !pathWithin(base, dir) {
			s.logger.Warn("path traversal blocked during cleanup", "job_id", id)
			continue
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("failed to remove result dir", "dir", dir, "error", err)
			continue
		}
		s.logger.Debug("removed result dir", "job_id", id)
	}
}

// pathWithin reports whether path is lexically inside base.
func pathWithin(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// StartCleanupScheduler launches the background sweep loop. Idempotent:
// calling it while the loop is running is a no-op.
func (s *Store) StartCleanupScheduler() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.cleanupLoop(s.done, s.stopped)
	s.logger.Info("started job cleanup scheduler", "interval", s.sweepEvery)
}

// StopCleanupScheduler signals the sweep loop to exit and waits for it,
// bounded by a short timeout. Idempotent.
func (s *Store) StopCleanupScheduler() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	select {
	case <-s.stopped:
	case <-time.After(5 * time.Second):
		s.logger.Warn("cleanup loop did not stop within timeout")
	}
	s.done = nil
	s.stopped = nil
	s.logger.Info("stopped job cleanup scheduler")
}

func (s *Store) cleanupLoop(done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one cleanup pass, containing panics so a single bad
// iteration cannot kill the loop.
func (s *Store) sweep() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during job cleanup", "error", r)
		}
	}()
	s.CleanupExpired()
}

// Len returns the total number of jobs regardless of status.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
