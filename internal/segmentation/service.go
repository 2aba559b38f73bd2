// Package segmentation ties the job registry to the inference pipeline.
// Enqueue registers a job and kicks off a background goroutine that
// drives the pipeline, publishes progress milestones, and lands the job
// in a terminal state no matter how the run ends.
package segmentation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/strokeworks/strokeseg/internal/jobs"
	"github.com/strokeworks/strokeseg/internal/metrics"
	"github.com/strokeworks/strokeseg/internal/pipeline"
)

type Service struct {
	store      *jobs.Store
	pipeline   *pipeline.Pipeline
	resultsDir string
	publicURL  string
	logger     *slog.Logger
}

func NewService(store *jobs.Store, p *pipeline.Pipeline, resultsDir, publicURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		pipeline:   p,
		resultsDir: resultsDir,
		publicURL:  publicURL,
		logger:     logger,
	}
}

// newJobID returns a short random identifier. Eight hex characters are
// plenty for a registry that holds at most a handful of live jobs.
func newJobID() string {
	return uuid.NewString()[:8]
}

// Enqueue registers a new job and starts its segmentation run in the
// background. The returned job is still pending.
func (s *Service) Enqueue(ctx context.Context, caseID string, fast bool) (jobs.Job, error) {
	job, err := s.store.Create(newJobID(), caseID, fast)
	if err != nil {
		return jobs.Job{}, err
	}
	// The run outlives the request that enqueued it.
	go s.run(context.WithoutCancel(ctx), job.ID, caseID, fast)
	return job, nil
}

// run executes one segmentation job. Every exit path, panics included,
// lands the job in a terminal state so pollers are never stranded.
func (s *Service) run(ctx context.Context, jobID, caseID string, fast bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("segmentation run panicked", slog.String("job_id", jobID), slog.Any("panic", r))
			s.store.Fail(jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.store.Start(jobID)
	s.store.UpdateProgress(jobID, 10, "Loading case data...")

	outputDir := filepath.Join(s.resultsDir, jobID)

	s.store.UpdateProgress(jobID, 20, "Staging files for DeepISLES...")
	s.store.UpdateProgress(jobID, 30, "Running DeepISLES inference...")

	res, err := s.pipeline.Run(ctx, pipeline.RunParams{
		CaseID:         caseID,
		OutputDir:      outputDir,
		Fast:           fast,
		GPU:            true,
		ComputeDice:    true,
		CleanupStaging: true,
	})
	if err != nil {
		s.logger.Error("segmentation job failed", slog.String("job_id", jobID), slog.Any("error", err))
		s.store.Fail(jobID, err.Error())
		return
	}

	s.store.UpdateProgress(jobID, 85, "Computing metrics...")

	// Volume is best effort; a malformed mask should not fail the job.
	var volumeML *float64
	if v, volErr := metrics.VolumeML(res.PredictionPath, metrics.DefaultThreshold); volErr == nil {
		rounded := roundTo(v, 2)
		volumeML = &rounded
	} else {
		s.logger.Warn("volume computation failed", slog.String("job_id", jobID), slog.Any("error", volErr))
	}

	s.store.UpdateProgress(jobID, 95, "Preparing results...")

	// Download links resolve to resultsDir/{job}/{case}/{file}. The DWI
	// lives in the dataset and some runners leave the mask in a nested
	// results/ directory, so both are placed at the served path.
	caseDir := filepath.Join(outputDir, res.CaseID)
	if err := ensureFile(res.InputFiles.DWI, filepath.Join(caseDir, filepath.Base(res.InputFiles.DWI))); err != nil {
		s.logger.Warn("could not place dwi next to results", slog.String("job_id", jobID), slog.Any("error", err))
	}
	if err := ensureFile(res.PredictionPath, filepath.Join(caseDir, filepath.Base(res.PredictionPath))); err != nil {
		s.logger.Warn("could not place prediction next to results", slog.String("job_id", jobID), slog.Any("error", err))
	}

	result := jobs.SegmentationResult{
		CaseID:         res.CaseID,
		DiceScore:      res.DiceScore,
		VolumeML:       volumeML,
		ElapsedSeconds: roundTo(res.ElapsedSeconds, 2),
		DWIURL:         s.fileURL(jobID, res.CaseID, filepath.Base(res.InputFiles.DWI)),
		PredictionURL:  s.fileURL(jobID, res.CaseID, filepath.Base(res.PredictionPath)),
	}
	s.store.Complete(jobID, result)

	s.logger.Info("segmentation job completed",
		slog.String("job_id", jobID),
		slog.Float64("elapsed_s", res.ElapsedSeconds))
}

// fileURL builds the download link for a result artifact. The file
// handler resolves these back under the results directory.
func (s *Service) fileURL(jobID, caseID, filename string) string {
	return s.publicURL + path.Join("/files", jobID, caseID, filename)
}

func (s *Service) ResultsDir() string { return s.resultsDir }

// ensureFile copies src to dst unless dst already exists.
func ensureFile(src, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int64(v*shift+0.5)) / shift
}
