// Package pipeline orchestrates one segmentation end to end: resolve a
// case from the dataset, stage its volumes under DeepISLES names, run
// inference, and score the prediction against ground truth when one
// exists.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/strokeworks/strokeseg/internal/dataset"
	"github.com/strokeworks/strokeseg/internal/inference"
	"github.com/strokeworks/strokeseg/internal/metrics"
)

type Pipeline struct {
	dataset dataset.Dataset
	runner  inference.Runner
	logger  *slog.Logger
}

func New(ds dataset.Dataset, runner inference.Runner, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{dataset: ds, runner: runner, logger: logger}
}

// RunParams configures a single case run.
type RunParams struct {
	CaseID string

	// OutputDir receives staging/<case> and <case> result directories.
	// Empty means a fresh temp directory.
	OutputDir string

	Fast bool
	GPU  bool

	// ComputeDice scores the prediction when the case ships ground
	// truth. Scoring failures are logged, not fatal.
	ComputeDice bool

	// CleanupStaging removes the staged copies after inference.
	CleanupStaging bool
}

// CaseResult collects everything a single run produced.
type CaseResult struct {
	CaseID         string
	InputFiles     dataset.CaseFiles
	StagedDir      string
	PredictionPath string
	GroundTruth    string
	DiceScore      *float64
	ElapsedSeconds float64
}

func (p *Pipeline) Run(ctx context.Context, params RunParams) (CaseResult, error) {
	start := time.Now()

	files, err := p.dataset.Case(params.CaseID)
	if err != nil {
		return CaseResult{}, err
	}

	outputDir := params.OutputDir
	if outputDir == "" {
		outputDir, err = os.MkdirTemp("", "strokeseg-pipeline-")
		if err != nil {
			return CaseResult{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	stagingDir := filepath.Join(outputDir, "staging", params.CaseID)
	resultsDir := filepath.Join(outputDir, params.CaseID)

	staged, err := dataset.Stage(files, stagingDir)
	if err != nil {
		return CaseResult{}, fmt.Errorf("stage case: %w", err)
	}

	infRes, err := p.runner.Run(ctx, inference.Request{
		InputDir:  staged.InputDir,
		OutputDir: resultsDir,
		Fast:      params.Fast,
		GPU:       params.GPU,
	})
	if err != nil {
		return CaseResult{}, err
	}

	res := CaseResult{
		CaseID:         params.CaseID,
		InputFiles:     files,
		StagedDir:      staged.InputDir,
		PredictionPath: infRes.PredictionPath,
		GroundTruth:    files.GroundTruth,
	}

	if params.ComputeDice && files.GroundTruth != "" {
		dice, diceErr := metrics.Dice(infRes.PredictionPath, files.GroundTruth, metrics.DefaultThreshold)
		if diceErr != nil {
			p.logger.Warn("dice computation failed", slog.Any("error", diceErr))
		} else {
			res.DiceScore = &dice
		}
	}

	if params.CleanupStaging {
		if rmErr := os.RemoveAll(filepath.Dir(staged.InputDir)); rmErr != nil {
			p.logger.Warn("staging cleanup failed", slog.Any("error", rmErr))
		}
	}

	res.ElapsedSeconds = time.Since(start).Seconds()
	return res, nil
}

// BatchItem pairs a case with its outcome. Err is set when that case
// failed; the batch keeps going.
type BatchItem struct {
	CaseID string
	Result CaseResult
	Err    error
}

// RunBatch runs the pipeline sequentially over the given cases. Runs
// are serial because a single GPU cannot host concurrent model
// ensembles. A cancelled context stops the batch between cases.
func (p *Pipeline) RunBatch(ctx context.Context, caseIDs []string, params RunParams) []BatchItem {
	items := make([]BatchItem, 0, len(caseIDs))
	for _, id := range caseIDs {
		if ctx.Err() != nil {
			items = append(items, BatchItem{CaseID: id, Err: ctx.Err()})
			continue
		}
		runParams := params
		runParams.CaseID = id
		res, err := p.Run(ctx, runParams)
		items = append(items, BatchItem{CaseID: id, Result: res, Err: err})
		if err != nil {
			p.logger.Error("case run failed", slog.Any("error", err))
		}
	}
	return items
}
