package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// SubprocessRunner invokes the DeepISLES adapter script inside a conda
// environment. This path exists for hosts that already live inside the
// DeepISLES image, where Docker-in-Docker is unavailable and the model
// environment runs an older Python than the service itself.
type SubprocessRunner struct {
	condaPath string
	condaEnv  string
	script    string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewSubprocessRunner(condaPath, condaEnv, script string, timeout time.Duration, logger *slog.Logger) *SubprocessRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessRunner{
		condaPath: condaPath,
		condaEnv:  condaEnv,
		script:    script,
		timeout:   timeout,
		logger:    logger,
	}
}

func (r *SubprocessRunner) Name() string { return "subprocess" }

// Available reports whether both the conda binary and the adapter
// script exist on this host.
func (r *SubprocessRunner) Available() bool {
	if _, err := os.Stat(r.condaPath); err != nil {
		return false
	}
	_, err := os.Stat(r.script)
	return err == nil
}

// buildArgs assembles the conda invocation. The adapter takes absolute
// paths, so staged inputs are resolved before being passed down.
func (r *SubprocessRunner) buildArgs(inputDir, outputDir string, hasFLAIR, fast bool) []string {
	args := []string{
		"run", "-n", r.condaEnv,
		"python", r.script,
		"--dwi", filepath.Join(inputDir, DWIFileName),
		"--adc", filepath.Join(inputDir, ADCFileName),
		"--output", outputDir,
	}
	if hasFLAIR {
		args = append(args, "--flair", filepath.Join(inputDir, FLAIRFileName))
	}
	if fast {
		args = append(args, "--fast")
	}
	return args
}

func (r *SubprocessRunner) Run(ctx context.Context, req Request) (Result, error) {
	hasFLAIR, err := ValidateInputDir(req.InputDir)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	inputDir, err := filepath.Abs(req.InputDir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve input dir: %w", err)
	}
	outputDir, err := filepath.Abs(req.OutputDir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve output dir: %w", err)
	}

	args := r.buildArgs(inputDir, outputDir, hasFLAIR, req.Fast)
	r.logger.Debug("running adapter subprocess", slog.String("conda_env", r.condaEnv))

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.condaPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	elapsed := time.Since(start).Seconds()

	res := Result{
		ElapsedSeconds: elapsed,
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
	}
	// The model writes a lot of progress chatter; keep it at debug so
	// one run does not flood the service log.
	if stdout.Len() > 0 {
		r.logger.Debug("adapter stdout", slog.String("output", stdout.String()))
	}
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%w: timed out after %s", ErrInferenceFailed, r.timeout)
		}
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
			return res, fmt.Errorf("%w: conda not found at %s", ErrInferenceFailed, r.condaPath)
		}
		return res, fmt.Errorf("%w: %v: %s", ErrInferenceFailed, runErr, bytes.TrimSpace(stderr.Bytes()))
	}

	pred, err := FindPredictionMask(outputDir)
	if err != nil {
		return res, err
	}
	res.PredictionPath = pred
	r.logger.Info("adapter subprocess finished", slog.Float64("elapsed_s", elapsed))
	return res, nil
}
