package inference

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// DockerRunner executes DeepISLES inside its published container.
type DockerRunner struct {
	image   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDockerRunner returns a runner for the given image. A zero timeout
// means the container run is bounded only by the caller's context.
func NewDockerRunner(image string, timeout time.Duration, logger *slog.Logger) *DockerRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerRunner{image: image, timeout: timeout, logger: logger}
}

func (r *DockerRunner) Name() string { return "docker" }

// DockerAvailable reports whether the Docker daemon responds.
func DockerAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// gpuRuntimeAvailable reports whether the NVIDIA container runtime can
// actually start a GPU container.
func gpuRuntimeAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm", "--gpus", "all",
		"nvidia/cuda:11.0-base", "nvidia-smi")
	return cmd.Run() == nil
}

// PullImageIfMissing pulls the image when it is not present locally and
// reports whether a pull happened.
func PullImageIfMissing(ctx context.Context, image string) (bool, error) {
	if exec.CommandContext(ctx, "docker", "image", "inspect", image).Run() == nil {
		return false, nil
	}
	if out, err := exec.CommandContext(ctx, "docker", "pull", image).CombinedOutput(); err != nil {
		return false, fmt.Errorf("pull %s: %w: %s", image, err, bytes.TrimSpace(out))
	}
	return true, nil
}

// BuildDockerArgs assembles the `docker run` argument list without
// executing anything. The container sees its inputs at /input and
// writes to /output. On Linux the host uid:gid is passed through so
// outputs are not owned by root.
func BuildDockerArgs(image, inputDir, outputDir string, hasFLAIR, fast, gpu bool) []string {
	args := []string{"run", "--rm"}
	if gpu {
		args = append(args, "--gpus", "all")
	}
	if runtime.GOOS != "darwin" {
		args = append(args, "--user", fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()))
	}
	args = append(args,
		"-v", inputDir+":/input",
		"-v", outputDir+":/output",
		image,
		"--dwi_file_name", DWIFileName,
		"--adc_file_name", ADCFileName,
	)
	if hasFLAIR {
		args = append(args, "--flair_file_name", FLAIRFileName)
	}
	if fast {
		args = append(args, "--fast", "True")
	}
	return args
}

func (r *DockerRunner) Run(ctx context.Context, req Request) (Result, error) {
	hasFLAIR, err := ValidateInputDir(req.InputDir)
	if err != nil {
		return Result{}, err
	}
	if !DockerAvailable(ctx) {
		return Result{}, ErrDockerUnavailable
	}
	if req.GPU && !gpuRuntimeAvailable(ctx) {
		return Result{}, ErrGPUUnavailable
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := BuildDockerArgs(r.image, req.InputDir, req.OutputDir, hasFLAIR, req.Fast, req.GPU)
	r.logger.Info("running containerized inference",
		slog.String("image", r.image),
		slog.Bool("fast", req.Fast),
		slog.Bool("gpu", req.GPU),
		slog.Bool("flair", hasFLAIR))

	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	elapsed := time.Since(start).Seconds()

	res := Result{
		ElapsedSeconds: elapsed,
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
	}
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%w: timed out after %s", ErrInferenceFailed, r.timeout)
		}
		return res, fmt.Errorf("%w: %v: %s", ErrInferenceFailed, runErr, bytes.TrimSpace(stderr.Bytes()))
	}

	pred, err := FindPredictionMask(req.OutputDir)
	if err != nil {
		return res, err
	}
	res.PredictionPath = pred
	r.logger.Info("containerized inference finished", slog.Float64("elapsed_s", elapsed))
	return res, nil
}
