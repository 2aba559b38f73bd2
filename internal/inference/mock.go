package inference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/strokeworks/strokeseg/internal/nifti"
)

// MockRunner fabricates a small lesion mask instead of running the
// model. It backs the mock inference mode and the test suites of the
// packages built on top of this one.
type MockRunner struct {
	// Delay is slept before the fake prediction is written, so callers
	// can exercise progress reporting and cancellation.
	Delay time.Duration

	// Err, when set, is returned instead of a result.
	Err error

	// RunFunc overrides Run entirely when set.
	RunFunc func(ctx context.Context, req Request) (Result, error)
}

func NewMockRunner() *MockRunner { return &MockRunner{} }

func (r *MockRunner) Name() string { return "mock" }

func (r *MockRunner) Run(ctx context.Context, req Request) (Result, error) {
	if r.RunFunc != nil {
		return r.RunFunc(ctx, req)
	}
	if _, err := ValidateInputDir(req.InputDir); err != nil {
		return Result{}, err
	}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if r.Err != nil {
		return Result{}, r.Err
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	pred := filepath.Join(req.OutputDir, "lesion_msk.nii.gz")
	if err := nifti.Save(fakeLesion(), pred); err != nil {
		return Result{}, fmt.Errorf("write mock prediction: %w", err)
	}
	return Result{
		PredictionPath: pred,
		ElapsedSeconds: r.Delay.Seconds(),
	}, nil
}

// fakeLesion is a 8x8x1 volume with a small block of lesion voxels.
func fakeLesion() *nifti.Image {
	img := &nifti.Image{
		Dim:    [3]int{8, 8, 1},
		Pixdim: [3]float64{1, 1, 1},
		Data:   make([]float64, 8*8),
	}
	for y := 2; y < 5; y++ {
		for x := 2; x < 5; x++ {
			img.Data[y*8+x] = 1
		}
	}
	return img
}
