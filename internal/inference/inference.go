// Package inference runs DeepISLES stroke segmentation through a
// swappable Runner. The docker runner drives the isleschallenge/deepisles
// container, the subprocess runner bridges into a conda environment on
// hosts where Docker-in-Docker is unavailable, and the mock runner
// fabricates predictions for tests and demos.
package inference

import (
	"context"
	"errors"
)

var (
	ErrDockerUnavailable = errors.New("docker is not available")
	ErrGPUUnavailable    = errors.New("nvidia container runtime is not available")
	ErrMissingInput      = errors.New("required input file missing")
	ErrInferenceFailed   = errors.New("inference failed")
	ErrNoPrediction      = errors.New("no prediction mask found")
)

// Input file names expected inside a staged case directory.
const (
	DWIFileName   = "dwi.nii.gz"
	ADCFileName   = "adc.nii.gz"
	FLAIRFileName = "flair.nii.gz"
)

// Request describes one segmentation run. InputDir must contain
// dwi.nii.gz and adc.nii.gz; flair.nii.gz is picked up when present.
type Request struct {
	InputDir  string
	OutputDir string
	Fast      bool
	GPU       bool
}

// Result is the outcome of a successful run.
type Result struct {
	PredictionPath string
	ElapsedSeconds float64
	Stdout         string
	Stderr         string
}

// Runner executes DeepISLES against a staged input directory.
type Runner interface {
	Name() string
	Run(ctx context.Context, req Request) (Result, error)
}
