package inference

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/strokeworks/strokeseg/internal/config"
)

// NewRunner builds a Runner from configuration. Mode "auto" prefers
// Docker when the daemon responds, then the conda adapter when it is
// installed, and fails otherwise so a misconfigured host is caught at
// startup rather than on the first job.
func NewRunner(ctx context.Context, cfg config.InferenceConfig, logger *slog.Logger) (Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case "docker":
		return NewDockerRunner(cfg.DockerImage, cfg.Timeout, logger), nil
	case "subprocess":
		return NewSubprocessRunner(cfg.CondaPath, cfg.CondaEnv, cfg.AdapterScript, cfg.Timeout, logger), nil
	case "mock":
		return NewMockRunner(), nil
	case "auto":
		if DockerAvailable(ctx) {
			logger.Info("inference mode resolved", slog.String("runner", "docker"))
			return NewDockerRunner(cfg.DockerImage, cfg.Timeout, logger), nil
		}
		sub := NewSubprocessRunner(cfg.CondaPath, cfg.CondaEnv, cfg.AdapterScript, cfg.Timeout, logger)
		if sub.Available() {
			logger.Info("inference mode resolved", slog.String("runner", "subprocess"))
			return sub, nil
		}
		return nil, fmt.Errorf("%w: no runner available for mode auto (no docker daemon, no conda adapter)", ErrDockerUnavailable)
	default:
		return nil, fmt.Errorf("unknown inference mode %q", cfg.Mode)
	}
}
