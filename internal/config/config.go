package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the strokeseg server and CLI.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Jobs      JobsConfig
	Dataset   DatasetConfig
	Inference InferenceConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	PublicURL       string // overrides request-derived base URL for result file links
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type JobsConfig struct {
	MaxConcurrent   int
	TTL             time.Duration
	CleanupInterval time.Duration
	ResultsDir      string
}

type DatasetConfig struct {
	Root     string
	Manifest string // optional YAML manifest; empty means directory scan
}

type InferenceConfig struct {
	Mode          string // auto, docker, subprocess, mock
	DockerImage   string
	Timeout       time.Duration
	GPU           bool
	CondaPath     string
	AdapterScript string
	CondaEnv      string
}

type CORSConfig struct {
	AllowedOrigins []string
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

var validInferenceModes = map[string]bool{
	"auto":       true,
	"docker":     true,
	"subprocess": true,
	"mock":       true,
}

// Load reads configuration from environment variables (with a best-effort
// .env file) and returns a validated Config. Returns an error with a
// descriptive message if any value is invalid.
func Load() (*Config, error) {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("STROKESEG_PORT", 8080),
			Env:             envString("STROKESEG_ENV", "development"),
			PublicURL:       strings.TrimRight(os.Getenv("STROKESEG_PUBLIC_URL"), "/"),
			ShutdownTimeout: envDuration("STROKESEG_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  envString("STROKESEG_LOG_LEVEL", "info"),
			Format: envString("STROKESEG_LOG_FORMAT", "console"),
		},
		Jobs: JobsConfig{
			MaxConcurrent:   envInt("STROKESEG_MAX_CONCURRENT_JOBS", 10),
			TTL:             envDuration("STROKESEG_JOB_TTL", time.Hour),
			CleanupInterval: envDuration("STROKESEG_CLEANUP_INTERVAL", 10*time.Minute),
			ResultsDir:      envString("STROKESEG_RESULTS_DIR", "/tmp/stroke-results"),
		},
		Dataset: DatasetConfig{
			Root:     envString("STROKESEG_DATASET_ROOT", "data/isles24"),
			Manifest: os.Getenv("STROKESEG_DATASET_MANIFEST"),
		},
		Inference: InferenceConfig{
			Mode:          envString("STROKESEG_INFERENCE_MODE", "auto"),
			DockerImage:   envString("STROKESEG_DOCKER_IMAGE", "isleschallenge/deepisles"),
			Timeout:       envDuration("STROKESEG_INFERENCE_TIMEOUT", 30*time.Minute),
			GPU:           envBool("STROKESEG_USE_GPU", true),
			CondaPath:     envString("STROKESEG_CONDA_PATH", "/opt/conda/bin/conda"),
			AdapterScript: envString("STROKESEG_ADAPTER_SCRIPT", "/app/deepisles_adapter.py"),
			CondaEnv:      envString("STROKESEG_CONDA_ENV", "isles_ensemble"),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("STROKESEG_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("STROKESEG_PORT must be in 1-65535, got %d", c.Server.Port)
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("STROKESEG_LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("STROKESEG_LOG_FORMAT must be one of json, console; got %q", c.Log.Format)
	}

	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("STROKESEG_MAX_CONCURRENT_JOBS must be positive, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.TTL <= 0 {
		return fmt.Errorf("STROKESEG_JOB_TTL must be positive, got %s", c.Jobs.TTL)
	}
	if c.Jobs.CleanupInterval <= 0 {
		return fmt.Errorf("STROKESEG_CLEANUP_INTERVAL must be positive, got %s", c.Jobs.CleanupInterval)
	}
	if c.Jobs.ResultsDir == "" {
		return fmt.Errorf("STROKESEG_RESULTS_DIR is required")
	}

	if c.Dataset.Root == "" {
		return fmt.Errorf("STROKESEG_DATASET_ROOT is required")
	}

	if !validInferenceModes[c.Inference.Mode] {
		return fmt.Errorf("STROKESEG_INFERENCE_MODE must be one of auto, docker, subprocess, mock; got %q", c.Inference.Mode)
	}
	if c.Inference.DockerImage == "" {
		return fmt.Errorf("STROKESEG_DOCKER_IMAGE is required")
	}
	if c.Inference.Timeout <= 0 {
		return fmt.Errorf("STROKESEG_INFERENCE_TIMEOUT must be positive, got %s", c.Inference.Timeout)
	}

	if c.Server.PublicURL != "" &&
		!strings.HasPrefix(c.Server.PublicURL, "http://") &&
		!strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("STROKESEG_PUBLIC_URL must start with http:// or https://, got %q", c.Server.PublicURL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
