package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Tracker  TrackerConfig
	Artifact ArtifactConfig
	Trainer  TrainerConfig
	OTel     OTelConfig

	Env          string
	PollInterval time.Duration
	DryRun       bool
	Verbose      bool
	LogFile      string
	MetricsAddr  string
}

// TrackerConfig points at the GitLab project whose issues form the job
// queue.
type TrackerConfig struct {
	BaseURL           string
	Token             string
	JobsProject       string
	ProcessingLabel   string
	DoneLabel         string
	CompletionComment string
}

// ArtifactConfig points at the project, branch, and base path the trained
// model files are published under. The models project may differ from the
// jobs project.
type ArtifactConfig struct {
	ModelsProject string
	Branch        string
	BasePath      string
}

type TrainerConfig struct {
	Script  string
	Workdir string
	Timeout time.Duration
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables. In development it
// first loads a .env file if present.
func Load() (Config, error) {
	if getEnv("WATCHER_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:          getEnv("WATCHER_ENV", "development"),
		PollInterval: time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 300)) * time.Second,
		DryRun:       getEnvBool("DRY_RUN", false),
		Verbose:      getEnvBool("VERBOSE", false),
		LogFile:      getEnv("LOG_FILE", ""),
		MetricsAddr:  getEnv("METRICS_ADDR", ""),
		Tracker: TrackerConfig{
			BaseURL:           getEnv("GITLAB_BASE_URL", ""),
			Token:             getEnv("GITLAB_TOKEN", ""),
			JobsProject:       getEnv("JOBS_PROJECT", ""),
			ProcessingLabel:   getEnv("PROCESSING_LABEL", "mww-processing"),
			DoneLabel:         getEnv("DONE_LABEL", "mww-added"),
			CompletionComment: getEnv("COMPLETION_COMMENT", "added!"),
		},
		Artifact: ArtifactConfig{
			ModelsProject: getEnv("MODELS_PROJECT", ""),
			Branch:        getEnv("MODELS_BRANCH", "main"),
			BasePath:      getEnv("MODELS_BASE_PATH", "models"),
		},
		Trainer: TrainerConfig{
			Script:  getEnv("TRAIN_SCRIPT", ""),
			Workdir: getEnv("TRAIN_WORKDIR", "."),
			Timeout: time.Duration(getEnvInt("TRAIN_TIMEOUT_SECONDS", 0)) * time.Second,
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "wakewatch"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	if cfg.Tracker.Token == "" {
		return Config{}, fmt.Errorf("GITLAB_TOKEN is required")
	}
	if cfg.Tracker.JobsProject == "" {
		return Config{}, fmt.Errorf("JOBS_PROJECT is required")
	}
	if cfg.Artifact.ModelsProject == "" {
		cfg.Artifact.ModelsProject = cfg.Tracker.JobsProject
	}
	if !cfg.DryRun && cfg.Trainer.Script == "" {
		return Config{}, fmt.Errorf("TRAIN_SCRIPT is required unless DRY_RUN is set")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
