package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"wakewatch.dev/watcher/common/logger"
	"wakewatch.dev/watcher/core/config"
)

// TrainSpec is the invocation contract of the external training pipeline.
type TrainSpec struct {
	Phrase      string // raw wake phrase as submitted
	CanonicalID string // derived id, names the output artifacts
	Lang        string // two-letter language tag
}

// Trainer runs one training job to completion. Invocations are expensive
// and share scratch directories, so callers run them strictly one at a
// time.
type Trainer interface {
	Train(ctx context.Context, spec TrainSpec) error
}

type scriptTrainer struct {
	script  string
	workdir string
	runner  CommandRunner
}

// NewScriptTrainer wraps the training shell script. runner may be nil, in
// which case commands execute through os/exec.
func NewScriptTrainer(cfg config.TrainerConfig, runner CommandRunner) Trainer {
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	return &scriptTrainer{
		script:  cfg.Script,
		workdir: cfg.Workdir,
		runner:  runner,
	}
}

func (t *scriptTrainer) Train(ctx context.Context, spec TrainSpec) error {
	cmd := Command{
		Name: "bash",
		Args: []string{
			t.script,
			"--phrase", spec.Phrase,
			"--id", spec.CanonicalID,
			"--lang", spec.Lang,
		},
		Dir: t.workdir,
	}

	slog.InfoContext(ctx, "training started", "script", t.script)

	output, err := t.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("training script failed: %w (output: %s)", err, logger.Truncate(string(output), 2000))
	}

	slog.InfoContext(ctx, "training finished", "output_bytes", len(output))
	return nil
}

// ArtifactPaths returns the model blob and manifest locations the
// training script leaves behind for a canonical id.
func ArtifactPaths(workdir, id string) (modelPath, manifestPath string) {
	return filepath.Join(workdir, id+".tflite"), filepath.Join(workdir, id+".json")
}

// VerifyArtifacts confirms both output files exist after a successful
// run. Returns the name of the first missing file.
func VerifyArtifacts(workdir, id string) (missing string, err error) {
	modelPath, manifestPath := ArtifactPaths(workdir, id)
	for _, path := range []string{modelPath, manifestPath} {
		if _, statErr := os.Stat(path); statErr != nil {
			if os.IsNotExist(statErr) {
				return filepath.Base(path), nil
			}
			return "", fmt.Errorf("checking artifact %s: %w", path, statErr)
		}
	}
	return "", nil
}
