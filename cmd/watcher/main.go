package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wakewatch.dev/watcher/common/logger"
	"wakewatch.dev/watcher/common/otel"
	"wakewatch.dev/watcher/core/config"
	"wakewatch.dev/watcher/internal/publisher"
	"wakewatch.dev/watcher/internal/tracker"
	"wakewatch.dev/watcher/internal/trainer"
	"wakewatch.dev/watcher/internal/watcher"
)

var (
	flagInterval time.Duration
	flagDryRun   bool
	flagVerbose  bool
	flagOnce     bool
)

var rootCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Wake-word job watcher",
	Long: `watcher polls a GitLab project for issues titled "mww: <phrase>",
claims them via label, runs the training pipeline, and publishes the
resulting model and manifest to the models repository.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().DurationVar(&flagInterval, "interval", 0, "poll interval (overrides POLL_INTERVAL_SECONDS)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "discover and log candidates without claiming or training")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "debug logging, including rate-limit diagnostics")
	rootCmd.Flags().BoolVar(&flagOnce, "once", false, "run a single poll cycle and exit")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if flagDryRun {
		os.Setenv("DRY_RUN", "true")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if flagInterval > 0 {
		cfg.PollInterval = flagInterval
	}
	if flagVerbose {
		cfg.Verbose = true
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "otel: %v\n", err)
		os.Exit(1)
	}
	if telemetry != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				slog.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	cleanup := logger.Setup(cfg)
	defer func() { _ = cleanup() }()

	// Fatal preconditions, checked before the loop ever starts.
	if !cfg.DryRun {
		info, err := os.Stat(cfg.Trainer.Script)
		if err != nil {
			slog.ErrorContext(ctx, "train script not found", "script", cfg.Trainer.Script, "error", err)
			os.Exit(1)
		}
		if info.IsDir() {
			slog.ErrorContext(ctx, "train script is a directory", "script", cfg.Trainer.Script)
			os.Exit(1)
		}
	}

	slog.InfoContext(ctx, "watcher starting",
		"env", cfg.Env,
		"jobs_project", cfg.Tracker.JobsProject,
		"models_project", cfg.Artifact.ModelsProject,
		"branch", cfg.Artifact.Branch,
		"poll_interval", cfg.PollInterval,
		"dry_run", cfg.DryRun)

	trk, err := tracker.NewGitLabTracker(cfg.Tracker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create tracker client", "error", err)
		os.Exit(1)
	}

	pub, err := publisher.NewGitLabPublisher(cfg.Tracker, cfg.Artifact)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create publisher", "error", err)
		os.Exit(1)
	}

	trn := trainer.NewScriptTrainer(cfg.Trainer, nil)

	watcher.MustRegisterMetrics()
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	w := watcher.New(trk, pub, trn, watcher.Config{
		PollInterval:      cfg.PollInterval,
		DryRun:            cfg.DryRun,
		ProcessingLabel:   cfg.Tracker.ProcessingLabel,
		DoneLabel:         cfg.Tracker.DoneLabel,
		CompletionComment: cfg.Tracker.CompletionComment,
		BasePath:          cfg.Artifact.BasePath,
		TrainWorkdir:      cfg.Trainer.Workdir,
	})

	if flagOnce {
		w.PollOnce(ctx)
		slog.InfoContext(ctx, "single cycle complete")
		return nil
	}

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	slog.InfoContext(ctx, "watcher shutdown complete")
	return nil
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.InfoContext(ctx, "metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.ErrorContext(ctx, "metrics server error", "error", err)
	}
}
