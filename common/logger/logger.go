package logger

import (
	"context"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"

	"wakewatch.dev/watcher/core/config"
)

// Setup installs the process-wide slog default. Development gets readable
// text on stderr, production gets JSON; when an OTLP endpoint is
// configured the otelslog bridge ships records to the collector instead.
// When a log file is configured, records additionally fan out to it as
// JSON. Returns a cleanup func that closes the log file, if any.
func Setup(cfg config.Config) func() error {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if cfg.IsDevelopment() || cfg.Verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch {
	case cfg.OTel.Enabled():
		handler = otelslog.NewHandler(
			cfg.OTel.ServiceName,
			otelslog.WithLoggerProvider(global.GetLoggerProvider()),
		)
	case cfg.IsProduction():
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	cleanup := func() error { return nil }

	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Error("failed to open log file, using stderr only", "error", err, "file", cfg.LogFile)
		} else {
			fileHandler := slog.NewJSONHandler(file, opts)
			handler = slogmulti.Fanout(handler, fileHandler)
			cleanup = file.Close
		}
	}

	slog.SetDefault(slog.New(NewContextHandler(handler)))
	return cleanup
}

// ContextHandler enriches records with trace ids and the structured
// fields carried in the context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	fields := GetLogFields(ctx)
	if fields.JobIID != nil {
		r.AddAttrs(slog.Int64("job_iid", *fields.JobIID))
	}
	if fields.CanonicalID != nil {
		r.AddAttrs(slog.String("canonical_id", *fields.CanonicalID))
	}
	if fields.Lang != nil {
		r.AddAttrs(slog.String("lang", *fields.Lang))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}

	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
