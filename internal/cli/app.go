package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"labcore/internal/blob"
	"labcore/internal/config"
	"labcore/internal/core"
	"labcore/internal/infra/persistence/memory"
	"labcore/internal/labdoc"
)

// app is the wired runtime a command works against.
type app struct {
	cfg      config.Config
	svc      *core.Service
	logger   *slog.Logger
	registry *prometheus.Registry
	closers  []io.Closer
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{File: opts.ConfigFile, EnvFile: opts.EnvFile})
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Storage != "" {
		cfg.Storage.Driver = opts.Storage
	}
	if opts.DBPath != "" {
		cfg.Storage.SQLitePath = opts.DBPath
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

// newMetrics returns the recorder for cfg.Backend. The registry is non-nil
// only for the prometheus backend.
func newMetrics(cfg config.Metrics) (core.MetricsRecorder, *prometheus.Registry, error) {
	switch cfg.Backend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		return rec, reg, nil
	case "expvar":
		return core.NewExpvarMetricsRecorder(""), nil, nil
	default:
		return nil, nil, nil
	}
}

func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configure logging", err)
	}
	a := &app{cfg: cfg, logger: logger}

	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: logger.With("component", "audit")}),
		core.WithTolerance(cfg.Engine.Tolerance),
		core.WithExpiryAlertDays(cfg.Engine.ExpiryAlertDays),
	}
	var storeOpts []memory.Option
	if opts.clock != nil {
		svcOpts = append(svcOpts, core.WithClock(opts.clock))
		storeOpts = append(storeOpts, memory.WithClock(opts.clock.Now))
	}
	metrics, registry, err := newMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(metrics))
	}
	a.registry = registry
	if cfg.Metrics.TraceFile != "" {
		f, err := os.OpenFile(cfg.Metrics.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(f)))
	}

	store, err := core.OpenPersistentStore(ctx, cfg.Storage, core.NewDefaultRulesEngine(), storeOpts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.svc = core.NewService(store, svcOpts...)
	logger.Debug("store opened", "driver", cfg.Storage.Driver)
	return a, nil
}

func (a *app) archive(ctx context.Context) (*labdoc.Archive, error) {
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", a.cfg.Blob.Driver, err)
	}
	return labdoc.NewArchive(store, ""), nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(a *app, p printer) error) (err error) {
	a, err := openApp(cmd.Context(), cmd, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a, printer{format: opts.Format, w: cmd.OutOrStdout()})
}
