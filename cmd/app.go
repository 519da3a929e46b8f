package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/dispatch"
	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/resolver"
	"github.com/conneroisu/assetkit/internal/source"
)

// app is the wired pipeline shared by build and watch.
type app struct {
	cfg         *config.Config
	mode        build.Mode
	logger      logging.Logger
	registry    *prom.Registry
	metrics     *build.BuildMetrics
	scheduler   *build.Scheduler
	dispatchers []*dispatch.Dispatcher
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stderr
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: out,
	}), nil
}

// newApp builds the compilers, the scheduler and one dispatcher per
// enabled kind.
func newApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	mode, err := build.ParseMode(cfg.Mode)
	if err != nil {
		return nil, errors.NewConfigError(err.Error())
	}

	registry := prom.NewRegistry()
	a := &app{
		cfg:      cfg,
		mode:     mode,
		logger:   logger,
		registry: registry,
		metrics:  build.NewBuildMetrics(),
	}

	var compilers []build.Compiler
	if cfg.CSS.IsEnabled() {
		css, err := build.NewStylesheetCompiler(mode, &cfg.CSS, logger)
		if err != nil {
			return nil, err
		}
		compilers = append(compilers, css)
	}
	if cfg.JS.IsEnabled() {
		js, err := build.NewScriptCompiler(mode, &cfg.JS, logger)
		if err != nil {
			return nil, err
		}
		compilers = append(compilers, js)
	}

	a.scheduler = build.NewScheduler(logger, compilers,
		build.WithMetrics(a.metrics),
		build.WithRecorder(build.NewPrometheusRecorder(registry)))

	concurrency := cfg.Watch.ReadConcurrency
	if cfg.CSS.IsEnabled() {
		res := resolver.NewSubstringResolver(logger, concurrency, nil)
		a.dispatchers = append(a.dispatchers, dispatch.New(source.KindStylesheet, cfg.CSS.KindConfig, res, a.scheduler, logger))
	}
	if cfg.JS.IsEnabled() {
		res := resolver.NewImportResolver(logger, concurrency, nil)
		a.dispatchers = append(a.dispatchers, dispatch.New(source.KindScript, cfg.JS.KindConfig, res, a.scheduler, logger))
	}

	return a, nil
}

// buildAll submits every module of every enabled kind.
func (a *app) buildAll(ctx context.Context) ([]*build.Task, error) {
	var tasks []*build.Task
	for _, d := range a.dispatchers {
		kindTasks, err := d.BuildAll(ctx)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, kindTasks...)
	}

	return tasks, nil
}

// awaitAll waits for every task, collects the failures and counts the
// artifacts of the successful ones.
func awaitAll(ctx context.Context, tasks []*build.Task) (*errors.ErrorCollector, int) {
	collector := errors.NewErrorCollector()
	artifacts := 0
	for _, task := range tasks {
		if err := task.Wait(ctx); err != nil {
			collector.Add(err)
			continue
		}
		artifacts += len(task.Result().Artifacts)
	}

	return collector, artifacts
}

// watchGlobs returns the watch patterns of every enabled kind.
func (a *app) watchGlobs() []string {
	var globs []string
	if a.cfg.CSS.IsEnabled() {
		globs = append(globs, a.cfg.CSS.Watch...)
	}
	if a.cfg.JS.IsEnabled() {
		globs = append(globs, a.cfg.JS.Watch...)
	}

	return globs
}
