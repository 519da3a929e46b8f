package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/source"
)

// StylesheetCompiler runs every module through the stage list of its mode.
type StylesheetCompiler struct {
	mode   Mode
	dist   string
	stages []Stage
	sass   Stage
	logger logging.Logger
	read   func(string) ([]byte, error)
}

// StylesheetOption customizes a StylesheetCompiler.
type StylesheetOption func(*StylesheetCompiler)

// WithRunner replaces the runner used for external commands.
func WithRunner(run Runner) StylesheetOption {
	return func(c *StylesheetCompiler) {
		for _, s := range append([]Stage{c.sass}, c.stages...) {
			switch st := s.(type) {
			case *sassStage:
				st.run = run
			case *utilitiesStage:
				st.run = run
			}
		}
	}
}

// WithStages replaces the stage list. The sass stage is kept separately and
// still applies to SCSS modules.
func WithStages(stages ...Stage) StylesheetOption {
	return func(c *StylesheetCompiler) {
		c.stages = stages
	}
}

// NewStylesheetCompiler assembles the stage list for mode from cfg:
//
//	development: sass, imports, utilities, sourcemap
//	production:  sass, imports, utilities, targets, purge, minify
//
// The utilities stage is left out when no generator command is configured.
func NewStylesheetCompiler(mode Mode, cfg *config.StylesheetConfig, logger logging.Logger, opts ...StylesheetOption) (*StylesheetCompiler, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	targets, err := engines(cfg.Browsers)
	if err != nil {
		return nil, errors.NewConfigError(err.Error())
	}

	c := &StylesheetCompiler{
		mode:   mode,
		dist:   cfg.Dist,
		sass:   &sassStage{command: cfg.SassCommand, run: ExecRunner},
		logger: logger.WithComponent("stylesheet"),
		read:   os.ReadFile,
	}

	c.stages = append(c.stages, importsStage{})
	if cfg.UtilityCommand != "" {
		c.stages = append(c.stages, &utilitiesStage{command: cfg.UtilityCommand, config: cfg.UtilityConfig, run: ExecRunner})
	}
	if mode == Production {
		c.stages = append(c.stages,
			&targetsStage{engines: targets},
			&purgeStage{content: cfg.Purge, safelist: cfg.Safelist, read: os.ReadFile},
		)
	}
	c.stages = append(c.stages, &finalStage{mode: mode, engines: targets})

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Kind implements Compiler.
func (c *StylesheetCompiler) Kind() source.Kind {
	return source.KindStylesheet
}

// Stages returns the stage names applied to module, in order.
func (c *StylesheetCompiler) Stages(module string) []string {
	var names []string
	for _, s := range c.stagesFor(module) {
		names = append(names, s.Name())
	}

	return names
}

func (c *StylesheetCompiler) stagesFor(module string) []Stage {
	switch strings.ToLower(filepath.Ext(module)) {
	case ".scss", ".sass":
		return append([]Stage{c.sass}, c.stages...)
	default:
		return c.stages
	}
}

// Compile implements Compiler. Modules are compiled one after the other; the
// first failure stops the batch.
func (c *StylesheetCompiler) Compile(ctx context.Context, modules []string) (*Output, error) {
	output := &Output{}
	for _, module := range modules {
		artifacts, warnings, err := c.compileOne(ctx, module)
		output.Warnings = append(output.Warnings, warnings...)
		if err != nil {
			return output, err
		}
		output.Artifacts = append(output.Artifacts, artifacts...)
	}

	return output, nil
}

func (c *StylesheetCompiler) compileOne(ctx context.Context, module string) ([]string, []errors.BuildError, error) {
	contents, err := c.read(module)
	if err != nil {
		return nil, nil, errors.NewIOError(errors.CodeReadFailed, "cannot read module", err).WithFile(module)
	}

	unit := &Unit{
		Module:   module,
		Artifact: source.ArtifactPath(c.dist, source.KindStylesheet, module),
		Contents: contents,
	}

	for _, stage := range c.stagesFor(module) {
		if err := ctx.Err(); err != nil {
			return nil, unit.Warnings, err
		}

		op := logging.StartOperation(c.logger, "stage", "stage", stage.Name(), "module", module)
		if err := stage.Apply(ctx, unit); err != nil {
			op.EndWithError(ctx, err, "Stage failed")
			return nil, unit.Warnings, asStageError(err, stage.Name(), module)
		}
		c.logger.Debug(ctx, "Stage done", "stage", stage.Name(), "module", module, "duration", op.Elapsed().String())
	}

	if err := WriteFileAtomic(unit.Artifact, unit.Contents); err != nil {
		return nil, unit.Warnings, err
	}
	artifacts := []string{unit.Artifact}

	if len(unit.Map) > 0 {
		mapPath := unit.Artifact + ".map"
		if err := WriteFileAtomic(mapPath, unit.Map); err != nil {
			return artifacts, unit.Warnings, err
		}
		artifacts = append(artifacts, mapPath)
	}

	return artifacts, unit.Warnings, nil
}

// asStageError tags err with the stage and module it came from, wrapping
// foreign errors as transform errors.
func asStageError(err error, stage, module string) error {
	if ae, ok := err.(*errors.AssetError); ok {
		if ae.Stage == "" {
			ae.Stage = stage
		}
		if ae.File == "" {
			ae.File = module
		}
		return ae
	}

	return errors.NewTransformError(errors.CodeStageFailed, "stage failed", err).
		WithStage(stage).
		WithFile(module)
}
