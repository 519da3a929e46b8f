package build

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/source"
)

// ScriptCompiler bundles script entries with esbuild.
type ScriptCompiler struct {
	mode    Mode
	dist    string
	engines []api.Engine
	legacy  bool
	logger  logging.Logger
}

// NewScriptCompiler creates a ScriptCompiler for mode from cfg.
func NewScriptCompiler(mode Mode, cfg *config.ScriptConfig, logger logging.Logger) (*ScriptCompiler, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	targets, err := engines(cfg.Targets)
	if err != nil {
		return nil, errors.NewConfigError(err.Error())
	}

	return &ScriptCompiler{
		mode:    mode,
		dist:    cfg.Dist,
		engines: targets,
		legacy:  cfg.Legacy && mode == Production,
		logger:  logger.WithComponent("script"),
	}, nil
}

// Kind implements Compiler.
func (c *ScriptCompiler) Kind() source.Kind {
	return source.KindScript
}

// Compile implements Compiler. All entries go through one esbuild build, so
// one broken entry fails the whole batch.
func (c *ScriptCompiler) Compile(ctx context.Context, entries []string) (*Output, error) {
	if len(entries) == 0 {
		return &Output{}, nil
	}

	output := &Output{}
	if err := c.bundle(ctx, entries, c.options(entries), output); err != nil {
		return output, err
	}

	if c.legacy {
		opts := c.options(entries)
		opts.Format = api.FormatIIFE
		opts.EntryNames = "[name].iife"
		if err := c.bundle(ctx, entries, opts, output); err != nil {
			return output, err
		}
	}

	return output, nil
}

func (c *ScriptCompiler) options(entries []string) api.BuildOptions {
	opts := api.BuildOptions{
		EntryPoints: entries,
		Bundle:      true,
		Outdir:      c.dist,
		EntryNames:  "[name]",
		Engines:     c.engines,
		Sourcemap:   api.SourceMapInline,
		Write:       false,
		LogLevel:    api.LogLevelSilent,
	}
	if c.mode == Production {
		opts.Sourcemap = api.SourceMapLinked
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}

	return opts
}

func (c *ScriptCompiler) bundle(ctx context.Context, entries []string, opts api.BuildOptions, output *Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := api.Build(opts)
	output.Warnings = append(output.Warnings, diagnostics(result.Warnings, errors.ErrorSeverityWarning)...)
	if len(result.Errors) > 0 {
		err := errors.NewTransformError(errors.CodeBundleFailed, "bundle failed", nil).
			WithDiagnostics(diagnostics(result.Errors, errors.ErrorSeverityError))
		if len(entries) == 1 {
			err = err.WithFile(entries[0])
		}
		return err.WithContext("entries", entries)
	}

	for _, file := range result.OutputFiles {
		if err := WriteFileAtomic(file.Path, file.Contents); err != nil {
			return err
		}
		output.Artifacts = append(output.Artifacts, file.Path)
	}

	c.logger.Debug(ctx, "Bundle written", "entries", len(entries), "files", len(result.OutputFiles))

	return nil
}
