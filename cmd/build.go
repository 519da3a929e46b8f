package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/logging"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build every module once and exit",
	Long: `Build every stylesheet and script module once, wait for all of them
and exit. The exit status is non-zero when any module failed.

Examples:
  assetkit build                       # Build in the configured mode
  assetkit build --mode development    # Unminified, inline source maps
  assetkit build --manifest --size     # Also write the manifest and check sizes`,
	RunE: runBuild,
}

var (
	buildManifest bool
	buildSize     bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildManifest, "manifest", false, "Write the cache-busting manifest after building")
	buildCmd.Flags().BoolVar(&buildSize, "size", false, "Check artifacts against size budgets after building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	return buildOnce(cmdContext(cmd), cmd, cfg, logger)
}

// buildOnce runs one full build plus the requested post-passes.
func buildOnce(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger logging.Logger) error {
	startTime := time.Now()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info(ctx, "Build System started", "mode", a.mode)
	tasks, err := a.buildAll(ctx)
	if err != nil {
		return err
	}

	collector, artifacts := awaitAll(ctx, tasks)
	if err := a.scheduler.Wait(ctx); err != nil {
		return err
	}
	if collector.HasErrors() {
		return collector.Summary("build")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Built %d module(s), %d artifact(s) in %v\n",
		len(tasks), artifacts, time.Since(startTime).Round(time.Millisecond))

	if buildManifest {
		if err := writeManifest(ctx, cmd, cfg, logger); err != nil {
			return err
		}
	}
	if buildSize {
		return checkSizes(ctx, cmd, cfg, sizeOptions{format: "text", color: !sizeNoColor, fail: cfg.Size.FailOnOver})
	}

	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
