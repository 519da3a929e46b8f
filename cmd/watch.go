package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/server"
	"github.com/conneroisu/assetkit/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Build every module, then rebuild on file changes",
	Long: `Build every module, then keep watching the configured globs and rebuild
exactly the modules a change affects. Build failures are logged and never
stop the watcher. In production mode the initial build runs and the command
exits, like build.

Examples:
  assetkit watch
  ASSETKIT_MODE=development assetkit watch
  assetkit watch --serve          # Also start the live-reload server`,
	RunE: runWatch,
}

var watchServe bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchServe, "serve", false, "Start the live-reload and metrics server (server.enabled)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsDevelopment() {
		return buildOnce(ctx, cmd, cfg, logger)
	}

	return watchLoop(ctx, cmd, cfg, logger)
}

// watchLoop runs the initial build and dispatches file changes until ctx
// is done.
func watchLoop(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger logging.Logger) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	if watchServe || cfg.Server.Enabled {
		srv := server.New(cfg.Server, a.metrics, a.registry, logger)
		a.scheduler.AddCallback(srv.HandleBuildResult)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error(ctx, err, "Dev server stopped")
			}
		}()
	}

	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.NoGitFilter)
	fileWatcher.AddFilter(watcher.NoNodeModulesFilter)
	fileWatcher.AddFilter(watcher.NotUnder(cfg.Dist))
	if err := fileWatcher.WatchGlobs(a.watchGlobs()); err != nil {
		return fmt.Errorf("failed to watch sources: %w", err)
	}
	for _, d := range a.dispatchers {
		fileWatcher.AddHandler(d.DispatchAll(ctx))
	}

	logger.Info(ctx, "Build System started", "mode", a.mode, "globs", a.watchGlobs())
	if _, err := a.buildAll(ctx); err != nil {
		logger.Error(ctx, err, "Initial build could not start")
	}

	if err := fileWatcher.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Watching for changes. Press Ctrl+C to stop.")

	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.scheduler.Wait(drainCtx); err != nil {
		logger.Warn(drainCtx, err, "Builds still running at shutdown")
	}
	printMetrics(cmd, a.scheduler.Metrics())

	return nil
}

func printMetrics(cmd *cobra.Command, metrics *build.BuildMetrics) {
	snapshot := metrics.GetSnapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "%d builds (%d failed, %d coalesced), average %v\n",
		snapshot.TotalBuilds, snapshot.FailedBuilds, snapshot.Coalesced, snapshot.AverageDuration.Round(time.Millisecond))
}
