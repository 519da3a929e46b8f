package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:     "manifest",
	Aliases: []string{"m"},
	Short:   "Write the cache-busting manifest",
	Long: `Hash every built file under the dist directory and write manifest.json,
mapping each bare filename to "filename?ver=<hash>". Nothing is written when
any file cannot be read.

Examples:
  assetkit manifest
  assetkit manifest --print`,
	RunE: runManifest,
}

var manifestPrint bool

func init() {
	rootCmd.AddCommand(manifestCmd)

	manifestCmd.Flags().BoolVar(&manifestPrint, "print", false, "Print every manifest entry")
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	return writeManifest(cmdContext(cmd), cmd, cfg, logger)
}

func writeManifest(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger logging.Logger) error {
	generator := manifest.NewGenerator(cfg.Dist, cfg.Manifest, logger)
	m, err := generator.Write(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if manifestPrint {
		for _, key := range m.Keys() {
			fmt.Fprintf(out, "%s -> %s\n", key, m[key])
		}
	}
	fmt.Fprintf(out, "Wrote %d entries to %s\n", len(m), generator.Path())

	return nil
}
