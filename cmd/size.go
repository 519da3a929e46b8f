package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/sizecheck"
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Check built files against gzip size budgets",
	Long: `Measure the raw, gzip and brotli size of every file matched by the
configured size rules. A file is over budget when its gzip size exceeds the
rule limit (1 KB = 1000 bytes). The check only reports unless --fail or
size.fail_on_over is set.

Examples:
  assetkit size
  assetkit size --format json
  assetkit size --fail --no-color`,
	RunE: runSize,
}

var (
	sizeFormat  string
	sizeFail    bool
	sizeNoColor bool
)

type sizeOptions struct {
	format string
	color  bool
	fail   bool
}

func init() {
	rootCmd.AddCommand(sizeCmd)

	sizeCmd.Flags().StringVarP(&sizeFormat, "format", "f", sizecheck.FormatText, "Output format (text, json, yaml)")
	sizeCmd.Flags().BoolVar(&sizeFail, "fail", false, "Exit non-zero when a file is over budget")
	sizeCmd.Flags().BoolVar(&sizeNoColor, "no-color", false, "Disable colored output")
}

func runSize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	return checkSizes(cmdContext(cmd), cmd, cfg, sizeOptions{
		format: sizeFormat,
		color:  !sizeNoColor,
		fail:   sizeFail || cfg.Size.FailOnOver,
	})
}

func checkSizes(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts sizeOptions) error {
	report, err := sizecheck.NewAuditor(cfg.Size.Rules).Audit(ctx)
	if err != nil {
		return err
	}
	if err := sizecheck.Render(cmd.OutOrStdout(), report, opts.format, opts.color); err != nil {
		return err
	}

	if over := report.OverLimit(); opts.fail && len(over) > 0 {
		return fmt.Errorf("%d of %d files over budget", len(over), len(report.Records))
	}

	return nil
}
