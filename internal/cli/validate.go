package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/contactload/internal/performance/config"
)

func newValidateCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a profile file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadProfile(args[0])
			if err != nil {
				return configError(err)
			}
			if _, err := cfg.ThresholdExpressions(); err != nil {
				return configError(err)
			}

			ok := color.New(color.FgGreen)
			if global.noColor {
				ok.DisableColor()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid (%s, max %d VUs, %d thresholds)\n",
				ok.Sprint("✓"),
				cfg.Name,
				config.Duration(cfg.TotalDuration()),
				cfg.ExecutorConfig().Schedule().MaxTarget(),
				countThresholds(cfg))
			return nil
		},
	}
}

func countThresholds(cfg *config.RunConfig) int {
	n := 0
	for _, ths := range cfg.Thresholds {
		n += len(ths)
	}
	return n
}
