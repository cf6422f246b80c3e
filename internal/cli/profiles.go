package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/contactload/internal/performance/config"
	"github.com/wesleyorama2/contactload/internal/performance/profiles"
)

func newProfilesCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDURATION\tMAX VUS\tDESCRIPTION")
			for _, name := range profiles.Names() {
				cfg, err := profiles.Get(name, global.env)
				if err != nil {
					return failed(err)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					cfg.Name,
					config.Duration(cfg.TotalDuration()),
					cfg.ExecutorConfig().Schedule().MaxTarget(),
					cfg.Description)
			}
			return tw.Flush()
		},
	}
}
