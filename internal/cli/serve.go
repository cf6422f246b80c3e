package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/contactload/internal/target"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var (
		addr        string
		latency     time.Duration
		environment string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the contacts application locally",
		Long: `Serve the contacts application (frontend page, /health and /api/contacts)
from memory, so profiles can be rehearsed without a deployment. Prometheus
metrics are exposed on /metrics.`,
		Example: `  contactload serve --addr :3001
  API_URL=http://localhost:3001 BASE_URL=http://localhost:3001 contactload run smoke`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := target.NewServer(target.Config{
				Environment: environment,
				Latency:     latency,
			}, global.logger)

			if err := srv.ListenAndServe(ctx, addr, 10*time.Second); err != nil {
				return failed(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":3001", "Listen address")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay added to every API request")
	cmd.Flags().StringVar(&environment, "environment", "development", "Environment reported by /health")

	return cmd
}
