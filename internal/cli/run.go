package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance/config"
	"github.com/wesleyorama2/contactload/internal/performance/engine"
	"github.com/wesleyorama2/contactload/internal/performance/output"
	"github.com/wesleyorama2/contactload/internal/performance/profiles"
	"github.com/wesleyorama2/contactload/internal/performance/report"
)

type runOptions struct {
	file       string
	baseURL    string
	apiURL     string
	resultsDir string
	timeScale  float64
	quiet      bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [profile]",
		Short: "Run a load test profile",
		Long: `Run a built-in profile (smoke, load, stress, spike, soak) or a profile file.

The text report is printed when the run ends and the JSON summary is written
to <results-dir>/<profile>-test-summary.json. The exit status is 0 when every
threshold passed, 1 when a threshold failed or the run was aborted, and 2 when
the profile is invalid.

The first interrupt stops the schedule and lets iterations finish; a second
one cancels in-flight requests.`,
		Example: `  contactload run smoke
  contactload run load --api-url http://staging:3001
  contactload run --file checkout.yaml --results-dir ./results
  contactload run soak --time-scale 0.1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd, global, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "Profile file (YAML or JSON) instead of a built-in profile")
	flags.StringVar(&opts.baseURL, "base-url", "", "Frontend base URL (overrides BASE_URL)")
	flags.StringVar(&opts.apiURL, "api-url", "", "API base URL (overrides API_URL)")
	flags.StringVar(&opts.resultsDir, "results-dir", "", "Directory for the JSON summary (overrides RESULTS_DIR)")
	flags.Float64Var(&opts.timeScale, "time-scale", 1, "Multiply every stage duration by this factor")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress output")

	return cmd
}

// loadRunConfig resolves the profile named by args or --file with the
// environment and flag overrides applied.
func loadRunConfig(cmd *cobra.Command, global *globalOptions, opts *runOptions, args []string) (*config.RunConfig, error) {
	env := global.env
	if cmd.Flags().Changed("base-url") {
		env.BaseURL = opts.baseURL
	}
	if cmd.Flags().Changed("api-url") {
		env.APIURL = opts.apiURL
	}

	var cfg *config.RunConfig
	switch {
	case opts.file != "" && len(args) > 0:
		return nil, fmt.Errorf("give either a profile name or --file, not both")
	case opts.file != "":
		loaded, err := config.LoadProfile(opts.file)
		if err != nil {
			return nil, err
		}
		loaded.MergeVariables(env.Variables())
		cfg = loaded
	case len(args) == 1:
		builtin, err := profiles.Get(args[0], env)
		if err != nil {
			return nil, err
		}
		cfg = builtin
	default:
		return nil, fmt.Errorf("no profile given (available: %v)", profiles.Names())
	}

	// explicit flags win over variables a profile file sets itself
	if cmd.Flags().Changed("base-url") {
		cfg.Variables["BASE_URL"] = opts.baseURL
	}
	if cmd.Flags().Changed("api-url") {
		cfg.Variables["API_URL"] = opts.apiURL
	}

	if opts.timeScale <= 0 {
		return nil, fmt.Errorf("--time-scale must be positive, got %v", opts.timeScale)
	}
	if opts.timeScale != 1 {
		cfg = cfg.Scaled(opts.timeScale)
	}
	return cfg, nil
}

func runProfile(cmd *cobra.Command, global *globalOptions, opts *runOptions, args []string) error {
	logger := global.logger

	cfg, err := loadRunConfig(cmd, global, opts, args)
	if err != nil {
		return configError(err)
	}

	eng, err := engine.NewEngine(cfg, engine.WithLogger(logger))
	if err != nil {
		return configError(err)
	}
	cfg = eng.Config()

	resultsDir := global.env.ResultsDir
	if cmd.Flags().Changed("results-dir") {
		resultsDir = opts.resultsDir
	}

	out := cmd.OutOrStdout()
	console := output.NewConsole(output.ConsoleConfig{
		Profile:       cfg.Name,
		TotalDuration: cfg.TotalDuration(),
		Writer:        out,
		Quiet:         opts.quiet,
		NoColor:       global.noColor,
	})
	console.PrintHeader()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		logger.Warn("interrupted, finishing current iterations (interrupt again to cancel)")
		stopCtx, stopCancel := context.WithTimeout(ctx, cfg.GracefulStop.Std()+5*time.Second)
		defer stopCancel()
		go func() {
			if err := eng.Stop(stopCtx); err != nil {
				logger.Debug("graceful stop did not complete", zap.Error(err))
			}
		}()

		select {
		case <-sigCh:
			logger.Warn("cancelling in-flight requests")
			cancel()
		case <-ctx.Done():
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		console.Watch(watchCtx, eng)
	}()

	logger.Info("starting run",
		zap.String("profile", cfg.Name),
		zap.Duration("duration", cfg.TotalDuration()),
		zap.Int("maxVUs", cfg.ExecutorConfig().Schedule().MaxTarget()))

	summary, runErr := eng.Run(ctx)
	stopWatch()
	<-watchDone

	if summary == nil {
		return failed(fmt.Errorf("run failed: %w", runErr))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Warn("run ended with error", zap.Error(runErr))
	}

	rendered, err := report.Render(summary, report.Options{NoColor: global.noColor})
	if err != nil {
		return failed(err)
	}
	fmt.Fprint(out, rendered.Text)

	path, err := report.WriteArtifact(resultsDir, cfg.Name, rendered.JSON)
	if err != nil {
		logger.Error("failed to write summary", zap.Error(err))
	} else {
		logger.Info("summary written", zap.String("path", path))
	}

	if !summary.Passed {
		if summary.Aborted {
			return failed(fmt.Errorf("run aborted: %s", summary.AbortReason))
		}
		return failed(fmt.Errorf("%d of %d thresholds failed", countFailed(summary), len(summary.Thresholds)))
	}
	return nil
}

func countFailed(s *engine.RunSummary) int {
	n := 0
	for _, r := range s.Thresholds {
		if !r.Passed {
			n++
		}
	}
	return n
}
