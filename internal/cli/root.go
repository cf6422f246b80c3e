package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/contactload/internal/performance/config"
)

var version = "0.1.0"

// Exit codes.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitConfigError = 2
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func configError(err error) error {
	return &ExitError{Code: ExitConfigError, Err: err}
}

func failed(err error) error {
	return &ExitError{Code: ExitFailed, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// globalOptions holds the persistent flags and what is derived from them
// before any subcommand runs.
type globalOptions struct {
	logLevel  string
	logFormat string
	noColor   bool
	envFiles  []string

	env    config.Env
	logger *zap.Logger
}

// NewRootCmd creates the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "contactload",
		Short:   "Load tests for the contacts application",
		Version: version,
		Long: `contactload drives the contacts application with concurrent virtual users
following a staged schedule, checks every response, and judges the run
against latency and error-rate thresholds.

Built-in profiles:
  contactload run smoke
  contactload run load --base-url http://staging --api-url http://staging:3001

Custom profiles:
  contactload validate checkout.yaml
  contactload run --file checkout.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			_ = cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console, json (default from LOG_FORMAT)")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringSliceVar(&opts.envFiles, "env-file", config.DefaultEnvFiles, "Env files loaded when present")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newProfilesCmd(opts))
	rootCmd.AddCommand(newValidateCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))

	return rootCmd
}

func (o *globalOptions) init(cmd *cobra.Command) error {
	env, err := config.LoadEnv(o.envFiles...)
	if err != nil {
		return configError(err)
	}
	o.env = env

	if o.logLevel == "" {
		o.logLevel = env.LogLevel
	}
	if o.logFormat == "" {
		o.logFormat = env.LogFormat
	}
	o.noColor = o.noColor || env.NoColor

	logger, err := NewLogger(LogConfig{Level: o.logLevel, Format: o.logFormat, NoColor: o.noColor}, cmd.ErrOrStderr())
	if err != nil {
		return configError(err)
	}
	o.logger = logger
	return nil
}

// Execute runs the command line and returns the error of the command that
// ran. Use ExitCode to turn it into a process exit status.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
