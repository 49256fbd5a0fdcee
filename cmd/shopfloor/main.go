package main

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

	"github.com/msageha/shopfloor/internal/logging"
	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/session"
	"github.com/msageha/shopfloor/internal/setup"
)

const version = "1.0.0"

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Resolved by PersistentPreRunE for commands that need a state directory.
	stateDir string
	cfg      model.Config
	logger   *zap.Logger
)

var errNoStateDir = errors.New(".shopfloor/ directory not found. Run 'shopfloor setup <dir>' first")

var rootCmd = &cobra.Command{
	Use:   "shopfloor",
	Short: "Shop-floor apontamento board",
	Long: `shopfloor shows the production status of shop orders, keeps the
per-task quantity cache and propagates quantities and stops to every other
shopfloor session sharing the same .shopfloor/ directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["state"] == "none" {
			logger = zap.NewNop()
			return nil
		}
		start := workspace
		if start == "" {
			start = "."
		}
		stateDir = setup.FindStateDir(start)
		if stateDir == "" {
			return errNoStateDir
		}
		var err error
		cfg, err = setup.LoadConfig(stateDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging, logging.Path(stateDir), verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Show version",
	Annotations: map[string]string{"state": "none"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shopfloor %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level to stderr as well")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Directory to search for .shopfloor/ (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout of one-shot commands")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openSession builds a session on the resolved state directory.
func openSession(opts ...session.Option) (*session.Session, error) {
	s, err := session.New(stateDir, cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return s, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// oneShotContext is a signalContext bounded by --timeout.
func oneShotContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signalContext(cmd)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
