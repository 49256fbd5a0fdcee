package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/shopfloor/internal/status"
	"github.com/msageha/shopfloor/internal/tui"
)

var (
	watchHeadless bool
	statusJSON    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a live session: poll, render and follow other sessions",
	Long: `watch keeps the board current until interrupted. It polls the server,
runs the elapsed-time counters, follows quantities and stops broadcast by other
sessions and, when enabled, rewrites dashboard.md and raises desktop alerts.

With --headless the board is not drawn; the session still does all of the
above.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Poll once and print the board",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := oneShotContext(cmd)
		defer cancel()

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return status.Run(ctx, cmd.OutOrStdout(), s, statusJSON)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchHeadless, "headless", false, "Do not draw the board")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print JSON")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Info("session started",
		zap.String("state_dir", stateDir),
		zap.String("origin", s.Origin()),
		zap.Bool("headless", watchHeadless))

	if watchHeadless {
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	uiCtx, uiDone := context.WithCancel(gctx)
	defer uiDone()
	g.Go(func() error {
		return s.Run(uiCtx)
	})
	g.Go(func() error {
		// Leaving the board ends the session.
		defer uiDone()
		return tui.Run(uiCtx, s.Registry(), s.Poller(), cfg.Render.TimerTick()/2)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
