package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/msageha/shopfloor/internal/api"
	"github.com/msageha/shopfloor/internal/events"
	"github.com/msageha/shopfloor/internal/history"
	"github.com/msageha/shopfloor/internal/notify"
	"github.com/msageha/shopfloor/internal/session"
)

var (
	dashboardRaw bool
	journalLimit int
	journalOrder int
)

var logsCmd = &cobra.Command{
	Use:   "logs <order_id>",
	Short: "Print an order's apontamento history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseOrderID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := oneShotContext(cmd)
		defer cancel()

		rep, err := history.Fetch(ctx, api.New(cfg.Server, logger), id)
		if err != nil {
			return err
		}
		return history.Render(cmd.OutOrStdout(), rep)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Poll once, regenerate dashboard.md and print it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := oneShotContext(cmd)
		defer cancel()

		cfg.Dashboard.Enabled = true
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		if _, err := s.Refresh(ctx); err != nil {
			return err
		}
		content, err := os.ReadFile(s.Dashboard().Path())
		if err != nil {
			return fmt.Errorf("read dashboard: %w", err)
		}
		return printMarkdown(cmd.OutOrStdout(), string(content), dashboardRaw)
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending apontamentos and raise a desktop alert for each",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := oneShotContext(cmd)
		defer cancel()

		checker := notify.NewChecker(api.New(cfg.Server, logger), notify.Desktop(logger), cfg.Notify.Interval(), logger)
		items, err := checker.Check(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "Nenhum apontamento pendente.")
			return nil
		}
		for _, it := range items {
			fmt.Fprintln(out, notify.PendingMessage(it))
		}
		return nil
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print the local session journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, _, err := events.ReadJournal(filepath.Join(stateDir, "logs", session.JournalFile))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("read journal: %w", err)
		}
		return printJournal(cmd.OutOrStdout(), entries, journalOrder, journalLimit)
	},
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardRaw, "raw", false, "Print the markdown source")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 50, "Show at most the last n entries (0 for all)")
	journalCmd.Flags().IntVar(&journalOrder, "order", 0, "Only entries of this order")
}

// printMarkdown renders md for the terminal unless raw is set.
func printMarkdown(w io.Writer, md string, raw bool) error {
	if raw {
		_, err := io.WriteString(w, md)
		return err
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func printJournal(w io.Writer, entries []events.JournalEntry, orderID, limit int) error {
	if orderID > 0 {
		filtered := entries[:0:0]
		for _, e := range entries {
			if e.OrderID == orderID {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	for _, e := range entries {
		details := ""
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return err
			}
			details = " " + string(b)
		}
		order := "-"
		if e.OrderID > 0 {
			order = strconv.Itoa(e.OrderID)
		}
		if _, err := fmt.Fprintf(w, "%s  %-12s  %-6s  %s%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.EventType, order, shortOrigin(e.Origin), details); err != nil {
			return err
		}
	}
	return nil
}

func shortOrigin(origin string) string {
	if len(origin) > 8 {
		return origin[:8]
	}
	if origin == "" {
		return "-"
	}
	return origin
}
