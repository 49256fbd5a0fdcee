package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/msageha/shopfloor/internal/qpt"
)

var cacheJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or maintain the per-task quantity cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [order_id]",
	Short: "Print cached quantities",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		orders := s.Cache().Orders()
		if len(args) == 1 {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			orders = []int{id}
		}
		byOrder := make(map[int][]qpt.Item, len(orders))
		for _, id := range orders {
			byOrder[id] = s.Cache().Entries(id)
		}
		if cacheJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(byOrder)
		}
		return printCache(cmd.OutOrStdout(), orders, byOrder)
	},
}

var cacheResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every cached quantity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Cache().Reset(); err != nil {
			return fmt.Errorf("reset cache: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache de quantidades limpo.")
		return nil
	},
}

var cacheSyncCmd = &cobra.Command{
	Use:   "sync <order_id>",
	Short: "Load an order's last quantities from the server and announce them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseOrderID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := oneShotContext(cmd)
		defer cancel()

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		items, err := s.SyncQuantities(ctx, id)
		if err != nil {
			return fmt.Errorf("sync order %d: %w", id, err)
		}
		return printCache(cmd.OutOrStdout(), []int{id}, map[int][]qpt.Item{id: items})
	},
}

func init() {
	cacheShowCmd.Flags().BoolVar(&cacheJSON, "json", false, "Print JSON")
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheResetCmd)
	cacheCmd.AddCommand(cacheSyncCmd)
}

func printCache(w io.Writer, orders []int, byOrder map[int][]qpt.Item) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("OS", "Trabalho", "Chave", "Qtd")
	rows := 0
	for _, id := range orders {
		for _, it := range byOrder[id] {
			t.Row(strconv.Itoa(id), it.Task, it.Key, strconv.Itoa(it.Qty))
			rows++
		}
	}
	if rows == 0 {
		_, err := fmt.Fprintln(w, "Nenhuma quantidade em cache.")
		return err
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
