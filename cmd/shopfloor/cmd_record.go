package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/msageha/shopfloor/internal/session"
)

var (
	recordTaskID   int
	recordTaskName string
	recordItemCode string
)

var recordCmd = &cobra.Command{
	Use:   "record <order_id> <quantity>",
	Short: "Record a produced quantity and announce it to other sessions",
	Long: `record stores the quantity of one task of an order in the shared cache
and broadcasts it. A quantity lower than the one already cached for the task
is ignored. Identify the task with --task-id, --task-name or both.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}

		in := session.QuantityInput{
			OrderID:  orderID,
			TaskName: recordTaskName,
			ItemCode: recordItemCode,
			Quantity: qty,
		}
		if cmd.Flags().Changed("task-id") {
			in.TaskID = &recordTaskID
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		if err := s.RecordQuantity(in); err != nil {
			_ = s.Close()
			return fmt.Errorf("record: %w", err)
		}
		qtyNow, _ := s.Cache().Quantity(orderID, in.TaskID, in.TaskName)
		if err := s.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OS %d: %d\n", orderID, qtyNow)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <order_id>",
	Short: "Mark an order stopped and announce it to other sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orderID, err := parseOrderID(args[0])
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		if err := s.StopOrder(orderID); err != nil {
			_ = s.Close()
			return fmt.Errorf("stop: %w", err)
		}
		if err := s.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OS %d parada\n", orderID)
		return nil
	},
}

func init() {
	recordCmd.Flags().IntVar(&recordTaskID, "task-id", 0, "Task id (trabalho_id)")
	recordCmd.Flags().StringVar(&recordTaskName, "task-name", "", "Task name (trabalho_nome)")
	recordCmd.Flags().StringVar(&recordItemCode, "item-code", "", "Item code shown with the quantity")
}

func parseOrderID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, errors.New("order id must be a positive integer: " + s)
	}
	return id, nil
}
