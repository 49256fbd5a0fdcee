// Package status prints a one-shot snapshot of the board.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/msageha/shopfloor/internal/board"
	"github.com/msageha/shopfloor/internal/dashboard"
	"github.com/msageha/shopfloor/internal/model"
	"github.com/msageha/shopfloor/internal/qpt"
)

// Source refreshes the board and exposes the resulting cards.
type Source interface {
	Refresh(ctx context.Context) (*model.StatusResponse, error)
	Registry() *board.Registry
}

type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     SummaryStatus `json:"summary"`
	Orders      []OrderStatus `json:"orders"`
	Queue       []QueuedOrder `json:"queue,omitempty"`
}

type SummaryStatus struct {
	Total      int `json:"total"`
	Setup      int `json:"setup"`
	Paused     int `json:"paused"`
	Production int `json:"production"`
}

type OrderStatus struct {
	OrderID      int          `json:"order_id"`
	Label        string       `json:"label"`
	Machine      string       `json:"machine,omitempty"`
	Status       string       `json:"status"`
	Timer        string       `json:"timer,omitempty"`
	Operator     string       `json:"operator,omitempty"`
	LastQuantity string       `json:"last_quantity,omitempty"`
	Quantities   []qpt.Item   `json:"quantities,omitempty"`
	Tasks        []TaskStatus `json:"tasks,omitempty"`
	Actions      []string     `json:"actions,omitempty"`
	Warning      string       `json:"warning,omitempty"`
}

// QueuedOrder is a ghost card: an order waiting behind another on a machine.
type QueuedOrder struct {
	OrderID int    `json:"order_id"`
	Label   string `json:"label"`
	Machine string `json:"machine"`
	Status  string `json:"status"`
	Timer   string `json:"timer,omitempty"`
}

type TaskStatus struct {
	Name     string `json:"name"`
	Item     string `json:"item,omitempty"`
	Status   string `json:"status"`
	Operator string `json:"operator,omitempty"`
	Timer    string `json:"timer,omitempty"`
}

// Build converts rendered cards into a snapshot. Ghost cards go to Queue.
func Build(resp *model.StatusResponse, views []board.View, now time.Time) Snapshot {
	sum := dashboard.Summarize(resp)
	snap := Snapshot{
		GeneratedAt: now,
		Summary: SummaryStatus{
			Total:      sum.Total,
			Setup:      sum.Setup,
			Paused:     sum.Paused,
			Production: sum.Production,
		},
		Orders: []OrderStatus{},
	}
	for _, v := range views {
		if v.Ghost {
			snap.Queue = append(snap.Queue, QueuedOrder{
				OrderID: v.OrderID,
				Label:   label(v),
				Machine: v.Machine,
				Status:  string(v.Status),
				Timer:   v.TimerText,
			})
			continue
		}
		snap.Orders = append(snap.Orders, orderStatus(v))
	}
	return snap
}

func orderStatus(v board.View) OrderStatus {
	o := OrderStatus{
		OrderID:      v.OrderID,
		Label:        v.Label,
		Machine:      v.Machine,
		Status:       string(v.Status),
		Timer:        v.TimerText,
		Operator:     v.Operator,
		LastQuantity: v.LastQuantity,
		Quantities:   v.Quantities,
		Warning:      v.Warning,
	}
	o.Label = label(v)
	for _, c := range v.Chips {
		o.Tasks = append(o.Tasks, TaskStatus{
			Name:     c.TaskName,
			Item:     c.ItemCode,
			Status:   string(c.Status),
			Operator: c.Operator,
			Timer:    c.TimerText,
		})
	}
	for _, a := range v.Buttons {
		if v.Enabled(a) {
			o.Actions = append(o.Actions, string(a))
		}
	}
	return o
}

// Run refreshes once and prints the board to w.
func Run(ctx context.Context, w io.Writer, src Source, jsonOutput bool) error {
	resp, err := src.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	reg := src.Registry()
	views := append(reg.Views(), reg.QueueViews()...)

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Build(resp, views, time.Now()))
	}
	return Print(w, resp, views)
}

// Print writes the summary line followed by one card per order.
func Print(w io.Writer, resp *model.StatusResponse, views []board.View) error {
	s := dashboard.Summarize(resp)
	if _, err := fmt.Fprintf(w, "Ordens: %d  Setup: %d  Pausadas: %d  Produção: %d\n",
		s.Total, s.Setup, s.Paused, s.Production); err != nil {
		return err
	}

	printed := 0
	var queue []board.View
	for _, v := range views {
		if v.Ghost {
			queue = append(queue, v)
			continue
		}
		if _, err := fmt.Fprintln(w, board.RenderCard(v)); err != nil {
			return err
		}
		printed++
	}
	if printed == 0 {
		_, err := fmt.Fprintln(w, "\nNenhuma ordem ativa.")
		return err
	}
	if len(queue) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nFila:"); err != nil {
		return err
	}
	for _, v := range queue {
		if _, err := fmt.Fprintln(w, "  "+board.QueueLine(v)); err != nil {
			return err
		}
	}
	return nil
}

func label(v board.View) string {
	if v.Label == "" {
		return fmt.Sprintf("OS-%d", v.OrderID)
	}
	return v.Label
}
