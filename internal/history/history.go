// Package history presents an order's apontamento records.
package history

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/msageha/shopfloor/internal/board"
	"github.com/msageha/shopfloor/internal/model"
)

// Record action names as sent in tipo_acao.
const (
	ActionStartSetup      = "Início Setup"
	ActionEndSetup        = "Fim Setup"
	ActionStartProduction = "Início Produção"
	ActionPause           = "Pausa Produção"
	ActionEndProduction   = "Fim Produção"
)

// LogSource is the logs endpoint.
type LogSource interface {
	Logs(ctx context.Context, orderID int) (*model.LogsResponse, error)
}

func BadgeClass(action string) string {
	switch action {
	case ActionStartSetup:
		return "bg-primary"
	case ActionEndSetup:
		return "bg-success"
	case ActionStartProduction:
		return "bg-warning"
	case ActionPause:
		return "bg-secondary"
	case ActionEndProduction:
		return "bg-danger"
	}
	return "bg-info"
}

type Summary struct {
	Records     int
	Setups      int // completed setups
	Productions int // completed productions
	Pauses      int
	Quantity    int
}

// Summarize counts completed setups, completed productions, pauses and the
// sum of reported quantities.
func Summarize(logs []model.LogEntry) Summary {
	s := Summary{Records: len(logs)}
	for _, l := range logs {
		switch l.Action {
		case ActionEndSetup:
			s.Setups++
		case ActionEndProduction:
			s.Productions++
		case ActionPause, "Pausa":
			s.Pauses++
		}
		if l.Quantity.Valid {
			s.Quantity += l.Quantity.Value
		}
	}
	return s
}

// Duration is tempo_decorrido when present, else the distance between
// data_hora and data_fim, formatted "1h 5min". "-" when neither is known.
func Duration(l model.LogEntry) string {
	if l.ElapsedSec.Valid && l.ElapsedSec.Value > 0 {
		return formatHM(time.Duration(l.ElapsedSec.Value) * time.Second)
	}
	start, ok := model.ParseTimestamp(l.Timestamp)
	if !ok {
		return "-"
	}
	end, ok := model.ParseTimestamp(l.EndedAt)
	if !ok {
		return "-"
	}
	d := end.Sub(start)
	if d < 0 {
		d = -d
	}
	return formatHM(d)
}

func formatHM(d time.Duration) string {
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dmin", h, m)
}

// Row is one record ready for display.
type Row struct {
	Time        string
	Action      string
	Badge       string
	Operator    string
	Item        string
	Task        string
	Quantity    string
	PauseReason string
	Duration    string
}

func NewRow(l model.LogEntry) Row {
	r := Row{
		Time:        "-",
		Action:      l.Action,
		Badge:       BadgeClass(l.Action),
		Operator:    strings.TrimSpace(l.OperatorName),
		Item:        orDash(l.ItemName),
		Task:        orDash(l.TaskName),
		Quantity:    "-",
		PauseReason: orDash(l.PauseReason),
		Duration:    Duration(l),
	}
	if t, ok := model.ParseTimestamp(l.Timestamp); ok {
		r.Time = t.Format("02/01/2006 15:04")
	}
	if l.OperatorCode != "" {
		r.Operator = strings.TrimSpace(r.Operator + " (" + string(l.OperatorCode) + ")")
	}
	if l.Quantity.Valid {
		r.Quantity = strconv.Itoa(l.Quantity.Value)
	}
	return r
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// Report is an order's history.
type Report struct {
	OrderID int
	Summary Summary
	Rows    []Row
}

// Fetch loads and summarizes an order's records.
func Fetch(ctx context.Context, src LogSource, orderID int) (*Report, error) {
	resp, err := src.Logs(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load logs for order %d: %w", orderID, err)
	}
	rep := &Report{OrderID: orderID, Summary: Summarize(resp.Logs)}
	for _, l := range resp.Logs {
		rep.Rows = append(rep.Rows, NewRow(l))
	}
	return rep, nil
}

var headerStyle = lipgloss.NewStyle().Bold(true)

// Render prints the summary and the record table.
func Render(w io.Writer, rep *Report) error {
	if len(rep.Rows) == 0 {
		_, err := fmt.Fprintln(w, "Nenhum registro de apontamento encontrado para esta OS.")
		return err
	}
	s := rep.Summary
	summary := fmt.Sprintf("%s  registros: %d · setups concluídos: %d · produções concluídas: %d · pausas: %d · peças: %d",
		headerStyle.Render(fmt.Sprintf("OS %d", rep.OrderID)), s.Records, s.Setups, s.Productions, s.Pauses, s.Quantity)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Data/Hora", "Ação", "Operador", "Item", "Trabalho", "Qtd", "Motivo Pausa", "Duração")
	for _, r := range rep.Rows {
		t.Row(r.Time, board.BadgeStyle(r.Badge).Render(r.Action), orDash(r.Operator), r.Item, r.Task, r.Quantity, r.PauseReason, r.Duration)
	}
	_, err := fmt.Fprintln(w, summary+"\n"+t.Render())
	return err
}
