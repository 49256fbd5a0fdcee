package board

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/shopfloor/internal/model"
)

// Terminal colors for the badge color classes.
var colorByClass = map[string]lipgloss.Color{
	"bg-primary":   lipgloss.Color("#2196F3"),
	"bg-info":      lipgloss.Color("#4db6ac"),
	"bg-success":   lipgloss.Color("#8BC34A"),
	"bg-warning":   lipgloss.Color("#FFC107"),
	"bg-secondary": lipgloss.Color("#9e9e9e"),
	"bg-danger":    lipgloss.Color("#e53935"),
	"info":         lipgloss.Color("#4db6ac"),
	"warning":      lipgloss.Color("#FFC107"),
	"success":      lipgloss.Color("#8BC34A"),
}

var (
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2a3850")).
			Padding(0, 1).
			Width(40)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9e9e9e"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	timerStyle   = lipgloss.NewStyle().Bold(true)
)

// BadgeStyle returns the terminal style of a badge color class.
func BadgeStyle(color string) lipgloss.Style {
	style := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	if c, ok := colorByClass[color]; ok {
		return style.Background(c).Foreground(lipgloss.Color("#101F38"))
	}
	return style.Background(lipgloss.Color("#f4f5f6")).Foreground(lipgloss.Color("#101F38"))
}

// RenderCard draws a card for terminal output.
func RenderCard(v View) string {
	title := v.Label
	if title == "" {
		title = fmt.Sprintf("OS-%d", v.OrderID)
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		titleStyle.Render(title), "  ", BadgeStyle(v.Badge.Color).Render(v.Badge.Label))

	lines := []string{header}
	if v.Machine != "" {
		lines = append(lines, mutedStyle.Render(v.Machine))
	}
	if v.TimerText != "" {
		lines = append(lines, timerStyle.Render("⏱ "+v.TimerText))
	}
	if v.Operator != "" {
		lines = append(lines, "Operador: "+v.Operator)
	}
	if v.Warning != "" {
		lines = append(lines, warningStyle.Render("⚠ "+v.Warning))
	}
	for _, c := range v.Chips {
		lines = append(lines, renderChip(c))
	}
	if len(v.Quantities) > 0 {
		parts := make([]string, 0, len(v.Quantities))
		for _, it := range v.Quantities {
			parts = append(parts, fmt.Sprintf("%s: %d", it.Task, it.Qty))
		}
		lines = append(lines, mutedStyle.Render("Qtd: "+strings.Join(parts, " · ")))
	}
	if v.LastQuantity != "" {
		lines = append(lines, mutedStyle.Render("Última quantidade: "+v.LastQuantity))
	}
	if actions := enabledActions(v); actions != "" {
		lines = append(lines, mutedStyle.Render("["+actions+"]"))
	}
	return cardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderChip(c Chip) string {
	style := lipgloss.NewStyle().Foreground(colorByClass[c.Class])
	text := "● " + c.TaskName
	if c.Operator != "" {
		text += " · " + c.Operator
	}
	if c.TimerText != "" {
		text += " · " + c.TimerText
	}
	if c.PauseReason != "" {
		text += " (" + c.PauseReason + ")"
	}
	return style.Render(text)
}

func enabledActions(v View) string {
	var out []string
	for _, a := range v.Buttons {
		if v.Enabled(a) {
			out = append(out, actionLabel(a))
		}
	}
	return strings.Join(out, " | ")
}

func actionLabel(a model.Action) string {
	switch a {
	case model.ActionStartSetup:
		return "Início Setup"
	case model.ActionEndSetup:
		return "Fim Setup"
	case model.ActionStartProduction:
		return "Início Produção"
	case model.ActionPause:
		return "Pausa"
	case model.ActionStop:
		return "Fim Produção"
	case model.ActionResume:
		return "Retomar"
	}
	return string(a)
}

// QueueLine is the one-line preview of a ghost card.
func QueueLine(v View) string {
	title := v.Label
	if title == "" {
		title = fmt.Sprintf("OS-%d", v.OrderID)
	}
	parts := []string{mutedStyle.Render(v.Machine), titleStyle.Render(title), BadgeStyle(v.Badge.Color).Render(v.Badge.Label)}
	if v.TimerText != "" {
		parts = append(parts, timerStyle.Render("⏱ "+v.TimerText))
	}
	return strings.Join(parts, "  ")
}
