// Package tui is the interactive terminal board.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/shopfloor/internal/board"
	"github.com/msageha/shopfloor/internal/model"
)

// Board lists the cards to draw and the queued orders previewed below them.
type Board interface {
	Views() []board.View
	QueueViews() []board.View
}

// Refresher is the poller seen from the UI.
type Refresher interface {
	Trigger()
	SetVisible(visible bool)
}

const cardWidth = 44

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#101F38")).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9e9e9e"))
)

type tickMsg time.Time

// Model is the bubbletea model of the board. It redraws on every tick from
// the registry, which the session keeps current.
type Model struct {
	board     Board
	refresher Refresher
	tick      time.Duration

	viewport viewport.Model
	width    int
	height   int
	hidden   bool
	updated  time.Time
}

func New(b Board, r Refresher, tick time.Duration) Model {
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	return Model{
		board:     b,
		refresher: r,
		tick:      tick,
		viewport:  viewport.New(80, 20),
		width:     80,
		height:    24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.scheduleTick()
}

func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			m.refresher.Trigger()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-2)
		m.refreshContent()
		return m, nil
	case tea.FocusMsg:
		m.hidden = false
		m.refresher.SetVisible(true)
		return m, nil
	case tea.BlurMsg:
		m.hidden = true
		m.refresher.SetVisible(false)
		return m, nil
	case tickMsg:
		m.updated = time.Time(msg)
		m.refreshContent()
		return m, m.scheduleTick()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) refreshContent() {
	m.viewport.SetContent(renderGrid(m.board.Views(), m.board.QueueViews(), m.width))
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.footer())
}

func (m Model) header() string {
	views := m.board.Views()
	var setup, production, paused int
	for _, v := range views {
		switch v.Status {
		case model.StatusSetupInProgress:
			setup++
		case model.StatusProductionInProgress:
			production++
		case model.StatusPaused:
			paused++
		}
	}
	text := fmt.Sprintf("Apontamento  ordens: %d · setup: %d · produção: %d · pausadas: %d",
		len(views), setup, production, paused)
	return headerStyle.Width(max(m.width, 1)).Render(text)
}

func (m Model) footer() string {
	text := "r atualizar · ↑/↓ rolar · q sair"
	if !m.updated.IsZero() {
		text += " · " + m.updated.Format("15:04:05")
	}
	if m.hidden {
		text += " · em segundo plano"
	}
	return footerStyle.Render(text)
}

// renderGrid lays cards out in as many columns as fit in width, followed by
// one line per queued order.
func renderGrid(views, queue []board.View, width int) string {
	if len(views) == 0 {
		return footerStyle.Render("Nenhuma ordem ativa.")
	}
	cols := max(1, width/cardWidth)
	var rows []string
	for i := 0; i < len(views); i += cols {
		end := min(i+cols, len(views))
		cards := make([]string, 0, end-i)
		for _, v := range views[i:end] {
			cards = append(cards, board.RenderCard(v))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	if len(queue) > 0 {
		rows = append(rows, "", headerStyle.Render("Fila"))
		for _, v := range queue {
			rows = append(rows, board.QueueLine(v))
		}
	}
	return strings.Join(rows, "\n")
}

// Run shows the board until the user quits or ctx is done.
func Run(ctx context.Context, b Board, r Refresher, tick time.Duration) error {
	p := tea.NewProgram(New(b, r, tick),
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run board: %w", err)
	}
	return nil
}
