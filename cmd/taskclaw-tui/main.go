// Command taskclaw-tui is an interactive run browser: a sidebar of
// recent runs with a live event viewer for the selected run. Works over
// SSH, tmux, screen — no GUI needed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clawinfra/taskclaw/internal/config"
	"github.com/clawinfra/taskclaw/internal/runlog"
)

const refreshInterval = 2 * time.Second

var (
	primaryColor = lipgloss.Color("#7C3AED")
	mutedColor   = lipgloss.Color("#6B7280")
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#EF4444")

	sidebarStyle = lipgloss.NewStyle().
			Width(34).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	sidebarTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	finishStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

type tickMsg struct{}

type model struct {
	repo     *runlog.Repository
	runs     []runlog.RunSummary
	selected int
	events   []runlog.Event
	viewport viewport.Model
	width    int
	height   int
	ready    bool
	err      error
}

func newModel(repo *runlog.Repository) model {
	return model{repo: repo}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func refresh() tea.Cmd {
	return func() tea.Msg { return tickMsg{} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.loadEvents()
			}
		case "down", "j":
			if m.selected < len(m.runs)-1 {
				m.selected++
				m.loadEvents()
			}
		case "g":
			m.viewport.GotoTop()
		case "G":
			m.viewport.GotoBottom()
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpWidth := m.width - 38
		if vpWidth < 20 {
			vpWidth = 20
		}
		vpHeight := m.height - 4
		if vpHeight < 5 {
			vpHeight = 5
		}
		if !m.ready {
			m.viewport = viewport.New(vpWidth, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = vpWidth
			m.viewport.Height = vpHeight
		}
		m.loadEvents()

	case tickMsg:
		runs, err := m.repo.ListRuns(50)
		m.runs = runs
		m.err = err
		if m.selected >= len(m.runs) {
			m.selected = 0
		}
		m.loadEvents()
		return m, tick()
	}

	return m, nil
}

// loadEvents refreshes the event pane for the selected run.
func (m *model) loadEvents() {
	if !m.ready || m.selected >= len(m.runs) {
		return
	}
	atBottom := m.viewport.AtBottom()
	events, err := m.repo.ReadRunEvents(m.runs[m.selected].RunID)
	if err != nil {
		m.viewport.SetContent(errStyle.Render(err.Error()))
		return
	}
	m.events = events
	m.viewport.SetContent(renderEvents(events))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func renderEvents(events []runlog.Event) string {
	out := ""
	for _, ev := range events {
		ts := time.Unix(int64(ev.TS), 0).Format("15:04:05")
		line := fmt.Sprintf("%s %-14s", mutedStyle.Render(ts), ev.Kind)
		switch ev.Kind {
		case runlog.KindFinish:
			line = finishStyle.Render(line)
		case runlog.KindError:
			line = errStyle.Render(line)
		}
		payload, err := json.Marshal(ev.Payload)
		if err == nil {
			detail := string(payload)
			if len(detail) > 400 {
				detail = detail[:400] + "…"
			}
			line += " " + detail
		}
		out += line + "\n"
	}
	if out == "" {
		return mutedStyle.Render("(no events)")
	}
	return out
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}

	sidebar := sidebarTitle.Render("Runs") + "\n"
	if m.err != nil {
		sidebar += errStyle.Render(m.err.Error()) + "\n"
	}
	visible := m.height - 6
	if visible < 1 {
		visible = 1
	}
	for i, run := range m.runs {
		if i >= visible {
			sidebar += mutedStyle.Render(fmt.Sprintf("… %d more", len(m.runs)-visible))
			break
		}
		label := fmt.Sprintf("%s %s", run.RunID, run.SpecialistID)
		if i == m.selected {
			sidebar += selectedStyle.Render("> "+label) + "\n"
		} else {
			sidebar += "  " + label + "\n"
		}
	}
	if len(m.runs) == 0 {
		sidebar += mutedStyle.Render("(no runs yet)")
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top,
		sidebarStyle.Render(sidebar),
		m.viewport.View(),
	)
	help := helpStyle.Render("  j/k: select run   g/G: top/bottom   q: quit")
	return main + "\n" + help
}

func main() {
	configPath := flag.String("config", "taskclaw.json", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	root := cfg.Server.WorkspaceRoot
	if env := os.Getenv("TASKCLAW_WORKSPACE"); env != "" {
		root = env
	}
	repo := runlog.NewRepository(root)

	program := tea.NewProgram(newModel(repo), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI crashed: %v\n", err)
		os.Exit(1)
	}
}
