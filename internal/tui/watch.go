// Package tui renders the live download view for `riptide watch`: a 1 Hz
// poll of the daemon's snapshot endpoint drawn with one progress bar per
// download.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/riptide-dl/riptide/internal/engine/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	nameStyle   = lipgloss.NewStyle().Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	statusStyles = map[types.Status]lipgloss.Style{
		types.StatusQueued:      lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		types.StatusDownloading: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		types.StatusPaused:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		types.StatusCompleted:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		types.StatusFailed:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		types.StatusCancelled:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
)

type tickMsg time.Time

type snapshotMsg []types.DownloadView

type fetchErrMsg struct{ err error }

// Model is the bubbletea model behind `riptide watch`.
type Model struct {
	port  int
	views []types.DownloadView
	err   error
	bar   progress.Model
	width int
}

// Run blocks inside the TUI until the user quits.
func Run(port int) error {
	p := tea.NewProgram(NewModel(port), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func NewModel(port int) Model {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40
	return Model{port: port, bar: bar}
}

func (m Model) Init() tea.Cmd {
	return fetchSnapshot(m.port)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshot(port int) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/downloads", port))
		if err != nil {
			return fetchErrMsg{err}
		}
		defer resp.Body.Close()

		var views []types.DownloadView
		if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
			return fetchErrMsg{err}
		}
		return snapshotMsg(views)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 30; w > 10 {
			m.bar.Width = w
		}

	case tickMsg:
		return m, fetchSnapshot(m.port)

	case snapshotMsg:
		m.views = msg
		m.err = nil
		return m, tick()

	case fetchErrMsg:
		m.err = msg.err
		return m, tick()
	}

	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("riptide"))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("cannot reach daemon: %v", m.err)))
		b.WriteString("\n")
	case len(m.views) == 0:
		b.WriteString(detailStyle.Render("No downloads. Add one with 'riptide add <url>'."))
		b.WriteString("\n")
	default:
		for _, v := range m.views {
			b.WriteString(m.renderDownload(v))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}

func (m Model) renderDownload(v types.DownloadView) string {
	style, ok := statusStyles[v.Status]
	if !ok {
		style = detailStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", nameStyle.Render(v.Filename), style.Render(string(v.Status)))

	switch v.Status {
	case types.StatusDownloading:
		b.WriteString(m.bar.ViewAs(v.Progress.Percentage / 100))
		detail := fmt.Sprintf("  %s / %s",
			humanize.IBytes(uint64(v.Progress.Downloaded)),
			sizeOrUnknown(v.Progress.Total))
		if v.Progress.SpeedBPS > 0 {
			detail += fmt.Sprintf("  %s/s", humanize.IBytes(uint64(v.Progress.SpeedBPS)))
		}
		if v.Progress.ETASeconds > 0 {
			detail += fmt.Sprintf("  eta %s", (time.Duration(v.Progress.ETASeconds) * time.Second).String())
		}
		b.WriteString(detailStyle.Render(detail))
		b.WriteString("\n")

	case types.StatusPaused:
		b.WriteString(m.bar.ViewAs(v.Progress.Percentage / 100))
		b.WriteString(detailStyle.Render(fmt.Sprintf("  %s / %s",
			humanize.IBytes(uint64(v.Progress.Downloaded)),
			sizeOrUnknown(v.Progress.Total))))
		b.WriteString("\n")

	case types.StatusCompleted:
		b.WriteString(detailStyle.Render(sizeOrUnknown(v.Progress.Total)))
		b.WriteString("\n")

	case types.StatusFailed:
		b.WriteString(errorStyle.Render(v.Error))
		b.WriteString("\n")
	}

	return b.String()
}

func sizeOrUnknown(n int64) string {
	if n <= 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}
