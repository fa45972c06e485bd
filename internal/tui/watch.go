package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/keyrelay/internal/admin"
	"github.com/firefly-engineering/keyrelay/internal/monitor"
)

// callTimeout bounds each health or rotate call made from the UI.
const callTimeout = 5 * time.Second

// maxCursorDots is the largest key count drawn as a dot strip.
const maxCursorDots = 24

// Rotator advances the proxy's key cursor.
type Rotator interface {
	Rotate(ctx context.Context) (*admin.RotateResult, error)
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(10)

	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

type sampleMsg monitor.Sample

type tickMsg struct{}

type rotatedMsg struct {
	result *admin.RotateResult
	err    error
}

// WatchModel is the bubbletea model for the live status view
type WatchModel struct {
	monitor  *monitor.Monitor
	rotator  Rotator
	addr     string
	spinner  spinner.Model
	sample   *monitor.Sample
	rotation *admin.RotateResult
	rotErr   error
	quitting bool
	width    int
}

// NewWatch creates a status view for the proxy at addr. rotator may be nil,
// which disables the rotate key.
func NewWatch(mon *monitor.Monitor, rotator Rotator, addr string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = currentStyle

	return WatchModel{
		monitor: mon,
		rotator: rotator,
		addr:    addr,
		spinner: s,
	}
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.check())
}

func (m WatchModel) check() tea.Cmd {
	mon := m.monitor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return sampleMsg(mon.Check(ctx))
	}
}

func (m WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.monitor.Interval(), func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m WatchModel) rotate() tea.Cmd {
	rot := m.rotator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		result, err := rot.Rotate(ctx)
		return rotatedMsg{result: result, err: err}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case sampleMsg:
		s := monitor.Sample(msg)
		m.sample = &s
		return m, m.schedule()

	case tickMsg:
		return m, m.check()

	case rotatedMsg:
		m.rotErr = msg.err
		if msg.err == nil {
			m.rotation = msg.result
			// Reflect the new cursor until the next poll confirms it.
			if m.sample != nil && m.sample.Report != nil && msg.result != nil {
				report := *m.sample.Report
				report.CurrentKeyIndex = msg.result.CurrentIndex
				m.sample.Report = &report
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			if m.rotator != nil {
				return m, m.rotate()
			}
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("keyrelay - " + m.addr))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s polling every %s\n\n", m.spinner.View(), m.monitor.Interval()))

	switch {
	case m.sample == nil:
		b.WriteString("Waiting for first health check...\n")
	case m.sample.Err != nil:
		b.WriteString(row("Status", errorStyle.Render("unreachable")))
		b.WriteString(row("Error", m.sample.Err.Error()))
		b.WriteString(row("Checked", m.sample.At.Format(time.TimeOnly)))
	default:
		r := m.sample.Report
		b.WriteString(row("Status", healthyStyle.Render(string(r.Status))))
		b.WriteString(row("Keys", fmt.Sprintf("%d", r.APIKeysConfigured)))
		b.WriteString(row("Cursor", renderCursor(r.APIKeysConfigured, r.CurrentKeyIndex)))
		b.WriteString(row("Latency", m.sample.Latency.Round(time.Millisecond).String()))
		b.WriteString(row("Checked", m.sample.At.Format(time.TimeOnly)))
	}

	if m.rotErr != nil {
		b.WriteString(row("Rotate", errorStyle.Render(m.rotErr.Error())))
	} else if m.rotation != nil {
		b.WriteString(row("Rotate", fmt.Sprintf("%d -> %d of %d", m.rotation.PreviousIndex, m.rotation.CurrentIndex, m.rotation.TotalKeys)))
	}

	help := "[q] Quit"
	if m.rotator != nil {
		help = "[r] Rotate  " + help
	}
	b.WriteString(helpStyle.Render(help))
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

// renderCursor draws one dot per key with the next key highlighted.
func renderCursor(count, cursor int) string {
	if count == 0 {
		return "(no keys)"
	}
	if count > maxCursorDots {
		return fmt.Sprintf("%d/%d", cursor, count)
	}
	dots := make([]string, count)
	for i := range dots {
		if i == cursor {
			dots[i] = currentStyle.Render("●")
		} else {
			dots[i] = "○"
		}
	}
	return strings.Join(dots, " ") + fmt.Sprintf("  (%d)", cursor)
}

// RunWatch runs the interactive status view until the user quits
func RunWatch(mon *monitor.Monitor, rotator Rotator, addr string) error {
	p := tea.NewProgram(NewWatch(mon, rotator, addr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
