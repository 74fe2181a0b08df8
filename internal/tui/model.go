package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"bootchartd/internal/app"
	"bootchartd/internal/pipeline"
)

const (
	requestTimeout  = 4 * time.Second
	refreshInterval = 2 * time.Second
)

// Controller defines the subset of app.App behaviour the TUI needs.
type Controller interface {
	Status(ctx context.Context, timeout time.Duration) (app.StatusReport, error)
	Stop(ctx context.Context, params app.StopParams) (app.StopResult, error)
}

// Model represents the Bubble Tea state.
type Model struct {
	controller Controller

	list    list.Model
	spinner spinner.Model

	report    app.StatusReport
	statusMsg string
	// notice is the outcome of the last stop; it outlives refreshes until
	// the next key press.
	notice string

	err      error
	loading  bool
	stopping bool

	width  int
	height int

	lastUpdated time.Time
}

// New constructs a TUI model with default styles.
func New(ctrl Controller) *Model {
	delegate := list.NewDefaultDelegate()
	lst := list.New([]list.Item{}, delegate, 0, 0)
	lst.Title = "bootchartd"
	lst.SetShowHelp(false)
	lst.SetFilteringEnabled(false)
	lst.DisableQuitKeybindings()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		controller: ctrl,
		list:       lst,
		spinner:    sp,
		statusMsg:  "Checking collector and detector…",
		loading:    true,
	}
}

// Run spins up the Bubble Tea program with sensible defaults.
func Run(ctrl Controller) error {
	m := New(ctrl)
	prog := tea.NewProgram(m, tea.WithAltScreen())
	_, err := prog.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refreshCmd(m.controller), tickCmd())
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.height > 5 {
			m.list.SetSize(msg.Width, msg.Height-5)
		}

	case statusMsg:
		m.loading = false
		m.err = nil
		m.report = msg.report
		m.list.SetItems(reportItems(msg.report))
		m.lastUpdated = time.Now()
		if !m.stopping && m.notice == "" {
			m.statusMsg = summary(msg.report)
		}

	case stoppedMsg:
		m.stopping = false
		m.err = nil
		m.notice = fmt.Sprintf("Archive written to %s (%s).",
			msg.result.Pipeline.Archive.Destination, humanize.Bytes(uint64(msg.result.Pipeline.Archive.Bytes)))
		m.statusMsg = m.notice
		m.loading = true
		return m, refreshCmd(m.controller)

	case tickMsg:
		if m.loading || m.stopping {
			return m, tickCmd()
		}
		return m, tea.Batch(refreshCmd(m.controller), tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case errMsg:
		m.loading = false
		m.stopping = false
		m.err = msg.err

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.stopping {
				return m, nil
			}
			m.notice = ""
			m.loading = true
			return m, refreshCmd(m.controller)
		case "s":
			if m.stopping {
				return m, nil
			}
			m.notice = ""
			m.stopping = true
			m.statusMsg = "Extracting samples…"
			return m, stopCmd(m.controller)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	statusStyle := lipgloss.NewStyle().Bold(true)
	if !m.report.CollectorRunning {
		statusStyle = statusStyle.Foreground(lipgloss.Color("203"))
	} else {
		statusStyle = statusStyle.Foreground(lipgloss.Color("42"))
	}
	if m.loading || m.stopping {
		b.WriteString(m.spinner.View())
		b.WriteByte(' ')
	}
	b.WriteString(statusStyle.Render(m.statusMsg))
	b.WriteByte('\n')

	if m.err != nil {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteByte('\n')
	}

	b.WriteString(m.list.View())
	b.WriteByte('\n')

	help := "Commands: q quit • r refresh • s stop and archive"
	if !m.lastUpdated.IsZero() {
		help += fmt.Sprintf(" • last update %s", m.lastUpdated.Format(time.Kitchen))
	}
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func summary(r app.StatusReport) string {
	switch {
	case r.CollectorRunning && r.Detector.Running:
		return fmt.Sprintf("Collecting; detector %s.", r.Detector.State)
	case r.CollectorRunning:
		return "Collecting. Press s to stop and archive."
	default:
		return "Collector is not running."
	}
}

// statusItem is one row of the status list.
type statusItem struct {
	title string
	desc  string
}

func (s statusItem) Title() string       { return s.title }
func (s statusItem) Description() string { return s.desc }
func (s statusItem) FilterValue() string { return s.title }

func reportItems(r app.StatusReport) []list.Item {
	coll := statusItem{title: "Collector", desc: "not running"}
	if r.CollectorRunning {
		coll.desc = fmt.Sprintf("pid %d", r.Collector.PID)
		if r.Collector.SampleHz != "" {
			coll.desc += fmt.Sprintf(" • %s Hz", r.Collector.SampleHz)
		}
		if r.Collector.Mode != "" {
			coll.desc += " • " + string(r.Collector.Mode)
		}
		if !r.Collector.StartedAt.IsZero() {
			coll.desc += " • started " + humanize.Time(r.Collector.StartedAt)
		}
	}

	det := statusItem{title: "Detector", desc: "not waiting"}
	if r.Detector.Running {
		det.desc = fmt.Sprintf("pid %d • %s", r.Detector.PID, r.Detector.State)
		if r.Detector.SessionObserved {
			det.desc += " • session seen, settling"
		}
	}

	arc := statusItem{title: "Archive", desc: r.Archive.Path + " • missing"}
	if r.Archive.Exists {
		arc.desc = fmt.Sprintf("%s • %s • %s", r.Archive.Path,
			humanize.Bytes(uint64(r.Archive.Size)), humanize.Time(r.Archive.ModTime))
	}

	cfg := statusItem{title: "Config", desc: valueOrDefaults(r.ConfigSource)}
	return []list.Item{coll, det, arc, cfg}
}

func valueOrDefaults(s string) string {
	if strings.TrimSpace(s) == "" {
		return "built-in defaults"
	}
	return s
}

type statusMsg struct {
	report app.StatusReport
}

type stoppedMsg struct {
	result app.StopResult
}

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

func refreshCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		report, err := ctrl.Status(ctx, requestTimeout)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{report: report}
	}
}

func stopCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		res, err := ctrl.Stop(context.Background(), app.StopParams{})
		if errors.Is(err, pipeline.ErrDumpEmpty) {
			return errMsg{fmt.Errorf("nothing to archive: %w", err)}
		}
		if err != nil {
			return errMsg{err}
		}
		return stoppedMsg{result: res}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
