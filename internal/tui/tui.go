// Package tui renders the processing spinner and the results view.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dpatch/dpatch"
	"dpatch/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type progressMsg struct {
	current, total int
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

// --- Model ---
type Model struct {
	app      *dpatch.App
	program  *tea.Program
	spinner  spinner.Model
	state    viewState
	progress progressMsg
	summary  summaryMsg
	err      error
}

type viewState int

const (
	stateProcessing viewState = iota
	stateSummary
	stateError
)

func New(app *dpatch.App) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &Model{
		app:     app,
		spinner: s,
		state:   stateProcessing,
	}
}

// SetProgram hooks the app's progress callback up to the running
// program so writer progress reaches the view.
func (m *Model) SetProgram(p *tea.Program) {
	m.program = p
	m.app.SetProgressCallback(func(current, total int) {
		p.Send(progressMsg{current: current, total: total})
	})
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case progressMsg:
		m.progress = msg
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing:
		if m.progress.total > 0 {
			return fmt.Sprintf("%s Applying [%d/%d]...", m.spinner.View(), m.progress.current, m.progress.total)
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error())
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	renderGroup := func(style lipgloss.Style, label string, files []string) {
		if len(files) == 0 {
			return
		}
		b.WriteString(style.Render(label + ":"))
		b.WriteString("\n")
		for _, f := range files {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	renderGroup(successStyle, "Created", m.summary.Created)
	renderGroup(successStyle, "Modified", m.summary.Modified)
	renderGroup(errorStyle, "Failed", m.summary.Failed)

	if m.summary.Empty() && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
	}

	return b.String()
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.app.Execute()
	if err != nil {
		// The TUI is about to exit; dump the stack for panics.
		if e, ok := err.(*dpatch.DetailedError); ok {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.Stack)
		}
		return errorMsg{err}
	}
	return summaryMsg{Summary: summary}
}
