package ui

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ErrCanceled is returned when the user interrupts the spinner.
var ErrCanceled = errors.New("operation canceled")

// Action is the work shown behind the spinner. status replaces the title.
type Action func(ctx context.Context, status func(string)) error

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RunSpinner runs a minimal Bubble Tea spinner on out while executing
// action. The UI exits when the action completes and returns its error.
func RunSpinner(ctx context.Context, out io.Writer, title string, action Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newSpinnerModel(title, cancel)
	p := tea.NewProgram(m, tea.WithOutput(out))

	done := make(chan error, 1)
	go func() {
		err := action(ctx, func(s string) { p.Send(statusMsg(s)) })
		done <- err
		p.Send(actionDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return err
	}
	err := <-done
	if m.canceled && err != nil {
		return ErrCanceled
	}
	return err
}

type statusMsg string

type actionDoneMsg struct{ err error }

type spinnerModel struct {
	title    string
	spin     spinner.Model
	cancel   context.CancelFunc
	done     bool
	canceled bool
	err      error
	style    lipgloss.Style
}

func newSpinnerModel(title string, cancel context.CancelFunc) *spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &spinnerModel{
		title:  title,
		spin:   s,
		cancel: cancel,
		style:  lipgloss.NewStyle().Padding(0, 1),
	}
}

func (m *spinnerModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.canceled = true
			m.cancel()
			return m, nil
		}
	case statusMsg:
		m.title = string(msg)
		return m, nil
	case actionDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *spinnerModel) View() string {
	if m.done {
		if m.err != nil {
			return m.style.Render("✗ " + m.title + " (" + m.err.Error() + ")\n")
		}
		return m.style.Render("✓ " + m.title + "\n")
	}
	return m.style.Render(m.spin.View() + " " + m.title)
}
