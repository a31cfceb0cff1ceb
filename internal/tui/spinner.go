package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// DoneMsg signals that the spinner operation has completed.
type DoneMsg struct {
	Success bool
	Message string
}

// SpinnerModel shows a spinner next to a message until a DoneMsg arrives.
type SpinnerModel struct {
	spinner      spinner.Model
	message      string
	done         bool
	success      bool
	cancelled    bool
	finalMessage string
}

// NewSpinnerModel creates a new spinner model with the given message.
func NewSpinnerModel(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return SpinnerModel{spinner: s, message: message}
}

// Init starts the animation.
func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages and updates the spinner state.
func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			m.cancelled = true
			m.finalMessage = "Cancelled"
			return m, tea.Quit
		}

	case DoneMsg:
		m.done = true
		m.success = msg.Success
		m.finalMessage = msg.Message
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner to a string.
func (m SpinnerModel) View() string {
	if m.done {
		if m.finalMessage == "" {
			return ""
		}
		if m.success {
			return RenderSuccess(m.finalMessage) + "\n"
		}
		return RenderError(m.finalMessage) + "\n"
	}
	return m.spinner.View() + " " + m.message
}

// Cancelled reports whether the user pressed ctrl+c
func (m SpinnerModel) Cancelled() bool {
	return m.cancelled
}

// RunSpinnerWithTask executes task while showing a spinner. cancel, if not
// nil, is called when the user presses ctrl+c and task is still awaited.
func RunSpinnerWithTask(message string, task func() (string, error), cancel func()) error {
	p := tea.NewProgram(NewSpinnerModel(message))

	type result struct {
		msg string
		err error
	}
	results := make(chan result, 1)

	go func() {
		msg, err := task()
		results <- result{msg: msg, err: err}
		if err != nil {
			if msg == "" {
				msg = err.Error()
			}
			p.Send(DoneMsg{Success: false, Message: msg})
			return
		}
		if msg == "" {
			msg = "Complete"
		}
		p.Send(DoneMsg{Success: true, Message: msg})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("spinner error: %w", err)
	}
	if m, ok := final.(SpinnerModel); ok && m.Cancelled() && cancel != nil {
		cancel()
	}

	r := <-results
	return r.err
}
