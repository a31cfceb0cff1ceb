package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// SnapshotMsg delivers a session mutation to DeployModel
type SnapshotMsg struct {
	Snapshot deployment.Snapshot
}

// StartFailedMsg reports that the session could not be started
type StartFailedMsg struct {
	Err error
}

const maxBarWidth = 60

// DeployModel shows a spinner, the current phase and a progress bar until
// the session is terminal, then the results or error panel.
type DeployModel struct {
	title   string
	spinner spinner.Model
	bar     progress.Model

	snap     deployment.Snapshot
	hasSnap  bool
	startErr error
	done     bool

	abandoned bool
	onAbandon func()
	start     func() error
	hint      string
}

// DeployOption configures a DeployModel
type DeployOption func(*DeployModel)

// WithStarter runs start once the program is up. Snapshots must be sent to
// the program only after it runs, so the session is started from here.
func WithStarter(start func() error) DeployOption {
	return func(m *DeployModel) {
		m.start = start
	}
}

// WithAbandonHandler is called when the user presses ctrl+c
func WithAbandonHandler(fn func()) DeployOption {
	return func(m *DeployModel) {
		m.onAbandon = fn
	}
}

// WithRedeployHint sets the retry command shown on failure
func WithRedeployHint(hint string) DeployOption {
	return func(m *DeployModel) {
		m.hint = hint
	}
}

// NewDeployModel creates a progress view
func NewDeployModel(title string, opts ...DeployOption) DeployModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithSolidFill(string(ColorPrimary)))
	bar.Width = 40

	m := DeployModel{
		title:   title,
		spinner: s,
		bar:     bar,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Init starts the spinner and, if configured, the session
func (m DeployModel) Init() tea.Cmd {
	if m.start == nil {
		return m.spinner.Tick
	}
	start := m.start
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		if err := start(); err != nil {
			return StartFailedMsg{Err: err}
		}
		return nil
	})
}

// Update handles messages and updates the model state
func (m DeployModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.abandoned = true
			if m.onAbandon != nil {
				m.onAbandon()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-20, 10), maxBarWidth)

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.hasSnap = true
		if m.snap.Terminal() {
			m.done = true
			return m, tea.Quit
		}

	case StartFailedMsg:
		m.startErr = msg.Err
		m.done = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the current state
func (m DeployModel) View() string {
	if m.abandoned {
		return RenderWarning("Deployment abandoned; the backend may keep running it") + "\n"
	}
	if m.done {
		if m.hasSnap && m.snap.Terminal() {
			return RenderOutcome(m.snap, m.hint) + "\n"
		}
		return RenderError(fmt.Sprintf("Failed to start deployment: %v", m.startErr)) + "\n"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.title) + "\n\n")

	phase := deployment.Phase("")
	if m.hasSnap {
		phase = m.snap.Phase
	}
	b.WriteString(m.spinner.View() + " " + BoldStyle.Render(PhaseLabel(phase)))
	if m.snap.Message != "" {
		b.WriteString(" " + MutedStyle.Render(m.snap.Message))
	}
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.snap.Progress)/100) + "\n")

	if n := len(m.snap.Anomalies); n > 0 {
		b.WriteString(RenderWarning(fmt.Sprintf("%d protocol anomalies observed", n)) + "\n")
	}
	b.WriteString(MutedStyle.Render("ctrl+c to stop watching") + "\n")
	return b.String()
}

// Snapshot returns the last snapshot received
func (m DeployModel) Snapshot() deployment.Snapshot {
	return m.snap
}

// Abandoned reports whether the user stopped watching
func (m DeployModel) Abandoned() bool {
	return m.abandoned
}

// StartErr returns the error from the starter, if any
func (m DeployModel) StartErr() error {
	return m.startErr
}

// RunDeploy runs model to completion. subscribe receives the program's send
// function before model's starter runs and should forward every snapshot.
func RunDeploy(model DeployModel, subscribe func(send func(deployment.Snapshot))) (DeployModel, error) {
	p := tea.NewProgram(model)
	subscribe(func(snap deployment.Snapshot) {
		p.Send(SnapshotMsg{Snapshot: snap})
	})

	final, err := p.Run()
	if err != nil {
		return model, fmt.Errorf("progress view error: %w", err)
	}
	m, ok := final.(DeployModel)
	if !ok {
		return model, fmt.Errorf("unexpected model type")
	}
	return m, nil
}
