package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

var (
	formFocusedStyle = lipgloss.NewStyle().Foreground(ColorSecondary)
	formBlurredStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	formErrorStyle   = lipgloss.NewStyle().Foreground(ColorError)
)

// Field indexes of RequestForm
const (
	fieldProjectID = iota
	fieldProjectName
	fieldAdminEmail
	fieldAppKind
	fieldCount
)

type formField struct {
	label    string
	input    textinput.Model
	validate func(string) string
	err      string
}

// RequestForm collects the deployment request fields not given as flags
type RequestForm struct {
	fields    []formField
	focus     int
	done      bool
	submitted bool
}

// NewRequestForm creates a form prefilled from req
func NewRequestForm(req deployment.DeploymentRequest) RequestForm {
	required := func(label string) func(string) string {
		return func(v string) string {
			if strings.TrimSpace(v) == "" {
				return label + " is required"
			}
			return ""
		}
	}

	specs := []struct {
		label       string
		value       string
		placeholder string
		validate    func(string) string
	}{
		fieldProjectID:   {"Project ID", req.ProjectID, "proj_123", required("Project ID")},
		fieldProjectName: {"Project name", req.ProjectName, "my-shop", required("Project name")},
		fieldAdminEmail: {"Admin email", req.AdminEmail, "admin@example.com", func(v string) string {
			if !strings.Contains(v, "@") {
				return "Admin email must be a valid address"
			}
			return ""
		}},
		fieldAppKind: {"App kind", string(req.AppKind), "website, app or tool", func(v string) string {
			switch deployment.AppKind(strings.ToLower(strings.TrimSpace(v))) {
			case deployment.AppKindWebsite, deployment.AppKindApp, deployment.AppKindTool:
				return ""
			}
			return "App kind must be website, app or tool"
		}},
	}

	fields := make([]formField, fieldCount)
	for i, spec := range specs {
		ti := textinput.New()
		ti.Placeholder = spec.placeholder
		ti.CharLimit = 156
		ti.Width = 40
		ti.PromptStyle = formBlurredStyle
		ti.SetValue(spec.value)
		fields[i] = formField{label: spec.label, input: ti, validate: spec.validate}
	}

	m := RequestForm{fields: fields}
	// Start on the first field still missing
	for i := range m.fields {
		if m.fields[i].validate(m.fields[i].input.Value()) != "" {
			m.focus = i
			break
		}
	}
	m.fields[m.focus].input.Focus()
	m.fields[m.focus].input.PromptStyle = formFocusedStyle
	return m
}

// Init implements tea.Model
func (m RequestForm) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model
func (m RequestForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit

		case "tab", "shift+tab", "enter", "up", "down":
			s := key.String()
			f := &m.fields[m.focus]
			f.err = f.validate(f.input.Value())

			if s == "enter" && m.focus == len(m.fields)-1 {
				if m.validateAll() {
					m.done = true
					m.submitted = true
					return m, tea.Quit
				}
				return m, nil
			}

			if s == "up" || s == "shift+tab" {
				m.focus = (m.focus - 1 + len(m.fields)) % len(m.fields)
			} else {
				m.focus = (m.focus + 1) % len(m.fields)
			}
			return m, m.refocus()
		}
	}

	var cmd tea.Cmd
	m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
	return m, cmd
}

func (m *RequestForm) refocus() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.fields {
		if i == m.focus {
			cmd = m.fields[i].input.Focus()
			m.fields[i].input.PromptStyle = formFocusedStyle
		} else {
			m.fields[i].input.Blur()
			m.fields[i].input.PromptStyle = formBlurredStyle
		}
	}
	return cmd
}

func (m *RequestForm) validateAll() bool {
	valid := true
	for i := range m.fields {
		m.fields[i].err = m.fields[i].validate(m.fields[i].input.Value())
		if m.fields[i].err != "" {
			valid = false
		}
	}
	return valid
}

// View implements tea.Model
func (m RequestForm) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("New deployment") + "\n\n")
	for i, f := range m.fields {
		style := formBlurredStyle
		if i == m.focus {
			style = formFocusedStyle.Bold(true)
		}
		b.WriteString(style.Render(f.label) + ":\n")
		b.WriteString(f.input.View() + "\n")
		if f.err != "" {
			b.WriteString(formErrorStyle.Render("  "+f.err) + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(MutedStyle.Render("(Tab to navigate, Enter to submit, Esc to cancel)") + "\n")
	return b.String()
}

// Submitted reports whether the form was completed
func (m RequestForm) Submitted() bool {
	return m.submitted
}

// Request returns the request built from the field values
func (m RequestForm) Request() deployment.DeploymentRequest {
	value := func(i int) string {
		return strings.TrimSpace(m.fields[i].input.Value())
	}
	return deployment.DeploymentRequest{
		ProjectID:   value(fieldProjectID),
		ProjectName: value(fieldProjectName),
		AdminEmail:  value(fieldAdminEmail),
		AppKind:     deployment.AppKind(strings.ToLower(value(fieldAppKind))),
	}
}

// RunRequestForm prompts for the fields of req. ok is false when cancelled.
func RunRequestForm(req deployment.DeploymentRequest) (deployment.DeploymentRequest, bool, error) {
	final, err := tea.NewProgram(NewRequestForm(req)).Run()
	if err != nil {
		return req, false, fmt.Errorf("failed to run form: %w", err)
	}
	m, ok := final.(RequestForm)
	if !ok {
		return req, false, fmt.Errorf("unexpected model type")
	}
	if !m.Submitted() {
		return req, false, nil
	}
	return m.Request(), true, nil
}
