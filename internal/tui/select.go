package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// PickerModel selects a redeploy target from recent deployments. Entries
// without an infra project ID cannot be redeployed and are skipped.
type PickerModel struct {
	entries  []deployment.HistoryEntry
	cursor   int
	selected int
	done     bool
}

// NewPickerModel creates a picker over the redeployable entries
func NewPickerModel(entries []deployment.HistoryEntry) PickerModel {
	var redeployable []deployment.HistoryEntry
	for _, e := range entries {
		if e.InfraProjectID != "" {
			redeployable = append(redeployable, e)
		}
	}
	return PickerModel{entries: redeployable, selected: -1}
}

// Init implements tea.Model
func (m PickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.entries) > 0 {
			m.selected = m.cursor
		}
		m.done = true
		return m, tea.Quit
	case "q", "esc", "ctrl+c":
		m.selected = -1
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// View implements tea.Model
func (m PickerModel) View() string {
	if m.done {
		return ""
	}
	if len(m.entries) == 0 {
		return RenderMuted("No redeployable deployments") + "\n"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Select a deployment to redeploy") + "\n\n")
	for i, e := range m.entries {
		line := fmt.Sprintf("%s  %s  %s", e.ProjectName, e.Status, e.InfraProjectID)
		if m.cursor == i {
			b.WriteString(SelectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString("\n" + MutedStyle.Render("(up/down to move, Enter to select, q to quit)") + "\n")
	return b.String()
}

// Selected returns the chosen entry, if any
func (m PickerModel) Selected() (deployment.HistoryEntry, bool) {
	if m.selected < 0 || m.selected >= len(m.entries) {
		return deployment.HistoryEntry{}, false
	}
	return m.entries[m.selected], true
}

// RunPicker shows the picker and returns the chosen entry
func RunPicker(entries []deployment.HistoryEntry) (deployment.HistoryEntry, bool, error) {
	model := NewPickerModel(entries)
	if len(model.entries) == 0 {
		return deployment.HistoryEntry{}, false, fmt.Errorf("no recent deployment can be redeployed")
	}

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return deployment.HistoryEntry{}, false, fmt.Errorf("failed to run select menu: %w", err)
	}
	m, ok := final.(PickerModel)
	if !ok {
		return deployment.HistoryEntry{}, false, fmt.Errorf("unexpected model type")
	}
	entry, ok := m.Selected()
	return entry, ok, nil
}
