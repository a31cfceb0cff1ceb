package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

func typeText(m RequestForm, text string) RequestForm {
	for _, r := range text {
		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(RequestForm)
	}
	return m
}

func TestRequestForm_FocusesFirstMissingField(t *testing.T) {
	m := NewRequestForm(deployment.DeploymentRequest{ProjectID: "p-1", ProjectName: "shop"})
	if m.focus != fieldAdminEmail {
		t.Errorf("Expected focus on admin email, got %d", m.focus)
	}
}

func TestRequestForm_Submit(t *testing.T) {
	m := NewRequestForm(deployment.DeploymentRequest{ProjectID: "p-1", ProjectName: "shop", AdminEmail: "a@example.com"})
	if m.focus != fieldAppKind {
		t.Fatalf("Expected focus on app kind, got %d", m.focus)
	}

	m = typeText(m, "Tool")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(RequestForm)
	if !isQuit(cmd) || !m.Submitted() {
		t.Fatal("Expected the form to submit")
	}

	req := m.Request()
	if req.AppKind != deployment.AppKindTool {
		t.Errorf("Expected app kind tool, got %s", req.AppKind)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Expected a valid request, got %v", err)
	}
}

func TestRequestForm_InvalidDoesNotSubmit(t *testing.T) {
	m := NewRequestForm(deployment.DeploymentRequest{ProjectID: "p-1", ProjectName: "shop", AdminEmail: "a@example.com"})
	m = typeText(m, "desktop")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(RequestForm)
	if isQuit(cmd) || m.Submitted() {
		t.Fatal("Invalid values must not submit")
	}
	if m.fields[fieldAppKind].err == "" {
		t.Error("Expected a validation error on app kind")
	}
}

func TestRequestForm_Cancel(t *testing.T) {
	m := NewRequestForm(deployment.DeploymentRequest{})
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !isQuit(cmd) || updated.(RequestForm).Submitted() {
		t.Error("Expected esc to cancel")
	}
}

func TestPickerModel(t *testing.T) {
	entries := []deployment.HistoryEntry{
		{ID: "d3", ProjectName: "shop", InfraProjectID: "infra-3"},
		{ID: "d2", ProjectName: "draft"},
		{ID: "d1", ProjectName: "blog", InfraProjectID: "infra-1"},
	}
	m := NewPickerModel(entries)
	if len(m.entries) != 2 {
		t.Fatalf("Expected entries without infra IDs to be skipped, got %d", len(m.entries))
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	updated, cmd := updated.(PickerModel).Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !isQuit(cmd) {
		t.Fatal("Expected enter to quit")
	}
	entry, ok := updated.(PickerModel).Selected()
	if !ok || entry.InfraProjectID != "infra-1" {
		t.Errorf("Expected infra-1 to be selected, got %+v", entry)
	}

	updated, _ = NewPickerModel(entries).Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := updated.(PickerModel).Selected(); ok {
		t.Error("Expected esc to select nothing")
	}
}
