package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
)

func TestPhaseLabel(t *testing.T) {
	tests := map[deployment.Phase]string{
		deployment.PhaseCreatingProject: "Creating project",
		deployment.PhaseHealthCheck:     "Health check",
		"":                              "Waiting",
		"warming_caches":                "Warming caches",
	}
	for phase, want := range tests {
		if got := PhaseLabel(phase); got != want {
			t.Errorf("PhaseLabel(%q): expected %q, got %q", phase, want, got)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "-"},
		{12.4, "12s"},
		{92.6, "1m33s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v): expected %s, got %s", tt.seconds, tt.want, got)
		}
	}
}

func TestSortedURLNames(t *testing.T) {
	urls := map[string]string{
		"zeta":            "z",
		"infra_dashboard": "d",
		"backend":         "b",
		"alpha":           "a",
		"frontend":        "f",
	}
	got := strings.Join(SortedURLNames(urls), ",")
	want := "frontend,backend,infra_dashboard,alpha,zeta"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestRenderReport(t *testing.T) {
	out := RenderReport(poller.Report{Outcome: poller.OutcomeUnknown, Attempts: 4})
	if !strings.Contains(out, "Status unknown") {
		t.Errorf("Expected inconclusive wording, got %q", out)
	}
}

func TestRenderServices(t *testing.T) {
	out := RenderServices(&poller.View{Services: map[string]deployment.ServiceStatus{
		"backend":  {Name: "backend", IsDeployed: true, Status: "SUCCESS"},
		"database": {Name: "database"},
	}})
	if !strings.Contains(out, "deployed (SUCCESS)") || !strings.Contains(out, "pending") {
		t.Errorf("Unexpected services view: %q", out)
	}
	if !strings.Contains(RenderServices(nil), "No services") {
		t.Error("Expected placeholder for a missing view")
	}
}

func TestRenderHistory(t *testing.T) {
	out := RenderHistory([]deployment.HistoryEntry{{
		ProjectName:    "shop",
		Status:         "complete",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		InfraProjectID: "infra-1",
		URLs:           map[string]string{"frontend": "https://shop.example.com"},
	}})
	for _, want := range []string{"shop", "complete", "2026-03-01 12:00:00", "infra-1", "https://shop.example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected history to contain %q, got %q", want, out)
		}
	}
	if !strings.Contains(RenderHistory(nil), "No deployments") {
		t.Error("Expected placeholder for empty history")
	}
}
