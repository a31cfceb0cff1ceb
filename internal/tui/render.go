package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
)

// urlOrder lists well-known endpoints first; others follow alphabetically
var urlOrder = []string{
	deployment.URLFrontend,
	deployment.URLAdmin,
	deployment.URLBackend,
	deployment.URLInfraDashboard,
}

// PhaseLabel turns a phase name into a display label ("health_check" -> "Health check")
func PhaseLabel(phase deployment.Phase) string {
	if phase == "" {
		return "Waiting"
	}
	label := strings.ReplaceAll(string(phase), "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}

// FormatDuration renders backend-reported seconds ("1m32s")
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}

// SortedURLNames returns the endpoint names of urls in display order
func SortedURLNames(urls map[string]string) []string {
	names := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urlOrder))
	for _, name := range urlOrder {
		if _, ok := urls[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}

	var rest []string
	for name := range urls {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// RenderResult renders the results panel of a completed session
func RenderResult(snap deployment.Snapshot) string {
	var b strings.Builder
	b.WriteString(SuccessStyle.Render(StatusSuccess+" Deployment complete") + "\n")

	if snap.Result != nil {
		if len(snap.Result.URLs) > 0 {
			b.WriteString("\n")
			for _, name := range SortedURLNames(snap.Result.URLs) {
				b.WriteString(fmt.Sprintf("%s %s\n", InputLabelStyle.Render(PhaseLabel(deployment.Phase(name))+":"), LinkStyle.Render(snap.Result.URLs[name])))
			}
		}
		b.WriteString("\n")
		b.WriteString(RenderStatusLine("Duration", FormatDuration(snap.Result.DurationSeconds), ""))
		if snap.Result.InfraProjectID != "" {
			b.WriteString("\n" + RenderStatusLine("Infra project", snap.Result.InfraProjectID, ""))
		}
	}

	return SuccessBoxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderFailure renders the error panel of a failed session. hint, when set,
// is shown as the command to retry with.
func RenderFailure(snap deployment.Snapshot, hint string) string {
	reason := "deployment failed"
	if snap.Err != nil {
		reason = snap.Err.Error()
	}

	var b strings.Builder
	b.WriteString(ErrorStyle.Render(StatusError+" Deployment failed") + "\n\n")
	b.WriteString(reason)
	if hint != "" {
		b.WriteString("\n\n" + MutedStyle.Render("Retry with: ") + hint)
	}
	return ErrorBoxStyle.Render(b.String())
}

// RenderOutcome renders whichever panel matches a terminal snapshot
func RenderOutcome(snap deployment.Snapshot, hint string) string {
	if snap.Phase == deployment.PhaseComplete {
		return RenderResult(snap)
	}
	return RenderFailure(snap, hint)
}

// RenderReport summarizes a reconciliation run
func RenderReport(report poller.Report) string {
	switch report.Outcome {
	case poller.OutcomeHealthy:
		return RenderSuccess(fmt.Sprintf("All services healthy (%d checks)", report.Attempts))
	case poller.OutcomeDegraded:
		return RenderError("Degraded: failed services: " + strings.Join(report.Final.Failed(), ", "))
	case poller.OutcomeCancelled:
		return RenderMuted("Service health check cancelled")
	}
	msg := fmt.Sprintf("Status unknown after %d checks; the deployment may still be settling", report.Attempts)
	if report.LastError != nil {
		msg += fmt.Sprintf(" (last error: %v)", report.LastError)
	}
	return RenderWarning(msg)
}

// RenderServices renders one line per service of a poll view
func RenderServices(view *poller.View) string {
	if view == nil || len(view.Services) == 0 {
		return RenderMuted("No services reported yet")
	}

	names := make([]string, 0, len(view.Services))
	for name := range view.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		svc := view.Services[name]
		state, style := "pending", "warning"
		switch {
		case svc.IsFailed:
			state, style = "failed", "error"
		case svc.IsDeployed:
			state, style = "deployed", "success"
		}
		if svc.Status != "" {
			state += " (" + svc.Status + ")"
		}
		b.WriteString(RenderStatusLine(name, state, style) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderHistory renders recent deployments, most recent first
func RenderHistory(entries []deployment.HistoryEntry) string {
	if len(entries) == 0 {
		return RenderMuted("No deployments yet")
	}

	var b strings.Builder
	for _, e := range entries {
		status := e.Status
		switch strings.ToLower(e.Status) {
		case "complete", "completed", "success":
			status = SuccessStyle.Render(e.Status)
		case "failed", "error":
			status = ErrorStyle.Render(e.Status)
		}

		b.WriteString(fmt.Sprintf("%s  %s  %s", BoldStyle.Render(e.ProjectName), status, MutedStyle.Render(e.CreatedAt.Format(time.DateTime))))
		if e.InfraProjectID != "" {
			b.WriteString("  " + MutedStyle.Render(e.InfraProjectID))
		}
		b.WriteString("\n")
		if url, ok := e.URLs[deployment.URLFrontend]; ok {
			b.WriteString("  " + LinkStyle.Render(url) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
