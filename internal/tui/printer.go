package tui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
)

// Printer writes one plain line per visible change of a session, for
// non-interactive terminals and CI logs.
type Printer struct {
	w    io.Writer
	hint string

	mu       sync.Mutex
	session  string
	phase    deployment.Phase
	progress int
	message  string
}

// NewPrinter creates a plain printer. hint is the retry command printed on failure.
func NewPrinter(w io.Writer, hint string) *Printer {
	return &Printer{w: w, hint: hint, progress: -1}
}

// Observe prints snap if it differs from the last printed state. It can be
// registered directly as an orchestrator observer.
func (p *Printer) Observe(snap deployment.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.ID != p.session {
		p.session = snap.ID
		p.phase, p.progress, p.message = "", -1, ""
	}
	if snap.Phase == p.phase && snap.Progress == p.progress && snap.Message == p.message {
		return
	}
	p.phase, p.progress, p.message = snap.Phase, snap.Progress, snap.Message

	switch snap.Phase {
	case deployment.PhaseComplete:
		p.printResult(snap)
	case deployment.PhaseFailed:
		p.printFailure(snap)
	default:
		line := fmt.Sprintf("[%3d%%] %s", snap.Progress, PhaseLabel(snap.Phase))
		if snap.Message != "" {
			line += ": " + snap.Message
		}
		fmt.Fprintln(p.w, line)
	}
}

func (p *Printer) printResult(snap deployment.Snapshot) {
	fmt.Fprintln(p.w, "Deployment complete")
	if snap.Result == nil {
		return
	}
	for _, name := range SortedURLNames(snap.Result.URLs) {
		fmt.Fprintf(p.w, "  %s: %s\n", name, snap.Result.URLs[name])
	}
	fmt.Fprintf(p.w, "  duration: %s\n", FormatDuration(snap.Result.DurationSeconds))
	if snap.Result.InfraProjectID != "" {
		fmt.Fprintf(p.w, "  infra project: %s\n", snap.Result.InfraProjectID)
	}
}

func (p *Printer) printFailure(snap deployment.Snapshot) {
	reason := "deployment failed"
	if snap.Err != nil {
		reason = snap.Err.Error()
	}
	fmt.Fprintf(p.w, "Deployment failed: %s\n", reason)
	if p.hint != "" {
		fmt.Fprintf(p.w, "  retry with: %s\n", p.hint)
	}
}

// Report prints the outcome of a reconciliation run
func (p *Printer) Report(report poller.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch report.Outcome {
	case poller.OutcomeHealthy:
		fmt.Fprintf(p.w, "Services healthy after %d checks\n", report.Attempts)
	case poller.OutcomeDegraded:
		fmt.Fprintf(p.w, "Services degraded: %s\n", strings.Join(report.Final.Failed(), ", "))
	case poller.OutcomeCancelled:
		fmt.Fprintln(p.w, "Service health check cancelled")
	default:
		fmt.Fprintf(p.w, "Status unknown after %d checks\n", report.Attempts)
	}

	if report.Final == nil {
		return
	}
	names := make([]string, 0, len(report.Final.Services))
	for name := range report.Final.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc := report.Final.Services[name]
		state := "pending"
		switch {
		case svc.IsFailed:
			state = "failed"
		case svc.IsDeployed:
			state = "deployed"
		}
		fmt.Fprintf(p.w, "  %s: %s\n", name, state)
	}
}
