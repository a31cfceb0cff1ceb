package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
	"github.com/thecloudstation/cloudstation-deployer/pkg/stream"
)

// Kind distinguishes fresh deployments from redeploys
type Kind string

const (
	KindDeploy   Kind = "deploy"
	KindRedeploy Kind = "redeploy"
)

// Handle is the caller's view of one session
type Handle struct {
	session        *deployment.Session
	kind           Kind
	infraProjectID string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// opened is set before the pump starts and never changes afterwards
	opened bool

	poller     atomic.Pointer[poller.Poller]
	reconciled chan poller.Report

	mu       sync.Mutex
	warnings []*stream.ProtocolWarning
}

// ID returns the session ID
func (h *Handle) ID() string {
	return h.session.ID()
}

// Kind returns whether this is a deploy or a redeploy
func (h *Handle) Kind() Kind {
	return h.kind
}

// Snapshot returns the current session state
func (h *Handle) Snapshot() deployment.Snapshot {
	return h.session.Snapshot()
}

// Done is closed once the session reaches a terminal phase
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the session is terminal and returns the final snapshot
// and its failure, if any. If ctx ends first it returns the current snapshot
// and ctx's error; the session keeps running.
func (h *Handle) Wait(ctx context.Context) (deployment.Snapshot, error) {
	select {
	case <-h.done:
		snap := h.session.Snapshot()
		return snap, snap.Err
	case <-ctx.Done():
		return h.session.Snapshot(), ctx.Err()
	}
}

// Abandon stops consuming the stream and any reconciliation run. A session
// that is not yet terminal fails with ErrAbandoned.
func (h *Handle) Abandon() {
	h.cancel()
}

// Services returns the latest reconciliation view, or nil if none has been published
func (h *Handle) Services() *poller.View {
	p := h.poller.Load()
	if p == nil {
		return nil
	}
	return p.Latest()
}

// Reconciling reports whether a reconciliation run was started for this
// session. It is settled once Done is closed.
func (h *Handle) Reconciling() bool {
	return h.poller.Load() != nil
}

// Reconciled delivers the reconciliation report and is then closed. It is
// closed without a value when no reconciliation runs for this session.
func (h *Handle) Reconciled() <-chan poller.Report {
	return h.reconciled
}

// Warnings returns the protocol warnings observed on the stream
func (h *Handle) Warnings() []*stream.ProtocolWarning {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*stream.ProtocolWarning(nil), h.warnings...)
}

func (h *Handle) addWarning(w *stream.ProtocolWarning) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warnings = append(h.warnings, w)
}
