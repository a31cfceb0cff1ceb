// Package orchestrator owns the single active deployment session: it opens
// the progress stream, pumps it into the session, fans mutations out to
// observers and starts reconciliation and history refresh on completion.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/thecloudstation/cloudstation-deployer/pkg/api"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/history"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
	"github.com/thecloudstation/cloudstation-deployer/pkg/stream"
)

var (
	// ErrAlreadyInProgress is returned when a trigger arrives while a session is active
	ErrAlreadyInProgress = errors.New("a deployment is already in progress")

	// ErrBackendNotReady is returned when the backend reports ready=false
	ErrBackendNotReady = errors.New("deployment backend is not ready")

	// ErrAbandoned is the failure recorded when a session is abandoned by its owner
	ErrAbandoned = errors.New("deployment session abandoned")
)

// Backend is the subset of the API the orchestrator needs. *api.Client satisfies it.
type Backend interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	OpenDeployStream(ctx context.Context, req deployment.DeploymentRequest) (io.ReadCloser, error)
	OpenRedeployStream(ctx context.Context, infraProjectID string) (io.ReadCloser, error)
	poller.StatusFetcher
	history.Fetcher
}

// Config tunes the orchestrator
type Config struct {
	// Poller bounds reconciliation runs
	Poller poller.Config

	// HistoryLimit is the number of entries kept by the history store
	HistoryLimit int

	// HistoryTimeout bounds the background refresh after a terminal session
	HistoryTimeout time.Duration

	// SkipReadinessCheck disables the GET /deploy/status check before Trigger
	SkipReadinessCheck bool

	// DisableReconcile disables the poller after terminal sessions
	DisableReconcile bool
}

// Orchestrator enforces at most one active session per instance
type Orchestrator struct {
	backend Backend
	config  Config
	history *history.Store
	logger  hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active *Handle

	obsMu     sync.RWMutex
	observers []observer
	nextObsID int
}

type observer struct {
	id int
	fn func(deployment.Snapshot)
}

// New creates an orchestrator
func New(backend Backend, config Config, logger hclog.Logger) *Orchestrator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.HistoryTimeout <= 0 {
		config.HistoryTimeout = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend: backend,
		config:  config,
		history: history.NewStore(backend, config.HistoryLimit, logger),
		logger:  logger.Named("orchestrator"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// History returns the history store refreshed after every terminal session
func (o *Orchestrator) History() *history.Store {
	return o.history
}

// Active returns the active session handle, if any
func (o *Orchestrator) Active() (*Handle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active, o.active != nil
}

// Observe registers fn for every session mutation, including the initial
// snapshot of each new session. Each observer sees a session's mutations in
// arrival order. The returned func unregisters the observer.
func (o *Orchestrator) Observe(fn func(deployment.Snapshot)) (cancel func()) {
	o.obsMu.Lock()
	id := o.nextObsID
	o.nextObsID++
	o.observers = append(o.observers, observer{id: id, fn: fn})
	o.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.obsMu.Lock()
			defer o.obsMu.Unlock()
			for i, obs := range o.observers {
				if obs.id == id {
					o.observers = append(o.observers[:i], o.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Trigger starts a new deployment. Cancelling ctx abandons the session.
func (o *Orchestrator) Trigger(ctx context.Context, req deployment.DeploymentRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return o.start(ctx, KindDeploy, "", !o.config.SkipReadinessCheck, func(ctx context.Context) (io.ReadCloser, error) {
		return o.backend.OpenDeployStream(ctx, req)
	})
}

// Redeploy re-runs the deployment of an existing infra project. Cancelling
// ctx abandons the session.
func (o *Orchestrator) Redeploy(ctx context.Context, infraProjectID string) (*Handle, error) {
	if infraProjectID == "" {
		return nil, fmt.Errorf("infra project ID cannot be empty")
	}

	return o.start(ctx, KindRedeploy, infraProjectID, false, func(ctx context.Context) (io.ReadCloser, error) {
		return o.backend.OpenRedeployStream(ctx, infraProjectID)
	})
}

// Close abandons the active session and waits for background work to stop
func (o *Orchestrator) Close() {
	if h, ok := o.Active(); ok {
		h.Abandon()
	}
	o.cancel()
	o.wg.Wait()
}

type opener func(ctx context.Context) (io.ReadCloser, error)

func (o *Orchestrator) start(ctx context.Context, kind Kind, infraProjectID string, checkReady bool, open opener) (*Handle, error) {
	h, err := o.acquire(ctx, kind, infraProjectID)
	if err != nil {
		return nil, err
	}
	o.publish(h.session.Snapshot())

	if checkReady {
		status, err := o.backend.Status(h.ctx)
		if err != nil {
			return nil, o.abort(h, err)
		}
		if !status.Ready {
			if status.Message != "" {
				return nil, o.abort(h, fmt.Errorf("%w: %s", ErrBackendNotReady, status.Message))
			}
			return nil, o.abort(h, ErrBackendNotReady)
		}
	}

	body, err := open(h.ctx)
	if err != nil {
		return nil, o.abort(h, fmt.Errorf("failed to open progress stream: %w", err))
	}

	o.logger.Info("deployment started", "session", h.ID(), "kind", kind, "infra_project", infraProjectID)

	h.opened = true
	o.wg.Add(1)
	go o.pump(h, body)
	return h, nil
}

// acquire reserves the single active slot
func (o *Orchestrator) acquire(ctx context.Context, kind Kind, infraProjectID string) (*Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		o.logger.Warn("rejecting trigger: deployment already in progress", "active_session", o.active.ID())
		return nil, ErrAlreadyInProgress
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		kind:           kind,
		infraProjectID: infraProjectID,
		ctx:            hctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		reconciled:     make(chan poller.Report, 1),
	}
	h.session = deployment.NewSession(o.logger, deployment.WithOnChange(func(snap deployment.Snapshot) {
		o.onChange(h, snap)
	}))
	o.active = h
	return h, nil
}

// abort fails a session that never got a stream. A session abandoned while
// starting fails with ErrAbandoned.
func (o *Orchestrator) abort(h *Handle, err error) error {
	if h.ctx.Err() != nil {
		o.logger.Info("deployment abandoned before the stream opened", "session", h.ID(), "error", err)
		err = ErrAbandoned
	} else {
		o.logger.Warn("deployment could not start", "session", h.ID(), "error", err)
	}
	h.session.Fail(err)
	return err
}

// pump is the single sequential reader of a session's stream
func (o *Orchestrator) pump(h *Handle, body io.ReadCloser) {
	defer o.wg.Done()
	defer body.Close()

	// Closing the body unblocks a pending read when the session is abandoned.
	stop := context.AfterFunc(h.ctx, func() {
		body.Close()
	})
	defer stop()

	consumer := stream.NewConsumer(o.logger, stream.WithWarningHandler(h.addWarning))
	err := consumer.Consume(h.ctx, body, h.session)
	if err == nil || h.session.Terminal() {
		return
	}

	if h.ctx.Err() != nil {
		h.session.Fail(ErrAbandoned)
		return
	}
	h.session.Fail(err)
}

func (o *Orchestrator) onChange(h *Handle, snap deployment.Snapshot) {
	if !snap.Terminal() {
		o.publish(snap)
		return
	}

	o.mu.Lock()
	if o.active == h {
		o.active = nil
	}
	o.mu.Unlock()

	o.publish(snap)
	// Reconciliation is decided before Done so waiters can rely on Reconciling.
	o.afterTerminal(h, snap)
	close(h.done)
}

func (o *Orchestrator) publish(snap deployment.Snapshot) {
	o.obsMu.RLock()
	observers := make([]observer, len(o.observers))
	copy(observers, o.observers)
	o.obsMu.RUnlock()

	for _, obs := range observers {
		obs.fn(snap)
	}
}

func (o *Orchestrator) afterTerminal(h *Handle, snap deployment.Snapshot) {
	// Nothing changed on the backend if the stream never opened.
	if h.opened {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			ctx, cancel := context.WithTimeout(o.ctx, o.config.HistoryTimeout)
			defer cancel()
			if err := o.history.Refresh(ctx); err != nil {
				o.logger.Debug("history refresh after deployment failed", "error", err)
			}
		}()
	}

	target := o.reconcileTarget(h, snap)
	if target == "" {
		close(h.reconciled)
		h.cancel()
		return
	}

	p := poller.New(o.backend, o.config.Poller, o.logger)
	h.poller.Store(p)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer h.cancel()

		// The poller stops with its owning session or with the orchestrator.
		ctx, cancel := context.WithCancel(h.ctx)
		defer cancel()
		stop := context.AfterFunc(o.ctx, cancel)
		defer stop()

		report := p.Run(ctx, target)
		o.logger.Info("reconciliation finished", "session", h.ID(), "infra_project", target, "outcome", report.Outcome, "attempts", report.Attempts)
		h.reconciled <- report
		close(h.reconciled)
	}()
}

func (o *Orchestrator) reconcileTarget(h *Handle, snap deployment.Snapshot) string {
	if o.config.DisableReconcile {
		return ""
	}
	switch {
	case snap.Phase == deployment.PhaseComplete:
		if id := snap.InfraProjectID(); id != "" {
			return id
		}
		return h.infraProjectID
	case errors.Is(snap.Err, stream.ErrStreamEnded):
		// Services may still be settling behind a dropped stream.
		return h.infraProjectID
	}
	return ""
}
