package deployment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// AnomalyKind classifies a protocol irregularity observed by a Session
type AnomalyKind string

const (
	// AnomalyPhaseRegression marks a phase arriving earlier in the expected order than the current one
	AnomalyPhaseRegression AnomalyKind = "phase_regression"
	// AnomalyUnknownPhase marks a phase name outside the enumerated set
	AnomalyUnknownPhase AnomalyKind = "unknown_phase"
	// AnomalyProgressClamped marks a percent outside [0,100]
	AnomalyProgressClamped AnomalyKind = "progress_clamped"
	// AnomalyProgressRegression marks a percent lower than the previous one
	AnomalyProgressRegression AnomalyKind = "progress_regression"
	// AnomalyTerminalPhaseInProgress marks a progress update naming a terminal phase
	AnomalyTerminalPhaseInProgress AnomalyKind = "terminal_phase_in_progress"
)

// Anomaly is one flagged irregularity; the update that caused it was still applied
type Anomaly struct {
	Kind   AnomalyKind
	Detail string
	At     time.Time
}

// BackendError is a failure reported by the backend through an error envelope.
// The reason is surfaced verbatim.
type BackendError struct {
	Reason string
}

func (e *BackendError) Error() string {
	return e.Reason
}

// Snapshot is an immutable copy of a Session's state
type Snapshot struct {
	ID        string
	Phase     Phase
	Progress  int
	Message   string
	Result    *DeploymentResult
	Err       error
	Anomalies []Anomaly
	StartedAt time.Time
	UpdatedAt time.Time
	EndedAt   time.Time
}

// Terminal reports whether the snapshot is in a terminal phase
func (s Snapshot) Terminal() bool {
	return s.Phase.IsTerminal()
}

// InfraProjectID returns the infra handle from the result, if any
func (s Snapshot) InfraProjectID() string {
	if s.Result == nil {
		return ""
	}
	return s.Result.InfraProjectID
}

// Session tracks the state of one deployment attempt. It is mutated only
// through ApplyProgress, Complete and Fail, and is frozen once terminal.
type Session struct {
	mu sync.Mutex

	id        string
	phase     Phase
	progress  int
	message   string
	result    *DeploymentResult
	err       error
	anomalies []Anomaly
	startedAt time.Time
	updatedAt time.Time
	endedAt   time.Time

	onChange func(Snapshot)
	now      func() time.Time
	logger   hclog.Logger
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithID overrides the generated session identity
func WithID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// WithOnChange registers a hook invoked after every mutation
func WithOnChange(fn func(Snapshot)) SessionOption {
	return func(s *Session) {
		s.onChange = fn
	}
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates a Session in phase initializing
func NewSession(logger hclog.Logger, opts ...SessionOption) *Session {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Session{
		id:     uuid.NewString(),
		phase:  PhaseInitializing,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("session", s.id)
	s.startedAt = s.now()
	s.updatedAt = s.startedAt
	return s
}

// ID returns the session identity
func (s *Session) ID() string {
	return s.id
}

// Terminal reports whether the session has reached complete or failed
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.IsTerminal()
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ApplyProgress applies a progress update. Out-of-order phases and percent
// regressions are accepted but flagged. Returns false if the session is
// already terminal and the update was ignored.
func (s *Session) ApplyProgress(ev PhaseEvent) bool {
	s.mu.Lock()
	if s.phase.IsTerminal() {
		s.mu.Unlock()
		s.logger.Debug("ignoring progress after terminal phase", "phase", ev.Phase)
		return false
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	switch {
	case ev.Phase == "":
		// message or percent only
	case ev.Phase.IsTerminal():
		s.flagLocked(AnomalyTerminalPhaseInProgress, fmt.Sprintf("progress update named terminal phase %q", ev.Phase), at)
	case !ev.Phase.Known():
		s.flagLocked(AnomalyUnknownPhase, fmt.Sprintf("unknown phase %q", ev.Phase), at)
		s.phase = ev.Phase
	default:
		if ev.Phase.Rank() < s.phase.Rank() {
			s.flagLocked(AnomalyPhaseRegression, fmt.Sprintf("phase %q arrived after %q", ev.Phase, s.phase), at)
		}
		s.phase = ev.Phase
	}

	if !ev.NoProgress {
		progress := ev.Progress
		if progress < 0 || progress > 100 {
			clamped := min(max(progress, 0), 100)
			s.flagLocked(AnomalyProgressClamped, fmt.Sprintf("progress %d clamped to %d", progress, clamped), at)
			progress = clamped
		}
		if progress < s.progress {
			s.flagLocked(AnomalyProgressRegression, fmt.Sprintf("progress dropped from %d to %d", s.progress, progress), at)
		}
		s.progress = progress
	}

	if ev.Message != "" {
		s.message = ev.Message
	}
	s.updatedAt = at

	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true
}

// Complete transitions the session to complete and attaches the result.
// Returns false if the session was already terminal.
func (s *Session) Complete(result DeploymentResult) bool {
	s.mu.Lock()
	if s.phase.IsTerminal() {
		s.mu.Unlock()
		s.logger.Debug("ignoring completion after terminal phase")
		return false
	}

	r := result.Copy()
	s.result = &r
	s.phase = PhaseComplete
	s.progress = 100
	s.updatedAt = s.now()
	s.endedAt = s.updatedAt

	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("deployment complete", "duration", result.DurationSeconds, "infra_project", result.InfraProjectID)
	s.notify(snap)
	return true
}

// Fail transitions the session to failed. Returns false if the session was
// already terminal.
func (s *Session) Fail(err error) bool {
	if err == nil {
		err = fmt.Errorf("deployment failed")
	}

	s.mu.Lock()
	if s.phase.IsTerminal() {
		s.mu.Unlock()
		s.logger.Debug("ignoring failure after terminal phase", "error", err)
		return false
	}

	s.err = err
	s.phase = PhaseFailed
	s.updatedAt = s.now()
	s.endedAt = s.updatedAt

	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Warn("deployment failed", "error", err)
	s.notify(snap)
	return true
}

func (s *Session) flagLocked(kind AnomalyKind, detail string, at time.Time) {
	s.anomalies = append(s.anomalies, Anomaly{Kind: kind, Detail: detail, At: at})
	s.logger.Warn("protocol anomaly", "kind", kind, "detail", detail)
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		Phase:     s.phase,
		Progress:  s.progress,
		Message:   s.message,
		Err:       s.err,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
		EndedAt:   s.endedAt,
	}
	if s.result != nil {
		r := s.result.Copy()
		snap.Result = &r
	}
	if len(s.anomalies) > 0 {
		snap.Anomalies = append([]Anomaly(nil), s.anomalies...)
	}
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}
