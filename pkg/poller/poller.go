// Package poller confirms final service health out-of-band by polling the
// backend's infrastructure status endpoint.
package poller

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/thecloudstation/cloudstation-deployer/pkg/api"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// Defaults applied when Config fields are zero
const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
	DefaultMaxDuration = 10 * time.Minute
)

// Outcome is how a reconciliation run ended
type Outcome string

const (
	// OutcomeHealthy means every known service is deployed
	OutcomeHealthy Outcome = "healthy"
	// OutcomeDegraded means every known service settled and at least one failed
	OutcomeDegraded Outcome = "degraded"
	// OutcomeUnknown means the attempt or time bound ran out first. The
	// deployment may still be succeeding slowly; this is not a failure.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeCancelled means the run was stopped by its owner
	OutcomeCancelled Outcome = "cancelled"
)

// StatusFetcher fetches the current infrastructure status. *api.Client satisfies it.
type StatusFetcher interface {
	InfraStatus(ctx context.Context, infraProjectID string) (*api.InfraStatus, error)
}

// View is one atomically-published poll result
type View struct {
	InfraProjectID string
	Services       map[string]deployment.ServiceStatus
	AllDeployed    bool
	HasFailure     bool
	Attempt        int
	CheckedAt      time.Time
}

// Converged reports whether every known service has settled
func (v *View) Converged() bool {
	if v == nil {
		return false
	}
	if v.AllDeployed {
		return true
	}
	if len(v.Services) == 0 {
		return false
	}
	for _, svc := range v.Services {
		if !svc.Settled() {
			return false
		}
	}
	return true
}

// Failed returns the names of failed services, sorted
func (v *View) Failed() []string {
	if v == nil {
		return nil
	}
	var names []string
	for name, svc := range v.Services {
		if svc.IsFailed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Report summarizes a finished reconciliation run
type Report struct {
	InfraProjectID string
	Outcome        Outcome
	Attempts       int
	Final          *View
	LastError      error
}

// Config bounds a Poller
type Config struct {
	Interval    time.Duration
	MaxAttempts int
	MaxDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return c
}

// Poller polls one infra project until its services converge or a bound is hit
type Poller struct {
	fetcher  StatusFetcher
	config   Config
	logger   hclog.Logger
	latest   atomic.Pointer[View]
	onUpdate func(*View)
	now      func() time.Time
}

// Option configures a Poller
type Option func(*Poller)

// WithUpdateHandler registers a callback invoked with every new view
func WithUpdateHandler(fn func(*View)) Option {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// New creates a Poller
func New(fetcher StatusFetcher, config Config, logger hclog.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	p := &Poller{
		fetcher: fetcher,
		config:  config.withDefaults(),
		logger:  logger.Named("poller"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Latest returns the most recent view, or nil before the first successful poll
func (p *Poller) Latest() *View {
	return p.latest.Load()
}

// Run polls until convergence, exhaustion of the attempt/time bound, or ctx
// cancellation. The first poll happens immediately; fetch errors count as
// attempts. The time bound also applies to a fetch in flight.
func (p *Poller) Run(ctx context.Context, infraProjectID string) Report {
	report := Report{InfraProjectID: infraProjectID, Outcome: OutcomeUnknown}
	if infraProjectID == "" {
		report.LastError = fmt.Errorf("infra project ID cannot be empty")
		return report
	}

	logger := p.logger.With("infra_project", infraProjectID)
	runCtx, cancel := context.WithTimeout(ctx, p.config.MaxDuration)
	defer cancel()
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// stopped settles the outcome once runCtx is done
	stopped := func() Report {
		if report.Final == nil {
			report.Final = p.Latest()
		}
		if ctx.Err() != nil {
			report.Outcome = OutcomeCancelled
			return report
		}
		logger.Warn("status unknown: time limit reached", "attempts", report.Attempts, "limit", p.config.MaxDuration)
		report.Outcome = OutcomeUnknown
		return report
	}

	for {
		report.Attempts++
		view, err := p.poll(runCtx, infraProjectID, report.Attempts)
		if err != nil {
			if runCtx.Err() != nil {
				return stopped()
			}
			report.LastError = err
			logger.Warn("status poll failed", "attempt", report.Attempts, "error", err)
		} else {
			report.Final = view
			if view.Converged() {
				report.Outcome = OutcomeHealthy
				if view.HasFailure || len(view.Failed()) > 0 {
					report.Outcome = OutcomeDegraded
				}
				logger.Info("services converged", "outcome", report.Outcome, "attempts", report.Attempts)
				return report
			}
		}

		if report.Attempts >= p.config.MaxAttempts {
			logger.Warn("status unknown: attempt limit reached", "attempts", report.Attempts)
			return report
		}

		select {
		case <-runCtx.Done():
			return stopped()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, infraProjectID string, attempt int) (*View, error) {
	status, err := p.fetcher.InfraStatus(ctx, infraProjectID)
	if err != nil {
		return nil, err
	}

	services := make(map[string]deployment.ServiceStatus, len(status.Services))
	for name, svc := range status.Services {
		services[name] = svc
	}

	view := &View{
		InfraProjectID: infraProjectID,
		Services:       services,
		AllDeployed:    status.AllDeployed,
		HasFailure:     status.HasFailure,
		Attempt:        attempt,
		CheckedAt:      p.now(),
	}
	p.latest.Store(view)

	p.logger.Debug("status polled", "infra_project", infraProjectID, "attempt", attempt, "services", len(services), "all_deployed", status.AllDeployed)
	if p.onUpdate != nil {
		p.onUpdate(view)
	}
	return view, nil
}
