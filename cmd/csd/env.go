package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
	"github.com/thecloudstation/cloudstation-deployer/internal/config"
	"github.com/thecloudstation/cloudstation-deployer/pkg/api"
	events "github.com/thecloudstation/cloudstation-deployer/pkg/nats"
	"github.com/thecloudstation/cloudstation-deployer/pkg/orchestrator"
	"github.com/urfave/cli/v2"
)

const envKey = "csd.env"

// env is the per-invocation state built in Before
type env struct {
	cfg    *config.Config
	logger hclog.Logger
}

// loadEnv reads the configuration file and applies global flag overrides
func loadEnv(c *cli.Context, logger hclog.Logger) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("api-url") {
		cfg.APIURL = c.String("api-url")
	}
	if c.IsSet("token") {
		cfg.Token = c.String("token")
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded", "api_url", cfg.APIURL, "events", cfg.EventsEnabled())
	return &env{cfg: cfg, logger: logger}, nil
}

func getEnv(c *cli.Context) *env {
	if e, ok := c.App.Metadata[envKey].(*env); ok {
		return e
	}
	// Before did not run (e.g. a command invoked directly in tests)
	return &env{cfg: config.Default(), logger: hclog.NewNullLogger()}
}

func (e *env) apiClient() *api.Client {
	return api.NewClient(e.cfg.APIURL, e.cfg.Token, e.logger)
}

// orchestrator builds an orchestrator wired to the backend and, when
// configured, to the NATS event publisher. The returned func releases both.
func (e *env) orchestrator(reconcile bool) (*orchestrator.Orchestrator, func()) {
	orch := orchestrator.New(e.apiClient(), orchestrator.Config{
		Poller:           e.cfg.PollerSettings(),
		HistoryLimit:     e.cfg.History.Limit,
		DisableReconcile: !reconcile,
	}, e.logger)

	if !e.cfg.EventsEnabled() {
		return orch, orch.Close
	}

	publisher, err := events.NewClient(e.cfg.Events.Servers, e.cfg.Events.NKeySeed, e.cfg.Events.Prefix, e.logger)
	if err != nil {
		// Events are best effort; the deployment itself must not depend on them
		e.logger.Warn("session events disabled", "error", err)
		return orch, orch.Close
	}

	stop := orch.Observe(publisher.Observer())
	return orch, func() {
		orch.Close()
		stop()
		publisher.Close()
	}
}

// interactive reports whether w is a terminal that can host the TUI
func interactive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
