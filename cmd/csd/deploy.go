package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thecloudstation/cloudstation-deployer/internal/tui"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
	"github.com/thecloudstation/cloudstation-deployer/pkg/orchestrator"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
	"github.com/urfave/cli/v2"
)

// Exit codes
const (
	exitFailed    = 1
	exitAbandoned = 130
)

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "plain",
			Usage: "Print plain progress lines instead of the interactive view",
		},
		&cli.BoolFlag{
			Name:  "reconcile",
			Value: true,
			Usage: "Poll service health after the stream ends (--reconcile=false to skip)",
		},
	}
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Start a new deployment and follow its progress",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "project-id", Usage: "Project to deploy"},
			&cli.StringFlag{Name: "name", Usage: "Project name"},
			&cli.StringFlag{Name: "admin-email", Usage: "Administrator email for the provisioned services"},
			&cli.StringFlag{Name: "kind", Value: string(deployment.AppKindWebsite), Usage: "App kind (website, app, tool)"},
		}, sessionFlags()...),
		Action: func(c *cli.Context) error {
			req := deployment.DeploymentRequest{
				ProjectID:   c.String("project-id"),
				ProjectName: c.String("name"),
				AdminEmail:  c.String("admin-email"),
				AppKind:     deployment.AppKind(c.String("kind")),
			}

			if err := req.Validate(); err != nil {
				if c.Bool("plain") || !interactive(c.App.Writer) {
					return err
				}
				filled, ok, err := tui.RunRequestForm(req)
				if err != nil {
					return err
				}
				if !ok {
					return cli.Exit("cancelled", exitAbandoned)
				}
				req = filled
			}

			e := getEnv(c)
			orch, cleanup := e.orchestrator(c.Bool("reconcile"))
			defer cleanup()

			return runSession(c, sessionRun{
				title: fmt.Sprintf("Deploying %s", req.ProjectName),
				start: func(ctx context.Context) (*orchestrator.Handle, error) {
					return orch.Trigger(ctx, req)
				},
				orch: orch,
			})
		},
	}
}

func redeployCommand() *cli.Command {
	return &cli.Command{
		Name:      "redeploy",
		Usage:     "Redeploy an existing infra project",
		ArgsUsage: "[infra-project-id]",
		Flags:     sessionFlags(),
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			orch, cleanup := e.orchestrator(c.Bool("reconcile"))
			defer cleanup()

			infraID := c.Args().First()
			if infraID == "" {
				if c.Bool("plain") || !interactive(c.App.Writer) {
					return fmt.Errorf("infra project ID required\n\nUsage: csd redeploy <infra-project-id>")
				}
				entries, err := orch.History().List(c.Context, 0)
				if err != nil {
					return err
				}
				entry, ok, err := tui.RunPicker(entries)
				if err != nil {
					return err
				}
				if !ok {
					return cli.Exit("cancelled", exitAbandoned)
				}
				infraID = entry.InfraProjectID
			}

			return runSession(c, sessionRun{
				title: fmt.Sprintf("Redeploying %s", infraID),
				hint:  "csd redeploy " + infraID,
				start: func(ctx context.Context) (*orchestrator.Handle, error) {
					return orch.Redeploy(ctx, infraID)
				},
				orch: orch,
			})
		},
	}
}

type sessionRun struct {
	title string
	hint  string
	start func(ctx context.Context) (*orchestrator.Handle, error)
	orch  *orchestrator.Orchestrator
}

type startResult struct {
	handle *orchestrator.Handle
	err    error
}

// runSession starts a session, renders it until terminal, then waits for
// reconciliation. SIGINT/SIGTERM abandon the session.
func runSession(c *cli.Context, run sessionRun) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	plain := c.Bool("plain") || !interactive(c.App.Writer)

	var (
		h   *orchestrator.Handle
		err error
	)
	if plain {
		h, err = followPlain(ctx, c, run)
	} else {
		h, err = followInteractive(ctx, c, run, cancel)
	}
	if err != nil {
		return err
	}

	snap, _ := h.Wait(context.Background())
	if errors.Is(snap.Err, orchestrator.ErrAbandoned) {
		return cli.Exit("", exitAbandoned)
	}

	if h.Reconciling() {
		if err := awaitReconcile(c, h, plain); err != nil {
			return err
		}
	}

	if snap.Phase != deployment.PhaseComplete {
		return cli.Exit("", exitFailed)
	}
	return nil
}

func followPlain(ctx context.Context, c *cli.Context, run sessionRun) (*orchestrator.Handle, error) {
	printer := tui.NewPrinter(c.App.Writer, run.hint)
	stop := run.orch.Observe(printer.Observe)
	defer stop()

	fmt.Fprintln(c.App.Writer, run.title)
	h, err := run.start(ctx)
	if err != nil {
		// The failed session has already been printed
		return nil, startExit(err)
	}
	<-h.Done()
	return h, nil
}

// startExit maps a failed start to the session's exit code
func startExit(err error) error {
	if errors.Is(err, orchestrator.ErrAbandoned) {
		return cli.Exit("", exitAbandoned)
	}
	return cli.Exit("", exitFailed)
}

func followInteractive(ctx context.Context, c *cli.Context, run sessionRun, abandon func()) (*orchestrator.Handle, error) {
	started := make(chan startResult, 1)
	model := tui.NewDeployModel(run.title,
		tui.WithStarter(func() error {
			h, err := run.start(ctx)
			started <- startResult{handle: h, err: err}
			return err
		}),
		tui.WithAbandonHandler(abandon),
		tui.WithRedeployHint(run.hint),
	)

	var stop func()
	final, err := tui.RunDeploy(model, func(send func(deployment.Snapshot)) {
		stop = run.orch.Observe(send)
	})
	if stop != nil {
		defer stop()
	}
	if err != nil {
		abandon()
		return nil, err
	}

	res := <-started
	if res.err != nil {
		return nil, startExit(res.err)
	}
	if final.Abandoned() {
		res.handle.Abandon()
	}
	return res.handle, nil
}

func awaitReconcile(c *cli.Context, h *orchestrator.Handle, plain bool) error {
	if plain {
		fmt.Fprintln(c.App.Writer, "Confirming service health...")
		if report, ok := <-h.Reconciled(); ok {
			tui.NewPrinter(c.App.Writer, "").Report(report)
		}
		return nil
	}

	var report poller.Report
	var received bool
	err := tui.RunSpinnerWithTask("Confirming service health...", func() (string, error) {
		report, received = <-h.Reconciled()
		return "Health check finished", nil
	}, h.Abandon)
	if err != nil {
		return err
	}

	if received {
		fmt.Fprintln(c.App.Writer, tui.RenderReport(report))
		if report.Final != nil {
			fmt.Fprintln(c.App.Writer, tui.RenderServices(report.Final))
		}
	}
	return nil
}
