package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/thecloudstation/cloudstation-deployer/internal/tui"
	"github.com/thecloudstation/cloudstation-deployer/pkg/history"
	"github.com/thecloudstation/cloudstation-deployer/pkg/poller"
	"github.com/urfave/cli/v2"
)

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print the backend response as JSON"}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check whether the deployment backend is ready",
		Flags: []cli.Flag{jsonFlag()},
		Action: func(c *cli.Context) error {
			status, err := getEnv(c).apiClient().Status(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, status)
			}

			if !status.Ready {
				msg := "Backend not ready"
				if status.Message != "" {
					msg += ": " + status.Message
				}
				fmt.Fprintln(c.App.Writer, tui.RenderWarning(msg))
				return cli.Exit("", exitFailed)
			}
			fmt.Fprintln(c.App.Writer, tui.RenderSuccess("Backend ready"))
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent deployments",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Number of deployments to list (default: history.limit)"},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			e := getEnv(c)
			store := history.NewStore(e.apiClient(), e.cfg.History.Limit, e.logger)

			entries, err := store.List(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, entries)
			}
			fmt.Fprintln(c.App.Writer, tui.RenderHistory(entries))
			return nil
		},
	}
}

func infraCommand() *cli.Command {
	return &cli.Command{
		Name:      "infra",
		Usage:     "Show per-service status of a provisioned project",
		ArgsUsage: "<infra-project-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Poll until every service settles"},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			infraID := c.Args().First()
			if infraID == "" {
				return fmt.Errorf("infra project ID required\n\nUsage: csd infra <infra-project-id>")
			}

			e := getEnv(c)
			client := e.apiClient()

			if !c.Bool("watch") {
				status, err := client.InfraStatus(c.Context, infraID)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return writeJSON(c.App.Writer, status)
				}
				fmt.Fprintln(c.App.Writer, tui.RenderServices(&poller.View{
					InfraProjectID: infraID,
					Services:       status.Services,
					AllDeployed:    status.AllDeployed,
					HasFailure:     status.HasFailure,
				}))
				return nil
			}

			ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer cancel()
			p := poller.New(client, e.cfg.PollerSettings(), e.logger)

			var report poller.Report
			if c.Bool("json") || !interactive(c.App.Writer) {
				report = p.Run(ctx, infraID)
			} else {
				err := tui.RunSpinnerWithTask(fmt.Sprintf("Waiting for %s to settle...", infraID), func() (string, error) {
					report = p.Run(ctx, infraID)
					return string(report.Outcome), nil
				}, cancel)
				if err != nil {
					return err
				}
			}

			return printReport(c, report)
		},
	}
}

func printReport(c *cli.Context, report poller.Report) error {
	if c.Bool("json") {
		out := struct {
			InfraProjectID string       `json:"infraProjectId"`
			Outcome        string       `json:"outcome"`
			Attempts       int          `json:"attempts"`
			Final          *poller.View `json:"final,omitempty"`
			Error          string       `json:"error,omitempty"`
		}{
			InfraProjectID: report.InfraProjectID,
			Outcome:        string(report.Outcome),
			Attempts:       report.Attempts,
			Final:          report.Final,
		}
		if report.LastError != nil {
			out.Error = report.LastError.Error()
		}
		if err := writeJSON(c.App.Writer, out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(c.App.Writer, tui.RenderReport(report))
		if report.Final != nil {
			fmt.Fprintln(c.App.Writer, tui.RenderServices(report.Final))
		}
	}

	if report.Outcome == poller.OutcomeDegraded {
		return cli.Exit("", exitFailed)
	}
	return nil
}
