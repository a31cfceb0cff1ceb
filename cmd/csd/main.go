package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"
)

// Version is set at build time via ldflags
// Example: go build -ldflags "-X main.Version=1.0.0" ./cmd/csd
var Version = "v0.1.0"

// reorderArgs moves flags after positional arguments to before them within subcommands
// This allows: csd redeploy infra_123 --plain
// To work like: csd redeploy --plain infra_123
func reorderArgs(args []string) []string {
	if len(args) <= 1 {
		return args
	}

	commands := map[string]bool{
		"deploy": true, "redeploy": true, "status": true,
		"history": true, "infra": true, "help": true, "h": true,
	}

	// Known flags that take a value
	valuedFlags := map[string]bool{
		"--config": true, "-c": true,
		"--api-url": true, "--log-level": true, "--token": true,
		"--project-id": true, "--name": true, "--admin-email": true, "--kind": true,
		"--limit": true,
	}

	result := make([]string, 0, len(args))
	result = append(result, args[0])

	// Global flags and the command name stay in place
	i := 1
	for ; i < len(args); i++ {
		arg := args[i]
		result = append(result, arg)
		if commands[arg] {
			i++
			break
		}
		if valuedFlags[arg] && i+1 < len(args) {
			i++
			result = append(result, args[i])
		}
	}

	var flags []string
	var positional []string
	for ; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i:]...)
			break
		}
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if valuedFlags[arg] && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		positional = append(positional, arg)
	}

	result = append(result, flags...)
	return append(result, positional...)
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "csd",
		Usage:                  "Trigger deployments and follow their progress",
		Version:                Version,
		UseShortOptionHandling: true,
		EnableBashCompletion:   true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default: ./csd.hcl if present)",
				EnvVars: []string{"CSD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"CSD_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "api-url",
				Usage:   "Deployment backend URL (overrides api_url)",
				EnvVars: []string{"CSD_API_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token for the backend (overrides token)",
				EnvVars: []string{"CSD_TOKEN"},
			},
		},
		Commands: []*cli.Command{
			deployCommand(),
			redeployCommand(),
			statusCommand(),
			historyCommand(),
			infraCommand(),
		},
		Before: func(c *cli.Context) error {
			logger := hclog.New(&hclog.LoggerOptions{
				Name:   "csd",
				Level:  hclog.LevelFromString(c.String("log-level")),
				Output: c.App.ErrWriter,
				Color:  hclog.AutoColor,
			})
			hclog.SetDefault(logger)

			env, err := loadEnv(c, logger)
			if err != nil {
				return err
			}
			c.App.Metadata = map[string]interface{}{envKey: env}
			return nil
		},
		// Exit codes are applied by main so the app stays usable in tests
		ExitErrHandler: func(c *cli.Context, err error) {},
	}
}

func main() {
	app := newApp()
	if err := app.Run(reorderArgs(os.Args)); err != nil {
		code := 1
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", msg)
		}
		os.Exit(code)
	}
}
