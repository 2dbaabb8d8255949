// Command clibridge exposes external AI command-line tools as MCP tools.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deixis/clibridge"
	"github.com/deixis/clibridge/internal/config"
	"github.com/deixis/clibridge/internal/metrics"
	"github.com/deixis/clibridge/internal/workflow"
)

// CLI holds state shared by all commands.
type CLI struct {
	logLevel  string
	workspace string

	log *slog.Logger
}

func main() {
	cli := &CLI{}
	root := &cobra.Command{
		Use:           "clibridge",
		Short:         "Bridge Codex, Gemini and GLM command-line assistants to MCP",
		Version:       clibridge.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.initLogger()
		},
	}
	root.PersistentFlags().StringVar(&cli.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&cli.workspace, "workspace", "w", "", "workspace root (default: current directory)")

	root.AddCommand(newMCPCommand(cli))
	root.AddCommand(newExecCommand(cli))
	root.AddCommand(newAskCommand(cli))
	root.AddCommand(newVersionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "clibridge: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// initLogger writes structured logs to stderr; stdout carries the MCP
// stdio transport and command results.
func (c *CLI) initLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.logLevel))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", c.logLevel, err)
	}
	c.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// newEngine loads the workspace configuration and builds an engine.
func (c *CLI) newEngine(m *metrics.Metrics) (*workflow.Engine, error) {
	workspace := c.workspace
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining workspace: %w", err)
		}
		workspace = wd
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if loaded.Path != "" {
		c.log.Debug("config loaded", "path", loaded.Path)
	}

	return workflow.New(loaded.Config, workspace, workflow.Options{
		Metrics: m,
		Log:     c.log,
	}), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), clibridge.Version)
		},
	}
}

// errRunFailed marks a run that completed without success. The result has
// already been printed.
type errRunFailed struct{}

func (errRunFailed) Error() string { return "run failed" }

func exitCode(err error) int {
	if _, ok := err.(errRunFailed); ok {
		return 1
	}
	return 2
}
