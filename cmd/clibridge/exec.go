package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/deixis/clibridge/internal/aggregate"
	"github.com/deixis/clibridge/internal/report"
	"github.com/deixis/clibridge/internal/workflow"
)

func newExecCommand(cli *CLI) *cobra.Command {
	var (
		dialect string
		all     bool
		dir     string
	)
	cmd := &cobra.Command{
		Use:   "exec [flags] -- COMMAND [ARG...]",
		Short: "Run any command and aggregate its JSON event stream",
		Long: `Run an exact argument vector, stream its merged stdout and stderr, and print
the aggregated result as JSON. The dialect selects how records are read.`,
		Example: `  clibridge exec --dialect codex -- codex exec --json -- "review main.go"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := aggregate.ByName(dialect)
			if !ok {
				return fmt.Errorf("unknown dialect %q (want one of %s)", dialect, strings.Join(aggregate.Names(), ", "))
			}
			engine, err := cli.newEngine(nil)
			if err != nil {
				return err
			}
			res, err := engine.Invoke(cmd.Context(), workflow.Invocation{
				Tool:    d.Name,
				Argv:    args,
				Dir:     dir,
				Dialect: d,
			})
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res.Public(all)); err != nil {
				return err
			}
			if !res.Success {
				return errRunFailed{}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "codex", "output dialect: "+strings.Join(aggregate.Names(), ", "))
	cmd.Flags().BoolVar(&all, "all", false, "include every parsed record")
	cmd.Flags().StringVar(&dir, "cd", "", "working directory relative to the workspace")
	return cmd
}

func newAskCommand(cli *CLI) *cobra.Command {
	var (
		sessionID string
		model     string
		dir       string
		asJSON    bool
		all       bool
	)
	cmd := &cobra.Command{
		Use:       "ask codex|gemini|glm PROMPT",
		Short:     "Ask one of the bridged assistants from the command line",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{workflow.ToolCodex, workflow.ToolGemini, workflow.ToolGLM},
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cli.newEngine(nil)
			if err != nil {
				return err
			}

			tool, prompt := args[0], args[1]
			var inv workflow.Invocation
			switch tool {
			case workflow.ToolCodex:
				inv, err = engine.Codex(workflow.CodexRequest{
					Prompt:           prompt,
					Dir:              dir,
					SessionID:        sessionID,
					Model:            model,
					SkipGitRepoCheck: true,
				})
			case workflow.ToolGemini:
				inv, err = engine.Gemini(workflow.GeminiRequest{Prompt: prompt, Dir: dir, SessionID: sessionID, Model: model})
			case workflow.ToolGLM:
				inv, err = engine.GLM(workflow.GLMRequest{Prompt: prompt, Dir: dir, SessionID: sessionID, Model: model})
			default:
				return fmt.Errorf("unknown tool %q", tool)
			}
			if err != nil {
				return err
			}

			res, err := engine.Invoke(cmd.Context(), inv)
			if err != nil {
				return err
			}
			if asJSON || !isTTY() {
				if err := printJSON(cmd.OutOrStdout(), res.Public(all)); err != nil {
					return err
				}
			} else {
				printHuman(cmd.OutOrStdout(), res)
			}
			if !res.Success {
				return errRunFailed{}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an earlier session")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&dir, "cd", "", "working directory relative to the workspace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "include every parsed record in JSON output")
	return cmd
}

// isTTY reports whether stdout is a terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	green = color.New(color.FgGreen, color.Bold).SprintFunc()
	red   = color.New(color.FgRed, color.Bold).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

func printHuman(w io.Writer, res *report.RunResult) {
	if res.Success {
		fmt.Fprintln(w, green("OK"), gray(fmt.Sprintf("%s session %s, %dms", res.Tool, res.SessionID, res.DurationMS)))
		fmt.Fprintln(w)
		fmt.Fprintln(w, res.Result)
		return
	}
	fmt.Fprintln(w, red("FAIL"), gray(fmt.Sprintf("%s run %s, %dms", res.Tool, res.ID, res.DurationMS)))
	fmt.Fprintln(w)
	fmt.Fprintln(w, res.Error)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
