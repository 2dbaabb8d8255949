package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/clibridge/internal/report"
	"github.com/deixis/clibridge/internal/runner"
	"github.com/deixis/clibridge/internal/workflow"
)

type codexParams struct {
	Prompt            string   `json:"prompt" jsonschema:"the review task for Codex"`
	Cd                string   `json:"cd,omitempty" jsonschema:"working directory, absolute or relative to the workspace. Defaults to the workspace."`
	Sandbox           string   `json:"sandbox,omitempty" jsonschema:"sandbox policy: read-only (default), workspace-write or danger-full-access"`
	SessionID         string   `json:"session_id,omitempty" jsonschema:"session ID from an earlier codex result, to continue that conversation"`
	SkipGitRepoCheck  *bool    `json:"skip_git_repo_check,omitempty" jsonschema:"allow running outside a git repository. Default: true."`
	ReturnAllMessages bool     `json:"return_all_messages,omitempty" jsonschema:"include every parsed record in the result"`
	Image             []string `json:"image,omitempty" jsonschema:"image files to attach to the prompt"`
	Model             string   `json:"model,omitempty" jsonschema:"model override. Defaults to the Codex configuration."`
	Yolo              bool     `json:"yolo,omitempty" jsonschema:"run every command without approval, bypassing the sandbox"`
	Profile           string   `json:"profile,omitempty" jsonschema:"profile name from ~/.codex/config.toml"`
}

func (h *handler) codexHandler(ctx context.Context, req *mcp.CallToolRequest, params codexParams) (*mcp.CallToolResult, any, error) {
	// Default skip_git_repo_check=true when nil.
	skip := true
	if params.SkipGitRepoCheck != nil {
		skip = *params.SkipGitRepoCheck
	}
	inv, err := h.engine.Codex(workflow.CodexRequest{
		Prompt:           params.Prompt,
		Dir:              params.Cd,
		Sandbox:          params.Sandbox,
		SessionID:        params.SessionID,
		SkipGitRepoCheck: skip,
		Images:           params.Image,
		Model:            params.Model,
		Profile:          params.Profile,
		Yolo:             params.Yolo,
	})
	if err != nil {
		return errorResult(err.Error())
	}
	return h.invoke(ctx, req, inv, params.ReturnAllMessages)
}

type geminiParams struct {
	Prompt            string `json:"prompt" jsonschema:"the question or task for Gemini"`
	Cd                string `json:"cd,omitempty" jsonschema:"working directory relative to the workspace"`
	SessionID         string `json:"session_id,omitempty" jsonschema:"session ID from an earlier gemini result, to continue that conversation"`
	Model             string `json:"model,omitempty" jsonschema:"model override, e.g. gemini-2.5-pro"`
	Sandbox           bool   `json:"sandbox,omitempty" jsonschema:"run tools inside the Gemini sandbox"`
	Yolo              bool   `json:"yolo,omitempty" jsonschema:"approve every action automatically"`
	ReturnAllMessages bool   `json:"return_all_messages,omitempty" jsonschema:"include every parsed record in the result"`
}

func (h *handler) geminiHandler(ctx context.Context, req *mcp.CallToolRequest, params geminiParams) (*mcp.CallToolResult, any, error) {
	inv, err := h.engine.Gemini(workflow.GeminiRequest{
		Prompt:    params.Prompt,
		Dir:       params.Cd,
		SessionID: params.SessionID,
		Model:     params.Model,
		Sandbox:   params.Sandbox,
		Yolo:      params.Yolo,
	})
	if err != nil {
		return errorResult(err.Error())
	}
	return h.invoke(ctx, req, inv, params.ReturnAllMessages)
}

type glmParams struct {
	Prompt            string `json:"prompt" jsonschema:"the coding task for GLM"`
	Cd                string `json:"cd,omitempty" jsonschema:"working directory relative to the workspace"`
	SessionID         string `json:"session_id,omitempty" jsonschema:"session ID from an earlier glm result, to continue that conversation"`
	Model             string `json:"model,omitempty" jsonschema:"model override, e.g. glm-4.6"`
	PermissionMode    string `json:"permission_mode,omitempty" jsonschema:"default, acceptEdits, bypassPermissions or plan"`
	ReturnAllMessages bool   `json:"return_all_messages,omitempty" jsonschema:"include every parsed record in the result"`
}

func (h *handler) glmHandler(ctx context.Context, req *mcp.CallToolRequest, params glmParams) (*mcp.CallToolResult, any, error) {
	inv, err := h.engine.GLM(workflow.GLMRequest{
		Prompt:         params.Prompt,
		Dir:            params.Cd,
		SessionID:      params.SessionID,
		Model:          params.Model,
		PermissionMode: params.PermissionMode,
	})
	if err != nil {
		return errorResult(err.Error())
	}
	return h.invoke(ctx, req, inv, params.ReturnAllMessages)
}

// invoke runs inv and converts the outcome to a tool result.
func (h *handler) invoke(ctx context.Context, req *mcp.CallToolRequest, inv workflow.Invocation, includeRecords bool) (*mcp.CallToolResult, any, error) {
	inv.Progress = h.progress(ctx, req)

	res, err := h.engine.Invoke(ctx, inv)
	if err != nil {
		var nf *runner.CommandNotFoundError
		if errors.As(err, &nf) {
			return jsonResult(map[string]any{
				"tool":    inv.Tool,
				"success": false,
				"error":   nf.Error(),
			}, true)
		}
		return errorResult(fmt.Sprintf("%s failed: %v", inv.Tool, err))
	}
	return jsonResult(res.Public(includeRecords), !res.Success)
}

// progress returns a callback that forwards each output line as a
// progress notification, or nil when the client sent no progress token.
func (h *handler) progress(ctx context.Context, req *mcp.CallToolRequest) func(int, string) {
	if req == nil || req.Params == nil || req.Session == nil {
		return nil
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return nil
	}
	session := req.Session
	return func(n int, line string) {
		err := session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: token,
			Progress:      float64(n),
			Message:       describeLine(line),
		})
		if err != nil {
			h.log.Debug("progress notification", "line", n, "error", err)
		}
	}
}

// describeLine names a line by its record type, e.g.
// "item.completed/agent_message", or "text" when it is not a record.
func describeLine(line string) string {
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil || rec == nil {
		return "text"
	}
	typ := report.RecordType(rec)
	if typ == "" {
		typ = "record"
	}
	if item := report.ItemType(rec); item != "" {
		typ += "/" + item
	}
	return typ
}

// jsonResult returns v as structured content and as indented JSON text.
func jsonResult(v any, isError bool) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encoding result: %v", err))
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
		StructuredContent: v,
		IsError:           isError,
	}, nil, nil
}
