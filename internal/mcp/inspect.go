package mcp

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/clibridge/internal/report"
)

type inspectParams struct {
	RunID string `json:"run_id" jsonschema:"the run_id from a codex, gemini or glm result"`
	Type  string `json:"type,omitempty" jsonschema:"record type filter: exact type (turn.completed), prefix ending in '.' (item.), or nested item type (item:agent_message). Defaults to all records."`
	Limit int    `json:"limit,omitempty" jsonschema:"return at most this many records, from the end of the run. Defaults to all."`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	if params.Limit < 0 {
		return errorResult("limit must not be negative")
	}

	result, err := h.engine.Store().Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("Failed to load run %s: no result is stored under this id", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	records := report.FilterRecords(result, params.Type)
	total := len(records)
	if params.Limit > 0 && total > params.Limit {
		records = records[total-params.Limit:]
	}

	return jsonResult(inspectReply{
		RunID:   result.ID,
		Tool:    result.Tool,
		Success: result.Success,
		Summary: formatInspectSummary(result, params.Type, total),
		Counts:  report.CountByType(result),
		Records: records,
	}, false)
}

type inspectReply struct {
	RunID   string           `json:"run_id"`
	Tool    string           `json:"tool"`
	Success bool             `json:"success"`
	Summary string           `json:"summary"`
	Counts  map[string]int   `json:"counts"`
	Records []map[string]any `json:"records"`
}

func formatInspectSummary(result *report.RunResult, typ string, matched int) string {
	var b strings.Builder

	status := "FAIL"
	if result.Success {
		status = "OK"
	}
	fmt.Fprintf(&b, "Run: %s (%s, %s)", result.ID, result.Tool, status)

	if typ == "" {
		fmt.Fprintf(&b, ", %d records", len(result.AllRecords))
	} else {
		fmt.Fprintf(&b, ", %d of %d records match %q", matched, len(result.AllRecords), typ)
	}

	counts := report.CountByType(result)
	if len(counts) > 0 {
		parts := make([]string, 0, len(counts))
		for _, t := range slices.Sorted(maps.Keys(counts)) {
			parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	return b.String()
}
