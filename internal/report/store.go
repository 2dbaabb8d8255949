// Package report defines the structured outcome of a CLI invocation and
// provides persistence and retrieval of past outcomes.
package report

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult is the terminal outcome of one invocation. It is built once
// the output stream has been drained and is not mutated afterwards;
// callers share copies.
type RunResult struct {
	ID   string `json:"run_id"`
	Tool string `json:"tool"`

	Success    bool             `json:"success"`
	Result     string           `json:"result,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	Error      string           `json:"error,omitempty"`
	AllRecords []map[string]any `json:"all_records,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Shutdown   string    `json:"shutdown,omitempty"` // natural, terminated or killed
}

// Public returns the copy handed back to callers. The record list is only
// included when includeRecords is set.
func (r *RunResult) Public(includeRecords bool) *RunResult {
	out := *r
	if includeRecords {
		out.AllRecords = slices.Clone(r.AllRecords)
	} else {
		out.AllRecords = nil
	}
	return &out
}

// RecordType returns the "type" field of a record, or "" if absent.
func RecordType(rec map[string]any) string {
	t, _ := rec["type"].(string)
	return t
}

// ItemType returns the nested "item.type" field of a record, or "".
func ItemType(rec map[string]any) string {
	item, _ := rec["item"].(map[string]any)
	t, _ := item["type"].(string)
	return t
}

// FilterRecords returns the stored records matching typ. An empty typ
// returns every record. A typ ending in "." matches by prefix, and a typ
// of the form "item:<type>" matches the nested item type instead.
func FilterRecords(result *RunResult, typ string) []map[string]any {
	if typ == "" {
		return cloneRecords(result.AllRecords)
	}

	match := func(rec map[string]any) bool {
		field, want := RecordType(rec), typ
		if it, ok := strings.CutPrefix(typ, "item:"); ok {
			field, want = ItemType(rec), it
		}
		if strings.HasSuffix(want, ".") {
			return strings.HasPrefix(field, want)
		}
		return field == want
	}

	var out []map[string]any
	for _, rec := range result.AllRecords {
		if match(rec) {
			out = append(out, maps.Clone(rec))
		}
	}
	return out
}

// CountByType tallies stored records by their type.
func CountByType(result *RunResult) map[string]int {
	counts := make(map[string]int)
	for _, rec := range result.AllRecords {
		t := RecordType(rec)
		if t == "" {
			t = "(untyped)"
		}
		counts[t]++
	}
	return counts
}

func cloneRecords(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, rec := range in {
		out[i] = maps.Clone(rec)
	}
	return out
}
