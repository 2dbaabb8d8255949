package runner

import "time"

// EndReason records why the line stream ended.
type EndReason string

const (
	EndCompletion EndReason = "completion" // completion marker seen
	EndExited     EndReason = "exited"     // process exited and reader finished
	EndCancelled  EndReason = "cancelled"  // caller context done
	EndAborted    EndReason = "aborted"    // consumer closed the stream early
)

// Stage records how far the shutdown ladder had to go.
type Stage string

const (
	StageNatural    Stage = "natural"    // exited on its own
	StageTerminated Stage = "terminated" // exited after SIGTERM
	StageKilled     Stage = "killed"     // required SIGKILL
)

// Summary describes a finished stream.
type Summary struct {
	RunID    string        `json:"run_id"`
	Reason   EndReason     `json:"reason"`
	Shutdown Stage         `json:"shutdown"`
	ExitCode int           `json:"exit_code"` // informational; -1 if killed by a signal
	Lines    int           `json:"lines"`
	Duration time.Duration `json:"duration"`
}
