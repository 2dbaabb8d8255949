// Package aggregate folds the line stream of one CLI invocation into a
// single verdict: accumulated agent text, the session identifier, every
// parsed record and a diagnostic explaining any failure.
package aggregate

import (
	"fmt"
	"iter"
	"maps"
	"strings"
)

// State is the lifecycle of an Aggregator.
type State int

const (
	StateNotStarted State = iota
	StateStreaming
	StateAborted // a processing fault stopped consumption
	StateFinalized
)

// Outcome is the finalized verdict of one invocation.
type Outcome struct {
	Success   bool
	Result    string // agent text; empty unless Success
	SessionID string
	Error     string // diagnostics; empty when Success
	Records   []map[string]any

	Fatal       bool
	Aborted     bool
	ParseErrors int
}

// Aggregator consumes lines for one invocation. It is not safe for
// concurrent use.
type Aggregator struct {
	dialect Dialect
	state   State

	records     []map[string]any
	text        strings.Builder
	sessionID   string
	hasSession  bool
	fatal       bool
	aborted     bool
	parseErrors int
	diags       []string

	outcome *Outcome
}

// New returns an Aggregator reading the given dialect.
func New(d Dialect) *Aggregator {
	return &Aggregator{dialect: d}
}

// State returns the current lifecycle state.
func (a *Aggregator) State() State {
	return a.state
}

// Add processes one line. It returns false when no further lines should
// be consumed: after a processing fault, or once finalized.
func (a *Aggregator) Add(line string) bool {
	switch a.state {
	case StateAborted, StateFinalized:
		return false
	}
	a.state = StateStreaming

	if strings.TrimSpace(line) == "" {
		return true
	}
	if err := a.process(line); err != nil {
		a.fatal = true
		a.aborted = true
		a.diags = append(a.diags, fmt.Sprintf("[unexpected error] %v. Line: %q", err, line))
		a.state = StateAborted
		return false
	}
	return true
}

// Fail records a fatal condition raised outside the stream, such as the
// caller's deadline expiring. It has no effect once finalized.
func (a *Aggregator) Fail(reason string) {
	if a.state == StateFinalized {
		return
	}
	a.fatal = true
	a.diags = append(a.diags, reason)
}

func (a *Aggregator) process(line string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	v, perr := decode(line)
	if perr != nil {
		// Progress text between records is expected from some CLIs.
		a.parseErrors++
		a.diags = append(a.diags, "[parse error] "+line)
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("record is %s, not an object", jsonKind(v))
	}
	rec := Record(obj)
	a.records = append(a.records, obj)

	if a.dialect.Text != nil {
		text, ok, err := a.dialect.Text(rec)
		if err != nil {
			return err
		}
		if ok {
			a.text.WriteString(text)
		}
	}

	if key := a.dialect.SessionKey; key != "" {
		id, ok, err := rec.LookupString(key)
		if err != nil {
			return err
		}
		if ok {
			a.sessionID = id
			a.hasSession = true
		}
	}

	for _, rule := range a.dialect.Rules {
		v, err := rule.Classify(rec)
		if err != nil {
			return fmt.Errorf("%s rule: %w", rule.Name, err)
		}
		if v.Signal == SignalFatal {
			a.fatal = true
			a.diags = append(a.diags, fmt.Sprintf("[%s error] %s", a.dialect.Name, v.Detail))
		}
	}
	return nil
}

// Finalize computes the verdict. The run succeeds only when no fatal
// signal was seen, a session id was captured and agent text is non-empty.
// Each failed condition prefixes the diagnostics with an explanation.
// Calling Finalize again returns an equal Outcome.
func (a *Aggregator) Finalize() Outcome {
	if a.outcome != nil {
		return a.outcome.clone()
	}

	success := true
	var prefixes []string
	if a.text.Len() == 0 {
		success = false
		prefixes = append(prefixes, "no agent message was received; set return_all_messages=true to inspect the raw records.")
	}
	if !a.hasSession {
		success = false
		prefixes = append(prefixes, "no session id was captured.")
	}
	if a.fatal {
		success = false
		prefixes = append(prefixes, fmt.Sprintf("%s reported an error.", a.dialect.Name))
	}

	o := Outcome{
		Success:     success,
		SessionID:   a.sessionID,
		Records:     a.records,
		Fatal:       a.fatal,
		Aborted:     a.aborted,
		ParseErrors: a.parseErrors,
	}
	if success {
		o.Result = a.text.String()
	} else {
		o.Error = strings.Join(append(prefixes, a.diags...), "\n\n")
	}

	a.state = StateFinalized
	a.outcome = &o
	return o.clone()
}

func (o *Outcome) clone() Outcome {
	out := *o
	if o.Records != nil {
		out.Records = make([]map[string]any, len(o.Records))
		for i, r := range o.Records {
			out.Records[i] = maps.Clone(r)
		}
	}
	return out
}

// Collect feeds lines to a new Aggregator until the sequence ends or a
// processing fault stops consumption, then finalizes.
func Collect(lines iter.Seq[string], d Dialect) Outcome {
	a := New(d)
	for line := range lines {
		if !a.Add(line) {
			break
		}
	}
	return a.Finalize()
}
