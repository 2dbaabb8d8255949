package aggregate

import (
	"regexp"
	"strings"
)

// Signal is the classification of a single record.
type Signal int

const (
	SignalNone      Signal = iota // not an error record
	SignalTransient               // error-shaped but harmless, e.g. a reconnect notice
	SignalFatal                   // the invocation failed
)

func (s Signal) String() string {
	switch s {
	case SignalTransient:
		return "transient"
	case SignalFatal:
		return "fatal"
	default:
		return "none"
	}
}

// Verdict is the outcome of one rule applied to one record.
type Verdict struct {
	Signal Signal
	Detail string
}

// Rule classifies records. Every rule in a dialect is evaluated against
// every record; a fatal verdict from any rule fails the run. An error
// from Classify is a processing fault and stops consumption.
type Rule struct {
	Name     string
	Classify func(Record) (Verdict, error)
}

// Transient reports whether an error record with the given message is a
// harmless notice rather than a failure.
type Transient func(rec Record, message string) bool

var reconnectPattern = regexp.MustCompile(`^Reconnecting\.\.\.\s+\d+/\d+\n?$`)

// ReconnectNotice matches "Reconnecting... <n>/<m>" retry notices, with or
// without one trailing newline.
func ReconnectNotice(_ Record, message string) bool {
	return reconnectPattern.MatchString(message)
}

// WarningSeverity matches error records that carry severity "warning".
func WarningSeverity(rec Record, _ string) bool {
	sev, err := rec.String("severity")
	return err == nil && sev == "warning"
}

// FailureRule marks records whose type contains "fail" as fatal and
// reports their error.message.
func FailureRule() Rule {
	return Rule{
		Name: "failure",
		Classify: func(rec Record) (Verdict, error) {
			typ, err := rec.Type()
			if err != nil {
				return Verdict{}, err
			}
			if !strings.Contains(typ, "fail") {
				return Verdict{}, nil
			}
			msg, err := rec.nestedString("error", "message")
			if err != nil {
				return Verdict{}, err
			}
			return Verdict{Signal: SignalFatal, Detail: msg}, nil
		},
	}
}

// ErrorRule marks records whose type contains "error" as fatal unless
// their message matches one of the transient predicates. A missing
// message is fatal.
func ErrorRule(transient ...Transient) Rule {
	return Rule{
		Name: "error",
		Classify: func(rec Record) (Verdict, error) {
			typ, err := rec.Type()
			if err != nil {
				return Verdict{}, err
			}
			if !strings.Contains(typ, "error") {
				return Verdict{}, nil
			}
			msg, err := rec.String("message")
			if err != nil {
				return Verdict{}, err
			}
			for _, t := range transient {
				if t(rec, msg) {
					return Verdict{Signal: SignalTransient, Detail: msg}, nil
				}
			}
			if msg == "" {
				// Some CLIs nest the text under error.message.
				if nested, nerr := rec.nestedString("error", "message"); nerr == nil {
					msg = nested
				}
			}
			return Verdict{Signal: SignalFatal, Detail: msg}, nil
		},
	}
}

// FlagRule marks records with a true boolean key as fatal, reporting the
// first non-empty string among detailKeys.
func FlagRule(key string, detailKeys ...string) Rule {
	return Rule{
		Name: key,
		Classify: func(rec Record) (Verdict, error) {
			set, err := rec.Bool(key)
			if err != nil || !set {
				return Verdict{}, err
			}
			return Verdict{Signal: SignalFatal, Detail: firstString(rec, detailKeys)}, nil
		},
	}
}

// StatusRule marks records of recordType whose status equals failed as
// fatal, reporting error.message.
func StatusRule(recordType, failed string) Rule {
	return Rule{
		Name: "status",
		Classify: func(rec Record) (Verdict, error) {
			typ, err := rec.Type()
			if err != nil || typ != recordType {
				return Verdict{}, err
			}
			status, err := rec.String("status")
			if err != nil || status != failed {
				return Verdict{}, err
			}
			msg, err := rec.nestedString("error", "message")
			if err != nil {
				return Verdict{}, err
			}
			return Verdict{Signal: SignalFatal, Detail: msg}, nil
		},
	}
}

func firstString(rec Record, keys []string) string {
	for _, k := range keys {
		if s, err := rec.String(k); err == nil && s != "" {
			return s
		}
	}
	return ""
}
