package runner

import (
	"fmt"
	"strings"
)

// CommandNotFoundError is returned when an executable cannot be found on
// the search path. No process has been started when it is returned.
type CommandNotFoundError struct {
	Name string
	// Hint is an optional install instruction appended to the message.
	Hint string
	Err  error
}

func (e *CommandNotFoundError) Error() string {
	var b strings.Builder
	if e.Name == "" {
		b.WriteString("command not found: empty executable name")
	} else {
		fmt.Fprintf(&b, "%s not found on PATH", e.Name)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, "\n\n%s", e.Hint)
	}
	return b.String()
}

func (e *CommandNotFoundError) Unwrap() error {
	return e.Err
}
