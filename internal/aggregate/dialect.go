package aggregate

import "sort"

// TextRule extracts agent-message text from a record. ok is false for
// records that carry no agent text.
type TextRule func(rec Record) (text string, ok bool, err error)

// Dialect describes how one CLI's JSON event stream is read.
type Dialect struct {
	// Name tags diagnostics, e.g. "[codex error] ...".
	Name string
	// CompletionTypes are record types that end a turn.
	CompletionTypes []string
	// SessionKey is the top-level key holding the session identifier.
	SessionKey string
	Text       TextRule
	Rules      []Rule
}

// Codex reads `codex exec --json` output.
func Codex() Dialect {
	return Dialect{
		Name:            "codex",
		CompletionTypes: []string{"turn.completed"},
		SessionKey:      "thread_id",
		Text:            ItemText("agent_message"),
		Rules: []Rule{
			FailureRule(),
			ErrorRule(ReconnectNotice),
		},
	}
}

// ClaudeStream reads `claude -p --output-format stream-json` output.
func ClaudeStream() Dialect {
	return Dialect{
		Name:            "claude",
		CompletionTypes: []string{"result"},
		SessionKey:      "session_id",
		Text:            FieldText("result", "result"),
		Rules: []Rule{
			FailureRule(),
			ErrorRule(ReconnectNotice),
			FlagRule("is_error", "result", "subtype"),
		},
	}
}

// GeminiStream reads `gemini --output-format stream-json` output.
func GeminiStream() Dialect {
	return Dialect{
		Name:            "gemini",
		CompletionTypes: []string{"result"},
		SessionKey:      "session_id",
		Text:            RoleText("message", "assistant", "content"),
		Rules: []Rule{
			FailureRule(),
			ErrorRule(ReconnectNotice, WarningSeverity),
			StatusRule("result", "error"),
		},
	}
}

var dialects = map[string]func() Dialect{
	"codex":  Codex,
	"claude": ClaudeStream,
	"gemini": GeminiStream,
}

// ByName returns a registered dialect.
func ByName(name string) (Dialect, bool) {
	f, ok := dialects[name]
	if !ok {
		return Dialect{}, false
	}
	return f(), true
}

// Names lists the registered dialects.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for n := range dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ItemText reads item.text from records whose item.type is itemType.
func ItemText(itemType string) TextRule {
	return func(rec Record) (string, bool, error) {
		item, err := rec.Object("item")
		if err != nil {
			return "", false, err
		}
		typ, err := item.String("type")
		if err != nil {
			return "", false, err
		}
		if typ != itemType {
			return "", false, nil
		}
		text, err := item.String("text")
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	}
}

// FieldText reads field from records of recordType.
func FieldText(recordType, field string) TextRule {
	return func(rec Record) (string, bool, error) {
		typ, err := rec.Type()
		if err != nil || typ != recordType {
			return "", false, err
		}
		text, err := rec.String(field)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	}
}

// RoleText reads field from records of recordType whose role is role.
func RoleText(recordType, role, field string) TextRule {
	return func(rec Record) (string, bool, error) {
		typ, err := rec.Type()
		if err != nil || typ != recordType {
			return "", false, err
		}
		r, err := rec.String("role")
		if err != nil || r != role {
			return "", false, err
		}
		text, err := rec.String(field)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	}
}
