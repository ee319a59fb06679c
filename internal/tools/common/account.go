package common

import (
	"strings"

	"github.com/teemow/inboxagent/internal/server"
)

// Operator returns the mailbox the agent runs as. It labels tool metrics
// and audit records.
func Operator(sc *server.ServerContext) string {
	if sc == nil || sc.App() == nil {
		return ""
	}
	return sc.App().Config.Mailbox()
}

// StringArg returns a trimmed string argument, or "" when it is missing or
// not a string.
func StringArg(args map[string]interface{}, name string) string {
	v, ok := args[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// BoolArg returns a boolean argument, or def when it is missing.
func BoolArg(args map[string]interface{}, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}

// TargetArg renders the argument naming what a tool acts on for the audit
// trail. Arrays are joined with commas.
func TargetArg(args map[string]interface{}, name string) string {
	switch v := args[name].(type) {
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	}
	return ""
}
