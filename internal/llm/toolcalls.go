package llm

import (
	"fmt"
	"strings"
)

// MaxToolNameLength bounds sanitized tool names; discovered tools with longer
// names are truncated so every backend accepts them.
const MaxToolNameLength = 64

// NormalizeFunctionCallIDs ensures every function call has a stable identifier.
// Some providers occasionally omit call IDs, which breaks the pairing between
// calls and responses downstream.
func NormalizeFunctionCallIDs(calls []FunctionCall) []FunctionCall {
	for i := range calls {
		id := strings.TrimSpace(calls[i].ID)
		if id == "" {
			if name := SanitizeToolName(calls[i].Name); name != "" {
				id = fmt.Sprintf("call_%s_%d", name, i+1)
			} else {
				id = fmt.Sprintf("call_%d", i+1)
			}
		}
		calls[i].ID = id
	}
	return calls
}

// SanitizeToolName lowercases a name and reduces it to [a-z0-9_], collapsing
// runs of other characters into single underscores and capping the length at
// MaxToolNameLength.
func SanitizeToolName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}

	result := strings.Trim(b.String(), "_")
	if len(result) > MaxToolNameLength {
		result = strings.Trim(result[:MaxToolNameLength], "_")
	}
	return result
}
