package logging

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const maxPayloadLogBytes = 8 << 10

// FormatHTTPPayload normalizes a request or response body for log output.
// JSON is re-indented, a JSON string literal is unquoted, oversized bodies
// are clipped.
func FormatHTTPPayload(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "<empty>"
	}

	var quoted string
	if err := json.Unmarshal([]byte(trimmed), &quoted); err == nil {
		trimmed = strings.TrimSpace(quoted)
	}
	if pretty, ok := prettyJSONText(trimmed); ok {
		trimmed = pretty
	}
	if len(trimmed) > maxPayloadLogBytes {
		cut := maxPayloadLogBytes
		for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
			cut--
		}
		return trimmed[:cut] + "...(truncated)"
	}
	return trimmed
}
