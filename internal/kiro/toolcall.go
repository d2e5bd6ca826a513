package kiro

import (
	"encoding/json"
	"strings"
)

const (
	toolCallOpenPrefix  = "[tool_call:"
	toolCallOpenSuffix  = "]"
	toolCallClosePrefix = "[/tool_call]"
)

// RecoveredToolCall is an inline pseudo-syntax tool call the model emitted
// as plain text instead of a structured tool_use block.
type RecoveredToolCall struct {
	Name  string
	Input json.RawMessage
}

// recoverToolCalls scans text for `[tool_call:NAME]{...json...}[/tool_call]`
// spans and returns the remaining plain text with those spans removed,
// alongside the calls recovered from them. Malformed spans (no matching
// close tag, or non-JSON argument body) are left in the text untouched,
// since failing to recognize a span is safer than silently dropping text
// the model intended the user to see.
func recoverToolCalls(text string) (string, []RecoveredToolCall) {
	var calls []RecoveredToolCall
	var out strings.Builder

	lowerText := strings.ToLower(text)
	pos := 0
	for {
		openIdx := strings.Index(lowerText[pos:], toolCallOpenPrefix)
		if openIdx == -1 {
			out.WriteString(text[pos:])
			break
		}
		openIdx += pos
		nameEnd := strings.Index(lowerText[openIdx+len(toolCallOpenPrefix):], toolCallOpenSuffix)
		if nameEnd == -1 {
			out.WriteString(text[pos:])
			break
		}
		nameEnd += openIdx + len(toolCallOpenPrefix)
		name := strings.TrimSpace(text[openIdx+len(toolCallOpenPrefix) : nameEnd])

		closeIdx := strings.Index(lowerText[nameEnd+1:], toolCallClosePrefix)
		if closeIdx == -1 {
			out.WriteString(text[pos:])
			break
		}
		closeIdx += nameEnd + 1

		argsText := strings.TrimSpace(text[nameEnd+1 : closeIdx])
		var raw json.RawMessage
		if argsText == "" {
			raw = json.RawMessage("{}")
		} else if json.Valid([]byte(argsText)) {
			raw = json.RawMessage(argsText)
		} else {
			// Not a recognizable call; keep the whole span as literal text.
			out.WriteString(text[pos : closeIdx+len(toolCallClosePrefix)])
			pos = closeIdx + len(toolCallClosePrefix)
			continue
		}

		out.WriteString(text[pos:openIdx])
		calls = append(calls, RecoveredToolCall{Name: name, Input: raw})
		pos = closeIdx + len(toolCallClosePrefix)
	}

	return out.String(), calls
}
