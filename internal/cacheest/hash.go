package cacheest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// ToolResultStrategy controls how a tool_result block contributes to a
// message's content hash.
type ToolResultStrategy string

const (
	// ToolResultStrict hashes the tool_result's full content.
	ToolResultStrict ToolResultStrategy = "strict"
	// ToolResultIgnore drops tool_result blocks from the hash entirely.
	ToolResultIgnore ToolResultStrategy = "ignore"
	// ToolResultNameOnly hashes only the block's type, since tool_result
	// blocks carry no name field of their own.
	ToolResultNameOnly ToolResultStrategy = "name_only"
)

type stableSystemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

type stableToolBlock struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type stableThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type stablePrefix struct {
	Model      string              `json:"model"`
	System     []stableSystemBlock `json:"system,omitempty"`
	Tools      []stableToolBlock   `json:"tools,omitempty"`
	ToolChoice json.RawMessage     `json:"tool_choice,omitempty"`
	Thinking   *stableThinking     `json:"thinking,omitempty"`
}

// staticPrefixHash is the request's cache identity: a stable projection of
// everything outside the message list, hashed with MD5 because the upstream
// contract pins the algorithm, not merely "a hash".
func staticPrefixHash(req *Request) string {
	prefix := stablePrefix{
		Model:      req.Model,
		ToolChoice: req.ToolChoice,
	}
	for _, s := range req.System {
		prefix.System = append(prefix.System, stableSystemBlock{Type: s.Type, Text: s.Text, CacheControl: s.CacheControl})
	}
	for _, t := range req.Tools {
		prefix.Tools = append(prefix.Tools, stableToolBlock{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	if req.Thinking != nil {
		prefix.Thinking = &stableThinking{Type: req.Thinking.Type, BudgetTokens: req.Thinking.BudgetTokens}
	}
	return md5Hex(mustJSON(prefix))
}

// messageContentHash hashes a role-prefixed projection of a message that
// excludes volatile fields (cache_control, tool_use_id, id, input).
func messageContentHash(msg Message, strategy ToolResultStrategy) string {
	var b strings.Builder
	b.WriteString(msg.Role)
	b.WriteByte(':')
	for _, block := range msg.Content {
		switch block.Type {
		case "text", "thinking":
			b.WriteString(block.Type)
			b.WriteByte('|')
			b.WriteString(normalizeText(block.Text))
		case "tool_use":
			b.WriteString("tool_use|")
			b.WriteString(normalizeText(block.Name))
		case "tool_result":
			switch strategy {
			case ToolResultIgnore:
				continue
			case ToolResultNameOnly:
				b.WriteString("tool_result")
			default:
				b.WriteString("tool_result|")
				b.WriteString(normalizeText(string(block.Content)))
			}
		case "image":
			b.WriteString(imageFingerprint(block.Source))
		default:
			b.WriteString(block.Type)
		}
		b.WriteByte(';')
	}
	return md5Hex(b.String())
}

// imageFingerprint avoids hashing raw base64 by condensing it to length plus
// head/tail samples, which is stable across repeats of the same image.
func imageFingerprint(src *ImageSource) string {
	if src == nil {
		return "img:0::"
	}
	data := src.Data
	head := data
	if len(head) > 32 {
		head = head[:32]
	}
	tail := data
	if len(tail) > 32 {
		tail = tail[len(tail)-32:]
	}
	return "img:" + strconv.Itoa(len(data)) + ":" + head + ":" + tail
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// normalizeText maps exotic arrow glyphs, control characters, and Private
// Use Area runes to ASCII-safe equivalents so that two messages differing
// only in a client's choice of glyph still hash the same.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '→' || r == '⇒' || r == '➡':
			b.WriteString("->")
		case r == '←' || r == '⇐':
			b.WriteString("<-")
		case r >= 0xE000 && r <= 0xF8FF:
			b.WriteByte('?')
		case r < 0x20 && r != '\n' && r != '\t':
			// drop other C0 control characters
		case r == 0x7F:
			// drop DEL
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
