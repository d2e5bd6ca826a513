package kiro

import (
	"strconv"
	"strings"

	"aigateway/internal/cacheest"
)

// maxImageHistoryDepth is how many of the most recent messages may still
// carry inline images; anything older gets a textual placeholder so a long
// conversation's payload doesn't balloon with stale attachments.
const maxImageHistoryDepth = 5

// maxToolDescriptionLen truncates any tool description beyond this length.
const maxToolDescriptionLen = 9216

// dropTrailingNoOpAssistant removes a final assistant message whose sole
// content is the literal "{" — a no-op continuation some clients send.
func dropTrailingNoOpAssistant(messages []cacheest.Message) []cacheest.Message {
	if len(messages) == 0 {
		return messages
	}
	last := messages[len(messages)-1]
	if last.Role != "assistant" || len(last.Content) != 1 {
		return messages
	}
	block := last.Content[0]
	if block.Type == "text" && block.Text == "{" {
		return messages[:len(messages)-1]
	}
	return messages
}

// mergeAdjacentSameRole concatenates consecutive messages sharing a role,
// joining text with "\n" and appending the rest of the content blocks.
func mergeAdjacentSameRole(messages []cacheest.Message) []cacheest.Message {
	if len(messages) == 0 {
		return messages
	}
	merged := make([]cacheest.Message, 0, len(messages))
	merged = append(merged, messages[0])
	for _, m := range messages[1:] {
		last := &merged[len(merged)-1]
		if last.Role != m.Role {
			merged = append(merged, m)
			continue
		}
		last.Content = mergeContentBlocks(last.Content, m.Content)
	}
	return merged
}

func mergeContentBlocks(a, b []cacheest.ContentBlock) []cacheest.ContentBlock {
	if len(a) > 0 && len(b) > 0 {
		lastIdx := len(a) - 1
		firstB := b[0]
		if a[lastIdx].Type == "text" && firstB.Type == "text" {
			merged := make([]cacheest.ContentBlock, 0, len(a)+len(b)-1)
			merged = append(merged, a[:lastIdx]...)
			joined := a[lastIdx]
			joined.Text = joined.Text + "\n" + firstB.Text
			merged = append(merged, joined)
			merged = append(merged, b[1:]...)
			return merged
		}
	}
	out := make([]cacheest.ContentBlock, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// rewriteSystemPrefix folds the system prompt into the conversation: a
// leading prefix on the first message when it is already a user turn,
// otherwise a new standalone leading user turn.
func rewriteSystemPrefix(messages []cacheest.Message, systemText string) []cacheest.Message {
	if strings.TrimSpace(systemText) == "" {
		return messages
	}
	if len(messages) > 0 && messages[0].Role == "user" {
		prefixed := make([]cacheest.Message, len(messages))
		copy(prefixed, messages)
		first := prefixed[0]
		first.Content = append([]cacheest.ContentBlock{{Type: "text", Text: systemText}}, first.Content...)
		prefixed[0] = first
		return prefixed
	}
	lead := cacheest.Message{Role: "user", Content: []cacheest.ContentBlock{{Type: "text", Text: systemText}}}
	return append([]cacheest.Message{lead}, messages...)
}

// collapseThinking wraps thinking blocks of an assistant message into
// <thinking>...</thinking> text, leaving tool_use blocks untouched.
func collapseThinking(m cacheest.Message) cacheest.Message {
	if m.Role != "assistant" {
		return m
	}
	out := make([]cacheest.ContentBlock, 0, len(m.Content))
	for _, block := range m.Content {
		if block.Type == "thinking" {
			out = append(out, cacheest.ContentBlock{Type: "text", Text: "<thinking>" + block.Text + "</thinking>"})
			continue
		}
		out = append(out, block)
	}
	m.Content = out
	return m
}

// truncateOldImages replaces inline images in messages older than the most
// recent maxImageHistoryDepth with a textual placeholder.
func truncateOldImages(messages []cacheest.Message) []cacheest.Message {
	cutoff := len(messages) - maxImageHistoryDepth
	out := make([]cacheest.Message, len(messages))
	copy(out, messages)
	for i := range out {
		if i >= cutoff || out[i].Role != "user" {
			continue
		}
		out[i] = replaceImagesWithPlaceholder(out[i])
	}
	return out
}

func replaceImagesWithPlaceholder(m cacheest.Message) cacheest.Message {
	imageCount := 0
	for _, block := range m.Content {
		if block.Type == "image" {
			imageCount++
		}
	}
	if imageCount == 0 {
		return m
	}
	out := make([]cacheest.ContentBlock, 0, len(m.Content))
	for _, block := range m.Content {
		if block.Type == "image" {
			continue
		}
		out = append(out, block)
	}
	placeholder := fmtImagePlaceholder(imageCount)
	out = append(out, cacheest.ContentBlock{Type: "text", Text: placeholder})
	m.Content = out
	return m
}

func fmtImagePlaceholder(n int) string {
	return "[此消息包含 " + strconv.Itoa(n) + " 张图片，已在历史记录中省略]"
}

// dedupToolResults removes duplicate tool_result blocks sharing a
// tool_use_id within the same message, keeping the first occurrence.
func dedupToolResults(m cacheest.Message) cacheest.Message {
	seen := make(map[string]struct{}, len(m.Content))
	out := make([]cacheest.ContentBlock, 0, len(m.Content))
	for _, block := range m.Content {
		if block.Type == "tool_result" {
			if _, ok := seen[block.ToolUseID]; ok {
				continue
			}
			seen[block.ToolUseID] = struct{}{}
		}
		out = append(out, block)
	}
	m.Content = out
	return m
}

// filterAndTruncateTools drops web_search/websearch tools (case-insensitive)
// and truncates descriptions beyond maxToolDescriptionLen.
func filterAndTruncateTools(tools []cacheest.Tool) []cacheest.Tool {
	out := make([]cacheest.Tool, 0, len(tools))
	for _, t := range tools {
		lower := strings.ToLower(t.Name)
		if lower == "web_search" || lower == "websearch" {
			continue
		}
		if len(t.Description) > maxToolDescriptionLen {
			t.Description = t.Description[:maxToolDescriptionLen] + "..."
		}
		out = append(out, t)
	}
	return out
}

// splitHistoryAndCurrent separates the trailing current turn from the rest
// of the conversation. If the conversation ends on an assistant message, a
// synthetic "Continue" user turn is appended, since the upstream requires
// the terminal message to be user-role. If the remaining history does not
// itself end on an assistant turn (an all-user history, e.g. a session's
// very first turn), a synthetic assistant "Continue" turn is appended to
// history, since the upstream requires alternation ending in assistant
// before the final user turn.
func splitHistoryAndCurrent(messages []cacheest.Message) (history []cacheest.Message, current cacheest.Message) {
	if len(messages) == 0 {
		return nil, cacheest.Message{Role: "user", Content: []cacheest.ContentBlock{{Type: "text", Text: "Continue"}}}
	}
	last := messages[len(messages)-1]
	if last.Role == "assistant" {
		history = messages
		current = cacheest.Message{Role: "user", Content: []cacheest.ContentBlock{{Type: "text", Text: "Continue"}}}
		return history, current
	}

	history = messages[:len(messages)-1]
	current = last
	if len(history) == 0 || history[len(history)-1].Role != "assistant" {
		withSynthetic := make([]cacheest.Message, len(history)+1)
		copy(withSynthetic, history)
		withSynthetic[len(history)] = cacheest.Message{Role: "assistant", Content: []cacheest.ContentBlock{{Type: "text", Text: "Continue"}}}
		history = withSynthetic
	}
	return history, current
}

// transformMessages runs the full Kiro request-construction pipeline
// (§4.2) over a request's system prompt and message list, producing the
// history/current split the wire payload is built from.
func transformMessages(req *cacheest.Request) (history []cacheest.Message, current cacheest.Message) {
	messages := dropTrailingNoOpAssistant(req.Messages)
	messages = mergeAdjacentSameRole(messages)
	messages = rewriteSystemPrefix(messages, systemText(req.System))

	transformed := make([]cacheest.Message, len(messages))
	for i, m := range messages {
		m = collapseThinking(m)
		m = dedupToolResults(m)
		transformed[i] = m
	}
	transformed = truncateOldImages(transformed)

	return splitHistoryAndCurrent(transformed)
}

func systemText(blocks []cacheest.SystemBlock) string {
	var b strings.Builder
	for i, s := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
