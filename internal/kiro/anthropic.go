package kiro

import (
	"encoding/json"

	"aigateway/internal/cacheest"
	"github.com/google/uuid"
)

// anthropicResponse is the Anthropic Messages API response shape every
// caller of this adapter expects back, regardless of which upstream wire
// format actually served the request.
type anthropicResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Model        string                  `json:"model"`
	Content      []cacheest.ContentBlock `json:"content"`
	StopReason   string                  `json:"stop_reason"`
	Usage        anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// kiroEvent is one decoded object from the event-stream body. Kiro names
// its streamed fields differently across its two chat endpoints, so
// decoding tolerates either naming by trying both.
type kiroEvent struct {
	Content   string          `json:"content"`
	Text      string          `json:"chunk"`
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Stop      bool            `json:"stop"`
}

func (e kiroEvent) text() string {
	if e.Content != "" {
		return e.Content
	}
	return e.Text
}

// assembleResponse folds a sequence of decoded events plus a final token
// split into one Anthropic-shaped response, running the thinking-tag and
// bracketed-tool-call recovery passes over the accumulated assistant text.
func assembleResponse(model string, events []kiroEvent, usage cacheest.Estimate, outputTokens int) *anthropicResponse {
	splitter := &ThinkingSplitter{}
	var text, thinking string
	var toolUses []cacheest.ContentBlock

	for _, ev := range events {
		if ev.ToolUseID != "" || ev.Name != "" {
			toolUses = append(toolUses, cacheest.ContentBlock{
				Type:      "tool_use",
				ID:        ev.ToolUseID,
				Name:      ev.Name,
				Input:     ev.Input,
				ToolUseID: ev.ToolUseID,
			})
			continue
		}
		split := splitter.Feed(ev.text())
		text += split.Text
		thinking += split.Thinking
	}
	final := splitter.Flush()
	text += final.Text
	thinking += final.Thinking

	recovered, calls := recoverToolCalls(text)
	text = recovered
	for _, c := range calls {
		toolUses = append(toolUses, cacheest.ContentBlock{
			Type:  "tool_use",
			ID:    uuid.NewString(),
			Name:  c.Name,
			Input: c.Input,
		})
	}

	var content []cacheest.ContentBlock
	if thinking != "" {
		content = append(content, cacheest.ContentBlock{Type: "thinking", Text: thinking})
	}
	if text != "" {
		content = append(content, cacheest.ContentBlock{Type: "text", Text: text})
	}
	content = append(content, toolUses...)

	stopReason := "end_turn"
	if len(toolUses) > 0 {
		stopReason = "tool_use"
	}

	return &anthropicResponse{
		ID:         "msg_" + uuid.NewString(),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    content,
		StopReason: stopReason,
		Usage: anthropicUsage{
			InputTokens:              usage.Uncached,
			OutputTokens:             outputTokens,
			CacheCreationInputTokens: usage.CacheCreation,
			CacheReadInputTokens:     usage.CacheRead,
		},
	}
}
