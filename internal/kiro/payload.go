package kiro

import (
	"encoding/json"
	"fmt"

	"aigateway/internal/cacheest"
)

// kiroConversationState is the upstream's own message envelope: a flat
// history plus one "current" turn, rather than Anthropic's single array.
type kiroConversationState struct {
	ConversationID string         `json:"conversationId,omitempty"`
	History        []kiroMessage  `json:"history,omitempty"`
	CurrentMessage kiroMessage    `json:"currentMessage"`
	ChatTriggerType string        `json:"chatTriggerType"`
}

type kiroMessage struct {
	UserInputMessage      *kiroUserInput `json:"userInputMessage,omitempty"`
	AssistantResponseText string         `json:"assistantResponseMessage,omitempty"`
}

type kiroUserInput struct {
	Content string       `json:"content"`
	Context *kiroContext `json:"userInputMessageContext,omitempty"`
}

type kiroContext struct {
	ToolResults []kiroToolResult `json:"toolResults,omitempty"`
	Tools       []kiroTool       `json:"tools,omitempty"`
}

type kiroToolResult struct {
	ToolUseID string          `json:"toolUseId"`
	Content   json.RawMessage `json:"content"`
	Status    string          `json:"status"`
}

type kiroTool struct {
	ToolSpecification kiroToolSpec `json:"toolSpecification"`
}

type kiroToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// kiroPayload is the full request body sent to the chat endpoint.
type kiroPayload struct {
	ProfileArn        string                `json:"profileArn,omitempty"`
	ConversationState kiroConversationState `json:"conversationState"`
}

// buildPayload runs the full message-construction pipeline over req and
// renders the result into the shape Kiro's chat endpoint expects.
func buildPayload(req *cacheest.Request, profileArn, conversationID string) (*kiroPayload, error) {
	tools := filterAndTruncateTools(req.Tools)
	history, current := transformMessages(req)

	historyMsgs := make([]kiroMessage, 0, len(history))
	for _, m := range history {
		msg, err := renderMessage(m, nil)
		if err != nil {
			return nil, fmt.Errorf("kiro: render history message: %w", err)
		}
		historyMsgs = append(historyMsgs, msg)
	}

	currentMsg, err := renderMessage(current, tools)
	if err != nil {
		return nil, fmt.Errorf("kiro: render current message: %w", err)
	}

	return &kiroPayload{
		ProfileArn: profileArn,
		ConversationState: kiroConversationState{
			ConversationID:  conversationID,
			History:         historyMsgs,
			CurrentMessage:  currentMsg,
			ChatTriggerType: "MANUAL",
		},
	}, nil
}

func renderMessage(m cacheest.Message, tools []cacheest.Tool) (kiroMessage, error) {
	if m.Role == "assistant" {
		return kiroMessage{AssistantResponseText: renderText(m.Content)}, nil
	}

	toolResults := make([]kiroToolResult, 0)
	for _, block := range m.Content {
		if block.Type != "tool_result" {
			continue
		}
		status := "success"
		if block.Input != nil {
			status = "error"
		}
		content := block.Content
		if content == nil {
			content, _ = json.Marshal(block.Text)
		}
		toolResults = append(toolResults, kiroToolResult{
			ToolUseID: block.ToolUseID,
			Content:   content,
			Status:    status,
		})
	}

	var ctx *kiroContext
	if len(toolResults) > 0 || len(tools) > 0 {
		ctx = &kiroContext{ToolResults: toolResults}
		for _, t := range tools {
			ctx.Tools = append(ctx.Tools, kiroTool{ToolSpecification: kiroToolSpec{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			}})
		}
	}

	return kiroMessage{UserInputMessage: &kiroUserInput{
		Content: renderText(m.Content),
		Context: ctx,
	}}, nil
}

// renderText concatenates a message's text-bearing blocks; image and
// tool_use/tool_result blocks carry their own structured fields and are
// rendered elsewhere.
func renderText(blocks []cacheest.ContentBlock) string {
	var out string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if out != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}
