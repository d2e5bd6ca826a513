package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"aigateway/internal/cacheest"
	"aigateway/internal/models"
)

// geminiPart is one element of a content turn's parts array. Only the field
// matching the block's kind is populated.
type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string          `json:"name"`
	ID       string          `json:"id,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

type geminiGenerationConfig struct {
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
	ResponseModalities []string              `json:"responseModalities,omitempty"`
}

type geminiRequestBody struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
}

// geminiPayload is the Code Assist envelope: {model, project, request}.
type geminiPayload struct {
	Model   string            `json:"model"`
	Project string            `json:"project,omitempty"`
	Request geminiRequestBody `json:"request"`
}

// buildPayload converts an Anthropic-shaped request into the Code Assist wire
// shape. model is embedded separately from apiReq.Model so callers can
// substitute fallback candidates without rebuilding the whole payload.
func buildPayload(apiReq *cacheest.Request, projectID, model string) (*geminiPayload, error) {
	contents, err := convertMessages(apiReq.Messages)
	if err != nil {
		return nil, err
	}

	body := geminiRequestBody{Contents: contents}

	if sys := systemInstruction(apiReq.System); sys != nil {
		body.SystemInstruction = sys
	}

	if len(apiReq.Tools) > 0 {
		body.Tools = []geminiTool{{FunctionDeclarations: convertTools(apiReq.Tools)}}
	}

	if apiReq.Thinking != nil {
		body.GenerationConfig = &geminiGenerationConfig{
			ThinkingConfig: &geminiThinkingConfig{
				ThinkingBudget:  apiReq.Thinking.BudgetTokens,
				IncludeThoughts: true,
			},
		}
	}

	return &geminiPayload{Model: model, Project: projectID, Request: body}, nil
}

// applyModelQuirks rewrites a marshaled candidate payload for model-specific
// wire requirements the reference CLI client also applies: flash-image
// variants need an explicit Image response modality and reject
// thinkingConfig outright. Operating on the marshaled
// bytes (rather than mutating the geminiPayload struct) means each fallback
// candidate gets its own independent copy for free, straight from sjson.
func applyModelQuirks(wire []byte, model string) []byte {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "flash-image") {
		if out, err := sjson.SetBytes(wire, "request.generationConfig.responseModalities", []string{"Image"}); err == nil {
			wire = out
		}
	}
	if disallowsThinking(lower) {
		if out, err := sjson.DeleteBytes(wire, "request.generationConfig.thinkingConfig"); err == nil {
			wire = out
		}
	}
	return wire
}

func disallowsThinking(lowerModel string) bool {
	return strings.Contains(lowerModel, "gemini-2.5-flash-image-preview") ||
		strings.Contains(lowerModel, "gemini-2.5-flash-image")
}

func systemInstruction(blocks []cacheest.SystemBlock) *geminiContent {
	if len(blocks) == 0 {
		return nil
	}
	var sb strings.Builder
	for i, b := range blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.Text)
	}
	if sb.Len() == 0 {
		return nil
	}
	return &geminiContent{Parts: []geminiPart{{Text: sb.String()}}}
}

func convertTools(tools []cacheest.Tool) []geminiFunctionDecl {
	out := make([]geminiFunctionDecl, 0, len(tools))
	for _, t := range tools {
		out = append(out, geminiFunctionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return out
}

// convertMessages maps Anthropic-shaped turns onto Gemini's user/model roles
// and part kinds, correlating tool_result blocks back to the tool name their
// originating tool_use block carried (Gemini's functionResponse requires a
// name, which Anthropic's tool_result block does not repeat).
func convertMessages(messages []cacheest.Message) ([]geminiContent, error) {
	toolNameByID := make(map[string]string)
	for _, m := range messages {
		for _, b := range m.Content {
			if b.Type == "tool_use" && b.ID != "" {
				toolNameByID[b.ID] = b.Name
			}
		}
	}

	contents := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		parts, err := convertContentBlocks(m.Content, toolNameByID)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}
	return contents, nil
}

func convertContentBlocks(blocks []cacheest.ContentBlock, toolNameByID map[string]string) ([]geminiPart, error) {
	parts := make([]geminiPart, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				parts = append(parts, geminiPart{Text: b.Text})
			}
		case "image":
			if b.Source == nil {
				continue
			}
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{
				MimeType: b.Source.MediaType,
				Data:     b.Source.Data,
			}})
		case "tool_use":
			parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{
				Name: b.Name,
				Args: b.Input,
			}})
		case "tool_result":
			name := toolNameByID[b.ToolUseID]
			if name == "" {
				name = b.ToolUseID
			}
			parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{
				Name:     name,
				ID:       b.ToolUseID,
				Response: toolResultResponse(b.Content),
			}})
		}
	}
	return parts, nil
}

// toolResultResponse normalizes a tool_result block's content into the
// {"result": ...} object shape functionResponse.response expects, passing
// through already-object-shaped content unchanged.
func toolResultResponse(content json.RawMessage) json.RawMessage {
	if len(content) == 0 {
		return json.RawMessage(`{"result":""}`)
	}
	var probe any
	if err := json.Unmarshal(content, &probe); err == nil {
		if _, isObject := probe.(map[string]any); isObject {
			return content
		}
	}
	wrapped, err := json.Marshal(map[string]any{"result": json.RawMessage(content)})
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"result":%q}`, string(content)))
	}
	return wrapped
}

// resolveAndValidate canonicalizes aliases (e.g. nano-banana) and reports the
// resolved model name used to key fallback candidates.
func resolveAndValidate(model string) string {
	if resolved, ok := models.ResolveAlias(model); ok {
		return resolved
	}
	return model
}
