package gemini

import (
	"encoding/json"

	"github.com/google/uuid"

	"aigateway/internal/cacheest"
)

// geminiResponsePart mirrors the subset of a streamed or complete candidate
// part this adapter understands: plain text, a thought (extended reasoning),
// or a function call the model wants to invoke.
type geminiResponsePart struct {
	Text         string              `json:"text,omitempty"`
	Thought      string              `json:"thought,omitempty"`
	FunctionCall *geminiFunctionCall `json:"functionCall,omitempty"`
}

type geminiResponseContent struct {
	Role  string               `json:"role,omitempty"`
	Parts []geminiResponsePart `json:"parts,omitempty"`
}

type geminiCandidate struct {
	Content      geminiResponseContent `json:"content"`
	FinishReason string                `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// geminiResponse is the Code Assist response shape: candidates directly at
// the top level, matching the request's own unwrapped reply (only the
// outbound envelope nests under "request"; replies come back flat).
type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *geminiErrorBody     `json:"error,omitempty"`
}

type geminiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// anthropicResponse mirrors the Anthropic Messages API response shape every
// adapter in this gateway normalizes to, so callers never branch on upstream
// kind.
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []cacheest.ContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// assembleResponse converts one Gemini candidate into an Anthropic-shaped
// reply. Only the first candidate is used; Code Assist's single-reply chat
// surface never requests more than one.
func assembleResponse(model string, gr *geminiResponse) *anthropicResponse {
	blocks := make([]cacheest.ContentBlock, 0, 2)
	stopReason := "end_turn"

	if len(gr.Candidates) > 0 {
		cand := gr.Candidates[0]
		for _, part := range cand.Content.Parts {
			switch {
			case part.Thought != "":
				blocks = append(blocks, cacheest.ContentBlock{Type: "thinking", Text: part.Thought})
			case part.FunctionCall != nil:
				blocks = append(blocks, cacheest.ContentBlock{
					Type:  "tool_use",
					ID:    "toolu_" + uuid.NewString(),
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				})
				stopReason = "tool_use"
			case part.Text != "":
				blocks = append(blocks, cacheest.ContentBlock{Type: "text", Text: part.Text})
			}
		}
		if cand.FinishReason == "MAX_TOKENS" {
			stopReason = "max_tokens"
		}
	}

	usage := anthropicUsage{}
	if gr.UsageMetadata != nil {
		usage.InputTokens = gr.UsageMetadata.PromptTokenCount
		usage.OutputTokens = gr.UsageMetadata.CandidatesTokenCount
	}

	return &anthropicResponse{
		ID:         "msg_" + uuid.NewString(),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    blocks,
		StopReason: stopReason,
		Usage:      usage,
	}
}

// candidateText concatenates every text part of the first candidate, used by
// the anti-truncation loop to judge whether a reply looks complete.
func candidateText(gr *geminiResponse) string {
	if len(gr.Candidates) == 0 {
		return ""
	}
	var out []byte
	for _, part := range gr.Candidates[0].Content.Parts {
		out = append(out, part.Text...)
	}
	return string(out)
}

func parseGeminiResponse(body []byte) (*geminiResponse, error) {
	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, err
	}
	return &gr, nil
}
