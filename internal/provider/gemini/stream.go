package gemini

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"aigateway/internal/cacheest"
	"aigateway/internal/monitoring/tracing"
	"aigateway/internal/provider"
)

// Stream performs a streaming Code Assist call. Unlike the buffer-then-render
// adapters in this gateway, Code Assist's own surface genuinely streams, so
// this translates each upstream SSE chunk into Anthropic-shaped SSE events as
// they arrive instead of collecting the whole reply first.
func (a *Adapter) Stream(req provider.Request) provider.Response {
	ctx, span := tracing.StartSpan(req.Ctx, "provider.gemini", "Stream")

	apiReq, err := decodeRequest(req.Body)
	if err != nil {
		span.End()
		return provider.Response{Err: err}
	}

	model := firstNonEmptyModel(req.Model, apiReq.Model)
	resolvedModel := resolveAndValidate(model)

	payload, err := buildPayload(apiReq, req.Credential.ProjectID, resolvedModel)
	if err != nil {
		span.End()
		return provider.Response{Err: err}
	}

	upstream, err := a.doStreamAction(ctx, req.Credential, payload)
	if err != nil {
		span.End()
		return provider.Response{Err: err}
	}

	pr, pw := io.Pipe()
	go func() {
		defer span.End()
		defer upstream.Body.Close()
		translateStream(pw, upstream.Body, payload.Model)
	}()

	return provider.Response{
		Resp: &http.Response{
			StatusCode: http.StatusOK,
			Body:       pr,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		},
		UsedModel: payload.Model,
	}
}

// translateStream reads Code Assist's native SSE body line by line and
// renders an Anthropic message_start / content_block_delta / message_stop
// sequence onto pw as each chunk arrives.
func translateStream(pw *io.PipeWriter, upstreamBody io.Reader, model string) {
	defer pw.Close()

	msgID := "msg_" + uuid.NewString()
	writeEvent(pw, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":      msgID,
			"type":    "message",
			"role":    "assistant",
			"model":   model,
			"content": []any{},
			"usage":   anthropicUsage{},
		},
	})

	textOpen := false
	blockIndex := 0
	stopReason := "end_turn"
	var usage anthropicUsage

	scanner := bufio.NewScanner(upstreamBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.WithError(err).Warn("gemini: failed to decode stream chunk")
			continue
		}

		if chunk.UsageMetadata != nil {
			usage.InputTokens = chunk.UsageMetadata.PromptTokenCount
			usage.OutputTokens = chunk.UsageMetadata.CandidatesTokenCount
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]
		if cand.FinishReason == "MAX_TOKENS" {
			stopReason = "max_tokens"
		}

		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				if textOpen {
					writeEvent(pw, "content_block_stop", map[string]any{"type": "content_block_stop", "index": blockIndex})
					textOpen = false
					blockIndex++
				}
				block := cacheest.ContentBlock{
					Type:  "tool_use",
					ID:    "toolu_" + uuid.NewString(),
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				}
				writeEvent(pw, "content_block_start", map[string]any{
					"type": "content_block_start", "index": blockIndex, "content_block": block,
				})
				writeEvent(pw, "content_block_delta", map[string]any{
					"type": "content_block_delta", "index": blockIndex,
					"delta": map[string]any{"type": "input_json_delta", "partial_json": string(part.FunctionCall.Args)},
				})
				writeEvent(pw, "content_block_stop", map[string]any{"type": "content_block_stop", "index": blockIndex})
				blockIndex++
				stopReason = "tool_use"
			case part.Text != "":
				if !textOpen {
					writeEvent(pw, "content_block_start", map[string]any{
						"type": "content_block_start", "index": blockIndex,
						"content_block": cacheest.ContentBlock{Type: "text", Text: ""},
					})
					textOpen = true
				}
				writeEvent(pw, "content_block_delta", map[string]any{
					"type": "content_block_delta", "index": blockIndex,
					"delta": map[string]any{"type": "text_delta", "text": part.Text},
				})
			}
		}
	}
	if textOpen {
		writeEvent(pw, "content_block_stop", map[string]any{"type": "content_block_stop", "index": blockIndex})
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Warn("gemini: stream scan error")
	}

	writeEvent(pw, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": usage,
	})
	writeEvent(pw, "message_stop", map[string]any{"type": "message_stop"})
}

func writeEvent(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("gemini: failed to marshal SSE event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
