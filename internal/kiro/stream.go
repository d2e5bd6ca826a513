package kiro

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"aigateway/internal/cacheest"
	"aigateway/internal/provider"
)

// Stream performs a streaming Kiro chat call. The upstream's AWS
// event-stream framed body is read in full and decoded first; the assembled
// response is then replayed as Anthropic-shaped SSE events through a pipe,
// grounded on the reference fake-streaming pipe idiom used elsewhere in this
// codebase for converting a complete response into SSE.
func (a *Adapter) Stream(req provider.Request) provider.Response {
	var apiReq cacheest.Request
	if err := json.Unmarshal(req.Body, &apiReq); err != nil {
		return provider.Response{Err: fmt.Errorf("kiro: decode request body: %w", err)}
	}

	body, status, err := a.doChat(req.Ctx, req.Credential, &apiReq)
	if err != nil {
		return provider.Response{Err: err}
	}

	events, err := decodeNonStreamEvents(body)
	if err != nil {
		return provider.Response{Err: fmt.Errorf("kiro: decode upstream response: %w", err)}
	}

	estimate := a.estimateUsage(req.Credential.ID, &apiReq)
	outputTokens := sumEventTextTokens(a.tokens, apiReq.Model, events)

	pr, pw := io.Pipe()
	go writeSSE(pw, apiReq.Model, events, estimate, outputTokens)

	return provider.Response{
		Resp: &http.Response{
			StatusCode: statusOrDefault(status),
			Body:       pr,
			Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		},
		UsedModel: apiReq.Model,
	}
}

func statusOrDefault(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

// writeSSE renders the assembled response as a minimal Anthropic
// message_start / content_block_delta / message_stop event sequence.
func writeSSE(pw *io.PipeWriter, model string, events []kiroEvent, estimate cacheest.Estimate, outputTokens int) {
	defer pw.Close()

	resp := assembleResponse(model, events, estimate, outputTokens)

	writeEvent(pw, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":      resp.ID,
			"type":    "message",
			"role":    "assistant",
			"model":   resp.Model,
			"content": []any{},
			"usage":   resp.Usage,
		},
	})

	for i, block := range resp.Content {
		writeEvent(pw, "content_block_start", map[string]any{
			"type":          "content_block_start",
			"index":         i,
			"content_block": block,
		})
		delta := map[string]any{"type": "text_delta", "text": block.Text}
		if block.Type == "tool_use" {
			delta = map[string]any{"type": "input_json_delta", "partial_json": string(block.Input)}
		}
		writeEvent(pw, "content_block_delta", map[string]any{
			"type": "content_block_delta", "index": i, "delta": delta,
		})
		writeEvent(pw, "content_block_stop", map[string]any{"type": "content_block_stop", "index": i})
	}

	writeEvent(pw, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": resp.StopReason},
		"usage": resp.Usage,
	})
	writeEvent(pw, "message_stop", map[string]any{"type": "message_stop"})
}

func writeEvent(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("kiro: failed to marshal SSE event")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
