package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"aigateway/internal/antitrunc"
	"aigateway/internal/cacheest"
	"aigateway/internal/common"
	"aigateway/internal/credential"
	"aigateway/internal/monitoring/tracing"
	"aigateway/internal/provider"
)

// maxContinuationRounds bounds the anti-truncation retry loop so a model
// stuck emitting partial replies can't wedge a single Generate call forever.
const maxContinuationRounds = 4

// Generate implements provider.Adapter for a single, complete chat turn.
func (a *Adapter) Generate(req provider.Request) provider.Response {
	ctx, span := tracing.StartSpan(req.Ctx, "provider.gemini", "Generate")
	defer span.End()

	apiReq, err := decodeRequest(req.Body)
	if err != nil {
		return provider.Response{Err: err}
	}

	model := firstNonEmptyModel(req.Model, apiReq.Model)
	resolvedModel := resolveAndValidate(model)

	payload, err := buildPayload(apiReq, req.Credential.ProjectID, resolvedModel)
	if err != nil {
		return provider.Response{Err: err}
	}

	gr, usedModel, err := a.generateWithContinuation(ctx, req.Credential, payload)
	if err != nil {
		return provider.Response{Err: err}
	}

	out := assembleResponse(usedModel, gr)
	if out.Usage.InputTokens == 0 && out.Usage.OutputTokens == 0 {
		a.estimateUsageFallback(usedModel, apiReq, out)
	}

	wire, err := json.Marshal(out)
	if err != nil {
		return provider.Response{Err: err}
	}

	return provider.Response{Resp: wrapJSONResponse(wire), UsedModel: usedModel}
}

// generateWithContinuation sends payload and, while the reply looks cut off,
// folds the partial text back in as a continuation turn and asks again, up
// to maxContinuationRounds times.
func (a *Adapter) generateWithContinuation(ctx context.Context, cred *credential.Credential, payload *geminiPayload) (*geminiResponse, string, error) {
	wire, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}

	body, _, usedModel, err := a.doAction(ctx, cred, "generateContent", payload)
	if err != nil {
		return nil, "", err
	}

	gr, err := parseGeminiResponse(body)
	if err != nil {
		return nil, "", err
	}

	cfg := antitrunc.DefaultConfig()
	soFar := candidateText(gr)
	rounds := 0
	for rounds < maxContinuationRounds && !cfg.ResponseComplete(soFar) && cfg.AppearsTruncated(soFar) {
		continuationWire := antitrunc.BuildContinuationPayload(wire, soFar, common.ContinuationPrompt)
		var continuationPayload geminiPayload
		if err := json.Unmarshal(continuationWire, &continuationPayload); err != nil {
			break
		}

		contBody, _, _, err := a.doAction(ctx, cred, "generateContent", &continuationPayload)
		if err != nil {
			break
		}
		contResp, err := parseGeminiResponse(contBody)
		if err != nil {
			break
		}

		contText := candidateText(contResp)
		if contText == "" {
			break
		}
		if len(contResp.Candidates) > 0 {
			gr.Candidates[0].Content.Parts = append(gr.Candidates[0].Content.Parts, contResp.Candidates[0].Content.Parts...)
			gr.Candidates[0].FinishReason = contResp.Candidates[0].FinishReason
		}
		if contResp.UsageMetadata != nil {
			gr.UsageMetadata = contResp.UsageMetadata
		}
		soFar += contText
		wire = continuationWire
		rounds++
	}

	return gr, usedModel, nil
}

// estimateUsageFallback fills in token counts locally when Code Assist omits
// usageMetadata from a reply, which the reference client has observed on
// some error and safety-filtered responses.
func (a *Adapter) estimateUsageFallback(model string, apiReq *cacheest.Request, out *anthropicResponse) {
	var inputText strings.Builder
	for _, m := range apiReq.Messages {
		for _, b := range m.Content {
			inputText.WriteString(b.Text)
		}
	}
	out.Usage.InputTokens = a.tokens.CountTokens(model, inputText.String())

	var outputText strings.Builder
	for _, b := range out.Content {
		outputText.WriteString(b.Text)
	}
	out.Usage.OutputTokens = a.tokens.CountTokens(model, outputText.String())
}

func decodeRequest(body []byte) (*cacheest.Request, error) {
	var apiReq cacheest.Request
	if err := json.Unmarshal(body, &apiReq); err != nil {
		return nil, err
	}
	return &apiReq, nil
}

func firstNonEmptyModel(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// wrapJSONResponse presents wire as a synthetic *http.Response so callers can
// treat every adapter's reply the same way, independent of whether the
// upstream call was itself HTTP.
func wrapJSONResponse(wire []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(wire)),
	}
}
