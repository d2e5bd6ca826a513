package kiro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"aigateway/internal/apierr"
	"aigateway/internal/cacheest"
	"aigateway/internal/credential"
	"aigateway/internal/monitoring/tracing"
	"aigateway/internal/provider"
)

// Generate performs one non-streaming Kiro chat call, translating the
// Anthropic-shaped request body into Kiro's conversation-state payload and
// the reply back into an Anthropic-shaped response.
func (a *Adapter) Generate(req provider.Request) provider.Response {
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
	resp := assembleResponse(apiReq.Model, events, estimate, outputTokens)

	payload, err := json.Marshal(resp)
	if err != nil {
		return provider.Response{Err: fmt.Errorf("kiro: marshal response: %w", err)}
	}

	return provider.Response{
		Resp:      wrapJSONResponse(status, payload),
		UsedModel: apiReq.Model,
	}
}

// doChat sends the Kiro chat request, handling the token-refresh-then-retry
// auth flow and transient-error backoff shared by Generate and Stream.
func (a *Adapter) doChat(ctx context.Context, cred *credential.Credential, apiReq *cacheest.Request) ([]byte, int, error) {
	ctx, span := tracing.StartSpan(ctx, "kiro", "kiro.chat")
	defer span.End()

	if err := a.ensureFreshToken(ctx, cred); err != nil {
		return nil, 0, fmt.Errorf("kiro: proactive token refresh: %w", err)
	}

	payload, err := buildPayload(apiReq, cred.ProfileArn, "")
	if err != nil {
		return nil, 0, err
	}
	wire, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("kiro: marshal payload: %w", err)
	}

	refreshedOnce := false
	for attempt := 0; ; attempt++ {
		body, status, err := a.sendTraced(ctx, cred, apiReq.Model, wire, attempt)
		if err == nil && status < 400 {
			return body, status, nil
		}

		if err != nil {
			if isRetryableError(err) && attempt < a.retryConfig.MaxRetries {
				a.sleep(ctx, retryDelay(attempt, a.retryConfig))
				continue
			}
			return nil, 0, apierr.MapNetworkError(err)
		}

		switch status {
		case http.StatusUnauthorized:
			if refreshedOnce {
				a.markUnhealthyNow(cred, "kiro: second consecutive 401 after refresh")
				return nil, status, apierr.MapHTTPError(status, body)
			}
			refreshedOnce = true
			if refreshErr := a.refresh(ctx, cred); refreshErr != nil {
				a.markUnhealthyNow(cred, "kiro: refresh after 401 failed: "+refreshErr.Error())
				return nil, status, apierr.MapHTTPError(status, body)
			}
			continue
		case http.StatusForbidden:
			a.markUnhealthyNow(cred, "kiro: 403 forbidden")
			return nil, status, apierr.MapHTTPError(status, body)
		default:
			if isRetryableStatus(status) && attempt < a.retryConfig.MaxRetries {
				a.sleep(ctx, retryDelay(attempt, a.retryConfig))
				continue
			}
			mapped := apierr.MapHTTPError(status, body)
			if a.markUnhealthy != nil {
				a.markUnhealthy(cred, mapped.Error())
			}
			return nil, status, mapped
		}
	}
}

// sendTraced wraps send in a per-attempt span, since a single doChat call can
// cover several retries across transient failures and 401-refresh cycles.
func (a *Adapter) sendTraced(ctx context.Context, cred *credential.Credential, model string, wire []byte, attempt int) ([]byte, int, error) {
	ctx, span := tracing.StartSpan(ctx, "kiro", "adapter.kiro.call")
	defer span.End()
	span.SetAttributes(
		attribute.Int("retry.count", attempt),
		attribute.String("upstream.model", model),
	)

	body, status, err := a.send(ctx, cred, model, wire)
	span.SetAttributes(attribute.Int("http.status_code", status))
	return body, status, err
}

func (a *Adapter) send(ctx context.Context, cred *credential.Credential, model string, wire []byte) ([]byte, int, error) {
	client, err := a.clientFor(cred)
	if err != nil {
		return nil, 0, err
	}
	region := cred.Region
	if region == "" {
		region = DefaultRegion
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.chatURLFunc(region, model), bytes.NewReader(wire))
	if err != nil {
		return nil, 0, err
	}
	accessToken, _, _ := cred.Token()
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (a *Adapter) markUnhealthyNow(cred *credential.Credential, msg string) {
	log.WithField("credential", cred.ID).Warn(msg)
	if a.markUnhealthyImmediate != nil {
		a.markUnhealthyImmediate(cred, msg)
	}
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (a *Adapter) estimateUsage(accountID string, apiReq *cacheest.Request) cacheest.Estimate {
	total := 0
	for _, m := range apiReq.Messages {
		for _, b := range m.Content {
			total += a.tokens.CountTokens(apiReq.Model, b.Text)
		}
	}
	for _, s := range apiReq.System {
		total += a.tokens.CountTokens(apiReq.Model, s.Text)
	}
	return a.cacheEstimatorFor(accountID).Estimate(apiReq, total)
}

func sumEventTextTokens(counter interface {
	CountTokens(model, text string) int
}, model string, events []kiroEvent) int {
	total := 0
	for _, ev := range events {
		total += counter.CountTokens(model, ev.text())
	}
	return total
}

// decodeNonStreamEvents parses a non-streaming chat response: a single JSON
// object, or a short event-stream framed sequence when the endpoint streams
// regardless of the request.
func decodeNonStreamEvents(body []byte) ([]kiroEvent, error) {
	scanner := newBraceScanner()
	objects := scanner.Feed(body)
	if len(objects) == 0 {
		return nil, fmt.Errorf("no JSON objects found in upstream response")
	}
	events := make([]kiroEvent, 0, len(objects))
	for _, obj := range objects {
		var ev kiroEvent
		if err := json.Unmarshal(obj, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func wrapJSONResponse(status int, body []byte) *http.Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}
