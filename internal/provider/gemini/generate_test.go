package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aigateway/internal/cacheest"
	"aigateway/internal/credential"
	"aigateway/internal/provider"
)

func newGenerateCredential() *credential.Credential {
	cred := credential.NewCredential("cred-1", credential.GeminiOAuth)
	cred.ProjectID = "proj-1"
	cred.UpdateToken("access-token", "refresh-token", time.Now().Add(time.Hour), "")
	return cred
}

func geminiChatBody(t *testing.T, model string) []byte {
	t.Helper()
	body, err := json.Marshal(cacheest.Request{
		Model: model,
		Messages: []cacheest.Message{
			{Role: "user", Content: []cacheest.ContentBlock{{Type: "text", Text: "hello"}}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestGenerateSuccessPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiResponseContent{Parts: []geminiResponsePart{{Text: "hi there, this reply is long enough to look complete."}}},
			}},
			UsageMetadata: &geminiUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 3},
		})
	}))
	defer server.Close()

	a := NewAdapter(WithCodeAssistEndpoint(server.URL))

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateCredential(),
		Model:      "gemini-2.5-pro",
		Body:       geminiChatBody(t, "gemini-2.5-pro"),
	})
	require.NoError(t, resp.Err)
	require.NotNil(t, resp.Resp)

	body, err := provider.ReadAll(resp.Resp)
	require.NoError(t, err)

	var parsed anthropicResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.Len(t, parsed.Content, 1)
	require.Equal(t, "text", parsed.Content[0].Type)
	require.Equal(t, 5, parsed.Usage.InputTokens)
}

func TestGenerateRetriesOn429ThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiResponseContent{Parts: []geminiResponsePart{{Text: "recovered after retrying the request successfully."}}},
			}},
		})
	}))
	defer server.Close()

	a := NewAdapter(
		WithCodeAssistEndpoint(server.URL),
		WithRetryConfig(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}),
	)

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateCredential(),
		Model:      "gemini-2.5-pro",
		Body:       geminiChatBody(t, "gemini-2.5-pro"),
	})
	require.NoError(t, resp.Err)
	require.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestGenerateFallsBackToNextModelOn404(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload geminiPayload
		json.NewDecoder(r.Body).Decode(&payload)
		models = append(models, payload.Model)
		if payload.Model == "gemini-2.5-pro" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiResponseContent{Parts: []geminiResponsePart{{Text: "served by the fallback candidate model instead."}}},
			}},
		})
	}))
	defer server.Close()

	a := NewAdapter(WithCodeAssistEndpoint(server.URL))

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateCredential(),
		Model:      "gemini-2.5-pro",
		Body:       geminiChatBody(t, "gemini-2.5-pro"),
	})
	require.NoError(t, resp.Err)
	require.Greater(t, len(models), 1)
	require.Equal(t, "gemini-2.5-pro", models[0])
}

func TestGenerateMarksCredentialUnhealthyOn403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"forbidden"}}`))
	}))
	defer server.Close()

	var markedImmediate bool
	a := NewAdapter(
		WithCodeAssistEndpoint(server.URL),
		WithUnhealthyMarker(
			func(cred *credential.Credential, errMsg string) {},
			func(cred *credential.Credential, errMsg string) { markedImmediate = true },
		),
	)

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateCredential(),
		Model:      "gemini-2.5-pro",
		Body:       geminiChatBody(t, "gemini-2.5-pro"),
	})
	require.Error(t, resp.Err)
	require.True(t, markedImmediate)
}

func TestGenerateContinuesOnTruncatedReply(t *testing.T) {
	var calls int32
	longFirst := "Part one of the answer keeps going and going and trails off without finishing the thought..."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		if n == 1 {
			json.NewEncoder(w).Encode(geminiResponse{
				Candidates: []geminiCandidate{{Content: geminiResponseContent{Parts: []geminiResponsePart{{Text: longFirst}}}}},
			})
			return
		}
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiResponseContent{Parts: []geminiResponsePart{{Text: "and now it finally ends with a period."}}}}},
		})
	}))
	defer server.Close()

	a := NewAdapter(WithCodeAssistEndpoint(server.URL))

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateCredential(),
		Model:      "gemini-2.5-pro",
		Body:       geminiChatBody(t, "gemini-2.5-pro"),
	})
	require.NoError(t, resp.Err)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))

	body, err := provider.ReadAll(resp.Resp)
	require.NoError(t, err)
	var parsed anthropicResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.Len(t, parsed.Content, 2)
}
