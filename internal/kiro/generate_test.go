package kiro

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

func newGenerateTestCredential() *credential.Credential {
	cred := credential.NewCredential("cred-1", credential.ClaudeKiroOAuth)
	cred.UpdateToken("access-token", "refresh-token", time.Now().Add(time.Hour), "")
	return cred
}

func chatBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(cacheest.Request{
		Model: "claude-opus-4-5",
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
		w.Write([]byte(`{"content":"hi there"}`))
	}))
	defer server.Close()

	a := NewAdapter(WithEndpoints(
		func(region, model string) string { return server.URL },
		func(region string) string { return server.URL },
	))

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateTestCredential(),
		Model:      "claude-opus-4-5",
		Body:       chatBody(t),
	})
	require.NoError(t, resp.Err)
	require.NotNil(t, resp.Resp)
	body, err := provider.ReadAll(resp.Resp)
	require.NoError(t, err)

	var parsed anthropicResponse
	require.NoError(t, json.Unmarshal(body, &parsed))
	require.Len(t, parsed.Content, 1)
	require.Equal(t, "hi there", parsed.Content[0].Text)
}

func TestGenerateRetriesOn429ThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"recovered"}`))
	}))
	defer server.Close()

	a := NewAdapter(
		WithEndpoints(func(region, model string) string { return server.URL }, func(region string) string { return server.URL }),
		WithRetryConfig(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}),
	)

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateTestCredential(),
		Model:      "claude-opus-4-5",
		Body:       chatBody(t),
	})
	require.NoError(t, resp.Err)
	require.EqualValues(t, 2, atomic.LoadInt32(&attempts))
}

func TestGenerateMarksUnhealthyImmediatelyOn403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"forbidden"}`))
	}))
	defer server.Close()

	var markedImmediate bool
	a := NewAdapter(
		WithEndpoints(func(region, model string) string { return server.URL }, func(region string) string { return server.URL }),
		WithUnhealthyMarker(nil, func(cred *credential.Credential, errMsg string) { markedImmediate = true }),
	)

	resp := a.Generate(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateTestCredential(),
		Model:      "claude-opus-4-5",
		Body:       chatBody(t),
	})
	require.Error(t, resp.Err)
	require.True(t, markedImmediate)
}

func TestStreamSuccessPathEmitsSSE(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":"streamed text"}`))
	}))
	defer server.Close()

	a := NewAdapter(WithEndpoints(
		func(region, model string) string { return server.URL },
		func(region string) string { return server.URL },
	))

	resp := a.Stream(provider.Request{
		Ctx:        context.Background(),
		Credential: newGenerateTestCredential(),
		Model:      "claude-opus-4-5",
		Body:       chatBody(t),
	})
	require.NoError(t, resp.Err)
	body, err := provider.ReadAll(resp.Resp)
	require.NoError(t, err)
	require.Contains(t, string(body), "event: message_start")
	require.Contains(t, string(body), "streamed text")
	require.Contains(t, string(body), "event: message_stop")
}
