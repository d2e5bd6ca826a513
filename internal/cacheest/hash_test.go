package cacheest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticPrefixHashIsStableAndOrderSensitiveOnlyToContent(t *testing.T) {
	req := &Request{
		Model:  "claude-sonnet-4",
		System: []SystemBlock{{Type: "text", Text: "be helpful"}},
		Tools:  []Tool{{Name: "search", Description: "web search", InputSchema: json.RawMessage(`{"type":"object"}`)}},
	}
	h1 := staticPrefixHash(req)
	h2 := staticPrefixHash(req)
	require.Equal(t, h1, h2)

	req.System[0].Text = "be extremely helpful"
	require.NotEqual(t, h1, staticPrefixHash(req))
}

func TestStaticPrefixHashIgnoresMessages(t *testing.T) {
	req := &Request{Model: "claude-sonnet-4", Messages: []Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hi"}}}}}
	h1 := staticPrefixHash(req)
	req.Messages[0].Content[0].Text = "something entirely different"
	require.Equal(t, h1, staticPrefixHash(req), "the static prefix hash must not depend on message content")
}

func TestMessageContentHashDetectsTextChanges(t *testing.T) {
	m := Message{Role: "user", Content: []ContentBlock{{Type: "text", Text: "hello"}}}
	h1 := messageContentHash(m, ToolResultStrict)
	m.Content[0].Text = "goodbye"
	require.NotEqual(t, h1, messageContentHash(m, ToolResultStrict))
}

func TestMessageContentHashIgnoresVolatileFields(t *testing.T) {
	a := Message{Role: "assistant", Content: []ContentBlock{{Type: "tool_use", ID: "call-1", Name: "search", Input: json.RawMessage(`{"q":"a"}`)}}}
	b := Message{Role: "assistant", Content: []ContentBlock{{Type: "tool_use", ID: "call-2", Name: "search", Input: json.RawMessage(`{"q":"b"}`)}}}
	require.Equal(t, messageContentHash(a, ToolResultStrict), messageContentHash(b, ToolResultStrict), "tool_use id and input are volatile and must not affect the hash")
}

func TestMessageContentHashToolResultStrategies(t *testing.T) {
	a := Message{Role: "user", Content: []ContentBlock{{Type: "tool_result", ToolUseID: "call-1", Content: json.RawMessage(`"result A"`)}}}
	b := Message{Role: "user", Content: []ContentBlock{{Type: "tool_result", ToolUseID: "call-2", Content: json.RawMessage(`"result B"`)}}}

	require.NotEqual(t, messageContentHash(a, ToolResultStrict), messageContentHash(b, ToolResultStrict), "strict mode hashes full tool_result content")
	require.Equal(t, messageContentHash(a, ToolResultNameOnly), messageContentHash(b, ToolResultNameOnly), "name_only mode ignores tool_result content")
	require.Equal(t, messageContentHash(a, ToolResultIgnore), messageContentHash(b, ToolResultIgnore), "ignore mode drops tool_result blocks entirely")
}

func TestNormalizeTextMapsArrowGlyphsAndStripsControlChars(t *testing.T) {
	require.Equal(t, "a->b", normalizeText("a→b"))
	require.Equal(t, "ab", normalizeText("a\x01b"))
	require.Equal(t, "a\tb\nc", normalizeText("a\tb\nc"))
}

func TestNormalizeTextMapsPrivateUseAreaToPlaceholder(t *testing.T) {
	require.Equal(t, "a?b", normalizeText("ab"))
}

func TestImageFingerprintCondensesLongData(t *testing.T) {
	data := make([]byte, 0, 200)
	for i := 0; i < 200; i++ {
		data = append(data, byte('a'+i%26))
	}
	src := &ImageSource{Type: "base64", MediaType: "image/png", Data: string(data)}
	fp := imageFingerprint(src)
	require.Contains(t, fp, "img:200:")
	require.NotContains(t, fp, string(data), "the fingerprint must not embed the full payload")
}
