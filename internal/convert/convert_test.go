package convert

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestConvert_ThinkingAndText(t *testing.T) {
	raw := json.RawMessage(`{
		"candidates": [{
			"content": {"parts": [
				{"text": "I am thinking...", "thought": true, "thoughtSignature": "sig_0123456789012345678901234567890123456789012345678901234567890"},
				{"text": "Here is the result."}
			]},
			"finishReason": "STOP"
		}]
	}`)

	out := Convert(raw, "claude-3-5-sonnet-20241022", nil)

	if len(out.Content) != 2 {
		t.Fatalf("len(content) = %d, want 2", len(out.Content))
	}
	if out.Content[0].Type != "thinking" || out.Content[0].Thinking != "I am thinking..." {
		t.Errorf("block 0 = %+v", out.Content[0])
	}
	if out.Content[0].Signature == "" {
		t.Error("expected thinking block signature to be preserved")
	}
	if out.Content[1].Type != "text" || out.Content[1].Text != "Here is the result." {
		t.Errorf("block 1 = %+v", out.Content[1])
	}
	if out.StopReason != "end_turn" {
		t.Errorf("stop_reason = %q, want end_turn", out.StopReason)
	}
}

func TestConvert_ToolCallWithoutID(t *testing.T) {
	raw := json.RawMessage(`{
		"candidates": [{
			"content": {"parts": [
				{"functionCall": {"name": "test_tool", "args": {}}}
			]},
			"finishReason": "STOP"
		}]
	}`)

	out := Convert(raw, "claude-3-5-sonnet-20241022", nil)

	if len(out.Content) != 1 || out.Content[0].Type != "tool_use" {
		t.Fatalf("content = %+v", out.Content)
	}
	if !strings.HasPrefix(out.Content[0].ID, "toolu_") {
		t.Errorf("id = %q, want toolu_ prefix", out.Content[0].ID)
	}
	if out.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q, want tool_use", out.StopReason)
	}
}

func TestConvert_UsageSubtraction(t *testing.T) {
	raw := json.RawMessage(`{
		"candidates": [{"content": {"parts": [{"text": "ok"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"promptTokenCount": 1000, "cachedContentTokenCount": 400, "candidatesTokenCount": 50}
	}`)

	out := Convert(raw, "gemini-1.5-pro", nil)

	want := Usage{InputTokens: 600, CacheReadInputTokens: 400, OutputTokens: 50}
	if out.Usage != want {
		t.Errorf("usage = %+v, want %+v", out.Usage, want)
	}
}

func TestConvert_EmptyCandidatesIsWellFormed(t *testing.T) {
	raw := json.RawMessage(`{"candidates": []}`)
	out := Convert(raw, "claude-3-5-sonnet-20241022", nil)

	if len(out.Content) < 1 {
		t.Fatal("expected at least one content block for empty candidates")
	}
	if out.Type != "message" || out.Role != "assistant" {
		t.Errorf("envelope = %+v", out)
	}
}

func TestConvert_UnwrapsResponseWrapper(t *testing.T) {
	raw := json.RawMessage(`{"response": {"candidates": [{"content": {"parts": [{"text": "hi"}]}, "finishReason": "STOP"}]}}`)
	out := Convert(raw, "m", nil)

	if len(out.Content) != 1 || out.Content[0].Text != "hi" {
		t.Errorf("content = %+v", out.Content)
	}
}

func TestConvert_InlineDataBecomesImageBlock(t *testing.T) {
	raw := json.RawMessage(`{
		"candidates": [{"content": {"parts": [
			{"inlineData": {"mimeType": "image/png", "data": "Zm9v"}}
		]}, "finishReason": "STOP"}]
	}`)

	out := Convert(raw, "m", nil)

	if len(out.Content) != 1 || out.Content[0].Type != "image" {
		t.Fatalf("content = %+v", out.Content)
	}
	if out.Content[0].Source == nil || out.Content[0].Source.MediaType != "image/png" {
		t.Errorf("source = %+v", out.Content[0].Source)
	}
}

func TestConvert_MaxTokensStopReason(t *testing.T) {
	raw := json.RawMessage(`{"candidates": [{"content": {"parts": [{"text": "partial"}]}, "finishReason": "MAX_TOKENS"}]}`)
	out := Convert(raw, "m", nil)

	if out.StopReason != "max_tokens" {
		t.Errorf("stop_reason = %q, want max_tokens", out.StopReason)
	}
}

func TestSignatureCache_BoundedEviction(t *testing.T) {
	cache := NewSignatureCache(2)
	cache.Put("a")
	cache.Put("b")
	cache.Put("c")

	if cache.cache.Len() > 2 {
		t.Errorf("len = %d, want <= 2", cache.cache.Len())
	}
	if !cache.cache.Contains("c") {
		t.Error("expected most recently added signature to be present")
	}
}
