// Package convert implements the Response Converter: translating Google's
// CodeAssist generateContent response shape into an Anthropic-style message
// envelope so chat-completion clients see a consistent API (spec §4.6).
package convert

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
)

// ContentBlock is one element of an Anthropic message's content array. Only
// the fields relevant to its Type are populated.
type ContentBlock struct {
	Type            string          `json:"type"`
	Text            string          `json:"text,omitempty"`
	Thinking        string          `json:"thinking,omitempty"`
	Signature       string          `json:"signature,omitempty"`
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name,omitempty"`
	Input           json.RawMessage `json:"input,omitempty"`
	ThoughtSignature string         `json:"thoughtSignature,omitempty"`
	Source          *ImageSource    `json:"source,omitempty"`
}

// ImageSource carries an inline base64 image per Anthropic's content shape.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Usage mirrors Anthropic's token accounting fields.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
	OutputTokens         int `json:"output_tokens"`
}

// AnthropicResponse is the fixed envelope every conversion produces.
type AnthropicResponse struct {
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// googlePart mirrors one entry of candidates[0].content.parts.
type googlePart struct {
	Text             string          `json:"text,omitempty"`
	Thought          bool            `json:"thought,omitempty"`
	ThoughtSignature string          `json:"thoughtSignature,omitempty"`
	FunctionCall     *googleFuncCall `json:"functionCall,omitempty"`
	InlineData       *googleInline   `json:"inlineData,omitempty"`
}

type googleFuncCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type googleInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type googleCandidate struct {
	Content struct {
		Parts []googlePart `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type googleUsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
}

type googleResponse struct {
	Candidates    []googleCandidate    `json:"candidates"`
	UsageMetadata *googleUsageMetadata `json:"usageMetadata"`
}

type wrappedResponse struct {
	Response *googleResponse `json:"response"`
}

// Convert translates a raw Google response (already-unwrapped or wrapped in
// {response: ...}) into an Anthropic-style envelope. It is total: any input
// with a candidates array, even empty, yields a well-formed result with at
// least one content block (spec §8's converter-totality property).
func Convert(raw json.RawMessage, modelName string, cache *SignatureCache) AnthropicResponse {
	resp := unwrap(raw)

	out := AnthropicResponse{
		Type:  "message",
		Role:  "assistant",
		Model: modelName,
	}

	if resp.UsageMetadata != nil {
		input := resp.UsageMetadata.PromptTokenCount - resp.UsageMetadata.CachedContentTokenCount
		if input < 0 {
			input = 0
		}
		out.Usage = Usage{
			InputTokens:          input,
			CacheReadInputTokens: resp.UsageMetadata.CachedContentTokenCount,
			OutputTokens:         resp.UsageMetadata.CandidatesTokenCount,
		}
	}

	if len(resp.Candidates) == 0 {
		out.Content = []ContentBlock{{Type: "text", Text: ""}}
		out.StopReason = "end_turn"
		return out
	}

	candidate := resp.Candidates[0]
	sawToolUse := false

	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			block := convertFunctionCall(part, cache)
			out.Content = append(out.Content, block)
			sawToolUse = true
		case part.InlineData != nil:
			out.Content = append(out.Content, ContentBlock{
				Type: "image",
				Source: &ImageSource{
					Type:      "base64",
					MediaType: part.InlineData.MimeType,
					Data:      part.InlineData.Data,
				},
			})
		case part.Thought:
			block := ContentBlock{Type: "thinking", Thinking: part.Text}
			if part.ThoughtSignature != "" {
				block.Signature = part.ThoughtSignature
				if cache != nil {
					cache.Put(part.ThoughtSignature)
				}
			}
			out.Content = append(out.Content, block)
		default:
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: part.Text})
		}
	}

	if len(out.Content) == 0 {
		out.Content = []ContentBlock{{Type: "text", Text: ""}}
	}

	out.StopReason = mapStopReason(candidate.FinishReason, sawToolUse)
	return out
}

func convertFunctionCall(part googlePart, cache *SignatureCache) ContentBlock {
	id := part.FunctionCall.ID
	if id == "" {
		id = "toolu_" + randomHex(24)
	}

	input := part.FunctionCall.Args
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	block := ContentBlock{
		Type:  "tool_use",
		ID:    id,
		Name:  part.FunctionCall.Name,
		Input: input,
	}
	if part.ThoughtSignature != "" {
		block.ThoughtSignature = part.ThoughtSignature
		if cache != nil {
			cache.Put(part.ThoughtSignature)
		}
	}
	return block
}

func mapStopReason(finishReason string, sawToolUse bool) string {
	if sawToolUse {
		return "tool_use"
	}
	switch finishReason {
	case "STOP":
		return "end_turn"
	case "MAX_TOKENS":
		return "max_tokens"
	case "TOOL_USE":
		return "tool_use"
	default:
		return "end_turn"
	}
}

func unwrap(raw json.RawMessage) *googleResponse {
	var wrapped wrappedResponse
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Response != nil {
		return wrapped.Response
	}

	var resp googleResponse
	_ = json.Unmarshal(raw, &resp)
	return &resp
}

func randomHex(n int) string {
	buf := make([]byte, n/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
