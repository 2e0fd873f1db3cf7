package providers

import "context"

// Message is a single chat-completions exchange unit. Content is either a
// plain string or a []ContentPart for multimodal (text + image) messages.
type Message struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ContentPart is one element of a multimodal content list.
type ContentPart struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	ImageURL     *ImageURL     `json:"image_url,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// CacheControl marks a content part as eligible for provider-side prefix
// caching. Performance hint only, never changes semantics.
type CacheControl struct {
	Type string `json:"type"`
}

// ToolCall carries both the wire form (ID/Type/Function, as serialized into
// assistant messages) and the normalized form (Name/Arguments, decoded from
// the model response).
type ToolCall struct {
	ID       string        `json:"id"`
	Type     string        `json:"type,omitempty"`
	Function *FunctionCall `json:"function,omitempty"`

	Name      string         `json:"-"`
	Arguments map[string]any `json:"-"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolDefinition struct {
	Type     string                 `json:"type"`
	Function ToolFunctionDefinition `json:"function"`
}

type ToolFunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// LLMResponse is a normalized completions result. FinishReason is "error"
// when the request itself failed, with Content carrying the error text.
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Provider is the LLM client boundary used by the agent loop. Chat never
// returns a Go error: transport and protocol failures are normalized into a
// response with FinishReason "error" so the loop has a single handling path.
type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, cacheIndices []int) *LLMResponse
}

// TextContent extracts the text of a message content value for logging and
// history inspection. Multimodal contents yield their concatenated text parts.
func TextContent(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []ContentPart:
		text := ""
		for _, part := range c {
			if part.Type == "text" {
				text += part.Text
			}
		}
		return text
	default:
		return ""
	}
}
