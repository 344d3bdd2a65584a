package llm

import "encoding/json"

// ChatRequest is the inbound chat-completion request in the canonical
// (Ollama-compatible) schema. See
// https://github.com/ollama/ollama/blob/main/docs/api.md#generate-a-chat-completion
type ChatRequest struct {
	Model    string       `json:"model"`
	Messages []ReqMessage `json:"messages"`
	Tools    []Tool       `json:"tools,omitempty"`

	// Format constrains the output shape; forwarded opaquely.
	Format json.RawMessage `json:"format,omitempty"`

	// Options carries sampling parameters (temperature, top_p, ...) which
	// are merged into the upstream request body unmapped.
	Options map[string]json.RawMessage `json:"options,omitempty"`

	// Stream defaults to true when omitted, matching Ollama semantics.
	Stream *bool `json:"stream,omitempty"`

	KeepAlive string `json:"keep_alive,omitempty"`
}

// Streaming reports whether the client requested a streamed response.
// Ollama streams by default when the field is omitted.
func (r *ChatRequest) Streaming() bool {
	if r.Stream == nil {
		return true
	}
	return *r.Stream
}

// ReqMessage is one conversation message in an inbound request.
type ReqMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Images    []string      `json:"images,omitempty"`
	ToolCalls []ReqToolCall `json:"tool_calls,omitempty"`
}

// ReqToolCall is a prior tool invocation echoed back by the client.
type ReqToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function payload of a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes one declared function.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}
