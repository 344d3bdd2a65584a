package openaicompat

import (
	"github.com/unillm/unillm/pkg/llm"
)

// chatRequest is the OpenAI-compatible chat completion request body.
// See https://api-docs.deepseek.com/api/create-chat-completion
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`

	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Tools         []llm.Tool     `json:"tools,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// apiResponse is one streamed chunk. The final usage-only chunk some
// providers emit has an empty choices array.
type apiResponse struct {
	Choices []choice   `json:"choices"`
	Usage   *usageJSON `json:"usage"`
}

type choice struct {
	// Streaming responses carry "delta"; non-streaming ones carry
	// "message" with the same shape. Both are decoded here so the final
	// chunk of providers that inline the full message still parses.
	Delta        *delta  `json:"delta"`
	Message      *delta  `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

func (c *choice) payload() *delta {
	if c.Delta != nil {
		return c.Delta
	}
	return c.Message
}

type delta struct {
	Role             string          `json:"role"`
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content"`
	ToolCalls        []toolCallDelta `json:"tool_calls"`
}

type toolCallDelta struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type usageJSON struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usageJSON) toUsage() *llm.Usage {
	if u == nil {
		return nil
	}
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	return &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      total,
	}
}
