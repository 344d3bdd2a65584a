package llm

import "time"

// RespMessage is the incremental message payload of an outbound frame.
// Reasoning text travels in Thinking, answer text in Content; the two are
// never mixed within one frame.
type RespMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`

	ToolCalls []ReqToolCall `json:"tool_calls,omitempty"`
}

// StreamFrame is one newline-delimited JSON object of the canonical
// streaming response. The final frame of an exchange carries Done=true, the
// finish reason, and the eval counters; every other frame carries exactly
// one message increment. See
// https://github.com/ollama/ollama/blob/main/docs/api.md#response-10
type StreamFrame struct {
	Model     string      `json:"model"`
	CreatedAt string      `json:"created_at"`
	Message   RespMessage `json:"message"`
	Done      bool        `json:"done"`

	DoneReason string `json:"done_reason,omitempty"`

	// Eval counters, populated on the final frame from provider usage.
	TotalDuration   int64 `json:"total_duration,omitempty"`
	LoadDuration    int64 `json:"load_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
	EvalDuration    int64 `json:"eval_duration,omitempty"`
}

// ErrorFrame is the single terminal frame emitted when an exchange fails.
// Kind is one of the ErrorKind names so clients can distinguish upstream
// failure from their own misuse.
type ErrorFrame struct {
	Model string `json:"model,omitempty"`
	Error string `json:"error"`
	Kind  string `json:"error_kind"`
	Done  bool   `json:"done"`
}

// ChatResponse is the non-streaming response body: the whole exchange
// collapsed into one message.
type ChatResponse struct {
	Model     string      `json:"model"`
	CreatedAt string      `json:"created_at"`
	Message   RespMessage `json:"message"`
	Done      bool        `json:"done"`

	DoneReason string `json:"done_reason,omitempty"`

	TotalDuration   int64 `json:"total_duration,omitempty"`
	PromptEvalCount int   `json:"prompt_eval_count,omitempty"`
	EvalCount       int   `json:"eval_count,omitempty"`
	EvalDuration    int64 `json:"eval_duration,omitempty"`
}

// Timestamp formats t the way Ollama stamps frames (RFC 3339, nanoseconds).
func Timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
