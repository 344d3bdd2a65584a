package llm

// DeltaKind discriminates the payload of a normalized delta.
type DeltaKind int

const (
	// DeltaReasoning is a contiguous block of chain-of-thought text.
	DeltaReasoning DeltaKind = iota

	// DeltaContent is a fragment of answer text.
	DeltaContent

	// DeltaToolCall is a structured tool invocation.
	DeltaToolCall
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaReasoning:
		return "reasoning"
	case DeltaContent:
		return "content"
	case DeltaToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// Delta is the reassembler's output unit. Within one exchange, sequence
// numbers are gapless and strictly increasing, no DeltaReasoning ever
// follows the first DeltaContent, and exactly one delta has Done set.
type Delta struct {
	// Seq is the position of this delta within its exchange, starting at 0.
	Seq uint64

	Kind DeltaKind
	Text string

	// ToolCall is set for DeltaToolCall.
	ToolCall *ToolCall

	// ReasoningDone marks the delta that closes the exchange's reasoning
	// block. The reassembler coalesces buffered reasoning into a single
	// delta, so at most one delta carries this flag.
	ReasoningDone bool

	// Done marks the terminal delta of the exchange. FinishReason, Usage
	// and Err are only meaningful when Done is set.
	Done         bool
	FinishReason string
	Usage        *Usage

	// Err is the terminal error when the exchange ended abnormally.
	Err error
}

// ToolCall is a structured tool invocation emitted by the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Argument string `json:"arguments"`
}

// Usage contains token counts reported by the upstream provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
