// Package llm defines the provider-agnostic data model shared by the
// decoding, reassembly and encoding stages of the gateway: raw provider
// stream events, normalized deltas, and the canonical Ollama-shaped wire
// types emitted to clients.
package llm

// EventKind discriminates the decode unit produced per upstream chunk.
type EventKind int

const (
	// EventReasoning carries a fragment of chain-of-thought text.
	EventReasoning EventKind = iota

	// EventContent carries a fragment of answer text.
	EventContent

	// EventToolCall carries a structured tool invocation fragment.
	EventToolCall

	// EventFinish terminates the stream normally.
	EventFinish

	// EventError terminates the stream abnormally.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReasoning:
		return "reasoning"
	case EventContent:
		return "content"
	case EventToolCall:
		return "tool_call"
	case EventFinish:
		return "finish"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is a single decode unit from one upstream chunk. A decoder
// produces a finite sequence of events terminating with exactly one
// EventFinish or EventError; events are immutable once produced and are
// consumed exactly once by the reassembler.
type StreamEvent struct {
	Kind EventKind

	// Text is the fragment payload for EventReasoning and EventContent.
	Text string

	// ToolCall is set for EventToolCall.
	ToolCall *ToolCall

	// FinishReason is set on EventFinish (e.g. "stop", "length", "tool_calls").
	FinishReason string

	// Usage is set on EventFinish when the provider reported token counts.
	Usage *Usage

	// Err is set on EventError. It wraps one of the sentinel errors in
	// errors.go so callers can classify the failure with errors.Is.
	Err error
}

// Terminal reports whether no further events follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventFinish || e.Kind == EventError
}

// ReasoningEvent builds an EventReasoning fragment.
func ReasoningEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventReasoning, Text: text}
}

// ContentEvent builds an EventContent fragment.
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventContent, Text: text}
}

// FinishEvent builds a terminal EventFinish with an optional usage report.
func FinishEvent(reason string, usage *Usage) StreamEvent {
	return StreamEvent{Kind: EventFinish, FinishReason: reason, Usage: usage}
}

// ErrorEvent builds a terminal EventError.
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Kind: EventError, Err: err}
}

// StreamDecoder yields the normalized event sequence for one upstream
// response body. The sequence is lazy, finite and non-restartable: it
// terminates with exactly one EventFinish or EventError, after which Next
// keeps returning that terminal event.
type StreamDecoder interface {
	Next() StreamEvent
}
