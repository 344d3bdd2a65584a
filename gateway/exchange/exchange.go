// Package exchange reassembles the flat event stream of one chat exchange
// into ordered deltas. It enforces the output contract the encoder relies
// on: gapless strictly-increasing sequence numbers, reasoning coalesced
// into a single block that always precedes answer content, and exactly one
// terminal delta per exchange.
package exchange

import (
	"strings"

	"github.com/google/uuid"

	"github.com/unillm/unillm/pkg/llm"
)

type phase int

const (
	// phaseAwaitingFirst is the state before any token arrived.
	phaseAwaitingFirst phase = iota

	// phaseReasoning buffers chain-of-thought fragments until the first
	// answer token or the end of the stream closes the block.
	phaseReasoning

	// phaseContent forwards answer fragments as they arrive. Reasoning is
	// over for good once this state is entered.
	phaseContent

	// phaseTerminal absorbs anything after the terminal delta.
	phaseTerminal
)

// Exchange tracks the reassembly state of one request/response pair.
// Not safe for concurrent use; each exchange lives on a single goroutine.
type Exchange struct {
	id    string
	model string

	phase     phase
	seq       uint64
	reasoning strings.Builder

	reasoningChars int
	contentChars   int
}

// New starts an exchange for the given exposed model id.
func New(model string) *Exchange {
	return &Exchange{
		id:    uuid.NewString(),
		model: model,
	}
}

// ID returns the exchange's correlation id.
func (x *Exchange) ID() string { return x.id }

// Model returns the exposed model id the client asked for.
func (x *Exchange) Model() string { return x.model }

// Terminated reports whether the terminal delta has been emitted.
func (x *Exchange) Terminated() bool { return x.phase == phaseTerminal }

// ReasoningChars returns the total reasoning text length seen so far.
func (x *Exchange) ReasoningChars() int { return x.reasoningChars }

// ContentChars returns the total answer text length seen so far.
func (x *Exchange) ContentChars() int { return x.contentChars }

// Apply folds one decoded event into the exchange and returns the deltas it
// releases, in emission order. Most events release zero or one delta; the
// event that closes the reasoning block releases two. After the terminal
// delta, Apply returns nil for any further events.
func (x *Exchange) Apply(ev llm.StreamEvent) []llm.Delta {
	if x.phase == phaseTerminal {
		return nil
	}

	switch ev.Kind {
	case llm.EventReasoning:
		return x.applyReasoning(ev.Text)
	case llm.EventContent:
		return x.applyContent(ev.Text)
	case llm.EventToolCall:
		return x.applyToolCall(ev.ToolCall)
	case llm.EventFinish:
		return x.applyFinish(ev.FinishReason, ev.Usage)
	case llm.EventError:
		return x.applyError(ev.Err)
	default:
		return nil
	}
}

func (x *Exchange) applyReasoning(text string) []llm.Delta {
	x.reasoningChars += len(text)

	// A provider that interleaves reasoning after answer text has already
	// started violates the block ordering; fold the stray fragment into
	// content rather than reopen a closed block.
	if x.phase == phaseContent {
		x.contentChars += len(text)
		return []llm.Delta{x.next(llm.Delta{Kind: llm.DeltaContent, Text: text})}
	}

	x.phase = phaseReasoning
	x.reasoning.WriteString(text)
	return nil
}

func (x *Exchange) applyContent(text string) []llm.Delta {
	x.contentChars += len(text)
	deltas := x.closeReasoning()
	x.phase = phaseContent
	return append(deltas, x.next(llm.Delta{Kind: llm.DeltaContent, Text: text}))
}

func (x *Exchange) applyToolCall(tc *llm.ToolCall) []llm.Delta {
	deltas := x.closeReasoning()
	x.phase = phaseContent
	return append(deltas, x.next(llm.Delta{Kind: llm.DeltaToolCall, ToolCall: tc}))
}

func (x *Exchange) applyFinish(reason string, usage *llm.Usage) []llm.Delta {
	deltas := x.closeReasoning()
	x.phase = phaseTerminal
	return append(deltas, x.next(llm.Delta{
		Kind:         llm.DeltaContent,
		Done:         true,
		FinishReason: reason,
		Usage:        usage,
	}))
}

func (x *Exchange) applyError(err error) []llm.Delta {
	deltas := x.closeReasoning()
	x.phase = phaseTerminal
	return append(deltas, x.next(llm.Delta{
		Kind: llm.DeltaContent,
		Done: true,
		Err:  err,
	}))
}

// closeReasoning flushes the buffered reasoning block as one coalesced
// delta. Returns nil when no reasoning was buffered.
func (x *Exchange) closeReasoning() []llm.Delta {
	if x.phase != phaseReasoning || x.reasoning.Len() == 0 {
		return nil
	}
	block := x.reasoning.String()
	x.reasoning.Reset()
	return []llm.Delta{x.next(llm.Delta{
		Kind:          llm.DeltaReasoning,
		Text:          block,
		ReasoningDone: true,
	})}
}

// next stamps the delta with the exchange's sequence counter.
func (x *Exchange) next(d llm.Delta) llm.Delta {
	d.Seq = x.seq
	x.seq++
	return d
}
