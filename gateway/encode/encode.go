// Package encode serializes normalized deltas into the canonical outbound
// wire format: one JSON object per line, flushed per frame. Encoding is a
// pure mapping; ordering, pacing and error policy are decided upstream.
package encode

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/unillm/unillm/pkg/llm"
)

// Encoder writes the frame stream of one exchange. Each delta becomes
// exactly one frame, written in a single Write call so every frame reaches
// the client as soon as it is produced.
type Encoder struct {
	w       io.Writer
	model   string
	started time.Time

	now func() time.Time
}

// NewEncoder builds the frame encoder for one exchange.
func NewEncoder(w io.Writer, model string) *Encoder {
	return &Encoder{
		w:       w,
		model:   model,
		started: time.Now(),
		now:     time.Now,
	}
}

// WriteDelta maps one delta onto its wire frame and writes it. A write
// failure means the client went away and is reported as
// ErrClientDisconnected.
func (e *Encoder) WriteDelta(d llm.Delta) error {
	if d.Done && d.Err != nil {
		return e.writeFrame(llm.ErrorFrame{
			Model: e.model,
			Error: d.Err.Error(),
			Kind:  llm.ErrorKind(d.Err),
			Done:  true,
		})
	}

	frame := llm.StreamFrame{
		Model:     e.model,
		CreatedAt: llm.Timestamp(e.now()),
		Message:   llm.RespMessage{Role: "assistant"},
		Done:      d.Done,
	}

	switch {
	case d.Done:
		frame.DoneReason = d.FinishReason
		frame.TotalDuration = e.now().Sub(e.started).Nanoseconds()
		if d.Usage != nil {
			frame.PromptEvalCount = d.Usage.PromptTokens
			frame.EvalCount = d.Usage.CompletionTokens
		}
	case d.Kind == llm.DeltaReasoning:
		frame.Message.Thinking = d.Text
	case d.Kind == llm.DeltaToolCall:
		frame.Message.ToolCalls = []llm.ReqToolCall{ToolCallMessage(d.ToolCall)}
	default:
		frame.Message.Content = d.Text
	}
	return e.writeFrame(frame)
}

// WriteError emits a terminal error frame directly, for failures detected
// before any delta was produced.
func (e *Encoder) WriteError(err error) error {
	return e.writeFrame(llm.ErrorFrame{
		Model: e.model,
		Error: err.Error(),
		Kind:  llm.ErrorKind(err),
		Done:  true,
	})
}

func (e *Encoder) writeFrame(frame any) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	// One Write per frame: the transport flushes per call, so frames are
	// never held back by buffering.
	if _, err := e.w.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrClientDisconnected, err)
	}
	return nil
}

// ToolCallMessage converts an internal tool call to its wire shape. Provider
// argument payloads are JSON objects already; anything else is carried as a
// JSON string.
func ToolCallMessage(tc *llm.ToolCall) llm.ReqToolCall {
	args := json.RawMessage(tc.Argument)
	if !json.Valid(args) {
		quoted, _ := json.Marshal(tc.Argument)
		args = quoted
	}
	return llm.ReqToolCall{
		ID:   tc.ID,
		Type: "function",
		Function: llm.FunctionCall{
			Name:      tc.Name,
			Arguments: args,
		},
	}
}
