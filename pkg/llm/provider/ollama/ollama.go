// Package ollama decodes the native Ollama /api/chat wire format: one JSON
// object per line, with a done flag on the terminal frame. Used to front
// other Ollama instances, so the inbound request forwards nearly verbatim
// with only the model name swapped.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm"
)

// Provider speaks the native Ollama chat protocol.
type Provider struct{}

// New returns the Ollama provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return config.FormatOllama
}

// NewRequest forwards the inbound request to the upstream /api/chat with the
// exposed model id replaced by the upstream model name. Streaming is forced;
// aggregation for non-streaming clients happens downstream.
func (p *Provider) NewRequest(ctx context.Context, profile config.Profile, req *llm.ChatRequest) (*http.Request, error) {
	stream := true
	upstream := *req
	upstream.Model = profile.UpstreamModel
	upstream.Stream = &stream

	raw, err := json.Marshal(&upstream)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %w", err)
	}

	endpoint := strings.TrimSuffix(profile.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if profile.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+profile.APIKey)
	}
	return httpReq, nil
}

// NewDecoder wraps a live NDJSON response body.
func (p *Provider) NewDecoder(body io.Reader) llm.StreamDecoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &decoder{scanner: scanner}
}

// chatFrame is one NDJSON line from the upstream.
type chatFrame struct {
	Message struct {
		Content   string `json:"content"`
		Thinking  string `json:"thinking"`
		ToolCalls []struct {
			Function struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type decoder struct {
	scanner *bufio.Scanner
	pending []llm.StreamEvent
	done    *llm.StreamEvent
}

func (d *decoder) Next() llm.StreamEvent {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev
		}
		if d.done != nil {
			return *d.done
		}

		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				d.terminate(llm.ErrorEvent(fmt.Errorf("%w: %v", llm.ErrUpstreamTransport, err)))
			} else {
				d.terminate(llm.ErrorEvent(llm.ErrUpstreamClosedEarly))
			}
			continue
		}

		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		var frame chatFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			d.terminate(llm.ErrorEvent(fmt.Errorf("%w: %v", llm.ErrUpstreamMalformed, err)))
			continue
		}
		d.apply(&frame)
	}
}

func (d *decoder) apply(frame *chatFrame) {
	if frame.Message.Thinking != "" {
		d.pending = append(d.pending, llm.ReasoningEvent(frame.Message.Thinking))
	}
	if frame.Message.Content != "" {
		d.pending = append(d.pending, llm.ContentEvent(frame.Message.Content))
	}
	for _, tc := range frame.Message.ToolCalls {
		d.pending = append(d.pending, llm.StreamEvent{
			Kind: llm.EventToolCall,
			ToolCall: &llm.ToolCall{
				Name:     tc.Function.Name,
				Argument: string(tc.Function.Arguments),
			},
		})
	}
	if frame.Done {
		reason := frame.DoneReason
		if reason == "" {
			reason = "stop"
		}
		var usage *llm.Usage
		if frame.PromptEvalCount > 0 || frame.EvalCount > 0 {
			usage = &llm.Usage{
				PromptTokens:     frame.PromptEvalCount,
				CompletionTokens: frame.EvalCount,
				TotalTokens:      frame.PromptEvalCount + frame.EvalCount,
			}
		}
		d.terminate(llm.FinishEvent(reason, usage))
	}
}

func (d *decoder) terminate(ev llm.StreamEvent) {
	if d.done == nil {
		d.done = &ev
	}
}
