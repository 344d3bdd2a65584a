// Package openaicompat decodes the OpenAI-compatible chat completion wire
// format spoken by DeepSeek, Aliyun, Tencent, ByteDance and SiliconFlow:
// SSE chunks carrying choice deltas, terminated by a "[DONE]" sentinel.
//
// Reasoning text arrives two ways depending on the provider: a dedicated
// "reasoning_content" delta field, or inline in "content" wrapped in
// <think>...</think> tags. Both map to reasoning events; the tag form is
// split statefully because tags can straddle chunk boundaries.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm"
	"github.com/unillm/unillm/pkg/sse"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// Provider speaks the OpenAI-compatible chat completion protocol.
type Provider struct{}

// New returns the OpenAI-compatible provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return config.FormatOpenAI
}

// NewRequest builds the upstream chat completion request. Sampling options
// from the inbound request are merged into the body unmapped, so clients can
// pass temperature, top_p and friends straight through.
func (p *Provider) NewRequest(ctx context.Context, profile config.Profile, req *llm.ChatRequest) (*http.Request, error) {
	body := chatRequest{
		Model:         profile.UpstreamModel,
		Messages:      make([]message, 0, len(req.Messages)),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		Tools:         req.Tools,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, message{Role: m.Role, Content: m.Content})
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %w", err)
	}
	if len(req.Options) > 0 {
		raw, err = mergeOptions(raw, req.Options)
		if err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, profile.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if profile.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+profile.APIKey)
	}
	return httpReq, nil
}

// mergeOptions splices inbound sampling options into the marshaled request
// body. Fields the gateway sets itself (model, messages, stream) win.
func mergeOptions(body []byte, opts map[string]json.RawMessage) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("failed to merge request options: %w", err)
	}
	for k, v := range opts {
		if _, reserved := m[k]; !reserved {
			m[k] = v
		}
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to merge request options: %w", err)
	}
	return merged, nil
}

// NewDecoder wraps a live SSE response body.
func (p *Provider) NewDecoder(body io.Reader) llm.StreamDecoder {
	return &decoder{reader: sse.NewReader(body)}
}

// decoder turns the SSE chunk stream into normalized events. It keeps a
// small pending queue because a single chunk can fan out into several
// events (e.g. content split around a think tag).
type decoder struct {
	reader  *sse.Reader
	pending []llm.StreamEvent
	done    *llm.StreamEvent

	finishReason string
	sawFinish    bool
	usage        *llm.Usage

	// thinking and carry track in-content <think> tag state across chunks.
	thinking bool
	carry    string
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

		event, err := d.reader.Next()
		if err != nil {
			d.terminate(llm.ErrorEvent(fmt.Errorf("%w: %v", llm.ErrUpstreamTransport, err)))
			continue
		}
		if event == nil {
			// Stream ended without [DONE]. Providers that omit the
			// sentinel still send a finish_reason, so only treat the
			// close as abnormal when no finish was seen.
			d.flushCarry()
			if d.sawFinish {
				d.terminate(llm.FinishEvent(d.finishReason, d.usage))
			} else {
				d.terminate(llm.ErrorEvent(llm.ErrUpstreamClosedEarly))
			}
			continue
		}

		data := strings.TrimSpace(event.Data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			d.flushCarry()
			reason := d.finishReason
			if reason == "" {
				reason = "stop"
			}
			d.terminate(llm.FinishEvent(reason, d.usage))
			continue
		}

		var chunk apiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			d.terminate(llm.ErrorEvent(fmt.Errorf("%w: %v", llm.ErrUpstreamMalformed, err)))
			continue
		}
		d.apply(&chunk)
	}
}

// apply fans one parsed chunk out into pending events.
func (d *decoder) apply(chunk *apiResponse) {
	if chunk.Usage != nil {
		d.usage = chunk.Usage.toUsage()
	}
	for i := range chunk.Choices {
		c := &chunk.Choices[i]
		if c.FinishReason != nil && *c.FinishReason != "" {
			d.finishReason = *c.FinishReason
			d.sawFinish = true
		}
		p := c.payload()
		if p == nil {
			continue
		}
		if p.ReasoningContent != "" {
			d.pending = append(d.pending, llm.ReasoningEvent(p.ReasoningContent))
		}
		if p.Content != "" {
			d.splitContent(p.Content)
		}
		for _, tc := range p.ToolCalls {
			d.pending = append(d.pending, llm.StreamEvent{
				Kind: llm.EventToolCall,
				ToolCall: &llm.ToolCall{
					ID:       tc.ID,
					Name:     tc.Function.Name,
					Argument: tc.Function.Arguments,
				},
			})
		}
	}
}

// splitContent routes content text to reasoning or content events based on
// <think> tag state. A partial tag at the end of a fragment is carried over
// so tags split across chunk boundaries still match.
func (d *decoder) splitContent(text string) {
	d.carry += text
	for d.carry != "" {
		tag := thinkOpen
		if d.thinking {
			tag = thinkClose
		}

		if idx := strings.Index(d.carry, tag); idx >= 0 {
			d.emitText(d.carry[:idx])
			d.carry = d.carry[idx+len(tag):]
			d.thinking = !d.thinking
			continue
		}

		keep := partialTagSuffix(d.carry, tag)
		d.emitText(d.carry[:len(d.carry)-keep])
		d.carry = d.carry[len(d.carry)-keep:]
		return
	}
}

// emitText queues a non-empty fragment under the current tag state.
func (d *decoder) emitText(text string) {
	if text == "" {
		return
	}
	if d.thinking {
		d.pending = append(d.pending, llm.ReasoningEvent(text))
	} else {
		d.pending = append(d.pending, llm.ContentEvent(text))
	}
}

// flushCarry drains a held partial-tag fragment at end of stream; a tag that
// never completed is ordinary text.
func (d *decoder) flushCarry() {
	text := d.carry
	d.carry = ""
	d.emitText(text)
}

// terminate records the terminal event; Next keeps returning it once the
// pending queue drains.
func (d *decoder) terminate(ev llm.StreamEvent) {
	if d.done == nil {
		d.done = &ev
	}
}

// partialTagSuffix returns the length of the longest strict prefix of tag
// that s ends with, i.e. how many trailing bytes might become a tag once the
// next fragment arrives.
func partialTagSuffix(s, tag string) int {
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return k
		}
	}
	return 0
}
