// Package gemini decodes the Google Gemini streamGenerateContent wire
// format: SSE chunks carrying candidate content parts, with thought parts
// flagged explicitly and no end-of-stream sentinel.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm"
	"github.com/unillm/unillm/pkg/sse"
)

// Provider speaks the Gemini generateContent protocol.
type Provider struct{}

// New returns the Gemini provider.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Name() string {
	return config.FormatGemini
}

// NewRequest builds the upstream streaming request. System messages move to
// the system_instruction field; assistant turns map to the "model" role.
func (p *Provider) NewRequest(ctx context.Context, profile config.Profile, req *llm.ChatRequest) (*http.Request, error) {
	body := generateRequest{}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if body.SystemInstruction == nil {
				body.SystemInstruction = &content{}
			}
			body.SystemInstruction.Parts = append(body.SystemInstruction.Parts, part{Text: m.Content})
		case "assistant":
			body.Contents = append(body.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal upstream request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		strings.TrimSuffix(profile.BaseURL, "/"),
		profile.UpstreamModel,
		url.QueryEscape(profile.APIKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	return httpReq, nil
}

// NewDecoder wraps a live SSE response body.
func (p *Provider) NewDecoder(body io.Reader) llm.StreamDecoder {
	return &decoder{reader: sse.NewReader(body)}
}

type decoder struct {
	reader  *sse.Reader
	pending []llm.StreamEvent
	done    *llm.StreamEvent

	finishReason string
	sawFinish    bool
	usage        *llm.Usage
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
			// Gemini has no [DONE] sentinel; a finishReason on the last
			// candidate is the normal termination signal.
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
		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			d.terminate(llm.ErrorEvent(fmt.Errorf("%w: %v", llm.ErrUpstreamMalformed, err)))
			continue
		}
		d.apply(&chunk)
	}
}

func (d *decoder) apply(chunk *generateResponse) {
	if chunk.UsageMetadata != nil {
		d.usage = chunk.UsageMetadata.toUsage()
	}
	for _, c := range chunk.Candidates {
		for _, p := range c.Content.Parts {
			if p.Text == "" {
				continue
			}
			if p.Thought {
				d.pending = append(d.pending, llm.ReasoningEvent(p.Text))
			} else {
				d.pending = append(d.pending, llm.ContentEvent(p.Text))
			}
		}
		if c.FinishReason != "" {
			d.finishReason = normalizeFinishReason(c.FinishReason)
			d.sawFinish = true
		}
	}
}

func (d *decoder) terminate(ev llm.StreamEvent) {
	if d.done == nil {
		d.done = &ev
	}
}

// normalizeFinishReason maps Gemini's upper-case reasons onto the canonical
// lower-case vocabulary shared with the other providers.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return strings.ToLower(reason)
	}
}
