// Package provider implements the per-upstream wire decoders. Each provider
// variant knows one chunk-framing rule (SSE or NDJSON) and one field mapping
// (which fields carry reasoning vs. answer text), and turns a live upstream
// byte stream into a flat sequence of normalized stream events.
//
// Decoding is purely syntactic: malformed chunks and early connection closes
// surface as a terminal error event, never as a retry.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm"
	"github.com/unillm/unillm/pkg/llm/provider/gemini"
	"github.com/unillm/unillm/pkg/llm/provider/ollama"
	"github.com/unillm/unillm/pkg/llm/provider/openaicompat"
)

// Decoder is the per-exchange event source consumed by the reassembler.
type Decoder = llm.StreamDecoder

// Provider binds one upstream wire format: it builds the authenticated
// outbound request for an exchange and decodes the response byte stream.
type Provider interface {
	// Name returns the wire format name ("openai", "gemini", "ollama").
	Name() string

	// NewRequest builds the upstream HTTP request for one exchange using
	// the resolved profile. The request always asks for a streamed
	// response; the gateway aggregates when the client asked for a
	// non-streaming one.
	NewRequest(ctx context.Context, profile config.Profile, req *llm.ChatRequest) (*http.Request, error)

	// NewDecoder wraps a live upstream response body.
	NewDecoder(body io.Reader) llm.StreamDecoder
}

// SupportedFormats returns the list of all supported wire format names.
func SupportedFormats() []string {
	return []string{config.FormatOpenAI, config.FormatGemini, config.FormatOllama}
}

// New creates the Provider for the given wire format.
// Returns an error if the format is not recognized.
func New(format string) (Provider, error) {
	switch format {
	case config.FormatOpenAI:
		return openaicompat.New(), nil
	case config.FormatGemini:
		return gemini.New(), nil
	case config.FormatOllama:
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("unknown wire format: %q (supported: %v)", format, SupportedFormats())
	}
}
