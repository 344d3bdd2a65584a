package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm"
)

// chunkStream builds an SSE body from raw data payloads.
func chunkStream(payloads ...string) io.Reader {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return strings.NewReader(b.String())
}

// drain pulls events until the terminal one.
func drain(d llm.StreamDecoder) []llm.StreamEvent {
	var events []llm.StreamEvent
	for {
		ev := d.Next()
		events = append(events, ev)
		if ev.Terminal() {
			return events
		}
	}
}

var _ = Describe("Provider", func() {
	provider := New()

	Describe("NewRequest", func() {
		profile := config.Profile{
			UpstreamModel: "deepseek-r1",
			BaseURL:       "https://api.deepseek.com/chat/completions",
			APIKey:        "sk-test",
		}

		It("builds an authenticated streaming request", func() {
			req, err := provider.NewRequest(context.Background(), profile, &llm.ChatRequest{
				Model:    "r1",
				Messages: []llm.ReqMessage{{Role: "user", Content: "hi"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Method).To(Equal("POST"))
			Expect(req.URL.String()).To(Equal(profile.BaseURL))
			Expect(req.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(req.Header.Get("Accept")).To(Equal("text/event-stream"))

			body, err := io.ReadAll(req.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"model":"deepseek-r1"`))
			Expect(string(body)).To(ContainSubstring(`"stream":true`))
			Expect(string(body)).To(ContainSubstring(`"include_usage":true`))
		})

		It("passes sampling options through unmapped", func() {
			req, err := provider.NewRequest(context.Background(), profile, &llm.ChatRequest{
				Model:    "r1",
				Messages: []llm.ReqMessage{{Role: "user", Content: "hi"}},
				Options:  map[string]json.RawMessage{"temperature": json.RawMessage("0.2")},
			})
			Expect(err).NotTo(HaveOccurred())

			body, err := io.ReadAll(req.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"temperature":0.2`))
		})

		It("never lets options override the model", func() {
			req, err := provider.NewRequest(context.Background(), profile, &llm.ChatRequest{
				Model:    "r1",
				Messages: []llm.ReqMessage{{Role: "user", Content: "hi"}},
				Options:  map[string]json.RawMessage{"model": json.RawMessage(`"evil"`)},
			})
			Expect(err).NotTo(HaveOccurred())

			body, err := io.ReadAll(req.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`"model":"deepseek-r1"`))
		})
	})

	Describe("Decoder", func() {
		It("decodes reasoning_content and content fields", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"reasoning_content":"let me think"}}]}`,
				`{"choices":[{"delta":{"content":"Hello"}}]}`,
				`{"choices":[{"delta":{"content":" world"},"finish_reason":"stop"}]}`,
				`[DONE]`,
			))

			events := drain(d)
			Expect(events).To(HaveLen(4))
			Expect(events[0].Kind).To(Equal(llm.EventReasoning))
			Expect(events[0].Text).To(Equal("let me think"))
			Expect(events[1].Text).To(Equal("Hello"))
			Expect(events[2].Text).To(Equal(" world"))
			Expect(events[3].Kind).To(Equal(llm.EventFinish))
			Expect(events[3].FinishReason).To(Equal("stop"))
		})

		It("splits inline think tags into reasoning events", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"<think>pondering"}}]}`,
				`{"choices":[{"delta":{"content":" deeply</think>answer"}}]}`,
				`[DONE]`,
			))

			events := drain(d)
			Expect(events[0].Kind).To(Equal(llm.EventReasoning))
			Expect(events[0].Text).To(Equal("pondering"))
			Expect(events[1].Kind).To(Equal(llm.EventReasoning))
			Expect(events[1].Text).To(Equal(" deeply"))
			Expect(events[2].Kind).To(Equal(llm.EventContent))
			Expect(events[2].Text).To(Equal("answer"))
		})

		It("matches think tags split across chunk boundaries", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"<th"}}]}`,
				`{"choices":[{"delta":{"content":"ink>hidden</th"}}]}`,
				`{"choices":[{"delta":{"content":"ink>visible"}}]}`,
				`[DONE]`,
			))

			var reasoning, content strings.Builder
			for _, ev := range drain(d) {
				switch ev.Kind {
				case llm.EventReasoning:
					reasoning.WriteString(ev.Text)
				case llm.EventContent:
					content.WriteString(ev.Text)
				}
			}
			Expect(reasoning.String()).To(Equal("hidden"))
			Expect(content.String()).To(Equal("visible"))
		})

		It("flushes an unfinished partial tag as plain text at end of stream", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"text<th"},"finish_reason":"stop"}]}`,
				`[DONE]`,
			))

			var content strings.Builder
			for _, ev := range drain(d) {
				if ev.Kind == llm.EventContent {
					content.WriteString(ev.Text)
				}
			}
			Expect(content.String()).To(Equal("text<th"))
		})

		It("decodes tool call fragments", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"tool_calls":[{"id":"call_1","function":{"name":"get_weather","arguments":"{\"city\":\"Oslo\"}"}}]}}]}`,
				`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
				`[DONE]`,
			))

			events := drain(d)
			Expect(events[0].Kind).To(Equal(llm.EventToolCall))
			Expect(events[0].ToolCall.Name).To(Equal("get_weather"))
			Expect(events[0].ToolCall.Argument).To(Equal(`{"city":"Oslo"}`))
			Expect(events[1].FinishReason).To(Equal("tool_calls"))
		})

		It("captures usage from the trailing usage-only chunk", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"hi"},"finish_reason":"stop"}]}`,
				`{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
				`[DONE]`,
			))

			events := drain(d)
			final := events[len(events)-1]
			Expect(final.Kind).To(Equal(llm.EventFinish))
			Expect(final.Usage).NotTo(BeNil())
			Expect(final.Usage.PromptTokens).To(Equal(12))
			Expect(final.Usage.CompletionTokens).To(Equal(3))
		})

		It("treats end of stream after finish_reason as a normal finish", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"done"},"finish_reason":"stop"}]}`,
			))

			events := drain(d)
			final := events[len(events)-1]
			Expect(final.Kind).To(Equal(llm.EventFinish))
			Expect(final.FinishReason).To(Equal("stop"))
		})

		It("reports an early close when the stream ends without finish", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"par"}}]}`,
			))

			events := drain(d)
			final := events[len(events)-1]
			Expect(final.Kind).To(Equal(llm.EventError))
			Expect(errors.Is(final.Err, llm.ErrUpstreamClosedEarly)).To(BeTrue())
		})

		It("reports malformed JSON as a terminal decode error", func() {
			d := provider.NewDecoder(chunkStream(
				`{"choices":[{"delta":{"content":"ok"}}]}`,
				`{not json`,
			))

			events := drain(d)
			Expect(events[0].Text).To(Equal("ok"))
			final := events[len(events)-1]
			Expect(final.Kind).To(Equal(llm.EventError))
			Expect(errors.Is(final.Err, llm.ErrUpstreamMalformed)).To(BeTrue())
		})

		It("repeats the terminal event on further calls", func() {
			d := provider.NewDecoder(chunkStream(`[DONE]`))

			first := d.Next()
			Expect(first.Kind).To(Equal(llm.EventFinish))
			Expect(d.Next()).To(Equal(first))
		})
	})
})
