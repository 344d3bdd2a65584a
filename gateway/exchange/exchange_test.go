package exchange

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unillm/unillm/pkg/llm"
)

// feed applies a whole event sequence and collects the released deltas.
func feed(x *Exchange, events ...llm.StreamEvent) []llm.Delta {
	var deltas []llm.Delta
	for _, ev := range events {
		deltas = append(deltas, x.Apply(ev)...)
	}
	return deltas
}

var _ = Describe("Exchange", func() {
	var x *Exchange

	BeforeEach(func() {
		x = New("test-model")
	})

	It("assigns a unique id per exchange", func() {
		Expect(x.ID()).NotTo(BeEmpty())
		Expect(New("test-model").ID()).NotTo(Equal(x.ID()))
	})

	It("coalesces reasoning into one block released at the first answer token", func() {
		deltas := feed(x,
			llm.ReasoningEvent("first "),
			llm.ReasoningEvent("second"),
			llm.ContentEvent("Hello"),
			llm.FinishEvent("stop", nil),
		)

		Expect(deltas).To(HaveLen(3))
		Expect(deltas[0].Kind).To(Equal(llm.DeltaReasoning))
		Expect(deltas[0].Text).To(Equal("first second"))
		Expect(deltas[0].ReasoningDone).To(BeTrue())
		Expect(deltas[1].Kind).To(Equal(llm.DeltaContent))
		Expect(deltas[1].Text).To(Equal("Hello"))
		Expect(deltas[2].Done).To(BeTrue())
		Expect(deltas[2].FinishReason).To(Equal("stop"))
	})

	It("forwards content immediately when there is no reasoning", func() {
		deltas := feed(x, llm.ContentEvent("Hi"))
		Expect(deltas).To(HaveLen(1))
		Expect(deltas[0].Kind).To(Equal(llm.DeltaContent))
		Expect(deltas[0].Seq).To(Equal(uint64(0)))
	})

	It("releases a reasoning-only exchange at finish", func() {
		deltas := feed(x,
			llm.ReasoningEvent("only thoughts"),
			llm.FinishEvent("stop", nil),
		)

		Expect(deltas).To(HaveLen(2))
		Expect(deltas[0].Kind).To(Equal(llm.DeltaReasoning))
		Expect(deltas[0].Text).To(Equal("only thoughts"))
		Expect(deltas[1].Done).To(BeTrue())
	})

	It("stamps gapless strictly increasing sequence numbers", func() {
		deltas := feed(x,
			llm.ReasoningEvent("r"),
			llm.ContentEvent("a"),
			llm.ContentEvent("b"),
			llm.FinishEvent("stop", nil),
		)

		for i, d := range deltas {
			Expect(d.Seq).To(Equal(uint64(i)))
		}
	})

	It("emits exactly one terminal delta", func() {
		deltas := feed(x,
			llm.ContentEvent("a"),
			llm.FinishEvent("stop", nil),
		)

		terminal := 0
		for _, d := range deltas {
			if d.Done {
				terminal++
			}
		}
		Expect(terminal).To(Equal(1))
		Expect(x.Terminated()).To(BeTrue())
	})

	It("ignores events after the terminal delta", func() {
		feed(x, llm.ContentEvent("a"), llm.FinishEvent("stop", nil))
		Expect(x.Apply(llm.ContentEvent("late"))).To(BeNil())
		Expect(x.Apply(llm.FinishEvent("stop", nil))).To(BeNil())
	})

	It("folds stray reasoning after content into content", func() {
		deltas := feed(x,
			llm.ContentEvent("answer"),
			llm.ReasoningEvent("stray"),
			llm.FinishEvent("stop", nil),
		)

		Expect(deltas).To(HaveLen(3))
		Expect(deltas[1].Kind).To(Equal(llm.DeltaContent))
		Expect(deltas[1].Text).To(Equal("stray"))
		for _, d := range deltas {
			Expect(d.Kind).NotTo(Equal(llm.DeltaReasoning))
		}
	})

	It("closes the reasoning block before a tool call", func() {
		deltas := feed(x,
			llm.ReasoningEvent("plan"),
			llm.StreamEvent{Kind: llm.EventToolCall, ToolCall: &llm.ToolCall{Name: "lookup", Argument: "{}"}},
			llm.FinishEvent("tool_calls", nil),
		)

		Expect(deltas).To(HaveLen(3))
		Expect(deltas[0].Kind).To(Equal(llm.DeltaReasoning))
		Expect(deltas[1].Kind).To(Equal(llm.DeltaToolCall))
		Expect(deltas[1].ToolCall.Name).To(Equal("lookup"))
		Expect(deltas[2].FinishReason).To(Equal("tool_calls"))
	})

	It("flushes buffered reasoning before a terminal error", func() {
		boom := errors.New("upstream gone")
		deltas := feed(x,
			llm.ReasoningEvent("half a thought"),
			llm.ErrorEvent(boom),
		)

		Expect(deltas).To(HaveLen(2))
		Expect(deltas[0].Kind).To(Equal(llm.DeltaReasoning))
		Expect(deltas[0].Text).To(Equal("half a thought"))
		Expect(deltas[1].Done).To(BeTrue())
		Expect(deltas[1].Err).To(MatchError(boom))
	})

	It("carries finish usage on the terminal delta", func() {
		usage := &llm.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10}
		deltas := feed(x,
			llm.ContentEvent("hi"),
			llm.FinishEvent("stop", usage),
		)

		final := deltas[len(deltas)-1]
		Expect(final.Usage).To(Equal(usage))
	})

	It("tracks reasoning and content sizes for the exchange log line", func() {
		feed(x,
			llm.ReasoningEvent("12345"),
			llm.ContentEvent("123"),
			llm.FinishEvent("stop", nil),
		)

		Expect(x.ReasoningChars()).To(Equal(5))
		Expect(x.ContentChars()).To(Equal(3))
	})
})
