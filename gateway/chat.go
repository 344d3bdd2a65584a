package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/unillm/unillm/gateway/encode"
	"github.com/unillm/unillm/gateway/exchange"
	"github.com/unillm/unillm/gateway/governor"
	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/llm"
	"github.com/unillm/unillm/pkg/llm/provider"
)

// handleChat serves POST /api/chat: resolve the model to a profile, open
// the upstream stream, and run the decode → reassemble → pace → encode
// pipeline. Non-streaming clients get the same pipeline with the frames
// collapsed into a single response.
func (g *Gateway) handleChat(c *fiber.Ctx) error {
	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorFrame{
			Error: "invalid request body",
			Kind:  "bad_request",
			Done:  true,
		})
	}
	if req.Model == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorFrame{
			Error: "model is required",
			Kind:  "bad_request",
			Done:  true,
		})
	}

	profile, err := g.store.Profile(req.Model)
	if err != nil {
		g.logger.Warn("unknown model requested", zap.String("model", req.Model))
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorFrame{
			Model: req.Model,
			Error: err.Error(),
			Kind:  llm.ErrorKind(err),
			Done:  true,
		})
	}
	prov := g.providers[profile.Format]

	// The exchange outlives the handler on the streaming path because
	// fasthttp recycles its RequestCtx after the handler returns, so the
	// pipeline runs on a detached context. Cancellation happens through
	// the consumer side when the client goes away.
	ctx, cancel := context.WithTimeout(context.Background(), g.config.upstreamTimeout())

	httpReq, err := prov.NewRequest(ctx, profile, &req)
	if err != nil {
		cancel()
		g.logger.Error("failed to build upstream request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorFrame{
			Model: profile.ModelID,
			Error: "internal error",
			Kind:  "internal",
			Done:  true,
		})
	}

	g.logger.Debug("dispatching exchange",
		zap.String("model", profile.ModelID),
		zap.String("format", profile.Format),
		zap.Bool("streaming", req.Streaming()),
		zap.Int("message_count", len(req.Messages)),
	)

	httpResp, err := g.clientFor(profile).Do(httpReq)
	if err != nil {
		cancel()
		g.logger.Error("upstream request failed",
			zap.String("model", profile.ModelID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorFrame{
			Model: profile.ModelID,
			Error: "upstream request failed",
			Kind:  llm.ErrorKind(llm.ErrUpstreamTransport),
			Done:  true,
		})
	}
	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		cancel()
		g.logger.Error("upstream returned error",
			zap.String("model", profile.ModelID),
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(body)),
		)
		return c.Status(httpResp.StatusCode).JSON(llm.ErrorFrame{
			Model: profile.ModelID,
			Error: strings.TrimSpace(string(body)),
			Kind:  llm.ErrorKind(llm.ErrUpstreamTransport),
			Done:  true,
		})
	}

	if !req.Streaming() {
		return g.aggregate(c, cancel, httpResp, prov, profile)
	}
	return g.stream(ctx, cancel, c, httpResp, prov, profile)
}

// stream runs the pipeline across two goroutines joined by the governor:
// the producer decodes upstream bytes into deltas, the consumer encodes
// deltas into client frames. The pipe write blocks until fasthttp flushes
// to the socket, so a slow client backs pressure all the way to the
// upstream read loop.
func (g *Gateway) stream(ctx context.Context, cancel context.CancelFunc, c *fiber.Ctx, httpResp *http.Response, prov provider.Provider, profile config.Profile) error {
	x := exchange.New(profile.ModelID)
	gov := governor.New(governor.Config{
		QueueSize: g.config.QueueSize,
		Logger:    g.logger,
	})

	pr, pw := io.Pipe()
	go g.produce(ctx, httpResp, prov, x, gov)
	go g.consume(ctx, cancel, pw, x.Model(), gov)

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	// Unknown size (-1) triggers chunked transfer encoding; each pipe read
	// is flushed to the TCP socket before the next write can proceed.
	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// produce is the upstream side of one exchange: decode events, fold them
// through the reassembler, and offer the released deltas to the governor.
// A blocked Offer stops this loop from reading upstream bytes; a cancelled
// context ends it within one queue-poll cycle.
func (g *Gateway) produce(ctx context.Context, httpResp *http.Response, prov provider.Provider, x *exchange.Exchange, gov *governor.Governor) {
	// Close, never pool: a partially-read provider stream cannot be
	// resumed mid-frame.
	defer httpResp.Body.Close()
	defer gov.CloseSend()

	start := time.Now()
	dec := prov.NewDecoder(httpResp.Body)
	for {
		ev := dec.Next()
		for _, d := range x.Apply(ev) {
			if err := gov.Offer(ctx, d); err != nil {
				g.logger.Debug("exchange cancelled mid-stream",
					zap.String("exchange", x.ID()),
					zap.String("model", x.Model()),
					zap.Error(err),
				)
				return
			}
		}
		if !ev.Terminal() {
			continue
		}

		if ev.Kind == llm.EventError {
			g.logger.Warn("exchange ended with upstream error",
				zap.String("exchange", x.ID()),
				zap.String("model", x.Model()),
				zap.String("error_kind", llm.ErrorKind(ev.Err)),
				zap.Error(ev.Err),
			)
		} else {
			g.logger.Info("exchange complete",
				zap.String("exchange", x.ID()),
				zap.String("model", x.Model()),
				zap.String("finish_reason", ev.FinishReason),
				zap.Int("reasoning_chars", x.ReasoningChars()),
				zap.Int("content_chars", x.ContentChars()),
				zap.Duration("duration", time.Since(start)),
			)
		}
		return
	}
}

// consume is the client side of one exchange: drain the governor and write
// frames to the pipe. Any write failure means the client went away; the
// deferred cancel stops the producer and releases the upstream connection.
func (g *Gateway) consume(ctx context.Context, cancel context.CancelFunc, pw *io.PipeWriter, model string, gov *governor.Governor) {
	defer pw.Close()
	defer cancel()

	enc := encode.NewEncoder(pw, model)
	for {
		d, ok, err := gov.Next(ctx)
		if err != nil || !ok {
			return
		}
		// A client disconnect has no one left to tell.
		if d.Done && errors.Is(d.Err, llm.ErrClientDisconnected) {
			return
		}
		if err := enc.WriteDelta(d); err != nil {
			g.logger.Debug("client disconnected mid-stream",
				zap.String("model", model),
				zap.Error(err),
			)
			return
		}
		if d.Done {
			return
		}
	}
}

// aggregate serves a non-streaming client: the upstream is still consumed
// as a stream through the same reassembler, but the deltas collapse into
// one response body.
func (g *Gateway) aggregate(c *fiber.Ctx, cancel context.CancelFunc, httpResp *http.Response, prov provider.Provider, profile config.Profile) error {
	defer cancel()
	defer httpResp.Body.Close()

	start := time.Now()
	x := exchange.New(profile.ModelID)
	dec := prov.NewDecoder(httpResp.Body)

	var thinking, content strings.Builder
	var toolCalls []llm.ReqToolCall
	var final llm.Delta

	for {
		ev := dec.Next()
		for _, d := range x.Apply(ev) {
			switch {
			case d.Done:
				final = d
			case d.Kind == llm.DeltaReasoning:
				thinking.WriteString(d.Text)
			case d.Kind == llm.DeltaToolCall:
				toolCalls = append(toolCalls, encode.ToolCallMessage(d.ToolCall))
			default:
				content.WriteString(d.Text)
			}
		}
		if ev.Terminal() {
			break
		}
	}

	if final.Err != nil {
		g.logger.Warn("exchange ended with upstream error",
			zap.String("exchange", x.ID()),
			zap.String("model", x.Model()),
			zap.String("error_kind", llm.ErrorKind(final.Err)),
			zap.Error(final.Err),
		)
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorFrame{
			Model: profile.ModelID,
			Error: final.Err.Error(),
			Kind:  llm.ErrorKind(final.Err),
			Done:  true,
		})
	}

	g.logger.Info("exchange complete",
		zap.String("exchange", x.ID()),
		zap.String("model", x.Model()),
		zap.String("finish_reason", final.FinishReason),
		zap.Int("reasoning_chars", x.ReasoningChars()),
		zap.Int("content_chars", x.ContentChars()),
		zap.Duration("duration", time.Since(start)),
	)

	resp := llm.ChatResponse{
		Model:     profile.ModelID,
		CreatedAt: llm.Timestamp(time.Now()),
		Message: llm.RespMessage{
			Role:      "assistant",
			Content:   content.String(),
			Thinking:  thinking.String(),
			ToolCalls: toolCalls,
		},
		Done:          true,
		DoneReason:    final.FinishReason,
		TotalDuration: time.Since(start).Nanoseconds(),
	}
	if final.Usage != nil {
		resp.PromptEvalCount = final.Usage.PromptTokens
		resp.EvalCount = final.Usage.CompletionTokens
	}
	return c.JSON(resp)
}
