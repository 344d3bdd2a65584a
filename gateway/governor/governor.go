// Package governor regulates delta flow between the upstream decode loop
// and the client write loop of one exchange. A small bounded queue is the
// only synchronization point between the two: a full queue blocks the
// producer, which stops upstream reads until the client drains; an empty
// queue blocks the consumer. Deltas are never dropped or reordered.
package governor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unillm/unillm/pkg/llm"
)

// DefaultQueueSize bounds buffered deltas per exchange. Counted in deltas,
// not bytes, to keep memory predictable across providers with very
// different fragment sizes.
const DefaultQueueSize = 32

// Config carries the per-exchange governor settings.
type Config struct {
	// QueueSize overrides DefaultQueueSize when positive.
	QueueSize int

	Logger *zap.Logger
}

// Decision is the per-delta emission verdict. It is recomputed every time a
// delta reaches the head of the queue and never persisted.
type Decision struct {
	// EmitNow is true when the delta should be handed to the encoder
	// without waiting.
	EmitNow bool

	// Delay is the hold time before emission when EmitNow is false.
	Delay time.Duration
}

// Governor is the single-producer single-consumer delta conduit of one
// exchange. Offer is called only from the decode loop, Next only from the
// write loop.
type Governor struct {
	queue  chan llm.Delta
	logger *zap.Logger
}

// New builds a governor for one exchange.
func New(cfg Config) *Governor {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		queue:  make(chan llm.Delta, size),
		logger: logger,
	}
}

// Offer enqueues a delta, blocking while the queue is full. A blocked Offer
// is the backpressure mechanism: the caller's upstream read loop stops
// pulling bytes until the client catches up. Returns the context error when
// the exchange is cancelled while blocked.
func (g *Governor) Offer(ctx context.Context, d llm.Delta) error {
	select {
	case g.queue <- d:
		return nil
	default:
	}

	// Queue full: the client is slower than the upstream.
	g.logger.Debug("delta queue full, throttling upstream reads",
		zap.Uint64("seq", d.Seq))

	select {
	case g.queue <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend marks the end of the delta stream. No Offer may follow.
func (g *Governor) CloseSend() {
	close(g.queue)
}

// Next dequeues the next delta, honoring its pacing decision before
// returning it. The second return is false once the stream is closed and
// drained. Returns the context error when the exchange is cancelled while
// waiting.
func (g *Governor) Next(ctx context.Context) (llm.Delta, bool, error) {
	var d llm.Delta
	var ok bool

	select {
	case d, ok = <-g.queue:
		if !ok {
			return llm.Delta{}, false, nil
		}
	case <-ctx.Done():
		return llm.Delta{}, false, ctx.Err()
	}

	if dec := g.decide(d); !dec.EmitNow {
		timer := time.NewTimer(dec.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return llm.Delta{}, false, ctx.Err()
		}
	}
	return d, true, nil
}

// decide computes the emission verdict for one delta. The current policy
// never injects artificial delay: a client that keeps up is never slowed
// down, and a slow client is throttled by the bounded queue itself.
func (g *Governor) decide(d llm.Delta) Decision {
	if d.Done {
		// Terminal deltas always flush immediately.
		return Decision{EmitNow: true}
	}
	return Decision{EmitNow: true}
}
