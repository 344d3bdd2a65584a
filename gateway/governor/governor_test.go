package governor

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unillm/unillm/pkg/llm"
)

var _ = Describe("Governor", func() {
	It("passes deltas through in order", func() {
		g := New(Config{QueueSize: 4})
		ctx := context.Background()

		go func() {
			defer GinkgoRecover()
			for i := 0; i < 3; i++ {
				Expect(g.Offer(ctx, llm.Delta{Seq: uint64(i)})).To(Succeed())
			}
			g.CloseSend()
		}()

		for i := 0; i < 3; i++ {
			d, ok, err := g.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(d.Seq).To(Equal(uint64(i)))
		}

		_, ok, err := g.Next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("blocks the producer when the queue is full and resumes after a drain", func() {
		g := New(Config{QueueSize: 2})
		ctx := context.Background()

		var offered atomic.Int64
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			for i := 0; i < 5; i++ {
				Expect(g.Offer(ctx, llm.Delta{Seq: uint64(i)})).To(Succeed())
				offered.Add(1)
			}
		}()

		// Only the queue capacity fits while the consumer stalls.
		Eventually(offered.Load).Should(Equal(int64(2)))
		Consistently(offered.Load, 100*time.Millisecond).Should(Equal(int64(2)))

		// Draining one slot unblocks exactly one pending Offer.
		_, ok, err := g.Next(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Eventually(offered.Load).Should(Equal(int64(3)))

		for i := 0; i < 4; i++ {
			_, ok, err := g.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		}
		Eventually(done).Should(BeClosed())
	})

	It("releases a blocked producer on cancellation", func() {
		g := New(Config{QueueSize: 1})
		ctx, cancel := context.WithCancel(context.Background())

		Expect(g.Offer(ctx, llm.Delta{Seq: 0})).To(Succeed())

		errCh := make(chan error, 1)
		go func() {
			errCh <- g.Offer(ctx, llm.Delta{Seq: 1})
		}()

		Consistently(errCh, 50*time.Millisecond).ShouldNot(Receive())
		cancel()
		Eventually(errCh).Should(Receive(MatchError(context.Canceled)))
	})

	It("releases a blocked consumer on cancellation", func() {
		g := New(Config{QueueSize: 1})
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() {
			_, _, err := g.Next(ctx)
			errCh <- err
		}()

		Consistently(errCh, 50*time.Millisecond).ShouldNot(Receive())
		cancel()
		Eventually(errCh).Should(Receive(MatchError(context.Canceled)))
	})

	It("defaults the queue size", func() {
		g := New(Config{})
		Expect(cap(g.queue)).To(Equal(DefaultQueueSize))
	})
})
