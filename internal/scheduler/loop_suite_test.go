package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Loop", func() {
	var (
		clock  *fakeClock
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		clock = newFakeClock(epoch)
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
	})

	AfterEach(func() {
		cancel()
	})

	start := func(loop *Loop) {
		go func() {
			defer GinkgoRecover()
			done <- loop.Run(ctx)
		}()
	}

	Context("when repeating", func() {
		It("goes Idle, Running, Idle and never overlaps passes", func() {
			var running, maxRunning, runs atomic.Int32
			release := make(chan struct{})

			loop := NewLoop(Config{Repeat: true, RunOnStart: true, Interval: time.Hour}, func(context.Context) {
				n := running.Add(1)
				if n > maxRunning.Load() {
					maxRunning.Store(n)
				}
				runs.Add(1)
				<-release
				running.Add(-1)
			}, WithClock(clock))
			start(loop)

			By("running the first pass immediately")
			Eventually(running.Load).Should(Equal(int32(1)))

			By("deferring a tick that falls due during the pass")
			clock.Advance(2 * time.Hour)
			Consistently(runs.Load, 20*time.Millisecond).Should(Equal(int32(1)))

			By("returning to Idle once the pass completes")
			release <- struct{}{}
			Eventually(clock.Waiters).Should(Equal(1))
			Expect(running.Load()).To(Equal(int32(0)))

			By("running again on the next tick")
			clock.Advance(time.Hour)
			Eventually(runs.Load).Should(Equal(int32(2)))
			release <- struct{}{}
			Eventually(clock.Waiters).Should(Equal(1))

			Expect(maxRunning.Load()).To(Equal(int32(1)))
		})

		It("lets an in-flight pass finish on shutdown and starts no other", func() {
			var runs atomic.Int32
			var sawCancel atomic.Bool

			loop := NewLoop(Config{Repeat: true, RunOnStart: true, Interval: time.Hour}, func(ctx context.Context) {
				runs.Add(1)
				<-ctx.Done()
				sawCancel.Store(true)
			}, WithClock(clock))
			start(loop)

			Eventually(runs.Load).Should(Equal(int32(1)))
			cancel()

			Eventually(done).Should(Receive(BeNil()))
			Expect(sawCancel.Load()).To(BeTrue())
			Expect(runs.Load()).To(Equal(int32(1)))
		})

		It("exits cleanly while idle", func() {
			loop := NewLoop(Config{Repeat: true, Interval: time.Hour}, func(context.Context) {
				Fail("no pass should run before the first tick")
			}, WithClock(clock))
			start(loop)

			Eventually(clock.Waiters).Should(Equal(1))
			cancel()
			Eventually(done).Should(Receive(BeNil()))
		})
	})

	Context("when not repeating", func() {
		It("runs exactly one pass and returns", func() {
			var runs atomic.Int32
			loop := NewLoop(Config{Interval: time.Hour}, func(context.Context) { runs.Add(1) }, WithClock(clock))
			start(loop)

			Eventually(done).Should(Receive(BeNil()))
			Expect(runs.Load()).To(Equal(int32(1)))
			Expect(clock.Waiters()).To(BeZero())
		})
	})
})
