package router_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/admission-router/internal/router"
)

// failServers fails the listed servers on the first health sweep tick
// and no one afterwards.
type failServers struct {
	targets map[string]bool
}

func failOnly(ids ...string) *failServers {
	targets := make(map[string]bool, len(ids))
	for _, id := range ids {
		targets[id] = true
	}
	return &failServers{targets: targets}
}

func (f *failServers) ShouldFail(serverID string) bool {
	return f.targets[serverID]
}

var _ = Describe("LoadAware", func() {
	newRouter := func(capacities map[string]int, opts router.LoadAwareOptions) *router.LoadAware {
		if opts.FaultPolicy == nil {
			opts.FaultPolicy = router.NoFault()
		}
		la, err := router.NewLoadAware(capacities, opts, discardLogger(), nil)
		Expect(err).NotTo(HaveOccurred())
		return la
	}

	slowOpts := router.LoadAwareOptions{
		MinProcessing: time.Hour,
		MaxProcessing: time.Hour,
	}

	Describe("immediate placement", func() {
		It("should pick the server with the lowest resulting load ratio", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
				"web-03": 400,
			}, slowOpts)

			// 50/400 beats 50/150 and 50/100.
			result := la.Assign(50, router.DefaultPriority)
			Expect(result.Outcome).To(Equal(router.OutcomePlaced))
			Expect(result.Server).To(Equal("web-03"))
		})

		It("should not be swayed by absolute headroom", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-03": 400,
			}, slowOpts)

			Expect(la.Assign(200, router.DefaultPriority).Server).To(Equal("web-03"))
			// web-03 now at 200/400; a size-10 request lands better on
			// the empty small server (10/100 < 210/400).
			Expect(la.Assign(10, router.DefaultPriority).Server).To(Equal("web-01"))
		})

		It("should break ratio ties by fewer active requests", func() {
			la := newRouter(map[string]int{
				"web-01": 200,
				"web-02": 200,
			}, slowOpts)

			Expect(la.Assign(100, router.DefaultPriority).Server).To(Equal("web-01"))
			Expect(la.Assign(50, router.DefaultPriority).Server).To(Equal("web-02"))
			Expect(la.Assign(50, router.DefaultPriority).Server).To(Equal("web-02"))

			// Both at 120/200 after admitting 20, but web-01 carries one
			// active request against web-02's two.
			Expect(la.Assign(20, router.DefaultPriority).Server).To(Equal("web-01"))
		})

		It("should break full ties by server id", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 100,
			}, slowOpts)

			Expect(la.Assign(50, router.DefaultPriority).Server).To(Equal("web-01"))
		})

		It("should allocate monotonic request ids", func() {
			la := newRouter(map[string]int{"web-01": 100}, slowOpts)

			Expect(la.Assign(50, router.DefaultPriority).RequestID).To(Equal(uint64(1)))
			Expect(la.Assign(50, router.DefaultPriority).RequestID).To(Equal(uint64(2)))
			Expect(la.Assign(500, router.DefaultPriority).RequestID).To(Equal(uint64(3)))
		})
	})

	Describe("queueing", func() {
		It("should queue requests that fit nowhere and report the position", func() {
			la := newRouter(map[string]int{"web-01": 100}, slowOpts)

			first := la.Assign(500, router.DefaultPriority)
			Expect(first.Outcome).To(Equal(router.OutcomeQueued))
			Expect(first.QueuePosition).To(Equal(1))

			second := la.Assign(600, router.DefaultPriority)
			Expect(second.Outcome).To(Equal(router.OutcomeQueued))
			Expect(second.QueuePosition).To(Equal(2))

			Expect(la.QueueDepth()).To(Equal(2))
		})

		It("should keep a queued request out of every server's active set", func() {
			la := newRouter(map[string]int{"web-01": 100}, slowOpts)

			Expect(la.Assign(100, router.DefaultPriority).Outcome).To(Equal(router.OutcomePlaced))
			Expect(la.Assign(50, router.DefaultPriority).Outcome).To(Equal(router.OutcomeQueued))

			stats := la.Stats()["web-01"]
			Expect(stats.Load).To(Equal(100))
			Expect(stats.Active).To(Equal(1))
			Expect(la.QueueDepth()).To(Equal(1))
		})

		It("should place a queued request once capacity frees up", func() {
			la := newRouter(map[string]int{"web-01": 100}, router.LoadAwareOptions{
				MinProcessing: 30 * time.Millisecond,
				MaxProcessing: 30 * time.Millisecond,
			})

			placed := la.Assign(80, router.DefaultPriority)
			Expect(placed.Outcome).To(Equal(router.OutcomePlaced))

			queued := la.Assign(50, router.DefaultPriority)
			Expect(queued.Outcome).To(Equal(router.OutcomeQueued))

			Eventually(func() int {
				la.Sweep()
				return la.QueueDepth()
			}, time.Second, 10*time.Millisecond).Should(BeZero())

			Expect(la.Completed(placed.RequestID)).To(BeTrue())
			Expect(la.Stats()["web-01"].Load).To(Equal(50))
		})

		It("should admit pending requests in priority order", func() {
			la := newRouter(map[string]int{"web-01": 100}, router.LoadAwareOptions{
				MinProcessing:  30 * time.Millisecond,
				MaxProcessing:  30 * time.Millisecond,
				RequestTimeout: time.Hour,
			})

			Expect(la.Assign(100, router.DefaultPriority).Outcome).To(Equal(router.OutcomePlaced))

			// Queued before the urgent one but with a higher (less
			// urgent) priority value.
			Expect(la.Assign(70, 2).Outcome).To(Equal(router.OutcomeQueued))
			Expect(la.Assign(60, 1).Outcome).To(Equal(router.OutcomeQueued))

			Eventually(func() int {
				la.Sweep()
				return la.QueueDepth()
			}, time.Second, 10*time.Millisecond).Should(Equal(1))

			// The priority-1 request is offered the freed capacity
			// first; the size-70 request no longer fits.
			Expect(la.Stats()["web-01"].Load).To(Equal(60))
		})

		It("should keep FIFO order within equal priority", func() {
			la := newRouter(map[string]int{"web-01": 100}, router.LoadAwareOptions{
				MinProcessing:  30 * time.Millisecond,
				MaxProcessing:  30 * time.Millisecond,
				RequestTimeout: time.Hour,
			})

			Expect(la.Assign(100, router.DefaultPriority).Outcome).To(Equal(router.OutcomePlaced))
			Expect(la.Assign(70, 1).Outcome).To(Equal(router.OutcomeQueued))
			Expect(la.Assign(60, 1).Outcome).To(Equal(router.OutcomeQueued))

			Eventually(func() int {
				la.Sweep()
				return la.QueueDepth()
			}, time.Second, 10*time.Millisecond).Should(Equal(1))

			// The earlier arrival was offered capacity first.
			Expect(la.Stats()["web-01"].Load).To(Equal(70))
		})
	})

	Describe("deadline expiry", func() {
		It("should drop a queued request whose age exceeds the timeout", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
				"web-03": 400,
			}, router.LoadAwareOptions{
				MinProcessing:  time.Hour,
				MaxProcessing:  time.Hour,
				RequestTimeout: 50 * time.Millisecond,
			})

			result := la.Assign(500, router.DefaultPriority)
			Expect(result.Outcome).To(Equal(router.OutcomeQueued))

			time.Sleep(80 * time.Millisecond)
			la.Sweep()

			Expect(la.QueueDepth()).To(BeZero())
			Expect(la.Lost()).To(Equal(1))
			Expect(la.Completed(result.RequestID)).To(BeFalse())

			// Never placed anywhere.
			for _, stats := range la.Stats() {
				Expect(stats.Load).To(BeZero())
				Expect(stats.Active).To(BeZero())
			}
		})

		It("should not expire requests still within their deadline", func() {
			la := newRouter(map[string]int{"web-01": 100}, router.LoadAwareOptions{
				MinProcessing:  time.Hour,
				MaxProcessing:  time.Hour,
				RequestTimeout: time.Hour,
			})

			Expect(la.Assign(500, router.DefaultPriority).Outcome).To(Equal(router.OutcomeQueued))
			la.Sweep()
			Expect(la.QueueDepth()).To(Equal(1))
			Expect(la.Lost()).To(BeZero())
		})
	})

	Describe("health sweep", func() {
		It("should permanently remove failed servers", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
			}, router.LoadAwareOptions{
				MinProcessing:       time.Hour,
				MaxProcessing:       time.Hour,
				HealthCheckInterval: 10 * time.Millisecond,
				FaultPolicy:         failOnly("web-01"),
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			la.Start(ctx)

			Eventually(func() []string {
				return la.Servers()
			}, time.Second, 10*time.Millisecond).Should(Equal([]string{"web-02"}))
		})

		It("should re-queue orphaned requests under the reassign policy", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
			}, router.LoadAwareOptions{
				MinProcessing:       time.Hour,
				MaxProcessing:       time.Hour,
				RequestTimeout:      time.Hour,
				HealthCheckInterval: 10 * time.Millisecond,
				FaultPolicy:         failOnly("web-02"),
				OrphanPolicy:        router.OrphanReassign,
			})

			// Lowest ratio puts the first request on the big server.
			result := la.Assign(50, router.DefaultPriority)
			Expect(result.Server).To(Equal("web-02"))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			la.Start(ctx)

			Eventually(func() []string {
				return la.Servers()
			}, time.Second, 10*time.Millisecond).Should(Equal([]string{"web-01"}))

			// The orphan re-enters admission and lands on the survivor.
			Eventually(func() int {
				la.Sweep()
				return la.Stats()["web-01"].Load
			}, time.Second, 10*time.Millisecond).Should(Equal(50))
			Expect(la.QueueDepth()).To(BeZero())
		})

		It("should count orphans as lost under the drop policy", func() {
			la := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
			}, router.LoadAwareOptions{
				MinProcessing:       time.Hour,
				MaxProcessing:       time.Hour,
				RequestTimeout:      time.Hour,
				HealthCheckInterval: 10 * time.Millisecond,
				FaultPolicy:         failOnly("web-02"),
				OrphanPolicy:        router.OrphanDrop,
			})

			result := la.Assign(50, router.DefaultPriority)
			Expect(result.Server).To(Equal("web-02"))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			la.Start(ctx)

			Eventually(func() int {
				return la.Lost()
			}, time.Second, 10*time.Millisecond).Should(Equal(1))

			Expect(la.QueueDepth()).To(BeZero())
			Expect(la.Stats()["web-01"].Load).To(BeZero())
			Expect(la.Completed(result.RequestID)).To(BeFalse())
		})
	})

	Describe("completions", func() {
		It("should record completed ids and free their capacity", func() {
			la := newRouter(map[string]int{"web-01": 100}, router.LoadAwareOptions{
				MinProcessing: 20 * time.Millisecond,
				MaxProcessing: 20 * time.Millisecond,
			})

			result := la.Assign(80, router.DefaultPriority)
			Expect(result.Outcome).To(Equal(router.OutcomePlaced))

			Eventually(func() bool {
				la.Sweep()
				return la.Completed(result.RequestID)
			}, time.Second, 10*time.Millisecond).Should(BeTrue())

			stats := la.Stats()["web-01"]
			Expect(stats.Load).To(BeZero())
			Expect(stats.Active).To(BeZero())
		})
	})
})
