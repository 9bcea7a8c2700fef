package router_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/admission-router/internal/router"
)

var _ = Describe("LeastConnections", func() {
	newRouter := func(capacities map[string]int, min, max time.Duration) *router.LeastConnections {
		lc, err := router.NewLeastConnections(capacities, router.LeastConnectionsOptions{
			MinProcessing: min,
			MaxProcessing: max,
		}, discardLogger(), nil)
		Expect(err).NotTo(HaveOccurred())
		return lc
	}

	Context("with processing too slow to reclaim during the test", func() {
		var lc *router.LeastConnections

		BeforeEach(func() {
			lc = newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
				"web-03": 400,
			}, time.Hour, time.Hour)
		})

		It("should spread equal-connection servers by id order", func() {
			Expect(lc.Assign(90, router.DefaultPriority).Server).To(Equal("web-01"))
			Expect(lc.Assign(90, router.DefaultPriority).Server).To(Equal("web-02"))
			Expect(lc.Assign(90, router.DefaultPriority).Server).To(Equal("web-03"))
		})

		It("should never place a request that exceeds free capacity", func() {
			Expect(lc.Assign(90, router.DefaultPriority).Server).To(Equal("web-01"))

			// web-01 has 10 free; it must not be chosen again for 90
			// even though it has the fewest connections among none.
			result := lc.Assign(90, router.DefaultPriority)
			Expect(result.Server).NotTo(Equal("web-01"))

			for id, stats := range lc.Stats() {
				Expect(stats.Load).To(BeNumerically("<=", stats.Capacity), "server %s over capacity", id)
			}
		})

		It("should reject when no server has enough free capacity", func() {
			Expect(lc.Assign(500, router.DefaultPriority).Outcome).To(Equal(router.OutcomeRejected))

			Expect(lc.Assign(350, router.DefaultPriority).Server).To(Equal("web-03"))
			Expect(lc.Assign(350, router.DefaultPriority).Outcome).To(Equal(router.OutcomeRejected))
		})

		It("should prefer the fewest active connections among eligible servers", func() {
			Expect(lc.Assign(10, router.DefaultPriority).Server).To(Equal("web-01"))
			Expect(lc.Assign(10, router.DefaultPriority).Server).To(Equal("web-02"))
			Expect(lc.Assign(10, router.DefaultPriority).Server).To(Equal("web-03"))
			// All tied at one connection again; back to id order.
			Expect(lc.Assign(10, router.DefaultPriority).Server).To(Equal("web-01"))
		})
	})

	Context("with fast synthetic processing", func() {
		It("should reclaim elapsed requests before deciding", func() {
			lc := newRouter(map[string]int{"web-01": 100}, 10*time.Millisecond, 10*time.Millisecond)

			Expect(lc.Assign(100, router.DefaultPriority).Outcome).To(Equal(router.OutcomePlaced))
			Expect(lc.Assign(100, router.DefaultPriority).Outcome).To(Equal(router.OutcomeRejected))

			Eventually(func() router.Outcome {
				return lc.Assign(100, router.DefaultPriority).Outcome
			}, time.Second, 5*time.Millisecond).Should(Equal(router.OutcomePlaced))
		})

		It("should keep load consistent across reclaim cycles", func() {
			lc := newRouter(map[string]int{
				"web-01": 100,
				"web-02": 150,
			}, 5*time.Millisecond, 15*time.Millisecond)

			for i := 0; i < 50; i++ {
				lc.Assign(40, router.DefaultPriority)
				for id, stats := range lc.Stats() {
					Expect(stats.Load).To(BeNumerically(">=", 0), "server %s negative load", id)
					Expect(stats.Load).To(BeNumerically("<=", stats.Capacity), "server %s over capacity", id)
				}
			}

			Eventually(func() int {
				total := 0
				for _, stats := range lc.Stats() {
					total += stats.Active
				}
				return total
			}, time.Second, 10*time.Millisecond).Should(BeZero())
		})
	})

	It("should share the sizing scenario across the pool", func() {
		lc := newRouter(map[string]int{
			"web-01": 100,
			"web-02": 150,
			"web-03": 400,
		}, time.Hour, time.Hour)

		first := lc.Assign(90, router.DefaultPriority)
		second := lc.Assign(90, router.DefaultPriority)
		third := lc.Assign(90, router.DefaultPriority)

		Expect(first.Outcome).To(Equal(router.OutcomePlaced))
		Expect(second.Outcome).To(Equal(router.OutcomePlaced))
		Expect(third.Outcome).To(Equal(router.OutcomePlaced))
		Expect([]string{first.Server, second.Server, third.Server}).To(
			ConsistOf("web-01", "web-02", "web-03"))
	})
})
