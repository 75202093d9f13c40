package core_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/pdtsim/timing/core"
	"github.com/sarchlab/pdtsim/timing/prefetch"
)

type observedAccess struct {
	addr      uint64
	hit       bool
	typ       prefetch.AccessType
	occupancy float64
}

type observedFill struct {
	addr     uint64
	prefetch bool
}

// fakePrefetcher records every hook call and answers accesses with a fixed
// set of requests.
type fakePrefetcher struct {
	initialized int
	cycles      int
	shutdown    int
	accesses    []observedAccess
	fills       []observedFill
	requests    []prefetch.Request
}

func (f *fakePrefetcher) Initialize() { f.initialized++ }

func (f *fakePrefetcher) OnAccess(
	core int, addr, ip uint64, hit bool, typ prefetch.AccessType, occupancy float64,
) []prefetch.Request {
	f.accesses = append(f.accesses, observedAccess{addr: addr, hit: hit, typ: typ, occupancy: occupancy})
	return f.requests
}

func (f *fakePrefetcher) OnFill(core int, addr uint64, set, way int, prefetch bool, evictedAddr uint64) {
	f.fills = append(f.fills, observedFill{addr: addr, prefetch: prefetch})
}

func (f *fakePrefetcher) OnCycle(core int) { f.cycles++ }

func (f *fakePrefetcher) OnShutdown() { f.shutdown++ }

var _ = Describe("Core", func() {
	var (
		config *core.Config
		fake   *fakePrefetcher
		c      *core.Core
	)

	BeforeEach(func() {
		config = core.DefaultConfig()
		fake = &fakePrefetcher{}
		c = core.NewCore(0, config, fake)
	})

	It("should report a demand miss to the prefetcher", func() {
		result := c.Access(0x1000, 0x400100, prefetch.AccessLoad)
		Expect(result.Hit).To(BeFalse())
		Expect(result.Latency).To(Equal(config.L1D.MissLatency))

		Expect(fake.cycles).To(Equal(4))
		Expect(fake.accesses).To(Equal([]observedAccess{{
			addr:      0x1000,
			hit:       false,
			typ:       prefetch.AccessLoad,
			occupancy: 1.0 / 16,
		}}))
		Expect(fake.fills).To(Equal([]observedFill{{addr: 0x1000}}))
	})

	It("should wait for an in-flight block", func() {
		c.Access(0x1000, 0x400100, prefetch.AccessLoad)
		result := c.Access(0x1008, 0x400100, prefetch.AccessRFO)

		// Miss issued at cycle 4 completes at cycle 16; the second access
		// arrives at cycle 8.
		Expect(result.Hit).To(BeTrue())
		Expect(result.Latency).To(Equal(uint64(8)))

		stats := c.Stats()
		Expect(stats.Cycles).To(Equal(uint64(8)))
		Expect(stats.Loads).To(Equal(uint64(1)))
		Expect(stats.Stores).To(Equal(uint64(1)))
		Expect(stats.Hits).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
		Expect(stats.AMAT()).To(Equal(10.0))
		Expect(stats.MissRate()).To(Equal(0.5))
	})

	It("should only probe the cache on non-demand accesses", func() {
		c.Access(0x1000, 0x400100, prefetch.AccessLoad)
		result := c.Access(0x1000, 0, prefetch.AccessWriteback)
		Expect(result.Hit).To(BeTrue())

		c.Access(0x9000, 0, prefetch.AccessTranslation)
		Expect(c.Cache().Contains(0x9000)).To(BeFalse())

		stats := c.Stats()
		Expect(stats.Accesses).To(Equal(uint64(3)))
		Expect(stats.Demand()).To(Equal(uint64(1)))
		Expect(fake.accesses).To(HaveLen(3))
		Expect(fake.accesses[1].typ).To(Equal(prefetch.AccessWriteback))
		Expect(fake.accesses[1].hit).To(BeTrue())
	})

	It("should count requests and report prefetch fills", func() {
		fake.requests = []prefetch.Request{{Addr: 0x1040, Fill: true}, {Addr: 0x1080, Fill: true}}
		c.Access(0x1000, 0x400100, prefetch.AccessLoad)
		Expect(c.Stats().Candidates).To(Equal(uint64(2)))

		Expect(c.Prefetch(0x1040, true)).To(BeTrue())
		Expect(c.Prefetch(0x1040, true)).To(BeFalse())
		Expect(c.Stats().Issued).To(Equal(uint64(1)))
		Expect(fake.fills).To(ContainElement(observedFill{addr: 0x1040, prefetch: true}))
	})

	It("should run without a prefetcher", func() {
		plain := core.NewCore(1, config, nil)
		Expect(plain.ID()).To(Equal(1))

		plain.Access(0x1000, 0x400100, prefetch.AccessLoad)
		Expect(plain.Stats().Candidates).To(BeZero())
		Expect(plain.Cache().Contains(0x1000)).To(BeTrue())
	})

	It("should reset caches and statistics", func() {
		c.Access(0x1000, 0x400100, prefetch.AccessLoad)
		c.Reset()

		Expect(c.Stats()).To(Equal(core.Stats{}))
		Expect(c.Cache().Contains(0x1000)).To(BeFalse())
	})
})

var _ = Describe("Stats", func() {
	It("should convert cycles to simulated time", func() {
		s := core.Stats{Cycles: 3_500_000}
		Expect(s.Seconds(3.5 * sim.GHz)).To(BeNumerically("~", 1e-3, 1e-12))
		Expect(s.Seconds(0)).To(BeZero())
	})

	It("should add counters and keep the longest run", func() {
		a := core.Stats{Cycles: 10, Loads: 2, Misses: 1, Latency: 15}
		a.Add(core.Stats{Cycles: 7, Loads: 1, Stores: 1, Hits: 2, Latency: 5})

		Expect(a).To(Equal(core.Stats{
			Cycles: 10, Loads: 3, Stores: 1, Hits: 2, Misses: 1, Latency: 20,
		}))
		Expect(a.AMAT()).To(Equal(5.0))
	})

	It("should report zero rates without accesses", func() {
		Expect(core.Stats{}.AMAT()).To(BeZero())
		Expect(core.Stats{}.MissRate()).To(BeZero())
	})
})
