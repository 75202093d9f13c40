package prefetch_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pdtsim/timing/prefetch"
)

type issued struct {
	core int
	addr uint64
	fill bool
}

type recordingIssuer struct {
	requests []issued
}

func (r *recordingIssuer) IssuePrefetch(core int, addr uint64, fill bool) bool {
	r.requests = append(r.requests, issued{core: core, addr: addr, fill: fill})
	return true
}

var _ = Describe("Predictor", func() {
	const (
		// base is page-aligned and lies on a sampled (even) page.
		base = uint64(0x10000000)
		ip   = uint64(0x401a2c)
	)

	var (
		config *prefetch.Config
		p      *prefetch.Predictor
	)

	// sweep walks every block of the base page once with a +1 block
	// stride.
	sweep := func(core int) {
		for i := uint64(0); i < 64; i++ {
			p.OnAccess(core, base+64*i, ip, false, prefetch.AccessLoad, 0)
		}
	}

	addrs := func(reqs []prefetch.Request) []uint64 {
		out := make([]uint64, 0, len(reqs))
		for _, r := range reqs {
			out = append(out, r.Addr)
		}
		return out
	}

	BeforeEach(func() {
		config = prefetch.DefaultConfig()
		config.HistoryBits = 3
	})

	JustBeforeEach(func() {
		var err error
		p, err = prefetch.NewPredictor(config)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Cold tables", func() {
		It("should never predict before history is recorded", func() {
			for page := uint64(1); page < 64; page += 2 {
				for off := uint64(0); off < 64; off += 3 {
					reqs := p.OnAccess(0, page<<12|off<<6, 0x400000+off*4, false, prefetch.AccessLoad, 0)
					Expect(reqs).To(BeEmpty())
				}
			}
			Expect(p.Stats(0).Sampled).To(BeZero())
			Expect(p.Stats(0).Prefetches).To(BeZero())
		})

		It("should ignore writebacks, prefetches and translations", func() {
			for _, typ := range []prefetch.AccessType{
				prefetch.AccessWriteback, prefetch.AccessPrefetch, prefetch.AccessTranslation,
			} {
				Expect(p.OnAccess(0, base, ip, false, typ, 0)).To(BeNil())
			}
			stats := p.Stats(0)
			Expect(stats.Accesses).To(Equal(uint64(3)))
			Expect(stats.Ignored).To(Equal(uint64(3)))
			Expect(stats.Sampled).To(BeZero())
		})
	})

	Describe("Stride learning", func() {
		It("should learn a +1 block stride after two history laps", func() {
			sweep(0)

			reqs := p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, 0)

			Expect(addrs(reqs)).To(ContainElement(base + 320))
			Expect(addrs(reqs)).NotTo(ContainElement(base + 256))
			Expect(addrs(reqs)).NotTo(ContainElement(base + 192))
			Expect(addrs(reqs)).NotTo(ContainElement(base + 64*40))
			for _, r := range reqs {
				Expect(r.Fill).To(BeTrue())
			}
		})

		It("should predict exactly the strides seen within the history window", func() {
			sweep(0)

			reqs := p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, 0)

			// Eight history slots leave seven younger accesses in the
			// window of every victim: strides +1 through +7.
			expected := []uint64{}
			for off := uint64(5); off <= 11; off++ {
				expected = append(expected, base+64*off)
			}
			Expect(addrs(reqs)).To(Equal(expected))
		})

		It("should not predict for another instruction", func() {
			sweep(0)

			reqs := p.OnAccess(0, base+256, 0x7f0088, false, prefetch.AccessLoad, 0)
			Expect(reqs).To(BeEmpty())
		})

		It("should never prefetch the triggering block", func() {
			sweep(0)

			for off := uint64(0); off < 64; off++ {
				addr := base + 64*off
				for _, r := range p.OnAccess(0, addr+8, ip, false, prefetch.AccessLoad, 0) {
					Expect(r.Addr).NotTo(Equal(addr))
					Expect(r.Addr >> 12).To(Equal(addr >> 12))
				}
			}
		})

		It("should count training outcomes", func() {
			sweep(0)

			stats := p.Stats(0)
			Expect(stats.Sampled).To(Equal(uint64(64)))
			Expect(stats.Recorded).To(Equal(uint64(64)))
			Expect(stats.PositiveTrains).To(BeNumerically(">", 0))
			Expect(stats.Overtakes).To(Equal(uint64(7)))
			Expect(stats.Prefetches).To(BeNumerically(">", 0))
		})
	})

	Describe("Fill throttling", func() {
		DescribeTable("should allow fills only below the occupancy limit",
			func(occupancy float64, fill bool) {
				sweep(0)

				reqs := p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, occupancy)
				Expect(reqs).NotTo(BeEmpty())
				for _, r := range reqs {
					Expect(r.Fill).To(Equal(fill))
				}
			},
			Entry("idle", 0.0, true),
			Entry("below half", 0.25, true),
			Entry("at half", 0.5, false),
			Entry("saturated", 1.0, false),
		)
	})

	Describe("Issuer", func() {
		It("should pass every request to the issuer", func() {
			issuer := &recordingIssuer{}
			var err error
			p, err = prefetch.NewPredictor(config, prefetch.WithIssuer(issuer))
			Expect(err).NotTo(HaveOccurred())

			sweep(0)
			issuer.requests = nil

			reqs := p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, 0.75)
			Expect(issuer.requests).To(HaveLen(len(reqs)))
			for i, r := range reqs {
				Expect(issuer.requests[i]).To(Equal(issued{core: 0, addr: r.Addr, fill: false}))
			}
		})
	})

	Describe("Multiple cores", func() {
		BeforeEach(func() {
			config.Cores = 2
		})

		It("should keep per-core tables disjoint", func() {
			sweep(0)

			Expect(p.OnAccess(1, base+256, ip, false, prefetch.AccessLoad, 0)).To(BeEmpty())
			Expect(p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, 0)).NotTo(BeEmpty())
			Expect(p.Stats(1).Accesses).To(Equal(uint64(1)))

			total := p.TotalStats()
			Expect(total.Accesses).To(Equal(p.Stats(0).Accesses + p.Stats(1).Accesses))
		})

		It("should panic on an unknown core", func() {
			Expect(func() {
				p.OnAccess(2, base, ip, false, prefetch.AccessLoad, 0)
			}).To(Panic())
		})
	})

	Describe("Lifecycle hooks", func() {
		It("should forget everything on Initialize", func() {
			sweep(0)
			p.Initialize()

			Expect(p.Stats(0)).To(Equal(prefetch.Stats{}))
			Expect(p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, 0)).To(BeEmpty())
		})

		It("should count fills and leave tables alone", func() {
			sweep(0)
			p.OnFill(0, base+4096, 3, 1, true, 0)
			p.OnFill(0, base+8192, 4, 0, false, base)
			p.OnCycle(0)
			p.OnShutdown()

			Expect(p.Stats(0).Fills).To(Equal(uint64(2)))
			Expect(p.Stats(0).PrefetchFills).To(Equal(uint64(1)))
			Expect(p.OnAccess(0, base+256, ip, false, prefetch.AccessLoad, 0)).NotTo(BeEmpty())
		})

		It("should satisfy the Prefetcher interface", func() {
			var hooks prefetch.Prefetcher = p
			Expect(hooks).NotTo(BeNil())
		})
	})
})

var _ = Describe("AccessType", func() {
	DescribeTable("should parse names and aliases",
		func(name string, want prefetch.AccessType) {
			got, err := prefetch.ParseAccessType(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("load", "load", prefetch.AccessLoad),
		Entry("read alias", "R", prefetch.AccessLoad),
		Entry("rfo", "rfo", prefetch.AccessRFO),
		Entry("store alias", "store", prefetch.AccessRFO),
		Entry("writeback", "writeback", prefetch.AccessWriteback),
		Entry("translation", "translation", prefetch.AccessTranslation),
		Entry("prefetch", " Prefetch ", prefetch.AccessPrefetch),
	)

	It("should reject unknown names", func() {
		_, err := prefetch.ParseAccessType("flush")
		Expect(err).To(HaveOccurred())
	})

	It("should classify demand accesses", func() {
		Expect(prefetch.AccessLoad.IsDemand()).To(BeTrue())
		Expect(prefetch.AccessRFO.IsDemand()).To(BeTrue())
		Expect(prefetch.AccessWriteback.IsDemand()).To(BeFalse())
		Expect(prefetch.AccessType(9).String()).To(Equal("access(9)"))
	})
})
