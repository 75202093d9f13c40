package core_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pdtsim/timing/core"
	"github.com/sarchlab/pdtsim/timing/prefetch"
	"github.com/sarchlab/pdtsim/trace"
)

// stream returns a sequential load stream over pages starting at base.
func stream(cpu int, base, ip uint64, pages int) []trace.Record {
	var records []trace.Record
	for i := uint64(0); i < uint64(pages)*64; i++ {
		records = append(records, trace.Record{
			CPU:  cpu,
			IP:   ip,
			Addr: base + i*64,
			Type: prefetch.AccessLoad,
		})
	}
	return records
}

// interleave merges per-core streams round robin.
func interleave(streams ...[]trace.Record) []trace.Record {
	var out []trace.Record
	for i := 0; ; i++ {
		done := true
		for _, s := range streams {
			if i < len(s) {
				out = append(out, s[i])
				done = false
			}
		}
		if done {
			return out
		}
	}
}

var _ = Describe("System", func() {
	var config *core.Config

	BeforeEach(func() {
		config = core.DefaultConfig()
		config.Predictor.HistoryBits = 6
	})

	Describe("Construction", func() {
		It("should size the system from the predictor", func() {
			config.Predictor.Cores = 3
			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.NumCores()).To(Equal(3))
			Expect(s.Predictor().NumCores()).To(Equal(3))
			Expect(s.Core(2).ID()).To(Equal(2))
		})

		It("should use defaults for a nil config", func() {
			s, err := core.NewSystem(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.Diff(core.DefaultConfig(), s.Config())).To(BeEmpty())
		})

		It("should reject an invalid config", func() {
			config.L1D.BlockSize = 128
			_, err := core.NewSystem(config)
			Expect(err).To(MatchError(ContainSubstring("block_bits")))
		})

		It("should leave the predictor out when prefetching is disabled", func() {
			config.Prefetch = false
			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Predictor()).To(BeNil())
			Expect(s.PredictorStats()).To(Equal(prefetch.Stats{}))
		})
	})

	Describe("Prefetching", func() {
		run := func(prefetching bool, records []trace.Record) *core.System {
			config.Prefetch = prefetching
			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Run(context.Background(), trace.NewSliceReader(records))).To(Succeed())
			s.Shutdown()
			return s
		}

		It("should remove most misses of a sequential stream", func() {
			records := stream(0, 0x10000000, 0x401a2c, 32)

			baseline := run(false, records)
			prefetched := run(true, records)

			Expect(baseline.Stats().Misses).To(Equal(uint64(len(records))))
			Expect(prefetched.Stats().Misses).To(BeNumerically("<", baseline.Stats().Misses/2))

			cacheStats := prefetched.CacheStats()
			Expect(cacheStats.PrefetchFills).To(BeNumerically(">", 0))
			Expect(cacheStats.UsefulPrefetches).To(BeNumerically(">", 0))
			Expect(prefetched.Stats().Issued).To(Equal(cacheStats.PrefetchFills))

			predictorStats := prefetched.PredictorStats()
			Expect(predictorStats.Accesses).To(Equal(uint64(len(records))))
			Expect(predictorStats.Prefetches).To(Equal(prefetched.Stats().Candidates))
			Expect(predictorStats.Fills).To(Equal(cacheStats.Misses + cacheStats.PrefetchFills))
		})

		It("should not prefetch when disabled", func() {
			s := run(false, stream(0, 0x10000000, 0x401a2c, 4))
			Expect(s.CacheStats().PrefetchRequests).To(BeZero())
			Expect(s.Stats().Candidates).To(BeZero())
		})
	})

	Describe("Replay", func() {
		BeforeEach(func() {
			config.Predictor.Cores = 2
		})

		It("should match a sequential replay core by core", func() {
			records := interleave(
				stream(0, 0x10000000, 0x401a2c, 8),
				stream(1, 0x20000000, 0x402b30, 6),
			)

			parallel, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(parallel.Run(context.Background(), trace.NewSliceReader(records))).To(Succeed())
			Expect(parallel.Replayed()).To(Equal(uint64(len(records))))

			sequential, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			for _, rec := range records {
				sequential.Access(rec.CPU, rec.Addr, rec.IP, rec.Type)
			}

			for i := 0; i < 2; i++ {
				Expect(cmp.Diff(sequential.Core(i).Stats(), parallel.Core(i).Stats())).To(BeEmpty())
				Expect(cmp.Diff(sequential.Core(i).Cache().Stats(), parallel.Core(i).Cache().Stats())).To(BeEmpty())
				Expect(cmp.Diff(sequential.Predictor().Stats(i), parallel.Predictor().Stats(i))).To(BeEmpty())
			}
		})

		It("should replay a trace file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "stream.bin.gz")
			w, err := trace.Create(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(trace.WriteAll(w, stream(1, 0x30000000, 0x401000, 2))).To(Succeed())
			Expect(w.Close()).To(Succeed())

			r, err := trace.Open(path)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = r.Close() }()

			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Run(context.Background(), r)).To(Succeed())
			Expect(s.Core(0).Stats().Accesses).To(BeZero())
			Expect(s.Core(1).Stats().Accesses).To(Equal(uint64(128)))
		})

		It("should reject a record for an unknown core", func() {
			records := stream(0, 0x10000000, 0x401a2c, 1)
			records[10].CPU = 5

			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			err = s.Run(context.Background(), trace.NewSliceReader(records))
			Expect(err).To(MatchError(ContainSubstring("record 10: cpu 5 out of range")))
		})

		It("should stop when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			err = s.Run(ctx, trace.NewSliceReader(stream(0, 0x10000000, 0x401a2c, 1)))
			Expect(err).To(MatchError(context.Canceled))
			Expect(s.Replayed()).To(BeZero())
		})

		It("should log replay progress", func() {
			var lines []string
			logger := funcr.New(func(prefix, args string) {
				lines = append(lines, args)
			}, funcr.Options{Verbosity: 1})

			s, err := core.NewSystem(config, core.WithLogger(logger))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Run(context.Background(), trace.NewSliceReader(stream(0, 0x10000000, 0x401a2c, 1)))).To(Succeed())

			log := strings.Join(lines, "\n")
			Expect(log).To(ContainSubstring(`"msg"="system created"`))
			Expect(log).To(ContainSubstring(`"msg"="replay finished"`))
			Expect(log).To(ContainSubstring(fmt.Sprintf(`"records"=%d`, 64)))
		})

		It("should forget state on Reset", func() {
			s, err := core.NewSystem(config)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Run(context.Background(), trace.NewSliceReader(stream(0, 0x10000000, 0x401a2c, 2)))).To(Succeed())

			s.Reset()
			Expect(s.Stats()).To(Equal(core.Stats{}))
			Expect(s.CacheStats().Accesses()).To(BeZero())
			Expect(s.PredictorStats()).To(Equal(prefetch.Stats{}))
			Expect(s.Replayed()).To(BeZero())
		})
	})
})

var _ = Describe("System config", func() {
	It("should overlay a YAML file on the defaults", func() {
		path := filepath.Join(GinkgoT().TempDir(), "system.yaml")
		config := core.DefaultConfig()
		config.AccessInterval = 2
		config.Predictor.Cores = 4
		Expect(config.SaveConfig(path)).To(Succeed())

		loaded, err := core.LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(config, loaded)).To(BeEmpty())
		Expect(loaded.NumCores()).To(Equal(4))
	})

	It("should reject a zero access interval", func() {
		config := core.DefaultConfig()
		config.AccessInterval = 0
		Expect(config.Validate()).To(MatchError(ContainSubstring("access_interval")))
	})

	It("should wrap cache errors", func() {
		config := core.DefaultConfig()
		config.L1D.MSHREntries = 0
		Expect(config.Validate()).To(MatchError(ContainSubstring("l1d: mshr_entries")))
	})
})
