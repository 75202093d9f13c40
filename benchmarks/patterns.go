package benchmarks

import (
	"math/rand/v2"

	"github.com/sarchlab/pdtsim/timing/prefetch"
	"github.com/sarchlab/pdtsim/trace"
)

const (
	blockSize = 64
	pageSize  = 4096

	// blocksPerPage is the number of cache blocks in a page.
	blocksPerPage = pageSize / blockSize
)

// Sequential walks pages block by block, starting at base.
func Sequential(cpu int, base, ip uint64, pages int) []trace.Record {
	return Strided(cpu, base, ip, pages, 1)
}

// Strided visits every stride-th block of each page in ascending order.
func Strided(cpu int, base, ip uint64, pages, stride int) []trace.Record {
	if stride <= 0 {
		stride = 1
	}

	records := make([]trace.Record, 0, pages*blocksPerPage/stride)
	for p := 0; p < pages; p++ {
		page := base + uint64(p)*pageSize
		for b := 0; b < blocksPerPage; b += stride {
			records = append(records, load(cpu, ip, page+uint64(b)*blockSize))
		}
	}
	return records
}

// Reverse walks each page from its last block down to its first, with pages
// visited in ascending order.
func Reverse(cpu int, base, ip uint64, pages int) []trace.Record {
	records := make([]trace.Record, 0, pages*blocksPerPage)
	for p := 0; p < pages; p++ {
		page := base + uint64(p)*pageSize
		for b := blocksPerPage - 1; b >= 0; b-- {
			records = append(records, load(cpu, ip, page+uint64(b)*blockSize))
		}
	}
	return records
}

// Random issues count loads to uniformly random blocks of a region of the
// given number of pages. The same seed yields the same trace.
func Random(cpu int, base, ip uint64, pages, count int, seed uint64) []trace.Record {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	blocks := uint64(pages) * blocksPerPage

	records := make([]trace.Record, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, load(cpu, ip, base+rng.Uint64N(blocks)*blockSize))
	}
	return records
}

// Interleave merges traces round robin, one record from each in turn.
func Interleave(traces ...[]trace.Record) []trace.Record {
	total := 0
	for _, t := range traces {
		total += len(t)
	}

	out := make([]trace.Record, 0, total)
	for i := 0; len(out) < total; i++ {
		for _, t := range traces {
			if i < len(t) {
				out = append(out, t[i])
			}
		}
	}
	return out
}

func load(cpu int, ip, addr uint64) trace.Record {
	return trace.Record{CPU: cpu, IP: ip, Addr: addr, Type: prefetch.AccessLoad}
}

// GetBenchmarks returns the standard set of access patterns.
func GetBenchmarks() []Benchmark {
	return []Benchmark{
		sequentialStream(),
		stridedStream(),
		reverseStream(),
		interleavedPCs(),
		randomAccess(),
		multicoreStreams(),
	}
}

// GetCoreBenchmarks returns a small set of patterns for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		sequentialStream(),
		interleavedPCs(),
		randomAccess(),
	}
}

// 1. Sequential - one instruction streaming through memory
func sequentialStream() Benchmark {
	return Benchmark{
		Name:        "sequential_stream",
		Description: "one load streaming through 256 pages - +1 block strides",
		Generate: func() []trace.Record {
			return Sequential(0, 0x10000000, 0x401a2c, 256)
		},
	}
}

// 2. Strided - every third block
func stridedStream() Benchmark {
	return Benchmark{
		Name:        "strided_stream",
		Description: "one load touching every third block of 512 pages",
		Generate: func() []trace.Record {
			return Strided(0, 0x20000000, 0x402b30, 512, 3)
		},
	}
}

// 3. Reverse - descending within each page
func reverseStream() Benchmark {
	return Benchmark{
		Name:        "reverse_stream",
		Description: "one load walking each of 256 pages backwards - -1 block strides",
		Generate: func() []trace.Record {
			return Reverse(0, 0x30000000, 0x403c40, 256)
		},
	}
}

// 4. Interleaved - independent streams from different instructions
func interleavedPCs() Benchmark {
	return Benchmark{
		Name:        "interleaved_pcs",
		Description: "four loads with strides 1, 2, 4 and -1 interleaved access by access",
		Generate: func() []trace.Record {
			return Interleave(
				Strided(0, 0x40000000, 0x404000, 256, 1),
				Strided(0, 0x50000000, 0x404010, 256, 2),
				Strided(0, 0x60000000, 0x404020, 256, 4),
				Reverse(0, 0x70000000, 0x404030, 256),
			)
		},
	}
}

// 5. Random - no spatial correlation to learn
func randomAccess() Benchmark {
	return Benchmark{
		Name:        "random_access",
		Description: "16384 loads to random blocks of a 64MB region",
		Generate: func() []trace.Record {
			return Random(0, 0x80000000, 0x405000, 16384, 16384, 1)
		},
	}
}

// 6. Multicore - one stream per core
func multicoreStreams() Benchmark {
	return Benchmark{
		Name:        "multicore_streams",
		Description: "two cores each streaming through 128 pages",
		Generate: func() []trace.Record {
			return Interleave(
				Sequential(0, 0x10000000, 0x401a2c, 128),
				Sequential(1, 0x90000000, 0x401a2c, 128),
			)
		},
	}
}
