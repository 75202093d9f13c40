// Command tracegen writes synthetic memory access traces for pfsim.
//
// Usage:
//
//	go run ./cmd/tracegen [flags] <output>
//
// The output format follows the file name: .bin for binary, anything else
// for text, with an optional trailing .gz.
//
// Example:
//
//	# Two cores streaming through 512 pages each
//	go run ./cmd/tracegen -pattern sequential -pages 512 -cores 2 stream.bin.gz
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/pdtsim/benchmarks"
	"github.com/sarchlab/pdtsim/trace"
)

var (
	pattern = flag.String("pattern", "sequential", "Access pattern: sequential, strided, reverse, random")
	pages   = flag.Int("pages", 256, "Number of pages per core")
	stride  = flag.Int("stride", 2, "Block stride for the strided pattern")
	count   = flag.Int("count", 16384, "Number of accesses per core for the random pattern")
	seed    = flag.Uint64("seed", 1, "Seed for the random pattern")
	cores   = flag.Int("cores", 1, "Number of cores, each with its own region")
	ip      = flag.Uint64("ip", 0x401a2c, "Instruction pointer of the generated loads")
)

// regionStride separates the address regions of different cores.
const regionStride = 1 << 32

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: tracegen [options] <output>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	records, err := generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := write(flag.Arg(0), records); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d records to %s\n", len(records), flag.Arg(0))
}

func generate() ([]trace.Record, error) {
	if *cores <= 0 {
		return nil, fmt.Errorf("cores must be > 0")
	}

	streams := make([][]trace.Record, *cores)
	for c := range streams {
		base := uint64(c+1) * regionStride
		switch *pattern {
		case "sequential":
			streams[c] = benchmarks.Sequential(c, base, *ip, *pages)
		case "strided":
			streams[c] = benchmarks.Strided(c, base, *ip, *pages, *stride)
		case "reverse":
			streams[c] = benchmarks.Reverse(c, base, *ip, *pages)
		case "random":
			streams[c] = benchmarks.Random(c, base, *ip, *pages, *count, *seed+uint64(c))
		default:
			return nil, fmt.Errorf("unknown pattern %q", *pattern)
		}
	}

	return benchmarks.Interleave(streams...), nil
}

func write(path string, records []trace.Record) error {
	w, err := trace.Create(path)
	if err != nil {
		return err
	}
	if err := trace.WriteAll(w, records); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
