// Command pfsim replays a memory access trace through per-core L1 data caches
// with the correlation prefetcher attached, and reports cache and prefetcher
// statistics.
//
// Usage:
//
//	go run ./cmd/pfsim [flags] <trace>
//
// Traces ending in .bin are binary, anything else is text; a trailing .gz
// selects gzip compression.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/pdtsim/timing/cache"
	"github.com/sarchlab/pdtsim/timing/core"
	"github.com/sarchlab/pdtsim/timing/prefetch"
	"github.com/sarchlab/pdtsim/trace"
)

var (
	configPath    = flag.String("config", "", "Path to system configuration JSON/YAML file")
	predictorPath = flag.String("predictor-config", "", "Path to predictor configuration JSON/YAML file (fields it sets override the system file)")
	dumpConfig    = flag.String("dump-config", "", "Write the effective system configuration to this file and exit")
	cores         = flag.Int("cores", 0, "Number of cores (0 = from configuration)")
	noPrefetch    = flag.Bool("no-prefetch", false, "Disable the prefetcher")
	freqGHz       = flag.Float64("freq", 3.5, "Core frequency in GHz for simulated time")
	jsonOutput    = flag.Bool("json", false, "Output results in JSON format")
	verbosity     = flag.Int("v", 0, "Log verbosity (0 = errors and summary only)")
	cpuProfile    = flag.String("cpuprofile", "", "write cpu profile to file")
)

// RunReport is the JSON output of a replay.
type RunReport struct {
	RunID            string           `json:"run_id"`
	Trace            string           `json:"trace"`
	Records          uint64           `json:"records"`
	SimulatedSeconds float64          `json:"simulated_seconds"`
	WallTime         time.Duration    `json:"wall_time_ns"`
	Config           *core.Config     `json:"config"`
	Cores            []CoreReport     `json:"cores"`
	Total            core.Stats       `json:"total"`
	Cache            cache.Statistics `json:"cache"`
	Predictor        prefetch.Stats   `json:"predictor"`
}

// CoreReport holds the statistics of one core.
type CoreReport struct {
	Core      int              `json:"core"`
	Stats     core.Stats       `json:"stats"`
	Cache     cache.Statistics `json:"cache"`
	Predictor prefetch.Stats   `json:"predictor"`
}

func main() {
	flag.Parse()

	logger := funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
		} else {
			fmt.Fprintln(os.Stderr, args)
		}
	}, funcr.Options{Verbosity: *verbosity, LogTimestamp: true})

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *dumpConfig != "" {
		if err := config.SaveConfig(*dumpConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: pfsim [options] <trace>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if err := run(flag.Arg(0), config, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

// loadConfig builds the system configuration from the files and flags.
func loadConfig() (*core.Config, error) {
	config := core.DefaultConfig()
	if *configPath != "" {
		loaded, err := core.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if *predictorPath != "" {
		if err := config.Predictor.Overlay(*predictorPath); err != nil {
			return nil, err
		}
	}

	if *cores > 0 {
		config.Predictor.Cores = *cores
	}
	if *noPrefetch {
		config.Prefetch = false
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func run(path string, config *core.Config, logger logr.Logger, out io.Writer) error {
	runID := xid.New().String()
	logger = logger.WithValues("run", runID)

	r, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	sys, err := core.NewSystem(config, core.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := sys.Run(ctx, r); err != nil {
		return err
	}
	sys.Shutdown()
	wall := time.Since(start)

	freq := sim.Freq(*freqGHz) * sim.GHz
	report := RunReport{
		RunID:            runID,
		Trace:            path,
		Records:          sys.Replayed(),
		SimulatedSeconds: sys.Stats().Seconds(freq),
		WallTime:         wall,
		Config:           config,
		Total:            sys.Stats(),
		Cache:            sys.CacheStats(),
		Predictor:        sys.PredictorStats(),
	}
	for i := 0; i < sys.NumCores(); i++ {
		c := sys.Core(i)
		cr := CoreReport{Core: i, Stats: c.Stats(), Cache: c.Cache().Stats()}
		if p := sys.Predictor(); p != nil {
			cr.Predictor = p.Stats(i)
		}
		report.Cores = append(report.Cores, cr)
	}

	if *jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	printReport(out, &report)
	return nil
}

func printReport(out io.Writer, r *RunReport) {
	_, _ = fmt.Fprintf(out, "=== Prefetch Simulation ===\n")
	_, _ = fmt.Fprintf(out, "Run:      %s\n", r.RunID)
	_, _ = fmt.Fprintf(out, "Trace:    %s\n", r.Trace)
	_, _ = fmt.Fprintf(out, "Records:  %d\n", r.Records)
	_, _ = fmt.Fprintf(out, "Prefetch: %v\n", r.Config.Prefetch)
	_, _ = fmt.Fprintf(out, "Cycles:   %d (%.3g s simulated, %v wall)\n",
		r.Total.Cycles, r.SimulatedSeconds, r.WallTime)
	_, _ = fmt.Fprintln(out)

	for _, c := range r.Cores {
		if c.Stats.Accesses == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "Core %d:\n", c.Core)
		_, _ = fmt.Fprintf(out, "  Accesses:    %d (%d loads, %d stores)\n", c.Stats.Accesses, c.Stats.Loads, c.Stats.Stores)
		_, _ = fmt.Fprintf(out, "  Miss Rate:   %.2f%%\n", c.Stats.MissRate()*100)
		_, _ = fmt.Fprintf(out, "  AMAT:        %.2f cycles\n", c.Stats.AMAT())
		if r.Config.Prefetch {
			_, _ = fmt.Fprintf(out, "  Candidates:  %d (%.2f per access, overtakes %d)\n",
				c.Stats.Candidates, c.Predictor.PrefetchesPerAccess(), c.Predictor.Overtakes)
			_, _ = fmt.Fprintf(out, "  Sampled:     %d (%.1f%%)\n", c.Predictor.Sampled, c.Predictor.SampleRate()*100)
			_, _ = fmt.Fprintf(out, "  Fills:       %d (useful %d, late %d, useless %d)\n",
				c.Cache.PrefetchFills, c.Cache.UsefulPrefetches, c.Cache.LatePrefetches, c.Cache.UselessPrefetches)
			_, _ = fmt.Fprintf(out, "  Accuracy:    %.1f%%\n", c.Cache.PrefetchAccuracy()*100)
			_, _ = fmt.Fprintf(out, "  Coverage:    %.1f%%\n", c.Cache.PrefetchCoverage()*100)
		}
	}

	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Total miss rate: %.2f%%\n", r.Total.MissRate()*100)
	_, _ = fmt.Fprintf(out, "Total AMAT:      %.2f cycles\n", r.Total.AMAT())
	if r.Config.Prefetch {
		_, _ = fmt.Fprintf(out, "Prefetch accuracy: %.1f%%, coverage: %.1f%%\n",
			r.Cache.PrefetchAccuracy()*100, r.Cache.PrefetchCoverage()*100)
	}
}
