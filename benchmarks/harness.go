// Package benchmarks provides synthetic access patterns and a harness that
// measures how much the prefetcher helps on each of them.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/pdtsim/timing/core"
	"github.com/sarchlab/pdtsim/trace"
)

// Version is the simulator version stamped on reports.
const Version = "0.1.0"

// BenchmarkResult holds the results of a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// Accesses is the number of trace records replayed
	Accesses uint64 `json:"accesses"`

	// SimulatedCycles is the cycle count of the longest-running core
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// SimulatedSeconds is SimulatedCycles at the harness frequency
	SimulatedSeconds float64 `json:"simulated_seconds"`

	// Misses and AMAT are the demand misses and average access latency
	// with prefetching
	Misses uint64  `json:"misses"`
	AMAT   float64 `json:"amat"`

	// BaselineMisses and BaselineAMAT are measured without prefetching
	BaselineMisses uint64  `json:"baseline_misses,omitempty"`
	BaselineAMAT   float64 `json:"baseline_amat,omitempty"`

	// MissReduction is the fraction of baseline misses removed
	MissReduction float64 `json:"miss_reduction,omitempty"`

	// Prefetch candidates produced by the predictor and their fate in the
	// cache
	Candidates        uint64 `json:"candidates"`
	PrefetchFills     uint64 `json:"prefetch_fills"`
	UsefulPrefetches  uint64 `json:"useful_prefetches"`
	LatePrefetches    uint64 `json:"late_prefetches"`
	UselessPrefetches uint64 `json:"useless_prefetches"`

	// Accuracy is the fraction of filled prefetches used by a demand access
	Accuracy float64 `json:"accuracy"`

	// Coverage is the fraction of would-be misses removed by prefetches
	Coverage float64 `json:"coverage"`

	// Predictor internals
	Sampled   uint64 `json:"sampled"`
	Overtakes uint64 `json:"overtakes"`
	Dropped   uint64 `json:"history_dropped"`

	// SampleRate is the fraction of demand accesses past the sampling gate
	SampleRate float64 `json:"sample_rate"`

	// PrefetchesPerAccess is the average number of candidates per demand
	// access
	PrefetchesPerAccess float64 `json:"prefetches_per_access"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single access pattern.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Generate produces the access trace
	Generate func() []trace.Record
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// System is the simulated system. Its core count grows to fit each
	// trace.
	System *core.Config

	// CompareBaseline also runs every benchmark with prefetching disabled
	CompareBaseline bool

	// Frequency converts simulated cycles into seconds
	Frequency sim.Freq

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives progress messages
	Logger logr.Logger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		System:          core.DefaultConfig(),
		CompareBaseline: true,
		Frequency:       3.5 * sim.GHz,
		Output:          os.Stdout,
		Logger:          logr.Discard(),
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
	runID      xid.ID
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.System == nil {
		config.System = core.DefaultConfig()
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
		runID:      xid.New(),
	}
}

// RunID identifies this harness run in reports.
func (h *Harness) RunID() string {
	return h.runID.String()
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(ctx, bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) (BenchmarkResult, error) {
	logger := h.config.Logger.WithValues("benchmark", bench.Name, "run", h.RunID())
	records := bench.Generate()

	config := h.config.System.Clone()
	if cores := trace.MaxCPU(records) + 1; cores > config.Predictor.Cores {
		config.Predictor.Cores = cores
	}

	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		Accesses:    uint64(len(records)),
	}

	start := time.Now()

	config.Prefetch = true
	sys, err := h.replay(ctx, config, records, logger)
	if err != nil {
		return result, err
	}

	stats := sys.Stats()
	cacheStats := sys.CacheStats()
	predStats := sys.PredictorStats()

	result.SimulatedCycles = stats.Cycles
	result.SimulatedSeconds = stats.Seconds(h.config.Frequency)
	result.Misses = stats.Misses
	result.AMAT = stats.AMAT()
	result.Candidates = stats.Candidates
	result.PrefetchFills = cacheStats.PrefetchFills
	result.UsefulPrefetches = cacheStats.UsefulPrefetches
	result.LatePrefetches = cacheStats.LatePrefetches
	result.UselessPrefetches = cacheStats.UselessPrefetches
	result.Accuracy = cacheStats.PrefetchAccuracy()
	result.Coverage = cacheStats.PrefetchCoverage()
	result.Sampled = predStats.Sampled
	result.Overtakes = predStats.Overtakes
	result.Dropped = predStats.Dropped
	result.SampleRate = predStats.SampleRate()
	result.PrefetchesPerAccess = predStats.PrefetchesPerAccess()

	if h.config.CompareBaseline {
		config.Prefetch = false
		base, err := h.replay(ctx, config, records, logger)
		if err != nil {
			return result, err
		}

		baseStats := base.Stats()
		result.BaselineMisses = baseStats.Misses
		result.BaselineAMAT = baseStats.AMAT()
		if baseStats.Misses > 0 {
			result.MissReduction = 1 - float64(result.Misses)/float64(baseStats.Misses)
		}
	}

	result.WallTime = time.Since(start)
	logger.V(1).Info("benchmark finished",
		"accesses", result.Accesses,
		"misses", result.Misses,
		"baselineMisses", result.BaselineMisses)

	return result, nil
}

func (h *Harness) replay(
	ctx context.Context,
	config *core.Config,
	records []trace.Record,
	logger logr.Logger,
) (*core.System, error) {
	sys, err := core.NewSystem(config, core.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := sys.Run(ctx, trace.NewSliceReader(records)); err != nil {
		return nil, err
	}
	sys.Shutdown()
	return sys, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== Prefetch Benchmark Results ===")
	_, _ = fmt.Fprintf(out, "Run: %s\n", h.RunID())
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Accesses:         %d\n", r.Accesses)
		_, _ = fmt.Fprintf(out, "  Simulated Cycles: %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(out, "  Simulated Time:   %.3g s\n", r.SimulatedSeconds)
		_, _ = fmt.Fprintf(out, "  Misses:           %d\n", r.Misses)
		_, _ = fmt.Fprintf(out, "  AMAT:             %.2f\n", r.AMAT)

		if h.config.CompareBaseline {
			_, _ = fmt.Fprintln(out, "  --- Baseline ---")
			_, _ = fmt.Fprintf(out, "  Misses:           %d\n", r.BaselineMisses)
			_, _ = fmt.Fprintf(out, "  AMAT:             %.2f\n", r.BaselineAMAT)
			_, _ = fmt.Fprintf(out, "  Miss Reduction:   %.1f%%\n", r.MissReduction*100)
		}

		_, _ = fmt.Fprintln(out, "  --- Prefetcher ---")
		_, _ = fmt.Fprintf(out, "  Candidates:       %d (%.2f per access)\n", r.Candidates, r.PrefetchesPerAccess)
		_, _ = fmt.Fprintf(out, "  Sample Rate:      %.1f%%\n", r.SampleRate*100)
		_, _ = fmt.Fprintf(out, "  Fills:            %d\n", r.PrefetchFills)
		_, _ = fmt.Fprintf(out, "  Useful:           %d (late %d)\n", r.UsefulPrefetches, r.LatePrefetches)
		_, _ = fmt.Fprintf(out, "  Useless:          %d\n", r.UselessPrefetches)
		_, _ = fmt.Fprintf(out, "  Accuracy:         %.1f%%\n", r.Accuracy*100)
		_, _ = fmt.Fprintf(out, "  Coverage:         %.1f%%\n", r.Coverage*100)

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,accesses,cycles,misses,amat,baseline_misses,baseline_amat,miss_reduction,candidates,prefetch_fills,useful,late,useless,accuracy,coverage")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%d,%.3f,%.4f,%d,%d,%d,%d,%d,%.4f,%.4f\n",
			r.Name,
			r.Accesses,
			r.SimulatedCycles,
			r.Misses,
			r.AMAT,
			r.BaselineMisses,
			r.BaselineAMAT,
			r.MissReduction,
			r.Candidates,
			r.PrefetchFills,
			r.UsefulPrefetches,
			r.LatePrefetches,
			r.UselessPrefetches,
			r.Accuracy,
			r.Coverage,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// RunID uniquely identifies the run
	RunID string `json:"run_id"`

	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// Config is the simulated system
	Config *core.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// TotalAccesses is the sum of all replayed accesses
	TotalAccesses uint64 `json:"total_accesses"`

	// TotalMisses and TotalBaselineMisses sum the demand misses
	TotalMisses         uint64 `json:"total_misses"`
	TotalBaselineMisses uint64 `json:"total_baseline_misses,omitempty"`

	// AverageAccuracy is the mean prefetch accuracy
	AverageAccuracy float64 `json:"average_accuracy"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		summary.TotalAccesses += r.Accesses
		summary.TotalMisses += r.Misses
		summary.TotalBaselineMisses += r.BaselineMisses
		summary.AverageAccuracy += r.Accuracy
		summary.TotalWallTime += r.WallTime
	}
	if len(results) > 0 {
		summary.AverageAccuracy /= float64(len(results))
	}

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			RunID:     h.RunID(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config:    h.config.System,
		},
		Results: results,
		Summary: summary,
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
