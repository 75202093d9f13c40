// Package main provides the entry point for pdtsim.
// pdtsim simulates a sampled correlation prefetcher in front of per-core L1
// data caches built on Akita cache components.
//
// For the full CLI, use: go run ./cmd/pfsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("pdtsim - Correlation Prefetcher Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: pfsim [options] <trace>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config            Path to system configuration JSON/YAML file")
	fmt.Println("  -predictor-config  Path to predictor configuration JSON/YAML file")
	fmt.Println("  -no-prefetch       Replay without the prefetcher")
	fmt.Println("  -json              JSON report")
	fmt.Println("  -v                 Log verbosity")
	fmt.Println("")
	fmt.Println("Related commands:")
	fmt.Println("  go run ./cmd/tracegen   Write synthetic traces")
	fmt.Println("  go run ./cmd/benchmark  Run the benchmark harness")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/pfsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/pfsim' instead.")
	}
}
