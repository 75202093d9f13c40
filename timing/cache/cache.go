// Package cache provides a tag-only data cache model using Akita cache
// components. It is the memory hierarchy a prefetcher plugs into: demand
// accesses and prefetches allocate blocks, and in-flight misses occupy MSHR
// entries until their latency has elapsed.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int `json:"size" yaml:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity" yaml:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size" yaml:"block_size"`
	// HitLatency in cycles
	HitLatency uint64 `json:"hit_latency" yaml:"hit_latency"`
	// MissLatency in cycles (includes next-level access time)
	MissLatency uint64 `json:"miss_latency" yaml:"miss_latency"`
	// MSHREntries is the number of outstanding misses the cache can track.
	MSHREntries int `json:"mshr_entries" yaml:"mshr_entries"`
}

// DefaultL1DConfig returns default configuration for an L1 data cache.
// Based on Apple M2 performance-core specifications:
// - 128KB (8-way, 64B line)
// - 3-cycle load-to-use latency
func DefaultL1DConfig() Config {
	return Config{
		Size:          128 * 1024, // 128KB
		Associativity: 8,          // 8-way
		BlockSize:     64,         // 64B cache line
		HitLatency:    3,          // 3-cycle load-to-use latency (M2)
		MissLatency:   12,         // ~12 cycles to L2
		MSHREntries:   16,
	}
}

// Validate checks that the geometry describes a whole number of sets.
func (c Config) Validate() error {
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a power of 2")
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be > 0")
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("size must be a multiple of associativity * block_size")
	}
	if c.MSHREntries <= 0 {
		return fmt.Errorf("mshr_entries must be > 0")
	}
	if c.MissLatency < c.HitLatency {
		return fmt.Errorf("miss_latency must be >= hit_latency")
	}
	return nil
}

// AccessResult contains the result of a demand access.
type AccessResult struct {
	// Hit indicates whether the block was present.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// PrefetchHit is true if the block was brought in by a prefetch and
	// this is its first demand use.
	PrefetchHit bool
	// Evicted is true if a valid block was evicted.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint64
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64

	// MSHRHits counts demand hits on blocks still in flight.
	MSHRHits uint64
	// MSHRFull counts misses that found no free MSHR entry.
	MSHRFull uint64

	// PrefetchRequests is the number of prefetches received.
	PrefetchRequests uint64
	// PrefetchFills counts prefetches that allocated a block.
	PrefetchFills uint64
	// PrefetchRedundant counts prefetches for blocks already present.
	PrefetchRedundant uint64
	// PrefetchNoFill counts prefetches issued without fill permission.
	PrefetchNoFill uint64
	// PrefetchDropped counts prefetches rejected for lack of MSHR entries.
	PrefetchDropped uint64
	// UsefulPrefetches counts prefetched blocks later hit by a demand access.
	UsefulPrefetches uint64
	// LatePrefetches counts useful prefetches still in flight when used.
	LatePrefetches uint64
	// UselessPrefetches counts prefetched blocks evicted before any use.
	UselessPrefetches uint64
}

// Accesses returns the number of demand accesses.
func (s Statistics) Accesses() uint64 {
	return s.Reads + s.Writes
}

// HitRate returns the demand hit rate as a fraction.
func (s Statistics) HitRate() float64 {
	if s.Accesses() == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Accesses())
}

// PrefetchAccuracy returns the fraction of filled prefetches that were used.
func (s Statistics) PrefetchAccuracy() float64 {
	if s.PrefetchFills == 0 {
		return 0
	}
	return float64(s.UsefulPrefetches) / float64(s.PrefetchFills)
}

// PrefetchCoverage returns the fraction of would-be misses removed by
// prefetching.
func (s Statistics) PrefetchCoverage() float64 {
	total := s.Misses + s.UsefulPrefetches
	if total == 0 {
		return 0
	}
	return float64(s.UsefulPrefetches) / float64(total)
}

// Add accumulates other into s.
func (s *Statistics) Add(other Statistics) {
	s.Reads += other.Reads
	s.Writes += other.Writes
	s.Hits += other.Hits
	s.Misses += other.Misses
	s.Evictions += other.Evictions
	s.Writebacks += other.Writebacks
	s.MSHRHits += other.MSHRHits
	s.MSHRFull += other.MSHRFull
	s.PrefetchRequests += other.PrefetchRequests
	s.PrefetchFills += other.PrefetchFills
	s.PrefetchRedundant += other.PrefetchRedundant
	s.PrefetchNoFill += other.PrefetchNoFill
	s.PrefetchDropped += other.PrefetchDropped
	s.UsefulPrefetches += other.UsefulPrefetches
	s.LatePrefetches += other.LatePrefetches
	s.UselessPrefetches += other.UselessPrefetches
}

// FillHook is called whenever a block is allocated. evictedAddr is zero if
// no valid block was replaced.
type FillHook func(addr uint64, set, way int, prefetch bool, evictedAddr uint64)

// Cache is a tag-only set-associative cache.
type Cache struct {
	// Configuration
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// In-flight misses and prefetches, with the cycle each completes.
	mshr  akitacache.MSHR
	ready map[uint64]uint64

	// Blocks allocated by a prefetch and not yet used by a demand access.
	prefetched map[uint64]bool

	now      uint64
	fillHook FillHook

	// Statistics
	stats Statistics
}

// New creates a new cache with the given configuration.
func New(config Config) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		mshr:       akitacache.NewMSHR(config.MSHREntries),
		ready:      make(map[uint64]uint64),
		prefetched: make(map[uint64]bool),
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// SetFillHook registers a function called on every block allocation.
func (c *Cache) SetFillHook(hook FillHook) {
	c.fillHook = hook
}

// Now returns the current cycle.
func (c *Cache) Now() uint64 {
	return c.now
}

// Occupancy returns the fraction of MSHR entries in use.
func (c *Cache) Occupancy() float64 {
	return float64(len(c.mshr.AllEntries())) / float64(c.config.MSHREntries)
}

// BlockAddr returns the block-aligned address of addr.
func (c *Cache) BlockAddr(addr uint64) uint64 {
	return (addr / uint64(c.config.BlockSize)) * uint64(c.config.BlockSize)
}

// Contains reports whether the block holding addr is present.
func (c *Cache) Contains(addr uint64) bool {
	block := c.directory.Lookup(0, c.BlockAddr(addr))
	return block != nil && block.IsValid
}

// Tick advances the cache by one cycle and retires completed MSHR entries.
func (c *Cache) Tick() {
	c.now++
	for addr, ready := range c.ready {
		if ready <= c.now {
			c.mshr.Remove(0, addr)
			delete(c.ready, addr)
		}
	}
}

// Read performs a demand load.
func (c *Cache) Read(addr uint64) AccessResult {
	c.stats.Reads++
	return c.access(addr, false)
}

// Write performs a demand store. Uses write-allocate policy.
func (c *Cache) Write(addr uint64) AccessResult {
	c.stats.Writes++
	return c.access(addr, true)
}

func (c *Cache) access(addr uint64, isWrite bool) AccessResult {
	blockAddr := c.BlockAddr(addr)

	block := c.directory.Lookup(0, blockAddr)
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return c.handleMiss(blockAddr, isWrite)
	}

	c.stats.Hits++
	c.directory.Visit(block) // Update LRU
	if isWrite {
		block.IsDirty = true
	}

	result := AccessResult{
		Hit:     true,
		Latency: c.config.HitLatency,
	}

	// The block may still be on its way from the next level.
	ready, tracked := c.ready[blockAddr]
	pending := tracked && ready > c.now
	if pending {
		c.stats.MSHRHits++
		if remaining := ready - c.now; remaining > result.Latency {
			result.Latency = remaining
		}
	}

	if c.prefetched[blockAddr] {
		delete(c.prefetched, blockAddr)
		c.stats.UsefulPrefetches++
		result.PrefetchHit = true
		if pending {
			c.stats.LatePrefetches++
		}
	}

	return result
}

// handleMiss allocates a block for a demand miss and tracks it in the MSHR.
func (c *Cache) handleMiss(blockAddr uint64, isWrite bool) AccessResult {
	result := AccessResult{
		Hit:     false,
		Latency: c.config.MissLatency,
	}

	if !c.track(blockAddr) {
		c.stats.MSHRFull++
	}

	victim := c.allocate(blockAddr, false, &result)
	if victim != nil && isWrite {
		victim.IsDirty = true
	}

	return result
}

// Prefetch requests the block holding addr. With fill set the block is
// allocated once an MSHR entry is available; without it the request is
// only counted, standing for a prefetch into the next level. Returns true
// if a block was allocated.
func (c *Cache) Prefetch(addr uint64, fill bool) bool {
	c.stats.PrefetchRequests++
	blockAddr := c.BlockAddr(addr)

	if c.Contains(blockAddr) {
		c.stats.PrefetchRedundant++
		return false
	}
	if !fill {
		c.stats.PrefetchNoFill++
		return false
	}
	if !c.track(blockAddr) {
		c.stats.PrefetchDropped++
		return false
	}

	var result AccessResult
	c.allocate(blockAddr, true, &result)
	c.prefetched[blockAddr] = true
	c.stats.PrefetchFills++

	return true
}

// track reserves an MSHR entry for blockAddr until the miss latency has
// elapsed.
func (c *Cache) track(blockAddr uint64) bool {
	if c.mshr.Query(0, blockAddr) != nil {
		return true
	}
	if c.mshr.IsFull() {
		return false
	}
	c.mshr.Add(0, blockAddr)
	c.ready[blockAddr] = c.now + c.config.MissLatency
	return true
}

// allocate installs blockAddr in its set, evicting the LRU block.
func (c *Cache) allocate(blockAddr uint64, prefetch bool, result *AccessResult) *akitacache.Block {
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		// This shouldn't happen with proper directory setup
		return nil
	}

	var evictedAddr uint64
	if victim.IsValid {
		c.stats.Evictions++
		evictedAddr = victim.Tag // Tag stores block-aligned address
		result.Evicted = true
		result.EvictedAddr = evictedAddr

		if victim.IsDirty {
			c.stats.Writebacks++
		}
		if c.prefetched[evictedAddr] {
			delete(c.prefetched, evictedAddr)
			c.stats.UselessPrefetches++
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	c.directory.Visit(victim) // Update LRU

	if c.fillHook != nil {
		c.fillHook(blockAddr, victim.SetID, victim.WayID, prefetch, evictedAddr)
	}

	return victim
}

// Flush writes back all dirty blocks and invalidates them.
func (c *Cache) Flush() {
	sets := c.directory.GetSets()
	for _, set := range sets {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	c.prefetched = make(map[uint64]bool)
}

// Reset invalidates all cache lines, drains the MSHR and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.mshr.Reset()
	c.ready = make(map[uint64]uint64)
	c.prefetched = make(map[uint64]bool)
	c.now = 0
	c.stats = Statistics{}
}
