// Package core provides the simulated cores a prefetcher is attached to.
// A Core owns a private L1 data cache and reports its accesses and fills to
// the prefetcher hooks. A System groups the cores around one shared
// predictor and replays access traces through them.
package core

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/pdtsim/timing/cache"
	"github.com/sarchlab/pdtsim/timing/prefetch"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Accesses is the number of trace accesses processed.
	Accesses uint64
	// Loads and Stores count demand accesses.
	Loads  uint64
	Stores uint64
	// Hits and Misses count demand accesses in the L1D.
	Hits   uint64
	Misses uint64
	// Latency is the summed latency of demand accesses.
	Latency uint64
	// Candidates is the number of prefetch requests produced.
	Candidates uint64
	// Issued is the number of prefetches that allocated a block.
	Issued uint64
}

// Demand returns the number of demand accesses.
func (s Stats) Demand() uint64 {
	return s.Loads + s.Stores
}

// AMAT returns the average demand access latency in cycles.
func (s Stats) AMAT() float64 {
	if s.Demand() == 0 {
		return 0
	}
	return float64(s.Latency) / float64(s.Demand())
}

// MissRate returns the demand miss rate as a fraction.
func (s Stats) MissRate() float64 {
	if s.Demand() == 0 {
		return 0
	}
	return float64(s.Misses) / float64(s.Demand())
}

// Seconds returns the simulated time at the given core frequency.
func (s Stats) Seconds(freq sim.Freq) float64 {
	if freq <= 0 {
		return 0
	}
	return float64(s.Cycles) / float64(freq)
}

// Add accumulates other into s. Cycles keeps the maximum, since cores run
// side by side.
func (s *Stats) Add(other Stats) {
	if other.Cycles > s.Cycles {
		s.Cycles = other.Cycles
	}
	s.Accesses += other.Accesses
	s.Loads += other.Loads
	s.Stores += other.Stores
	s.Hits += other.Hits
	s.Misses += other.Misses
	s.Latency += other.Latency
	s.Candidates += other.Candidates
	s.Issued += other.Issued
}

// Core is one simulated core with a private L1 data cache.
type Core struct {
	id       int
	interval uint64
	l1d      *cache.Cache

	// prefetcher is nil when prefetching is disabled.
	prefetcher prefetch.Prefetcher

	stats Stats
}

// NewCore creates core id with the cache and timing of config. A nil
// prefetcher disables prefetching.
func NewCore(id int, config *Config, prefetcher prefetch.Prefetcher) *Core {
	c := &Core{
		id:         id,
		interval:   config.AccessInterval,
		l1d:        cache.New(config.L1D),
		prefetcher: prefetcher,
	}

	if prefetcher != nil {
		c.l1d.SetFillHook(func(addr uint64, set, way int, isPrefetch bool, evictedAddr uint64) {
			c.prefetcher.OnFill(c.id, addr, set, way, isPrefetch, evictedAddr)
		})
	}

	return c
}

// ID returns the core number.
func (c *Core) ID() int {
	return c.id
}

// Cache returns the L1 data cache.
func (c *Core) Cache() *cache.Cache {
	return c.l1d
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	return c.stats
}

// Tick advances the core and its cache by one cycle.
func (c *Core) Tick() {
	c.stats.Cycles++
	c.l1d.Tick()
	if c.prefetcher != nil {
		c.prefetcher.OnCycle(c.id)
	}
}

// Access advances the core by its access interval and performs one access.
// Loads read and RFOs write the L1D; other access types only probe it. The
// outcome is reported to the prefetcher together with the MSHR occupancy.
func (c *Core) Access(addr, ip uint64, typ prefetch.AccessType) cache.AccessResult {
	for i := uint64(0); i < c.interval; i++ {
		c.Tick()
	}
	c.stats.Accesses++

	var result cache.AccessResult
	switch typ {
	case prefetch.AccessLoad:
		c.stats.Loads++
		result = c.l1d.Read(addr)
	case prefetch.AccessRFO:
		c.stats.Stores++
		result = c.l1d.Write(addr)
	default:
		result.Hit = c.l1d.Contains(addr)
	}

	if typ.IsDemand() {
		c.stats.Latency += result.Latency
		if result.Hit {
			c.stats.Hits++
		} else {
			c.stats.Misses++
		}
	}

	if c.prefetcher != nil {
		reqs := c.prefetcher.OnAccess(c.id, addr, ip, result.Hit, typ, c.l1d.Occupancy())
		c.stats.Candidates += uint64(len(reqs))
	}

	return result
}

// Prefetch sends a prefetch for addr to the L1D. Returns true if a block
// was allocated.
func (c *Core) Prefetch(addr uint64, fill bool) bool {
	if !c.l1d.Prefetch(addr, fill) {
		return false
	}
	c.stats.Issued++
	return true
}

// Reset clears the cache and statistics.
func (c *Core) Reset() {
	c.l1d.Reset()
	c.stats = Stats{}
}
