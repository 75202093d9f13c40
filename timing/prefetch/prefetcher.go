// Package prefetch implements a sampled correlation prefetcher built from a
// PC+delta table, a page offset table and a global history buffer.
//
// On every demand access the predictor prefetches the offsets of the same
// page whose stride from the current offset is known to be accurate for the
// accessing instruction. A sample of the accesses is recorded in the history
// buffer; when a recorded access ages out, the page offset table tells which
// offsets of its page were touched in the meantime, and the PC+delta table
// is trained with that outcome.
package prefetch

import (
	"fmt"
	"strings"
)

// AccessType classifies an access seen by the cache.
type AccessType uint8

// Access types. Only loads and RFOs are demand accesses.
const (
	AccessLoad AccessType = iota
	AccessRFO
	AccessPrefetch
	AccessWriteback
	AccessTranslation

	// NumAccessTypes bounds the valid access types.
	NumAccessTypes = iota
)

var accessTypeNames = [...]string{
	AccessLoad:        "load",
	AccessRFO:         "rfo",
	AccessPrefetch:    "prefetch",
	AccessWriteback:   "writeback",
	AccessTranslation: "translation",
}

// String returns the lower-case name of the access type.
func (t AccessType) String() string {
	if int(t) < len(accessTypeNames) {
		return accessTypeNames[t]
	}
	return fmt.Sprintf("access(%d)", uint8(t))
}

// IsDemand returns true for accesses that train and trigger the predictor.
func (t AccessType) IsDemand() bool {
	return t == AccessLoad || t == AccessRFO
}

// ParseAccessType parses a name produced by String. "read", "write" and
// "store" are accepted as aliases.
func ParseAccessType(s string) (AccessType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "read", "r", "l":
		return AccessLoad, nil
	case "write", "store", "w", "s":
		return AccessRFO, nil
	case "wb":
		return AccessWriteback, nil
	}
	for i, n := range accessTypeNames {
		if n == name {
			return AccessType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown access type %q", s)
}

// Request is a prefetch candidate produced by an access.
type Request struct {
	// Addr is the block-aligned byte address to prefetch.
	Addr uint64
	// Fill is true if the prefetched block may be filled into the cache.
	// It is false when in-flight resources are under pressure.
	Fill bool
}

// Issuer receives the prefetch requests of a predictor.
type Issuer interface {
	// IssuePrefetch asks the memory hierarchy to prefetch addr on behalf of
	// core, filling the block if fill is true. It returns false if the
	// request was not accepted.
	IssuePrefetch(core int, addr uint64, fill bool) bool
}

// Prefetcher is the set of hooks the memory hierarchy calls. Addresses are
// byte addresses.
type Prefetcher interface {
	Initialize()
	OnAccess(core int, addr, ip uint64, hit bool, typ AccessType, occupancy float64) []Request
	OnFill(core int, addr uint64, set, way int, prefetch bool, evictedAddr uint64)
	OnCycle(core int)
	OnShutdown()
}
