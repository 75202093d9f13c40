package prefetch

// pageEntry tracks which offsets of one page were touched by accesses that
// are still in the history window.
type pageEntry struct {
	tag uint32
	// nonZero is the number of counters currently above zero. An entry
	// with nonZero == 0 may be taken over by another page.
	nonZero uint32
	counts  []uint8
}

// increment bumps the counter of an offset, saturating at max. It reports
// whether the increment took effect, which decides if the matching history
// entry must undo it on eviction.
func (e *pageEntry) increment(offset uint32, max uint8) bool {
	c := &e.counts[offset]
	if *c >= max {
		*c = max
		return false
	}
	if *c == 0 {
		e.nonZero++
	}
	*c++
	return true
}

// decrement undoes one counted increment of an offset.
func (e *pageEntry) decrement(offset uint32) {
	c := &e.counts[offset]
	if *c == 0 {
		return
	}
	*c--
	if *c == 0 && e.nonZero > 0 {
		e.nonZero--
	}
}

// pageTable is the set-associative page offset table of one core.
type pageTable struct {
	g       *geometry
	entries []pageEntry
}

func newPageTable(g *geometry) *pageTable {
	n := (int(g.bucketMask) + 1) * g.ways
	t := &pageTable{
		g:       g,
		entries: make([]pageEntry, n),
	}
	counts := make([]uint8, n*int(g.offsets))
	for i := range t.entries {
		t.entries[i].counts = counts[i*int(g.offsets) : (i+1)*int(g.offsets)]
	}
	t.reset()
	return t
}

func (t *pageTable) reset() {
	for i := range t.entries {
		e := &t.entries[i]
		e.tag = t.g.defPageTag
		e.nonZero = 0
		for j := range e.counts {
			e.counts[j] = 0
		}
	}
}

func (t *pageTable) set(bucket uint32) []pageEntry {
	start := int(bucket&t.g.bucketMask) * t.g.ways
	return t.entries[start : start+t.g.ways]
}

// find returns the entry holding tag in bucket. Failing that it returns the
// first way with no live counters, which the caller may take over. It
// returns nil when every way is occupied by another page.
func (t *pageTable) find(bucket, tag uint32) *pageEntry {
	ways := t.set(bucket)
	for i := range ways {
		if ways[i].tag == tag {
			return &ways[i]
		}
	}
	for i := range ways {
		if ways[i].nonZero == 0 {
			return &ways[i]
		}
	}
	return nil
}

// lookup returns the entry holding tag in bucket, or nil.
func (t *pageTable) lookup(bucket, tag uint32) *pageEntry {
	e := t.find(bucket, tag)
	if e == nil || e.tag != tag {
		return nil
	}
	return e
}
