package prefetch

// historyEntry records one sampled access. It carries enough to train the
// PC+delta table and to undo its page offset table count when it ages out.
type historyEntry struct {
	row     uint32
	pcTag   uint32
	bucket  uint32
	pageTag uint32
	offset  uint32
	counted bool
	valid   bool
}

// history is the global history buffer of one core. A single cursor is
// both the insertion point and, one lap later, the eviction point.
type history struct {
	entries []historyEntry
	mask    uint32
	cursor  uint32
	invalid historyEntry
}

func newHistory(g *geometry) *history {
	h := &history{
		entries: make([]historyEntry, int(g.historyMask)+1),
		mask:    g.historyMask,
		invalid: historyEntry{
			row:     g.defRow,
			pcTag:   g.defPCTag,
			bucket:  g.defBucket,
			pageTag: g.defPageTag,
			offset:  g.defOffset,
		},
	}
	h.reset()
	return h
}

func (h *history) reset() {
	h.cursor = 0
	for i := range h.entries {
		h.entries[i] = h.invalid
	}
}

// advance moves the cursor to the next slot and returns the entry about to
// be overwritten there.
func (h *history) advance() historyEntry {
	h.cursor = (h.cursor + 1) & h.mask
	return h.entries[h.cursor]
}

// record stores e in the current slot.
func (h *history) record(e historyEntry) {
	h.entries[h.cursor&h.mask] = e
}

// drop marks the current slot invalid.
func (h *history) drop() {
	h.entries[h.cursor&h.mask] = h.invalid
}
