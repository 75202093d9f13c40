package prefetch

// deltaEntry is one stride slot of the PC+delta table.
type deltaEntry struct {
	// acc estimates how often this (PC, stride) pair was followed by an
	// access at the stride.
	acc uint32
	// tag identifies the PC owning the slot. All ones means unallocated.
	tag uint32
	// use protects the slot from being overtaken by a colliding PC.
	use uint32
}

// deltaTable is the PC+delta table of one core. Rows are selected by the
// compressed PC, slots within a row by strideIndex.
type deltaTable struct {
	g       *geometry
	slots   int
	entries []deltaEntry
}

func newDeltaTable(g *geometry) *deltaTable {
	t := &deltaTable{
		g:     g,
		slots: int(g.strideMask) + 1,
	}
	t.entries = make([]deltaEntry, (int(g.rowMask)+1)*t.slots)
	t.reset()
	return t
}

func (t *deltaTable) reset() {
	for i := range t.entries {
		t.entries[i] = deltaEntry{acc: t.g.defAcc, tag: t.g.defPCTag}
	}
}

// row returns the stride slots of one row.
func (t *deltaTable) row(r uint32) []deltaEntry {
	start := int(r&t.g.rowMask) * t.slots
	return t.entries[start : start+t.slots]
}

// detrain decays an accuracy counter toward zero.
func (g *geometry) detrain(acc uint32) uint32 {
	dec := (acc + g.trainHalf) >> g.trainShift
	if dec >= acc {
		return 0
	}
	acc -= dec
	if acc > g.maxAcc {
		return g.maxAcc
	}
	return acc
}

// train decays an accuracy counter and then raises it by a fixed step.
func (g *geometry) train(acc uint32) uint32 {
	acc = g.detrain(acc) + g.trainStep
	if acc > g.maxAcc {
		return g.maxAcc
	}
	return acc
}
