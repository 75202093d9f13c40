package prefetch

import "fmt"

// coreState is the private predictor state of one core. Cores never share
// tables.
type coreState struct {
	deltas *deltaTable
	pages  *pageTable
	hist   *history
	stats  Stats
}

// Predictor implements Prefetcher. Each core's accesses must be delivered
// in order by a single goroutine; different cores may run concurrently.
type Predictor struct {
	config Config
	g      geometry
	cores  []*coreState
	issuer Issuer
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithIssuer sets the Issuer that receives every prefetch request.
func WithIssuer(issuer Issuer) Option {
	return func(p *Predictor) {
		p.issuer = issuer
	}
}

// NewPredictor creates a predictor with all tables allocated and
// initialized. A nil config selects DefaultConfig.
func NewPredictor(config *Config, opts ...Option) (*Predictor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prefetch config: %w", err)
	}

	p := &Predictor{config: *config}
	p.g = newGeometry(&p.config)
	p.cores = make([]*coreState, config.Cores)
	for i := range p.cores {
		p.cores[i] = &coreState{
			deltas: newDeltaTable(&p.g),
			pages:  newPageTable(&p.g),
			hist:   newHistory(&p.g),
		}
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Config returns a copy of the predictor configuration.
func (p *Predictor) Config() *Config {
	return p.config.Clone()
}

// NumCores returns the number of cores with predictor state.
func (p *Predictor) NumCores() int {
	return len(p.cores)
}

// Stats returns the statistics of one core.
func (p *Predictor) Stats(core int) Stats {
	return p.core(core).stats
}

// TotalStats returns the statistics summed over all cores. It must not run
// concurrently with accesses.
func (p *Predictor) TotalStats() Stats {
	var total Stats
	for _, cs := range p.cores {
		total.Add(cs.stats)
	}
	return total
}

func (p *Predictor) core(core int) *coreState {
	if core < 0 || core >= len(p.cores) {
		panic(fmt.Sprintf("prefetch: core %d out of range [0, %d)", core, len(p.cores)))
	}
	return p.cores[core]
}

// Initialize resets every table, cursor and statistic to its initial
// state.
func (p *Predictor) Initialize() {
	for _, cs := range p.cores {
		cs.deltas.reset()
		cs.pages.reset()
		cs.hist.reset()
		cs.stats = Stats{}
	}
}

// OnAccess handles one access of a core and returns the prefetch requests
// it produced. Each request is also passed to the Issuer, if any.
// occupancy is the fraction of in-flight miss resources in use.
func (p *Predictor) OnAccess(
	core int,
	addr, ip uint64,
	hit bool,
	typ AccessType,
	occupancy float64,
) []Request {
	cs := p.core(core)
	cs.stats.Accesses++

	if !typ.IsDemand() {
		cs.stats.Ignored++
		return nil
	}

	block := p.g.blockAddr(addr)
	page := p.g.page(block)
	offset := p.g.offset(block)
	row := p.g.pcRow(ip)
	tag := p.g.pcTag(ip)

	reqs := p.predict(cs, core, page, offset, row, tag, occupancy)

	if !p.g.sampled(page) {
		return reqs
	}
	cs.stats.Sampled++

	victim := cs.hist.advance()
	p.evict(cs, victim, cs.hist.cursor)
	p.record(cs, page, offset, row, tag)

	return reqs
}

// predict emits every offset of the page whose stride from offset is owned
// by this PC with enough accuracy.
func (p *Predictor) predict(
	cs *coreState,
	core int,
	page uint64,
	offset, rowIdx, tag uint32,
	occupancy float64,
) []Request {
	row := cs.deltas.row(rowIdx)
	fill := occupancy < p.g.maxFill

	var reqs []Request
	for x := uint32(0); x < p.g.offsets; x++ {
		if x == offset {
			continue
		}
		slot := row[p.g.strideIndex(offset, x, tag)]
		if slot.tag != tag || slot.acc < p.g.prefAcc {
			continue
		}

		req := Request{
			Addr: p.g.byteAddr(p.g.compose(page, x), 0),
			Fill: fill,
		}
		reqs = append(reqs, req)

		cs.stats.Prefetches++
		if fill {
			cs.stats.FillAllowed++
		}
		if p.issuer != nil {
			p.issuer.IssuePrefetch(core, req.Addr, req.Fill)
		}
	}

	return reqs
}

// evict retires the history entry leaving the window and trains its row.
// tick is the cursor position, used to pace usefulness updates.
func (p *Predictor) evict(cs *coreState, victim historyEntry, tick uint32) {
	if !victim.valid {
		return
	}

	entry := cs.pages.lookup(victim.bucket, victim.pageTag)
	if entry != nil && victim.counted {
		entry.decrement(victim.offset)
	}

	p.train(cs, victim, entry, tick)
}

// train updates every stride slot reachable from the victim's offset. An
// offset whose page counter is zero was not touched while the victim was in
// the window and counts against the stride; any other offset counts for it.
func (p *Predictor) train(cs *coreState, victim historyEntry, entry *pageEntry, tick uint32) {
	row := cs.deltas.row(victim.row)
	decayUse := tick&p.g.useGranMask == 0
	growUse := tick&p.g.useIncBit == 0

	for x := uint32(0); x < p.g.offsets; x++ {
		if x == victim.offset {
			continue
		}
		slot := &row[p.g.strideIndex(victim.offset, x, victim.pcTag)]

		if entry == nil || entry.counts[x] == 0 {
			if slot.tag == victim.pcTag {
				slot.acc = p.g.detrain(slot.acc)
				cs.stats.NegativeTrains++
			}
			continue
		}

		if slot.tag != victim.pcTag {
			if slot.use > 0 {
				if decayUse {
					slot.use--
				}
				cs.stats.Protected++
				continue
			}
			slot.tag = victim.pcTag
			if slot.acc > p.g.defAcc {
				slot.acc = p.g.defAcc
			}
			cs.stats.Overtakes++
		}

		if growUse && slot.use < p.g.maxUse {
			slot.use++
		}
		slot.acc = p.g.train(slot.acc)
		cs.stats.PositiveTrains++
	}
}

// record counts the access in the page offset table and writes it to the
// current history slot. If no way of the page's set is free the slot is
// invalidated instead.
func (p *Predictor) record(cs *coreState, page uint64, offset, row, tag uint32) {
	bucket, pageTag := p.g.pageKey(page)

	entry := cs.pages.find(bucket, pageTag)
	if entry == nil {
		cs.hist.drop()
		cs.stats.Dropped++
		return
	}

	entry.tag = pageTag
	counted := entry.increment(offset, p.g.maxCount)

	cs.hist.record(historyEntry{
		row:     row,
		pcTag:   tag,
		bucket:  bucket,
		pageTag: pageTag,
		offset:  offset,
		counted: counted,
		valid:   true,
	})
	cs.stats.Recorded++
}

// OnFill is called when a block is filled into the cache.
func (p *Predictor) OnFill(core int, addr uint64, set, way int, prefetch bool, evictedAddr uint64) {
	cs := p.core(core)
	cs.stats.Fills++
	if prefetch {
		cs.stats.PrefetchFills++
	}
}

// OnCycle is called once per cache cycle. The predictor keeps no timed
// state.
func (p *Predictor) OnCycle(core int) {
	p.core(core)
}

// OnShutdown is called when the simulation ends. All state lives as long as
// the Predictor.
func (p *Predictor) OnShutdown() {}
