package prefetch

import "math/bits"

// geometry holds the masks and counter limits derived from a validated
// Config. Every table index produced by the predictor passes through one of
// these masks.
type geometry struct {
	blockBits  uint
	offsetBits uint
	offsets    uint32
	strideMask uint32

	rowBits     uint
	rowMask     uint32
	tagMask     uint32
	reverseBits uint

	maxAcc     uint32
	prefAcc    uint32
	defAcc     uint32
	trainShift uint
	trainHalf  uint32
	trainStep  uint32

	maxUse      uint32
	useGranMask uint32
	useIncBit   uint32

	historyMask uint32
	sampleBits  uint
	sampleMask  uint64
	bucketBits  uint
	bucketMask  uint32
	pageTagMask uint32
	ways        int
	maxCount    uint8
	maxFill     float64

	defRow     uint32
	defPCTag   uint32
	defBucket  uint32
	defPageTag uint32
	defOffset  uint32
}

func newGeometry(c *Config) geometry {
	g := geometry{
		blockBits:  c.BlockBits,
		offsetBits: c.PageBits - c.BlockBits,
		rowBits:    c.PCRowBits,
		trainShift: c.TrainShift,
		sampleBits: c.SampleBits,
		bucketBits: c.BucketBits,
		ways:       1 << c.WayBits,
		maxFill:    c.MaxFillOccupancy,
	}

	g.offsets = 1 << g.offsetBits
	g.strideMask = (2 << g.offsetBits) - 1
	g.reverseBits = g.offsetBits + 1

	g.rowMask = (1 << c.PCRowBits) - 1
	g.tagMask = (1 << c.PCTagBits) - 1

	g.maxAcc = (1 << c.AccuracyBits) - 1
	g.prefAcc = uint32(c.PrefetchThreshold * float64(uint32(1)<<c.AccuracyBits))
	g.defAcc = g.prefAcc / 2
	g.trainHalf = 1 << (c.TrainShift - 1)
	g.trainStep = 1 << (c.AccuracyBits - c.TrainShift)

	g.maxUse = (1 << c.UsefulBits) - 1
	g.useGranMask = (1 << c.UsefulGranularityBits) - 1
	g.useIncBit = 1 << (c.UsefulGranularityBits - 1)

	g.historyMask = (1 << c.HistoryBits) - 1
	g.sampleMask = (1 << c.SampleBits) - 1
	g.bucketMask = (1 << c.BucketBits) - 1
	g.pageTagMask = (1 << c.PageTagBits) - 1
	g.maxCount = uint8((1 << c.CounterBits) - 1)

	g.defRow = g.rowMask
	g.defPCTag = g.tagMask
	g.defBucket = g.bucketMask
	g.defPageTag = g.pageTagMask
	g.defOffset = g.offsets - 1

	return g
}

// blockAddr converts a byte address to a block address.
func (g *geometry) blockAddr(byteAddr uint64) uint64 {
	return byteAddr >> g.blockBits
}

// byteAddr converts a block address back to a byte address.
func (g *geometry) byteAddr(blockAddr uint64, b uint64) uint64 {
	return blockAddr<<g.blockBits + b
}

func (g *geometry) page(blockAddr uint64) uint64 {
	return blockAddr >> g.offsetBits
}

func (g *geometry) offset(blockAddr uint64) uint32 {
	return uint32(blockAddr) & (g.offsets - 1)
}

// compose rebuilds a block address from a page and an offset.
func (g *geometry) compose(page uint64, offset uint32) uint64 {
	return page<<g.offsetBits + uint64(offset)
}

// pcRow returns the PC+delta table row selected by an instruction address.
func (g *geometry) pcRow(ip uint64) uint32 {
	return uint32(CompressPC(ip)) & g.rowMask
}

// pcTag returns the part of the compressed PC not used as the row index.
// Its low bits are bit-reversed so that neighboring PCs spread across the
// stride slots of a row.
func (g *geometry) pcTag(ip uint64) uint32 {
	pc := CompressPC(ip) >> g.rowBits
	low := uint64(1)<<g.reverseBits - 1
	pc = (pc &^ low) ^ ReverseBits(pc&low, g.reverseBits)
	return uint32(pc) & g.tagMask
}

// strideIndex returns the stride slot for moving from offset from to
// offset to within a page, mixed with the PC tag.
func (g *geometry) strideIndex(from, to, tag uint32) uint32 {
	stride := to - from + g.offsets
	return (stride ^ tag) & g.strideMask
}

// sampled reports whether a page passes the sampling gate.
func (g *geometry) sampled(page uint64) bool {
	return page&g.sampleMask == 0
}

// pageKey splits a sampled page into its offset table bucket and tag.
func (g *geometry) pageKey(page uint64) (bucket, tag uint32) {
	page >>= g.sampleBits
	bucket = uint32(page) & g.bucketMask
	tag = uint32(page>>g.bucketBits) & g.pageTagMask
	return bucket, tag
}

// CompressPC removes the trailing zero bits of an instruction address and
// the one bit above them.
func CompressPC(ip uint64) uint64 {
	if ip == 0 {
		return 0
	}
	return ip >> (bits.TrailingZeros64(ip) + 1)
}

// ReverseBits reverses the low width bits of v. Bits above width must be
// zero.
func ReverseBits(v uint64, width uint) uint64 {
	if width == 0 {
		return 0
	}
	return bits.Reverse64(v) >> (64 - width)
}
