package prefetch

// Stats holds per-core predictor statistics.
type Stats struct {
	// Accesses is the number of accesses seen, demand or not.
	Accesses uint64
	// Ignored counts writebacks, prefetches and translations.
	Ignored uint64
	// Sampled counts demand accesses that passed the sampling gate.
	Sampled uint64
	// Recorded counts sampled accesses written to the history buffer.
	Recorded uint64
	// Dropped counts sampled accesses not recorded because every way of
	// their page offset table set was in use.
	Dropped uint64
	// Prefetches is the number of prefetch requests issued.
	Prefetches uint64
	// FillAllowed counts requests issued with the fill flag set.
	FillAllowed uint64
	// PositiveTrains counts stride slots trained up.
	PositiveTrains uint64
	// NegativeTrains counts stride slots trained down.
	NegativeTrains uint64
	// Overtakes counts stride slots claimed from another PC.
	Overtakes uint64
	// Protected counts positive outcomes skipped because the slot was still
	// useful to another PC.
	Protected uint64
	// Fills and PrefetchFills count fill notifications.
	Fills         uint64
	PrefetchFills uint64
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Accesses += other.Accesses
	s.Ignored += other.Ignored
	s.Sampled += other.Sampled
	s.Recorded += other.Recorded
	s.Dropped += other.Dropped
	s.Prefetches += other.Prefetches
	s.FillAllowed += other.FillAllowed
	s.PositiveTrains += other.PositiveTrains
	s.NegativeTrains += other.NegativeTrains
	s.Overtakes += other.Overtakes
	s.Protected += other.Protected
	s.Fills += other.Fills
	s.PrefetchFills += other.PrefetchFills
}

// SampleRate returns the fraction of demand accesses that were sampled.
func (s Stats) SampleRate() float64 {
	demand := s.Accesses - s.Ignored
	if demand == 0 {
		return 0
	}
	return float64(s.Sampled) / float64(demand)
}

// PrefetchesPerAccess returns the average number of requests per demand
// access.
func (s Stats) PrefetchesPerAccess() float64 {
	demand := s.Accesses - s.Ignored
	if demand == 0 {
		return 0
	}
	return float64(s.Prefetches) / float64(demand)
}
