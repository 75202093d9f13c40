package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/pdtsim/timing/cache"
	"github.com/sarchlab/pdtsim/timing/prefetch"
	"github.com/sarchlab/pdtsim/trace"
)

// queueDepth is the number of records buffered per core during replay.
const queueDepth = 1024

// System is a set of cores sharing one predictor. The predictor keeps
// separate tables per core, so cores can be replayed concurrently.
type System struct {
	config    Config
	cores     []*Core
	predictor *prefetch.Predictor
	logger    logr.Logger
	replayed  uint64
}

// SystemOption is a functional option for configuring a System.
type SystemOption func(*System)

// WithLogger sets the logger used for replay progress.
func WithLogger(logger logr.Logger) SystemOption {
	return func(s *System) {
		s.logger = logger
	}
}

// NewSystem creates a system from config. A nil config means
// DefaultConfig.
func NewSystem(config *Config, opts ...SystemOption) (*System, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid system config: %w", err)
	}

	s := &System{
		config: *config.Clone(),
		logger: logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var hooks prefetch.Prefetcher
	if s.config.Prefetch {
		p, err := prefetch.NewPredictor(&s.config.Predictor, prefetch.WithIssuer(s))
		if err != nil {
			return nil, err
		}
		s.predictor = p
		hooks = p
	}

	s.cores = make([]*Core, s.config.NumCores())
	for i := range s.cores {
		s.cores[i] = NewCore(i, &s.config, hooks)
	}

	s.logger.V(1).Info("system created",
		"cores", len(s.cores),
		"prefetch", s.config.Prefetch,
		"l1dSize", s.config.L1D.Size,
		"mshrEntries", s.config.L1D.MSHREntries)

	return s, nil
}

// Config returns the system configuration.
func (s *System) Config() *Config {
	return s.config.Clone()
}

// NumCores returns the number of cores.
func (s *System) NumCores() int {
	return len(s.cores)
}

// Core returns core i.
func (s *System) Core(i int) *Core {
	return s.cores[i]
}

// Predictor returns the shared predictor, or nil if prefetching is
// disabled.
func (s *System) Predictor() *prefetch.Predictor {
	return s.predictor
}

// IssuePrefetch routes a prefetch request to the L1D of the requesting
// core.
func (s *System) IssuePrefetch(core int, addr uint64, fill bool) bool {
	return s.cores[core].Prefetch(addr, fill)
}

// Access performs one access on a core.
func (s *System) Access(core int, addr, ip uint64, typ prefetch.AccessType) cache.AccessResult {
	return s.cores[core].Access(addr, ip, typ)
}

// Run replays a trace. Records are dispatched to one goroutine per core, so
// the accesses of a core keep their trace order while different cores run
// in parallel. Run stops at the first read error, at a record naming an
// unknown core, or when ctx is cancelled.
func (s *System) Run(ctx context.Context, r trace.Reader) error {
	g, ctx := errgroup.WithContext(ctx)

	queues := make([]chan trace.Record, len(s.cores))
	for i := range queues {
		queues[i] = make(chan trace.Record, queueDepth)
	}

	for i, c := range s.cores {
		queue := queues[i]
		g.Go(func() error {
			for {
				select {
				case rec, ok := <-queue:
					if !ok {
						return nil
					}
					c.Access(rec.Addr, rec.IP, rec.Type)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	var count uint64
	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()

		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read trace: %w", err)
			}
			if rec.CPU < 0 || rec.CPU >= len(queues) {
				return fmt.Errorf("record %d: cpu %d out of range [0, %d)",
					count, rec.CPU, len(queues))
			}

			select {
			case queues[rec.CPU] <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%(1<<20) == 0 {
				s.logger.V(2).Info("replay progress", "records", count)
			}
		}
	})

	s.logger.V(1).Info("replay started", "cores", len(s.cores))
	err := g.Wait()
	s.replayed += count
	if err != nil {
		s.logger.Error(err, "replay failed", "records", count)
		return err
	}
	s.logger.V(1).Info("replay finished", "records", count)

	return nil
}

// Replayed returns the number of trace records dispatched by Run.
func (s *System) Replayed() uint64 {
	return s.replayed
}

// Shutdown signals the end of the simulation to the predictor.
func (s *System) Shutdown() {
	if s.predictor != nil {
		s.predictor.OnShutdown()
	}
}

// Reset clears every cache and the predictor tables.
func (s *System) Reset() {
	for _, c := range s.cores {
		c.Reset()
	}
	if s.predictor != nil {
		s.predictor.Initialize()
	}
	s.replayed = 0
}

// Stats returns the statistics of all cores combined.
func (s *System) Stats() Stats {
	var total Stats
	for _, c := range s.cores {
		total.Add(c.Stats())
	}
	return total
}

// CacheStats returns the L1D statistics of all cores combined.
func (s *System) CacheStats() cache.Statistics {
	var total cache.Statistics
	for _, c := range s.cores {
		total.Add(c.Cache().Stats())
	}
	return total
}

// PredictorStats returns the predictor statistics of all cores combined.
// It is zero when prefetching is disabled.
func (s *System) PredictorStats() prefetch.Stats {
	if s.predictor == nil {
		return prefetch.Stats{}
	}
	return s.predictor.TotalStats()
}
