package params

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Source identifies where a parameter change originated.
type Source string

const (
	// SourceLocal is a change made through this process's administrative surface.
	SourceLocal Source = "local"
	// SourceRemote is a change received from another process.
	SourceRemote Source = "remote"
)

// Change describes one accepted write.
type Change struct {
	// Version increases by one for every accepted write to the store.
	Version uint64
	// Parameters lists the names whose values were written.
	Parameters []string
	Old        Parameters
	New        Parameters
	Source     Source
}

// Listener is notified after a change is visible to Snapshot callers.
// Listeners run on the writer's goroutine, outside the store's lock.
type Listener func(ctx context.Context, change Change)

// Store is the process-wide table of hedging parameters.
//
// Create a Store using NewStore():
//
//	store, err := params.NewStore()
//	snap := store.Snapshot()
//
// A Store is safe for concurrent use.
type Store struct {
	// mu serializes writers and guards version and listeners.
	mu        sync.Mutex
	current   atomic.Pointer[Parameters]
	version   uint64
	listeners []Listener

	defaults Parameters
	logger   zerolog.Logger
	metrics  *metrics
}

// NewStore creates a Store holding the defaults.
func NewStore(opts ...Option) (*Store, error) {
	cfg := newConfig(opts...)
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("params: invalid defaults: %w", err)
	}

	s := &Store{
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
	}
	initial := cfg.Defaults
	s.current.Store(&initial)

	m, err := newMetrics(cfg.MeterProvider.Meter(scope), s)
	if err != nil {
		return nil, fmt.Errorf("params: create metrics: %w", err)
	}
	s.metrics = m

	return s, nil
}

// Snapshot atomically captures both parameters.
func (s *Store) Snapshot() Snapshot {
	return s.current.Load().Snapshot()
}

// Parameters returns a copy of the current values.
func (s *Store) Parameters() Parameters {
	return *s.current.Load()
}

// Defaults returns the values Reset restores.
func (s *Store) Defaults() Parameters {
	return s.defaults
}

// Get returns the current value of the named parameter: a HedgingMode for
// readHedgingMode and an int for maxTimeMSForHedgedReads.
func (s *Store) Get(name string) (any, error) {
	return s.current.Load().Value(name)
}

// Set validates value and replaces the named parameter. On error the store is
// unchanged.
func (s *Store) Set(ctx context.Context, name string, value any) error {
	return s.write(ctx, SourceLocal, []string{name}, func(p *Parameters) error {
		return p.assign(name, value)
	})
}

// Reset restores the named parameter to its default.
func (s *Store) Reset(ctx context.Context, name string) error {
	return s.write(ctx, SourceLocal, []string{name}, func(p *Parameters) error {
		return p.copyField(name, s.defaults)
	})
}

// Update replaces every parameter at once as a local change.
func (s *Store) Update(ctx context.Context, p Parameters) error {
	return s.UpdateFrom(ctx, p, SourceLocal)
}

// UpdateFrom replaces every parameter at once, attributing the change to
// source. p is validated as a whole; nothing is applied if any field fails.
func (s *Store) UpdateFrom(ctx context.Context, p Parameters, source Source) error {
	return s.write(ctx, source, Names(), func(next *Parameters) error {
		if err := p.Validate(); err != nil {
			return err
		}
		*next = p
		return nil
	})
}

// OnChange registers l for every subsequent accepted write.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// write applies mutate to a copy of the current value and publishes it.
func (s *Store) write(
	ctx context.Context,
	source Source,
	names []string,
	mutate func(*Parameters) error,
) error {
	s.mu.Lock()
	old := *s.current.Load()
	next := old
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		s.rejected(ctx, names, err)
		return err
	}
	s.current.Store(&next)
	s.version++
	change := Change{
		Version:    s.version,
		Parameters: names,
		Old:        old,
		New:        next,
		Source:     source,
	}
	listeners := s.listeners[:len(s.listeners):len(s.listeners)]
	s.mu.Unlock()

	for _, name := range names {
		s.metrics.recordUpdate(ctx, name, source)
	}
	s.logger.Info().
		Strs("parameters", names).
		Str("source", string(source)).
		Uint64("version", change.Version).
		Str("old_read_hedging_mode", string(old.ReadHedgingMode)).
		Str("new_read_hedging_mode", string(next.ReadHedgingMode)).
		Int("old_max_time_ms_for_hedged_reads", old.MaxTimeMSForHedgedReads).
		Int("new_max_time_ms_for_hedged_reads", next.MaxTimeMSForHedgedReads).
		Msg("server parameters updated")

	for _, l := range listeners {
		l(ctx, change)
	}
	return nil
}

func (s *Store) rejected(ctx context.Context, names []string, err error) {
	for _, name := range names {
		// Names come from callers; only registered ones become label values.
		if _, err := s.defaults.Value(name); err != nil {
			name = unknownParameterLabel
		}
		s.metrics.recordRejected(ctx, name)
	}
	s.logger.Warn().
		Err(err).
		Strs("parameters", names).
		Msg("server parameter change rejected")
}
