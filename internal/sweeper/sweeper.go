// Package sweeper evicts participants that stopped sending activity and
// announces their departure to the room.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/batepapo/internal/metrics"
	"github.com/eldtechnologies/batepapo/internal/models"
)

const maxConcurrentEvictions = 8

// Store is the subset of the chat store the sweeper needs.
type Store interface {
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	RemoveParticipant(ctx context.Context, name string) error
	AppendMessage(ctx context.Context, msg *models.Message) (string, error)
}

// Sweeper periodically removes inactive participants.
type Sweeper struct {
	store     Store
	logger    zerolog.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock replaces time.Now as the sweeper's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// New creates a sweeper that runs every interval and evicts participants
// idle for longer than threshold.
func New(store Store, logger zerolog.Logger, interval, threshold time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		logger:    logger.With().Str("component", "sweeper").Logger(),
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the sweep loop in its own goroutine until Stop is called or
// ctx is canceled. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
}

// Stop cancels the loop started by Start and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run sweeps on every tick until ctx is done. A failed sweep is logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("threshold", s.threshold).
		Msg("sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				metrics.SweepFailures.Inc()
				s.logger.Warn().Err(err).Msg("sweep skipped")
			}
		}
	}
}

// Sweep performs a single pass and returns how many participants were
// evicted with a departure notice. Each eviction removes the participant
// and then appends a status message; the two writes are independent, so a
// failure between them leaves a removed participant without a notice.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	participants, err := s.store.ListParticipants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list participants: %w", err)
	}

	now := s.now()
	var evicted atomic.Int64

	var g errgroup.Group
	g.SetLimit(maxConcurrentEvictions)
	for _, p := range participants {
		if p.IdleFor(now) <= s.threshold {
			continue
		}
		p := p
		g.Go(func() error {
			if s.evict(ctx, p.Name, now) {
				evicted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(evicted.Load()), nil
}

func (s *Sweeper) evict(ctx context.Context, name string, now time.Time) bool {
	if err := s.store.RemoveParticipant(ctx, name); err != nil {
		metrics.SweepFailures.Inc()
		s.logger.Error().Err(err).Str("participant", name).Msg("failed to remove inactive participant")
		return false
	}
	metrics.ParticipantsExpired.Inc()

	if _, err := s.store.AppendMessage(ctx, models.StatusMessage(name, models.TextLeft, now)); err != nil {
		metrics.SweepFailures.Inc()
		s.logger.Error().Err(err).Str("participant", name).Msg("removed participant but failed to post departure")
		return false
	}

	metrics.MessagesPosted.WithLabelValues(string(models.TypeStatus)).Inc()
	s.logger.Info().Str("participant", name).Msg("participant expired")
	return true
}
