// Package heartbeat drives the autonomous planning cadence. The scheduler
// owns one pair of tickers per session (main heartbeat for task synthesis,
// reaction heartbeat for queue draining) and invokes the engine's tick
// operations on schedule. Slow cycles never delay the tick schedule itself;
// the engine's per-session lock decides whether a tick actually runs.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pulse/internal/logging"
)

// ErrAlreadyScheduled is returned when Start is called for a session that
// already has a running heartbeat pair.
var ErrAlreadyScheduled = errors.New("heartbeat: session already scheduled")

// Ticker is the engine-side surface the scheduler drives. Implementations
// must treat a busy session as a skip, not an error.
type Ticker interface {
	TickMainHeartbeat(ctx context.Context, sessionID string) error
	TickReactionHeartbeat(ctx context.Context, sessionID string) error
}

// Cadence carries the two heartbeat periods for one session.
type Cadence struct {
	Main     time.Duration
	Reaction time.Duration
}

func (c Cadence) withDefaults() Cadence {
	if c.Main <= 0 {
		c.Main = 15 * time.Second
	}
	if c.Reaction <= 0 {
		c.Reaction = 5 * time.Second
	}
	return c
}

// Scheduler runs heartbeat loops for any number of sessions. Each session
// gets independent main and reaction tickers so a long reaction cycle does
// not starve task synthesis. Close stops every loop and waits for them.
type Scheduler struct {
	ticker Ticker
	logger *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	group   errgroup.Group
	closed  bool
}

// NewScheduler builds a scheduler around the given tick surface. A nil
// logger disables logging.
func NewScheduler(ticker Ticker, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		ticker:  ticker,
		logger:  logging.OrNop(logger).Named("heartbeat"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start begins the heartbeat pair for a session. Zero cadence fields fall
// back to the 15s/5s defaults.
func (s *Scheduler) Start(sessionID string, cadence Cadence) error {
	cadence = cadence.withDefaults()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("heartbeat: scheduler closed")
	}
	if _, ok := s.cancels[sessionID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyScheduled, sessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[sessionID] = cancel
	s.group.Go(func() error {
		s.loop(ctx, sessionID, cadence.Main, "main", s.ticker.TickMainHeartbeat)
		return nil
	})
	s.group.Go(func() error {
		s.loop(ctx, sessionID, cadence.Reaction, "reaction", s.ticker.TickReactionHeartbeat)
		return nil
	})
	s.logger.Info("heartbeats started",
		zap.String("session", sessionID),
		zap.Duration("main", cadence.Main),
		zap.Duration("reaction", cadence.Reaction))
	return nil
}

// Running reports whether the session currently has a heartbeat pair.
func (s *Scheduler) Running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancels[sessionID]
	return ok
}

// Stop halts a session's heartbeat pair. No-op for unknown sessions.
func (s *Scheduler) Stop(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.cancels[sessionID]
	if ok {
		delete(s.cancels, sessionID)
	}
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info("heartbeats stopped", zap.String("session", sessionID))
	}
}

// Close stops every session and waits for all loops to return.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()
	return s.group.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sessionID string, period time.Duration,
	kind string, tick func(context.Context, string) error) {

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx, sessionID); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("heartbeat tick failed",
					zap.String("session", sessionID),
					zap.String("kind", kind),
					zap.Error(err))
			}
		}
	}
}
