// Package supervisor keeps the realtime connection healthy while a room
// view is on screen. Transports optimize for battery and die silently in
// the background, so foreground moments and a steady poll both funnel into
// the same recovery routine.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
)

// Connection is the realtime transport session the supervisor watches.
type Connection interface {
	// Connected reports whether the transport considers itself healthy.
	Connected() bool
	// Reconnect tears down any half-dead state and establishes a fresh
	// session.
	Reconnect(ctx context.Context) error
}

// RoomSession re-enters the active room after a transport reconnect. The
// server forgets channel membership when the session drops.
type RoomSession interface {
	// Room returns the currently attached room, or "" when none.
	Room() string
	// Rejoin re-enters roomID on the fresh session.
	Rejoin(ctx context.Context, roomID string) error
}

// Supervisor drives liveness checks and recovery for one page session.
type Supervisor struct {
	conn        Connection
	session     RoomSession
	rejoinGrace time.Duration
	interval    time.Duration
	log         logger.Logger
	metrics     *metrics.ConnectionMetrics

	mu     sync.Mutex
	stopCh chan struct{}

	checkMu sync.Mutex
}

// New creates a supervisor. interval is the liveness poll period while a
// view is active; rejoinGrace is how long to let a fresh session settle
// before rejoining the room. m may be nil.
func New(conn Connection, session RoomSession, interval, rejoinGrace time.Duration, log logger.Logger, m *metrics.ConnectionMetrics) *Supervisor {
	return &Supervisor{
		conn:        conn,
		session:     session,
		rejoinGrace: rejoinGrace,
		interval:    interval,
		log:         log,
		metrics:     m,
	}
}

// EnsureConnected verifies the transport and recovers it if needed. On a
// healthy connection it is a cheap no-op, which is what makes it safe to
// call from every foreground moment and every poll tick. Overlapping calls
// collapse: a second caller waits for the first recovery instead of racing
// it.
func (s *Supervisor) EnsureConnected(ctx context.Context) error {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	if s.metrics != nil {
		s.metrics.LivenessChecks.Inc()
	}

	if s.conn.Connected() {
		return nil
	}

	s.log.Info("realtime connection down, reconnecting")
	if s.metrics != nil {
		s.metrics.Reconnects.Inc()
	}
	if err := s.conn.Reconnect(ctx); err != nil {
		return fmt.Errorf("failed to reconnect realtime transport: %w", err)
	}

	// Let the new session settle before issuing the rejoin. A join sent
	// in the same tick as the handshake is prone to landing on the dying
	// session instead.
	select {
	case <-time.After(s.rejoinGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	room := s.session.Room()
	if room == "" {
		return nil
	}
	if err := s.session.Rejoin(ctx, room); err != nil {
		return fmt.Errorf("failed to rejoin room %s: %w", room, err)
	}
	if s.metrics != nil {
		s.metrics.Rejoins.Inc()
	}
	s.log.Info("rejoined room after reconnect", logger.String("room_id", room))
	return nil
}

// StartLiveness begins the periodic liveness poll. It runs until
// StopLiveness is called; starting an already-started supervisor is a
// no-op. The poll belongs to the active view: callers start it when a room
// view mounts and stop it on teardown.
func (s *Supervisor) StartLiveness(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	go s.pollLoop(ctx, s.stopCh)
}

// StopLiveness cancels the liveness poll. Safe to call multiple times and
// when the poll was never started.
func (s *Supervisor) StopLiveness() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *Supervisor) pollLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.EnsureConnected(ctx); err != nil {
				s.log.Warn("liveness recovery failed", logger.Error(err))
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
