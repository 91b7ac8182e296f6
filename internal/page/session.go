// Package page assembles the in-page machinery: signal relay, visibility
// state machine, and connection supervisor, wired to one chat view.
package page

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/lifecycle"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
	"github.com/moachat/pushkit/internal/routing"
	"github.com/moachat/pushkit/internal/supervisor"
)

// RoomSession is what the page needs from the chat session: supervisor
// recovery plus the ability to drop a room without a server leave.
type RoomSession interface {
	supervisor.RoomSession
	Detach()
}

// Session is one live page context. It listens on every click signal
// channel, folds platform lifecycle signals into foreground/background
// transitions, and keeps the realtime connection alive while visible.
type Session struct {
	id                 string
	machine            *lifecycle.Machine
	sup                *supervisor.Supervisor
	relay              *routing.Relay
	room               RoomSession
	navigate           func(path string)
	clearNotifications func(roomID string)
	log                logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// Options carries the collaborators a session is built from.
type Options struct {
	Settings conf.PageSettings
	Conn     supervisor.Connection
	Room     RoomSession
	// Navigate routes the view to a relative path.
	Navigate func(path string)
	// ClearNotifications dismisses pending notifications for a room.
	ClearNotifications func(roomID string)
	// Stored is the stored-and-polled fallback channel; may be nil.
	Stored  *routing.StoredSignal
	Log     logger.Logger
	Metrics *metrics.Metrics
}

// NewSession builds a page session. Call Attach for each signal channel,
// then Start.
func NewSession(opts Options) *Session {
	s := &Session{
		id:                 uuid.New().String(),
		room:               opts.Room,
		navigate:           opts.Navigate,
		clearNotifications: opts.ClearNotifications,
		log:                opts.Log,
	}

	s.sup = supervisor.New(
		opts.Conn,
		opts.Room,
		opts.Settings.LivenessInterval.Std(),
		opts.Settings.RejoinGrace.Std(),
		opts.Log,
		opts.Metrics.Connection,
	)

	// Foreground is when silent transport deaths surface; check
	// immediately and keep polling. Background stops the poll, since a
	// hidden tab cannot usefully reconnect anyway. Any notification for
	// the room the user is now looking at is stale, so it is cleared on
	// the same transition.
	s.machine = lifecycle.NewMachine(
		opts.Settings.DebounceWindow.Std(),
		func(lifecycle.Source) {
			if room := s.CurrentRoom(); room != "" {
				s.ClearNotifications(room)
			}
			s.CheckLiveness()
			s.startLiveness()
		},
		func(lifecycle.Source) {
			s.sup.StopLiveness()
		},
		opts.Log,
		opts.Metrics.Connection,
	)

	s.relay = routing.NewRelay(s, opts.Stored, opts.Settings.StoredPollInterval.Std(), opts.Log, opts.Metrics.Routing)
	return s
}

// ID identifies this session.
func (s *Session) ID() string { return s.id }

// Attach subscribes the session's relay to a signal channel. Must happen
// before Start.
func (s *Session) Attach(ch routing.Subscribable) {
	s.relay.Attach(ch)
}

// Start brings the session up. The session starts in the background state;
// the embedding view reports the first real visibility signal.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.relay.Start()
	s.log.Info("page session started", logger.String("session_id", s.id))
}

// Stop tears the session down: relay subscriptions, visibility machine,
// and the liveness poll all end here.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	s.cancel()
	s.relay.Stop()
	s.machine.Stop()
	s.sup.StopLiveness()
	s.log.Info("page session stopped", logger.String("session_id", s.id))
}

// SignalVisibility feeds a platform lifecycle signal into the machine.
func (s *Session) SignalVisibility(source lifecycle.Source, foreground bool) {
	if foreground {
		s.machine.SignalForeground(source)
	} else {
		s.machine.SignalBackground(source)
	}
}

// VisibilityState returns the consolidated foreground/background state.
func (s *Session) VisibilityState() lifecycle.State {
	return s.machine.State()
}

// EnsureConnected exposes the supervisor's recovery routine for callers
// outside the signal paths (e.g. a send that just failed).
func (s *Session) EnsureConnected(ctx context.Context) error {
	return s.sup.EnsureConnected(ctx)
}

func (s *Session) startLiveness() {
	s.mu.Lock()
	ctx := s.ctx
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.sup.StartLiveness(ctx)
}

// CurrentRoom implements routing.RoomView.
func (s *Session) CurrentRoom() string { return s.room.Room() }

// DetachRoom implements routing.RoomView: drop the room without a server
// leave. The navigation target issues its own join.
func (s *Session) DetachRoom() { s.room.Detach() }

// Navigate implements routing.RoomView.
func (s *Session) Navigate(path string) {
	if s.navigate != nil {
		s.navigate(path)
	}
}

// ClearNotifications implements routing.RoomView.
func (s *Session) ClearNotifications(roomID string) {
	if s.clearNotifications != nil {
		s.clearNotifications(roomID)
	}
}

// SignalForeground implements routing.RoomView: a routed click is treated
// as a foreground moment regardless of what the platform reports.
func (s *Session) SignalForeground() {
	s.machine.SignalForeground(lifecycle.SourcePushClick)
}

// CheckLiveness implements routing.RoomView.
func (s *Session) CheckLiveness() {
	s.mu.Lock()
	ctx := s.ctx
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	go func() {
		if err := s.sup.EnsureConnected(ctx); err != nil {
			s.log.Warn("liveness recovery failed", logger.Error(err))
		}
	}()
}
