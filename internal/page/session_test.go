package page

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/lifecycle"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
	"github.com/moachat/pushkit/internal/routing"
)

type fakeConn struct {
	mu         sync.Mutex
	connected  bool
	reconnects int
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Reconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	c.connected = true
	return nil
}

func (c *fakeConn) reconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

type fakeRoom struct {
	mu       sync.Mutex
	room     string
	rejoins  int
	detaches int
}

func (r *fakeRoom) Room() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.room
}

func (r *fakeRoom) Rejoin(_ context.Context, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejoins++
	r.room = roomID
	return nil
}

func (r *fakeRoom) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detaches++
	r.room = ""
}

type sessionFixture struct {
	session *Session
	conn    *fakeConn
	room    *fakeRoom
	stored  *routing.StoredSignal

	mu          sync.Mutex
	navigations []string
	cleared     []string
}

// verifyNoLeaks ignores the go-cache janitor, which lives until its cache
// is collected.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	m, err := metrics.NewMetrics()
	require.NoError(t, err)

	f := &sessionFixture{
		conn:   &fakeConn{connected: true},
		room:   &fakeRoom{room: "room-1"},
		stored: routing.NewStoredSignal(time.Minute),
	}

	settings := conf.PageSettings{
		DebounceWindow:     conf.Duration(20 * time.Millisecond),
		LivenessInterval:   conf.Duration(25 * time.Millisecond),
		RejoinGrace:        conf.Duration(5 * time.Millisecond),
		StoredPollInterval: conf.Duration(10 * time.Millisecond),
	}

	f.session = NewSession(Options{
		Settings: settings,
		Conn:     f.conn,
		Room:     f.room,
		Navigate: func(path string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.navigations = append(f.navigations, path)
		},
		ClearNotifications: func(roomID string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.cleared = append(f.cleared, roomID)
		},
		Stored:  f.stored,
		Log:     logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
		Metrics: m,
	})
	t.Cleanup(f.session.Stop)
	return f
}

func (f *sessionFixture) navigatedTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

func (f *sessionFixture) clearedRooms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cleared...)
}

func TestSession_StartsBackground(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(t)
	f.session.Start(context.Background())

	assert.Equal(t, lifecycle.StateBackground, f.session.VisibilityState())
}

func TestSession_ForegroundTriggersRecovery(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	f.conn.mu.Lock()
	f.conn.connected = false
	f.conn.mu.Unlock()

	f.session.Start(context.Background())
	f.session.SignalVisibility(lifecycle.SourceVisibility, true)
	f.session.SignalVisibility(lifecycle.SourceFocus, true)
	f.session.SignalVisibility(lifecycle.SourcePageShow, true)

	require.Eventually(t, func() bool {
		return f.conn.Connected()
	}, time.Second, 5*time.Millisecond)

	// The burst produced exactly one recovery.
	assert.Equal(t, 1, f.conn.reconnectCount())

	f.room.mu.Lock()
	rejoins := f.room.rejoins
	f.room.mu.Unlock()
	assert.Equal(t, 1, rejoins)

	f.session.Stop()
}

func TestSession_LivenessPollWhileForeground(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	f.session.Start(context.Background())
	f.session.SignalVisibility(lifecycle.SourceFocus, true)

	require.Eventually(t, func() bool {
		return f.session.VisibilityState() == lifecycle.StateForeground
	}, time.Second, 5*time.Millisecond)

	// Kill the connection; the poll notices and recovers it.
	f.conn.mu.Lock()
	f.conn.connected = false
	f.conn.mu.Unlock()

	require.Eventually(t, func() bool {
		return f.conn.Connected()
	}, time.Second, 5*time.Millisecond)

	// Background stops the poll; a dropped connection stays dropped.
	f.session.SignalVisibility(lifecycle.SourcePageHide, false)
	f.conn.mu.Lock()
	f.conn.connected = false
	reconnectsBefore := f.conn.reconnects
	f.conn.mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, f.conn.Connected())
	assert.Equal(t, reconnectsBefore, f.conn.reconnectCount())

	f.session.Stop()
}

func TestSession_StoredClickRoutesCrossRoom(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	f.stored.Store(routing.NewClickEvent("room-9", "https://chat.example.com"))

	f.session.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(f.navigatedTo()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"/chat/room-9"}, f.navigatedTo())
	f.room.mu.Lock()
	assert.Equal(t, 1, f.room.detaches, "cross-room switch detaches without leave")
	f.room.mu.Unlock()

	f.session.Stop()
}

func TestSession_DirectClickSameRoom(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	bus := routing.NewInProcBroadcast()
	defer func() { _ = bus.Close() }()
	f.session.Attach(bus)
	f.session.Start(context.Background())

	ev := routing.NewClickEvent("room-1", "https://chat.example.com")
	payload, err := ev.Encode()
	require.NoError(t, err)
	require.NoError(t, bus.Publish(payload))

	require.Eventually(t, func() bool {
		return len(f.clearedRooms()) >= 1
	}, time.Second, 5*time.Millisecond)

	// The relay clears immediately; the synthetic foreground transition
	// clears the same room again once the debounce window fires. Only
	// room-1 is ever cleared, and the view never navigates away.
	for _, room := range f.clearedRooms() {
		assert.Equal(t, "room-1", room)
	}
	assert.Empty(t, f.navigatedTo())

	require.Eventually(t, func() bool {
		return f.session.VisibilityState() == lifecycle.StateForeground
	}, time.Second, 5*time.Millisecond)

	f.session.Stop()
}

func TestSession_ForegroundClearsCurrentRoomNotifications(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	f.session.Start(context.Background())
	f.session.SignalVisibility(lifecycle.SourceFocus, true)

	// Returning to a visible conversation dismisses any notification
	// still pending for it.
	require.Eventually(t, func() bool {
		return len(f.clearedRooms()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"room-1"}, f.clearedRooms())

	f.session.Stop()
}

func TestSession_ForegroundWithoutRoomClearsNothing(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	f.room.mu.Lock()
	f.room.room = ""
	f.room.mu.Unlock()

	f.session.Start(context.Background())
	f.session.SignalVisibility(lifecycle.SourceFocus, true)

	require.Eventually(t, func() bool {
		return f.session.VisibilityState() == lifecycle.StateForeground
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.clearedRooms())

	f.session.Stop()
}

func TestSession_StopIsIdempotent(t *testing.T) {
	defer verifyNoLeaks(t)

	f := newSessionFixture(t)
	f.session.Start(context.Background())
	f.session.Start(context.Background())
	f.session.Stop()
	f.session.Stop()
}
