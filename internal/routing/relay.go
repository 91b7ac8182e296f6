package routing

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
)

const (
	// seenEventTTL bounds the duplicate filter. Redundant copies of a
	// click arrive within seconds; anything later is a different click.
	// Tied to the stored-signal TTL cap, so a click still sitting in the
	// stored slot always hits a live dedupe entry when polled again.
	seenEventTTL = conf.MaxStoredSignalTTL
)

// Subscribable is any channel the relay can listen on. Both the direct
// channel and the broadcast channel satisfy it.
type Subscribable interface {
	Subscribe(fn PayloadHandler) (cancel func())
}

// RoomView is the relay's window onto the page session it runs in. All
// methods are invoked from the relay's delivery goroutines.
type RoomView interface {
	// CurrentRoom returns the room the view is showing, or "" when none.
	CurrentRoom() string
	// DetachRoom drops the current room's listeners without sending a
	// leave to the server. The user is switching rooms, not exiting.
	DetachRoom()
	// Navigate routes the view to a relative path.
	Navigate(path string)
	// ClearNotifications dismisses pending notifications for a room.
	ClearNotifications(roomID string)
	// SignalForeground feeds a synthetic foreground signal into the
	// visibility machine.
	SignalForeground()
	// CheckLiveness triggers an immediate connection-liveness check.
	CheckLiveness()
}

// Relay listens on every signal channel a page session has, filters for
// click events, drops duplicates, and applies the event to the view. The
// same event arriving on three channels must behave exactly like one
// arrival.
type Relay struct {
	view    RoomView
	stored  *StoredSignal
	pollInt time.Duration
	seen    *gocache.Cache
	log     logger.Logger
	metrics *metrics.RoutingMetrics

	mu      sync.Mutex
	cancels []func()
	stopCh  chan struct{}
	started bool
}

// NewRelay creates a relay for the given view. stored may be nil when the
// stored-and-polled fallback is not configured; m may be nil.
func NewRelay(view RoomView, stored *StoredSignal, pollInterval time.Duration, log logger.Logger, m *metrics.RoutingMetrics) *Relay {
	return &Relay{
		view:    view,
		stored:  stored,
		pollInt: pollInterval,
		seen:    gocache.New(seenEventTTL, seenEventTTL),
		log:     log,
		metrics: m,
	}
}

// Attach subscribes the relay to a channel. Must be called before Start.
func (r *Relay) Attach(ch Subscribable) {
	cancel := ch.Subscribe(r.Handle)
	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()
}

// Start begins polling the stored-signal slot. Subscriptions made via
// Attach are already live. Safe to call when no stored slot is configured.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.stopCh = make(chan struct{})
	if r.stored != nil && r.pollInt > 0 {
		go r.pollLoop(r.stopCh)
	}
}

// Stop cancels every subscription and the stored-signal poll. Safe to call
// multiple times.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopCh != nil {
		close(r.stopCh)
		r.stopCh = nil
	}
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	r.started = false
}

func (r *Relay) pollLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(r.pollInt)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if ev, ok := r.stored.Latest(); ok {
				r.apply(ev)
			}
		case <-stopCh:
			return
		}
	}
}

// Handle processes a raw payload from any channel. Unrelated traffic and
// unparseable payloads are ignored; the channels are shared.
func (r *Relay) Handle(payload []byte) {
	ev, err := DecodeClickEvent(payload)
	if err != nil {
		r.log.Debug("ignoring unparseable channel payload", logger.Error(err))
		return
	}
	if !ev.Valid() {
		return
	}
	r.apply(ev)
}

func (r *Relay) apply(ev *ClickEvent) {
	if ev.EventID != "" {
		if _, dup := r.seen.Get(ev.EventID); dup {
			if r.metrics != nil {
				r.metrics.DuplicatesDropped.Inc()
			}
			return
		}
		r.seen.SetDefault(ev.EventID, struct{}{})
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("relay action panicked", logger.Any("panic", rec))
		}
	}()

	// A click is definitionally a foreground moment, whatever the
	// platform visibility signals currently claim.
	r.view.SignalForeground()

	current := r.view.CurrentRoom()
	switch {
	case ev.RoomID != "" && ev.RoomID != current:
		r.log.Info("click routed to different room",
			logger.String("from", current),
			logger.String("to", ev.RoomID))
		r.view.DetachRoom()
		r.view.Navigate(ev.TargetPath)
	default:
		r.view.ClearNotifications(ev.RoomID)
		r.view.CheckLiveness()
	}
}
