package routing

import (
	"context"

	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
)

// ClientContext is a live page context the worker can reach directly.
type ClientContext interface {
	// ID identifies the context for logging.
	ID() string
	// PostMessage delivers a raw payload on the context's direct channel.
	PostMessage(payload []byte) error
	// Focus brings the context to the foreground.
	Focus() error
}

// ClientRegistry enumerates live page contexts and opens new ones.
type ClientRegistry interface {
	Clients(ctx context.Context) ([]ClientContext, error)
	OpenWindow(ctx context.Context, absoluteURL string) error
}

// Dispatcher fans a notification click out to page contexts. Delivery is
// deliberately redundant: every live context gets the event on the direct
// channel, the broadcast channel carries it again, and the stored slot holds
// it for contexts that do not exist yet. Receivers dedupe by EventID.
type Dispatcher struct {
	registry  ClientRegistry
	broadcast Broadcast
	stored    *StoredSignal
	baseURL   string
	log       logger.Logger
	metrics   *metrics.RoutingMetrics
}

// NewDispatcher creates a click fan-out dispatcher. broadcast and stored may
// be nil when the channel is not configured; m may be nil.
func NewDispatcher(registry ClientRegistry, broadcast Broadcast, stored *StoredSignal, baseURL string, log logger.Logger, m *metrics.RoutingMetrics) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		broadcast: broadcast,
		stored:    stored,
		baseURL:   baseURL,
		log:       log,
		metrics:   m,
	}
}

// HandleClick runs the full click pipeline for a notification scoped to
// roomID (may be empty). closeNotification dismisses the clicked
// notification and runs first, before any async work. HandleClick never
// panics and never returns an error: a click must always resolve to the
// best outcome reachable, and a failed step only costs its own channel.
func (d *Dispatcher) HandleClick(ctx context.Context, roomID string, closeNotification func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("click handler panicked", logger.Any("panic", r))
		}
	}()

	if closeNotification != nil {
		closeNotification()
	}

	ev := NewClickEvent(roomID, d.baseURL)
	payload, err := ev.Encode()
	if err != nil {
		d.log.Error("failed to encode click event", logger.Error(err))
		return
	}

	// The stored slot and the broadcast channel carry the event in every
	// branch: a window that opens after the click (or mid-reload) picks the
	// signal up from the slot, and contexts attached in other processes
	// hear it over broadcast even when no local context is registered.
	if d.stored != nil {
		d.stored.Store(ev)
		d.countDispatch("stored")
	}

	if d.broadcast != nil {
		if err := d.broadcast.Publish(payload); err != nil {
			d.log.Warn("broadcast delivery failed", logger.Error(err))
		} else {
			d.countDispatch("broadcast")
		}
	}

	clients, err := d.registry.Clients(ctx)
	if err != nil {
		d.log.Error("failed to enumerate page contexts", logger.Error(err))
		clients = nil
	}

	if len(clients) == 0 {
		d.openWindow(ctx, ev)
		return
	}

	for _, client := range clients {
		if err := client.PostMessage(payload); err != nil {
			d.log.Warn("direct delivery failed",
				logger.String("client_id", client.ID()),
				logger.Error(err))
			continue
		}
		d.countDispatch("direct")
	}

	if err := clients[0].Focus(); err != nil {
		d.log.Warn("failed to focus page context",
			logger.String("client_id", clients[0].ID()),
			logger.Error(err))
	} else if d.metrics != nil {
		d.metrics.ContextsFocused.Inc()
	}
}

func (d *Dispatcher) countDispatch(channel string) {
	if d.metrics != nil {
		d.metrics.EventsDispatched.WithLabelValues(channel).Inc()
	}
}

func (d *Dispatcher) openWindow(ctx context.Context, ev *ClickEvent) {
	if err := d.registry.OpenWindow(ctx, ev.AbsoluteURL); err != nil {
		d.log.Error("failed to open window",
			logger.String("url", ev.AbsoluteURL),
			logger.Error(err))
		return
	}
	if d.metrics != nil {
		d.metrics.WindowsOpened.Inc()
	}
	d.log.Info("opened new window for click",
		logger.String("room_id", ev.RoomID),
		logger.String("url", ev.AbsoluteURL))
}
