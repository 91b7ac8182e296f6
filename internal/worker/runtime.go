// Package worker is the background runtime: it owns the cache generation
// lifecycle, turns push payloads into notifications, and fans notification
// clicks out to page contexts. It keeps running when every page is gone,
// which is exactly when push delivery matters most.
package worker

import (
	"context"

	"github.com/moachat/pushkit/internal/cachegen"
	"github.com/moachat/pushkit/internal/conf"
	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/notify"
	"github.com/moachat/pushkit/internal/observability/metrics"
	"github.com/moachat/pushkit/internal/routing"
)

// Runtime ties the worker pipeline stages together.
type Runtime struct {
	caches     *cachegen.Manager
	presenter  *notify.Presenter
	dispatcher *routing.Dispatcher
	defaults   conf.NotificationDefaults
	log        logger.Logger
	metrics    *metrics.PushMetrics
}

// New creates a worker runtime.
func New(caches *cachegen.Manager, presenter *notify.Presenter, dispatcher *routing.Dispatcher, defaults conf.NotificationDefaults, log logger.Logger, m *metrics.PushMetrics) *Runtime {
	return &Runtime{
		caches:     caches,
		presenter:  presenter,
		dispatcher: dispatcher,
		defaults:   defaults,
		log:        log,
		metrics:    m,
	}
}

// Install provisions the current cache generation and warms the app shell.
func (r *Runtime) Install(ctx context.Context) error {
	return r.caches.Install(ctx)
}

// Activate retires every stale cache generation, leaving only the current
// one. Run after Install once the new runtime owns all contexts.
func (r *Runtime) Activate(ctx context.Context) error {
	return r.caches.Activate(ctx)
}

// HandlePush turns a raw push payload into a visible notification. It never
// fails: a malformed or missing payload presents the configured defaults,
// because the push quota was already spent the moment the message arrived.
func (r *Runtime) HandlePush(raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("push handler panicked", logger.Any("panic", rec))
		}
	}()

	d, outcome := notify.DecodePayload(raw, r.defaults)
	r.metrics.PayloadDecoded.WithLabelValues(outcome).Inc()
	if outcome != notify.DecodeOutcomeOK {
		r.log.Warn("push payload fell back to defaults",
			logger.String("outcome", outcome))
	}

	r.presenter.Present(d)
	r.log.Debug("push presented",
		logger.String("tag", d.GroupKey),
		logger.String("room_id", d.RoomID()))
}

// HandleClick runs the click pipeline for a notification. tag is the
// notification's group tag; roomID is the room it was scoped to, possibly
// empty. The notification is dismissed before any routing happens.
func (r *Runtime) HandleClick(ctx context.Context, tag, roomID string) {
	r.dispatcher.HandleClick(ctx, roomID, func() {
		r.presenter.Close(tag)
	})
}

// Presenter exposes the notification presenter for surfaces that need to
// clear groups directly (the relay's same-room path).
func (r *Runtime) Presenter() *notify.Presenter { return r.presenter }
