package notify

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
)

const (
	// activeNotificationTTL bounds how long a presented notification is
	// tracked without being cleared. Platforms reap notifications on their
	// own schedule; the registry should not outlive them by much.
	activeNotificationTTL = 24 * time.Hour
	// activeNotificationSweep is the registry janitor interval.
	activeNotificationSweep = 10 * time.Minute
)

// Surface is the platform notification API. Implementations must tolerate
// Close for tags they no longer know about.
type Surface interface {
	// Notify shows (or refreshes) the notification for the given tag.
	// When renotify is set the platform should re-alert even though a
	// notification with this tag is already visible.
	Notify(tag string, d *Descriptor, renotify bool) error
	// Close removes the notification with the given tag, if present.
	Close(tag string) error
}

// Presenter is the only component that touches the notification surface.
// It coalesces notifications by GroupKey: a conversation never shows more
// than one visible entry, but each new push re-alerts.
type Presenter struct {
	surface Surface
	active  *gocache.Cache
	log     logger.Logger
	metrics *metrics.PushMetrics
}

// NewPresenter creates a Presenter over the given surface. metrics may be nil.
func NewPresenter(surface Surface, log logger.Logger, m *metrics.PushMetrics) *Presenter {
	return &Presenter{
		surface: surface,
		active:  gocache.New(activeNotificationTTL, activeNotificationSweep),
		log:     log,
		metrics: m,
	}
}

// Present shows the descriptor as an OS notification, tagged with its
// GroupKey. Presentation failures are logged, never propagated: a broken
// notification surface must not abort push handling.
func (p *Presenter) Present(d *Descriptor) {
	_, alreadyVisible := p.active.Get(d.GroupKey)

	// Renotify is always on. A second message in an already-notified
	// conversation must re-alert instead of being silently suppressed.
	if err := p.surface.Notify(d.GroupKey, d, true); err != nil {
		p.log.Error("failed to present notification",
			logger.String("tag", d.GroupKey),
			logger.Error(err))
		return
	}

	p.active.Set(d.GroupKey, d, gocache.DefaultExpiration)

	if p.metrics != nil {
		p.metrics.NotificationsShown.Inc()
		if alreadyVisible {
			p.metrics.NotificationsGrouped.Inc()
		}
	}
}

// Close removes the notification with the given tag from the surface and
// the registry. Best effort.
func (p *Presenter) Close(tag string) {
	if err := p.surface.Close(tag); err != nil {
		p.log.Warn("failed to close notification",
			logger.String("tag", tag),
			logger.Error(err))
	}
	p.active.Delete(tag)
}

// ClearGroup removes any pending notification for the given conversation.
// Called when the conversation becomes foreground; a visible notification
// for the room the user is looking at is stale by definition.
func (p *Presenter) ClearGroup(groupKey string) {
	if groupKey == "" {
		return
	}
	if _, ok := p.active.Get(groupKey); !ok {
		return
	}
	p.Close(groupKey)
}

// Active returns the tracked descriptor for a visible notification tag.
// The second return is false when no notification with that tag is tracked.
func (p *Presenter) Active(tag string) (*Descriptor, bool) {
	v, ok := p.active.Get(tag)
	if !ok {
		return nil, false
	}
	d, ok := v.(*Descriptor)
	return d, ok
}

// ActiveTags returns the tags of currently tracked notifications.
func (p *Presenter) ActiveTags() []string {
	items := p.active.Items()
	tags := make([]string, 0, len(items))
	for tag := range items {
		tags = append(tags, tag)
	}
	return tags
}

// ActiveCount returns the number of visible notifications. With tag-based
// grouping this never exceeds the number of distinct conversations.
func (p *Presenter) ActiveCount() int {
	return p.active.ItemCount()
}
