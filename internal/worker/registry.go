package worker

import (
	"context"
	"sync"

	"github.com/moachat/pushkit/internal/errors"
	"github.com/moachat/pushkit/internal/routing"
)

// PageLink is one live page context as seen from the worker runtime. The
// worker posts click events into it; the page subscribes on the other end,
// making the link the direct signal channel between the two.
type PageLink struct {
	id string

	mu       sync.RWMutex
	handlers map[int]routing.PayloadHandler
	nextID   int
	onFocus  func()
}

// NewPageLink creates a link for a page context. onFocus runs when the
// worker brings this context to the foreground; it may be nil.
func NewPageLink(id string, onFocus func()) *PageLink {
	return &PageLink{
		id:       id,
		handlers: make(map[int]routing.PayloadHandler),
		onFocus:  onFocus,
	}
}

// ID identifies the context for logging.
func (l *PageLink) ID() string { return l.id }

// PostMessage delivers a payload to every page-side subscriber.
func (l *PageLink) PostMessage(payload []byte) error {
	l.mu.RLock()
	handlers := make([]routing.PayloadHandler, 0, len(l.handlers))
	for _, fn := range l.handlers {
		handlers = append(handlers, fn)
	}
	l.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
	return nil
}

// Focus brings the page context to the foreground.
func (l *PageLink) Focus() error {
	l.mu.RLock()
	fn := l.onFocus
	l.mu.RUnlock()
	if fn != nil {
		fn()
	}
	return nil
}

// Subscribe registers a page-side handler for direct deliveries. This is
// the page end of the channel; it satisfies the relay's Subscribable.
func (l *PageLink) Subscribe(fn routing.PayloadHandler) (cancel func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.handlers, id)
			l.mu.Unlock()
		})
	}
}

// OpenWindowFunc opens a brand new page context at an absolute URL.
type OpenWindowFunc func(ctx context.Context, absoluteURL string) error

// InProcRegistry tracks the live page contexts reachable from this worker
// runtime: in-process PageLinks and remote contexts attached over the SSE
// stream alike.
type InProcRegistry struct {
	mu         sync.RWMutex
	clients    []routing.ClientContext
	openWindow OpenWindowFunc
}

// NewInProcRegistry creates a registry. openWindow may be nil when the
// embedding app cannot spawn new contexts.
func NewInProcRegistry(openWindow OpenWindowFunc) *InProcRegistry {
	return &InProcRegistry{openWindow: openWindow}
}

// Register adds a live page context. Contexts are enumerated in
// registration order, so the oldest one is the focus target after a click.
func (r *InProcRegistry) Register(client routing.ClientContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, client)
}

// Unregister removes a page context. No-op when the ID is unknown.
func (r *InProcRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, client := range r.clients {
		if client.ID() == id {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			return
		}
	}
}

// Clients enumerates the live page contexts.
func (r *InProcRegistry) Clients(context.Context) ([]routing.ClientContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]routing.ClientContext(nil), r.clients...), nil
}

// OpenWindow spawns a fresh page context at absoluteURL.
func (r *InProcRegistry) OpenWindow(ctx context.Context, absoluteURL string) error {
	r.mu.RLock()
	fn := r.openWindow
	r.mu.RUnlock()
	if fn == nil {
		return errors.Newf("no window opener configured").
			Component("worker").
			Category(errors.CategoryLifecycle).
			Build()
	}
	return fn(ctx, absoluteURL)
}
