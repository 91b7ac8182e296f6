package routing

import (
	"sync"
)

// PayloadHandler processes a raw message from a signal channel.
type PayloadHandler func(payload []byte)

// Broadcast is a shared fan-out channel. Messages on it are not limited to
// click events; subscribers filter by discriminant.
type Broadcast interface {
	// Publish sends a raw payload to every subscriber. Non-blocking
	// implementations may drop under pressure.
	Publish(payload []byte) error
	// Subscribe registers a handler and returns a cancel func that
	// removes it.
	Subscribe(fn PayloadHandler) (cancel func())
	// Close shuts the channel down. Publish after Close is a silent no-op.
	Close() error
}

const (
	// broadcastBufferSize is the capacity of the async message channel.
	// Messages are dropped if the buffer is full to avoid blocking callers.
	broadcastBufferSize = 256
)

// InProcBroadcast is an async pub/sub carrying raw payloads between the
// worker runtime and page sessions in the same process. Publish is
// non-blocking: payloads go to a buffered channel and a worker goroutine
// dispatches them, so the click handler is never blocked by a slow page.
type InProcBroadcast struct {
	mu       sync.RWMutex
	handlers map[int]PayloadHandler
	nextID   int
	msgCh    chan []byte
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewInProcBroadcast creates an in-process broadcast channel and starts its
// worker.
func NewInProcBroadcast() *InProcBroadcast {
	b := &InProcBroadcast{
		handlers: make(map[int]PayloadHandler),
		msgCh:    make(chan []byte, broadcastBufferSize),
		stopCh:   make(chan struct{}),
	}
	go b.processLoop()
	return b
}

// Subscribe registers a handler. The returned cancel func removes it; calling
// cancel more than once is safe.
func (b *InProcBroadcast) Subscribe(fn PayloadHandler) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish enqueues a payload for async dispatch. Non-blocking: if the buffer
// is full the payload is dropped. Payloads are silently discarded after Close.
func (b *InProcBroadcast) Publish(payload []byte) error {
	select {
	case <-b.stopCh:
		return nil
	default:
	}

	select {
	case b.msgCh <- payload:
	default:
		// Buffer full, drop to protect the publisher
	}
	return nil
}

// Close shuts down the worker goroutine. Safe to call multiple times.
func (b *InProcBroadcast) Close() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	return nil
}

func (b *InProcBroadcast) processLoop() {
	for {
		select {
		case payload := <-b.msgCh:
			b.dispatch(payload)
		case <-b.stopCh:
			// Drain remaining payloads before exiting
			for {
				select {
				case payload := <-b.msgCh:
					b.dispatch(payload)
				default:
					return
				}
			}
		}
	}
}

func (b *InProcBroadcast) dispatch(payload []byte) {
	b.mu.RLock()
	handlers := make([]PayloadHandler, 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.safeCall(fn, payload)
	}
}

// safeCall invokes a handler with panic recovery so a panicking subscriber
// cannot kill the dispatch goroutine.
func (b *InProcBroadcast) safeCall(fn PayloadHandler, payload []byte) {
	defer func() {
		recover() //nolint:errcheck // intentionally swallowed to keep the channel alive
	}()
	fn(payload)
}
