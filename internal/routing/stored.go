package routing

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const storedSignalKey = "last-click"

// StoredSignal is the fallback channel: the dispatcher stores the most
// recent click event and page sessions poll for it. A page that did not
// exist when the click happened (a freshly opened window, a session that
// was mid-reload) still sees the signal. Entries expire so a stale click
// never resurfaces hours later.
//
// Reads do not consume: several sessions may poll the same event, and the
// relay's duplicate filter makes the repeats harmless.
type StoredSignal struct {
	entries *gocache.Cache
}

// NewStoredSignal creates a stored-signal slot whose entries live for ttl.
func NewStoredSignal(ttl time.Duration) *StoredSignal {
	return &StoredSignal{
		entries: gocache.New(ttl, ttl),
	}
}

// Store records ev as the latest click signal, replacing any previous one.
func (s *StoredSignal) Store(ev *ClickEvent) {
	s.entries.SetDefault(storedSignalKey, ev)
}

// Latest returns the most recent unexpired click event, if any.
func (s *StoredSignal) Latest() (*ClickEvent, bool) {
	v, ok := s.entries.Get(storedSignalKey)
	if !ok {
		return nil, false
	}
	ev, ok := v.(*ClickEvent)
	return ev, ok
}

// Clear drops the stored signal. Used by tests and by session teardown.
func (s *StoredSignal) Clear() {
	s.entries.Delete(storedSignalKey)
}
