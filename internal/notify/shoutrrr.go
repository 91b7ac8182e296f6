package notify

import (
	"fmt"
	"sync"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/moachat/pushkit/internal/logger"
)

// ShoutrrrSurface delivers presented notifications over shoutrrr service
// URLs. It is the production Surface on platforms without a native
// notification API. Shoutrrr targets cannot retract a sent message, so
// Close only forgets the tag locally.
type ShoutrrrSurface struct {
	sender *router.ServiceRouter
	log    logger.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewShoutrrrSurface creates a surface sending to all given service URLs.
func NewShoutrrrSurface(urls []string, log logger.Logger) (*ShoutrrrSurface, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one notifier URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("failed to create shoutrrr sender: %w", err)
	}
	return &ShoutrrrSurface{
		sender: sender,
		log:    log,
		seen:   make(map[string]struct{}),
	}, nil
}

// Notify sends the descriptor to every configured target. Partial delivery
// failures are joined into one error; the presenter decides what to do.
func (s *ShoutrrrSurface) Notify(tag string, d *Descriptor, renotify bool) error {
	s.mu.Lock()
	_, repeat := s.seen[tag]
	s.seen[tag] = struct{}{}
	s.mu.Unlock()

	if repeat && !renotify {
		// Same tag already delivered and the caller asked for silent
		// coalescing. Nothing to send.
		return nil
	}

	params := &types.Params{"title": d.Title}
	var failed error
	for _, err := range s.sender.Send(d.Body, params) {
		if err != nil {
			if failed == nil {
				failed = err
			} else {
				failed = fmt.Errorf("%w; %w", failed, err)
			}
		}
	}
	return failed
}

// Close forgets the tag. Remote targets keep whatever they already showed.
func (s *ShoutrrrSurface) Close(tag string) error {
	s.mu.Lock()
	delete(s.seen, tag)
	s.mu.Unlock()
	return nil
}
