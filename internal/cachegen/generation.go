// Package cachegen manages versioned generations of the static-asset cache.
// At any time exactly one generation is retained; activation purges every
// other generation, including ones left behind by older caching schemes.
package cachegen

import (
	"context"
	"fmt"

	"github.com/moachat/pushkit/internal/logger"
)

// generationPrefix namespaces current-scheme cache names. Names without the
// prefix are legacy generations and are purged like any other stale entry.
const generationPrefix = "pushkit-static-"

// GenerationName returns the cache name for a version string.
func GenerationName(version string) string {
	return generationPrefix + version
}

// Cache holds one generation's entries.
type Cache interface {
	Put(ctx context.Context, route string, body []byte) error
	Get(ctx context.Context, route string) ([]byte, bool, error)
}

// Storage enumerates and manages named caches.
type Storage interface {
	// Open returns the cache with the given name, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	// Delete removes the named cache and all its entries.
	Delete(ctx context.Context, name string) error
	// Names lists every cache currently in storage.
	Names(ctx context.Context) ([]string, error)
}

// Fetcher retrieves a shell route's content for precaching.
type Fetcher func(ctx context.Context, route string) ([]byte, error)

// Manager drives the install/activate lifecycle for the current generation.
type Manager struct {
	storage Storage
	version string
	routes  []string
	fetch   Fetcher
	log     logger.Logger
}

// NewManager creates a Manager for the given version. routes is the fixed
// set of shell routes warmed on install; fetch may be nil to skip warming.
func NewManager(storage Storage, version string, routes []string, fetch Fetcher, log logger.Logger) *Manager {
	return &Manager{
		storage: storage,
		version: version,
		routes:  routes,
		fetch:   fetch,
		log:     log,
	}
}

// CurrentName returns the retained generation's cache name.
func (m *Manager) CurrentName() string {
	return GenerationName(m.version)
}

// Install opens the current generation and warms it with the shell routes.
// Warming is best effort: a route that fails to fetch or store is logged and
// skipped, because a cold cache is recoverable and a failed install is not.
func (m *Manager) Install(ctx context.Context) error {
	cache, err := m.storage.Open(ctx, m.CurrentName())
	if err != nil {
		return fmt.Errorf("failed to open cache generation %s: %w", m.CurrentName(), err)
	}

	if m.fetch == nil {
		return nil
	}

	var warmed int
	for _, route := range m.routes {
		body, err := m.fetch(ctx, route)
		if err != nil {
			m.log.Warn("precache fetch failed, skipping route",
				logger.String("route", route),
				logger.Error(err))
			continue
		}
		if err := cache.Put(ctx, route, body); err != nil {
			m.log.Warn("precache store failed, skipping route",
				logger.String("route", route),
				logger.Error(err))
			continue
		}
		warmed++
	}

	m.log.Info("cache generation installed",
		logger.String("generation", m.CurrentName()),
		logger.Int("routes_warmed", warmed),
		logger.Int("routes_total", len(m.routes)))
	return nil
}

// Activate deletes every generation other than the current one. Legacy
// names from prior caching schemes get no special treatment; they are just
// stale generations. Individual delete failures are logged and skipped.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate cache generations: %w", err)
	}

	current := m.CurrentName()
	var purged int
	for _, name := range names {
		if name == current {
			continue
		}
		if err := m.storage.Delete(ctx, name); err != nil {
			m.log.Warn("failed to delete stale cache generation",
				logger.String("generation", name),
				logger.Error(err))
			continue
		}
		purged++
	}

	m.log.Info("cache generations activated",
		logger.String("retained", current),
		logger.Int("purged", purged))
	return nil
}
