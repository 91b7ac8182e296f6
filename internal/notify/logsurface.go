package notify

import (
	"github.com/moachat/pushkit/internal/logger"
)

// LogSurface writes notifications to the log instead of an OS surface.
// Useful as a deployment fallback and in development.
type LogSurface struct {
	log logger.Logger
}

// NewLogSurface creates a log-backed surface.
func NewLogSurface(log logger.Logger) *LogSurface {
	return &LogSurface{log: log}
}

// Notify implements Surface.
func (s *LogSurface) Notify(tag string, d *Descriptor, renotify bool) error {
	s.log.Info("notification",
		logger.String("tag", tag),
		logger.String("title", d.Title),
		logger.String("body", d.Body),
		logger.Bool("renotify", renotify))
	return nil
}

// Close implements Surface.
func (s *LogSurface) Close(tag string) error {
	s.log.Info("notification closed", logger.String("tag", tag))
	return nil
}
