// Package lifecycle folds the platform's overlapping visibility and page
// lifecycle signals into a single clean foreground/background state.
package lifecycle

import (
	"sync"
	"time"

	"github.com/moachat/pushkit/internal/logger"
	"github.com/moachat/pushkit/internal/observability/metrics"
)

// State is the consolidated app visibility state.
type State int

const (
	StateBackground State = iota
	StateForeground
)

func (s State) String() string {
	if s == StateForeground {
		return "foreground"
	}
	return "background"
}

// Source identifies which platform signal produced a state hint. Mobile
// browsers fire several of these nearly at once for a single user action.
type Source string

const (
	SourceVisibility Source = "visibilitychange"
	SourcePageShow   Source = "pageshow"
	SourcePageHide   Source = "pagehide"
	SourceFocus      Source = "focus"
	SourceBlur       Source = "blur"
	SourceFreeze     Source = "freeze"
	SourceResume     Source = "resume"
	// SourcePushClick is the synthetic foreground signal emitted when a
	// routed notification click reaches a page session.
	SourcePushClick Source = "push-click"
)

// TransitionFunc runs when the consolidated state changes. source is the
// signal that won the debounce window.
type TransitionFunc func(source Source)

// Machine debounces foreground hints and applies background hints
// immediately. A burst of redundant signals for one app switch produces at
// most one transition, and a quick foreground-then-background flicker
// produces none: the later signal wins.
type Machine struct {
	debounce     time.Duration
	onForeground TransitionFunc
	onBackground TransitionFunc
	log          logger.Logger
	metrics      *metrics.ConnectionMetrics

	mu      sync.Mutex
	state   State
	timer   *time.Timer
	pending Source
	stopped bool
}

// NewMachine creates a visibility machine starting in the background state.
// Either callback may be nil; m may be nil.
func NewMachine(debounce time.Duration, onForeground, onBackground TransitionFunc, log logger.Logger, m *metrics.ConnectionMetrics) *Machine {
	return &Machine{
		debounce:     debounce,
		onForeground: onForeground,
		onBackground: onBackground,
		log:          log,
		metrics:      m,
		state:        StateBackground,
	}
}

// State returns the current consolidated state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SignalForeground records a foreground hint. The transition is deferred by
// the debounce window; further foreground hints inside the window are
// absorbed into the same pending transition.
func (m *Machine) SignalForeground(source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.timer != nil {
		// A transition is already pending; this hint rides along.
		m.pending = source
		return
	}
	m.pending = source
	m.timer = time.AfterFunc(m.debounce, m.fireForeground)
}

// SignalBackground records a background hint. It applies immediately and
// cancels any pending foreground transition.
func (m *Machine) SignalBackground(source Source) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.cancelPendingLocked()
	if m.state == StateBackground {
		m.mu.Unlock()
		return
	}
	m.state = StateBackground
	if m.metrics != nil {
		m.metrics.Foreground.Set(0)
	}
	cb := m.onBackground
	m.mu.Unlock()

	m.log.Debug("app moved to background", logger.String("source", string(source)))
	if cb != nil {
		cb(source)
	}
}

// Stop cancels any pending transition. Further signals are ignored.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.cancelPendingLocked()
}

func (m *Machine) cancelPendingLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) fireForeground() {
	m.mu.Lock()
	if m.stopped || m.timer == nil {
		// A background signal or Stop raced ahead of the timer.
		m.mu.Unlock()
		return
	}
	m.timer = nil
	source := m.pending
	if m.state == StateForeground {
		m.mu.Unlock()
		return
	}
	m.state = StateForeground
	if m.metrics != nil {
		m.metrics.Foreground.Set(1)
	}
	cb := m.onForeground
	m.mu.Unlock()

	m.log.Debug("app moved to foreground", logger.String("source", string(source)))
	if cb != nil {
		cb(source)
	}
}
