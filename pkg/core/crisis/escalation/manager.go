// Package escalation runs the cancellable countdown that precedes an
// emergency call and the inactivity watchdog that arms it on silence.
//
// All state is guarded by one mutex. Hook dispatch is serialized by a second
// mutex taken before it, so hooks observe transitions in the order they
// happened. Hooks must not call back into the Manager.
package escalation

import (
	"sync"
	"time"
)

const (
	// DefaultCountdown is the grace period between arming and firing.
	DefaultCountdown = 5 * time.Second
	// DefaultInactivity is how long the user may stay silent after the
	// assistant finishes before the watchdog fires.
	DefaultInactivity = 10 * time.Second

	// ReasonNoResponse is the watchdog's escalation reason.
	ReasonNoResponse = "no response detected"
	// ReasonSOS is the reason used for the SOS button.
	ReasonSOS = "SOS button"
)

// State is a countdown's lifecycle position.
type State int

const (
	StateIdle State = iota
	StatePending
	StateCancelled
	StateFired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateCancelled:
		return "cancelled"
	case StateFired:
		return "fired"
	default:
		return "idle"
	}
}

// Source says which timer produced an escalation.
type Source int

const (
	SourceCountdown Source = iota
	SourceWatchdog
)

// Fire describes one timer expiry.
type Fire struct {
	Source Source
	Reason string
	At     time.Time
}

// Hooks receive timer events, one at a time. Nil hooks are skipped.
type Hooks struct {
	// OnStarted runs after a countdown is armed.
	OnStarted func(d time.Duration, reason string)
	// OnCancelled runs after a pending countdown is cancelled or replaced.
	OnCancelled func(reason string)
	// OnFire runs when the countdown or the watchdog expires.
	OnFire func(Fire)
}

// Config holds timer durations.
type Config struct {
	Countdown  time.Duration
	Inactivity time.Duration
}

func (c Config) withDefaults() Config {
	if c.Countdown <= 0 {
		c.Countdown = DefaultCountdown
	}
	if c.Inactivity <= 0 {
		c.Inactivity = DefaultInactivity
	}
	return c
}

type countdown struct {
	gen    uint64
	reason string
	state  State
	timer  Timer
}

// Manager owns at most one pending countdown and one watchdog per session.
type Manager struct {
	// dispatch is held from a transition until its hooks return.
	dispatch sync.Mutex
	mu       sync.Mutex
	cfg   Config
	clock Clock
	hooks Hooks

	gen        uint64
	current    *countdown
	watchdog   Timer
	watchGen   uint64
	watchArmed bool
	closed     bool
}

// NewManager builds a Manager. A nil clock uses the wall clock.
func NewManager(cfg Config, clock Clock, hooks Hooks) *Manager {
	if clock == nil {
		clock = RealClock()
	}
	return &Manager{cfg: cfg.withDefaults(), clock: clock, hooks: hooks}
}

// Countdown returns the configured countdown length.
func (m *Manager) Countdown() time.Duration { return m.cfg.Countdown }

// Arm starts a countdown, replacing any pending one. The replaced countdown
// reports OnCancelled before the new one reports OnStarted. Arm is a no-op
// after Close.
func (m *Manager) Arm(reason string) bool {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	var replaced string
	hadPending := false
	if c := m.current; c != nil && c.state == StatePending {
		c.timer.Stop()
		c.state = StateCancelled
		replaced, hadPending = c.reason, true
	}
	m.gen++
	gen := m.gen
	c := &countdown{gen: gen, reason: reason, state: StatePending}
	c.timer = m.clock.AfterFunc(m.cfg.Countdown, func() { m.fireCountdown(gen) })
	m.current = c
	d := m.cfg.Countdown
	m.mu.Unlock()

	if hadPending && m.hooks.OnCancelled != nil {
		m.hooks.OnCancelled(replaced)
	}
	if m.hooks.OnStarted != nil {
		m.hooks.OnStarted(d, reason)
	}
	return true
}

// Cancel stops the pending countdown. It reports false when nothing was
// pending; a countdown that already fired cannot be cancelled.
func (m *Manager) Cancel() bool {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	m.mu.Lock()
	c := m.current
	if c == nil || c.state != StatePending {
		m.mu.Unlock()
		return false
	}
	c.timer.Stop()
	c.state = StateCancelled
	reason := c.reason
	m.mu.Unlock()

	if m.hooks.OnCancelled != nil {
		m.hooks.OnCancelled(reason)
	}
	return true
}

func (m *Manager) fireCountdown(gen uint64) {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	m.mu.Lock()
	c := m.current
	if m.closed || c == nil || c.gen != gen || c.state != StatePending {
		m.mu.Unlock()
		return
	}
	c.state = StateFired
	f := Fire{Source: SourceCountdown, Reason: c.reason, At: m.clock.Now()}
	m.mu.Unlock()

	if m.hooks.OnFire != nil {
		m.hooks.OnFire(f)
	}
}

// State returns the latest countdown's state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return StateIdle
	}
	return m.current.state
}

// Pending reports whether a countdown is running.
func (m *Manager) Pending() bool { return m.State() == StatePending }

// Fired reports whether the latest countdown fired.
func (m *Manager) Fired() bool { return m.State() == StateFired }

// ResetWatchdog (re)starts the inactivity watchdog. Each arming fires at
// most once.
func (m *Manager) ResetWatchdog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchGen++
	gen := m.watchGen
	m.watchArmed = true
	m.watchdog = m.clock.AfterFunc(m.cfg.Inactivity, func() { m.fireWatchdog(gen) })
}

// StopWatchdog disarms the watchdog.
func (m *Manager) StopWatchdog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopWatchdogLocked()
}

func (m *Manager) stopWatchdogLocked() {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.watchArmed = false
	m.watchGen++
}

// WatchdogArmed reports whether the watchdog is running.
func (m *Manager) WatchdogArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watchArmed
}

func (m *Manager) fireWatchdog(gen uint64) {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	m.mu.Lock()
	if m.closed || !m.watchArmed || gen != m.watchGen {
		m.mu.Unlock()
		return
	}
	m.watchArmed = false
	m.watchdog = nil
	f := Fire{Source: SourceWatchdog, Reason: ReasonNoResponse, At: m.clock.Now()}
	m.mu.Unlock()

	if m.hooks.OnFire != nil {
		m.hooks.OnFire(f)
	}
}

// Close stops every timer. It waits for a hook already running, and no
// hook starts after it returns.
func (m *Manager) Close() {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if c := m.current; c != nil && c.state == StatePending {
		c.timer.Stop()
		c.state = StateCancelled
	}
	m.stopWatchdogLocked()
}
