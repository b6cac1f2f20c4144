package service

import (
	"log"
	"sync"
	"time"
)

// InactivityMonitor holds the single process-wide auto-lock deadline.
// Idle (no timer) until the first Touch; each Touch replaces the armed
// deadline; on expiry the expire callback runs once and the monitor
// returns to idle until the next Touch.
//
// A generation counter ties each scheduled firing to the Touch that armed
// it, so a firing that lost the race against a later Touch is discarded
// instead of running late.
type InactivityMonitor struct {
	mu      sync.Mutex
	timeout time.Duration
	expire  func()
	logger  *log.Logger

	timer   *time.Timer
	gen     uint64
	stopped bool

	// firing tracks an expire callback in progress so Stop can wait it
	// out. Entered under mu before the callback starts, so a firing that
	// passed the generation check is always visible to Stop.
	firing sync.WaitGroup
}

// NewInactivityMonitor creates a monitor in the idle state. A timeout of 0
// disables it entirely: Touch and Stop become no-ops.
func NewInactivityMonitor(timeout time.Duration, expire func(), logger *log.Logger) *InactivityMonitor {
	return &InactivityMonitor{
		timeout: timeout,
		expire:  expire,
		logger:  logger,
	}
}

// Touch (re)arms the deadline to now + timeout, atomically canceling any
// previously scheduled firing.
func (m *InactivityMonitor) Touch() {
	if m.timeout <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}

	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, func() { m.fire(gen) })
}

func (m *InactivityMonitor) fire(gen uint64) {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		// Superseded: a later Touch (or Stop) won the race against this
		// firing.
		m.mu.Unlock()
		return
	}
	m.timer = nil // back to idle until the next scan
	m.firing.Add(1)
	m.mu.Unlock()
	defer m.firing.Done()

	m.logger.Printf("inactivity deadline expired after %s of silence", m.timeout)
	m.expire()
}

// Armed reports whether a deadline is currently scheduled.
func (m *InactivityMonitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Stop cancels any armed deadline and waits out an expire callback that
// was already past the generation check, so no firing touches anything
// after Stop returns. Safe to call twice.
func (m *InactivityMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}

	m.mu.Lock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.firing.Wait()
}
