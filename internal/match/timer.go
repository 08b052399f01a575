// Package match holds the authoritative lobby and race state: the roster of
// clients and players, the match settings and the lifecycle timers.
//
// A State is owned by the relay loop and is not safe for concurrent use.
package match

import "time"

// Timer is a stopwatch. Elapsed time accumulates across Stop/Start pairs until Reset.
type Timer struct {
	now     func() time.Time
	started time.Time
	total   time.Duration
	running bool
}

// NewTimer returns a stopped timer reading time from now.
func NewTimer(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Start starts the timer. A running timer is not restarted.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.started = t.now()
	t.running = true
}

// Stop pauses the timer, keeping the elapsed time.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.total += t.now().Sub(t.started)
	t.running = false
}

// Reset stops the timer and clears the elapsed time.
func (t *Timer) Reset() {
	t.total = 0
	t.running = false
}

// Running reports whether the timer is started.
func (t *Timer) Running() bool {
	return t.running
}

// Elapsed returns the accumulated running time.
func (t *Timer) Elapsed() time.Duration {
	if !t.running {
		return t.total
	}
	return t.total + t.now().Sub(t.started)
}

// TimedOut reports whether the timer is running and has reached d.
func (t *Timer) TimedOut(d time.Duration) bool {
	return t.running && t.Elapsed() >= d
}
