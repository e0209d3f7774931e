// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package health bounds the duration of HX711 conversion cycles and keeps
// statistics that separate a failed sensor from a slow one.
//
// A Monitor is owned by a single transport and is not safe for concurrent
// use.
package health

import (
	"time"
)

// State is the state of a conversion cycle as seen by the Monitor.
type State int

const (
	// Idle indicates no cycle has been armed yet.
	Idle State = iota
	// Armed indicates a cycle is in progress and its deadline is running.
	Armed
	// Completed indicates the last cycle finished before its deadline.
	Completed
	// TimedOut indicates the last cycle was abandoned at its deadline.
	TimedOut
	// Failed indicates the last cycle was aborted by a transport error.
	Failed
)

var stateNames = map[State]string{
	Idle:      "idle",
	Armed:     "armed",
	Completed: "completed",
	TimedOut:  "timed out",
	Failed:    "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Clock provides monotonic time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock is the Clock backed by the time package.
var SystemClock Clock = systemClock{}

// DefaultTimeout is the cycle deadline used by transports unless overridden.
//
// The converter completes a conversion every 12.5ms or 100ms, depending on
// its RATE pin, so this only expires for a missing or stuck converter.
const DefaultTimeout = 500 * time.Millisecond

// Stats summarises the cycles seen by a Monitor.
type Stats struct {
	Completed uint64
	TimedOut  uint64
	Failed    uint64
	// Consecutive is the number of cycles that have timed out since the
	// last completed cycle.
	Consecutive uint64
	// Last is the duration of the last completed cycle.
	Last time.Duration
	// Max is the duration of the slowest completed cycle.
	Max time.Duration
}

// Monitor tracks a conversion cycle from arming to completion or timeout.
type Monitor struct {
	clock    Clock
	state    State
	start    time.Time
	deadline time.Time
	stats    Stats
}

// New creates a Monitor using the given clock.
func New(c Clock) *Monitor {
	if c == nil {
		c = SystemClock
	}
	return &Monitor{clock: c}
}

// Arm marks a cycle as started and sets its deadline timeout from now.
//
// The state is set before the deadline is computed, so a cycle is never
// armed without a deadline that is at least timeout in the future.
func (m *Monitor) Arm(timeout time.Duration) {
	m.state = Armed
	m.start = m.clock.Now()
	m.deadline = m.start.Add(timeout)
}

// Armed returns true while a cycle is in progress.
func (m *Monitor) Armed() bool {
	return m.state == Armed
}

// Expired returns true if a cycle is armed and its deadline has passed.
func (m *Monitor) Expired() bool {
	if m.state != Armed {
		return false
	}
	return !m.clock.Now().Before(m.deadline)
}

// Remaining returns the time left before the deadline, or 0 if not armed or
// expired.
func (m *Monitor) Remaining() time.Duration {
	if m.state != Armed {
		return 0
	}
	r := m.deadline.Sub(m.clock.Now())
	if r < 0 {
		return 0
	}
	return r
}

// Complete marks the armed cycle as successfully completed.
func (m *Monitor) Complete() {
	if m.state != Armed {
		return
	}
	d := m.clock.Now().Sub(m.start)
	m.state = Completed
	m.stats.Completed++
	m.stats.Consecutive = 0
	m.stats.Last = d
	if d > m.stats.Max {
		m.stats.Max = d
	}
}

// TimeOut marks the armed cycle as abandoned at its deadline.
func (m *Monitor) TimeOut() {
	if m.state != Armed {
		return
	}
	m.state = TimedOut
	m.stats.TimedOut++
	m.stats.Consecutive++
}

// Fail marks the armed cycle as aborted by a transport error.
func (m *Monitor) Fail() {
	if m.state != Armed {
		return
	}
	m.state = Failed
	m.stats.Failed++
}

// State returns the current state.
func (m *Monitor) State() State {
	return m.state
}

// Stats returns a snapshot of the cycle statistics.
func (m *Monitor) Stats() Stats {
	return m.stats
}
