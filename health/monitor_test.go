// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package health_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/hx711/health"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func TestNew(t *testing.T) {
	m := health.New(nil)
	assert.Equal(t, health.Idle, m.State())
	assert.False(t, m.Armed())
	assert.False(t, m.Expired())
	assert.Equal(t, time.Duration(0), m.Remaining())
}

func TestComplete(t *testing.T) {
	c := newClock()
	m := health.New(c)
	m.Arm(500 * time.Millisecond)
	assert.True(t, m.Armed())
	assert.Equal(t, 500*time.Millisecond, m.Remaining())
	c.Advance(20 * time.Millisecond)
	assert.False(t, m.Expired())
	m.Complete()
	assert.False(t, m.Armed())
	assert.Equal(t, health.Completed, m.State())
	s := m.Stats()
	assert.Equal(t, uint64(1), s.Completed)
	assert.Equal(t, 20*time.Millisecond, s.Last)
	assert.Equal(t, 20*time.Millisecond, s.Max)

	// only the armed cycle can complete
	m.Complete()
	assert.Equal(t, uint64(1), m.Stats().Completed)
}

func TestTimeOut(t *testing.T) {
	c := newClock()
	m := health.New(c)
	m.Arm(500 * time.Millisecond)
	c.Advance(499 * time.Millisecond)
	assert.False(t, m.Expired())
	assert.Equal(t, time.Millisecond, m.Remaining())
	c.Advance(time.Millisecond)
	assert.True(t, m.Expired())
	assert.Equal(t, time.Duration(0), m.Remaining())
	m.TimeOut()
	assert.False(t, m.Armed())
	assert.False(t, m.Expired())
	assert.Equal(t, health.TimedOut, m.State())

	m.Arm(500 * time.Millisecond)
	c.Advance(time.Second)
	m.TimeOut()
	s := m.Stats()
	assert.Equal(t, uint64(2), s.TimedOut)
	assert.Equal(t, uint64(2), s.Consecutive)

	// a completed cycle resets the consecutive count
	m.Arm(500 * time.Millisecond)
	c.Advance(90 * time.Millisecond)
	m.Complete()
	s = m.Stats()
	assert.Equal(t, uint64(2), s.TimedOut)
	assert.Equal(t, uint64(0), s.Consecutive)
	assert.Equal(t, 90*time.Millisecond, s.Max)
}

func TestFail(t *testing.T) {
	c := newClock()
	m := health.New(c)
	m.Fail()
	assert.Equal(t, health.Idle, m.State())
	m.Arm(time.Millisecond)
	m.Fail()
	assert.False(t, m.Armed())
	assert.Equal(t, health.Failed, m.State())
	assert.Equal(t, uint64(1), m.Stats().Failed)
}

func TestStateString(t *testing.T) {
	patterns := []struct {
		s    health.State
		name string
	}{
		{health.Idle, "idle"},
		{health.Armed, "armed"},
		{health.Completed, "completed"},
		{health.TimedOut, "timed out"},
		{health.Failed, "failed"},
		{health.State(42), "unknown"},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			assert.Equal(t, p.name, p.s.String())
		})
	}
}
