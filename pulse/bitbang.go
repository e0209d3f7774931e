// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulse

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/warthog618/hx711"
)

// BitBang is a Sequencer that bit bashes the clock from a dedicated goroutine
// locked to its own OS thread.
//
// The clock and data lines must be fast enough to toggle within the half
// cycle time, e.g. memory mapped GPIO.
type BitBang struct {
	mu sync.Mutex
	// time between clock edges (i.e. half the cycle time)
	tclk time.Duration
	// longest tolerated clock high time, 0 to disable the check
	thigh time.Duration
	// period between polls for ready
	tpoll time.Duration
	clk   hx711.Output
	data  hx711.Input
	// session state, nil when stopped
	stop chan struct{}
	done chan struct{}
	res  chan result
}

type result struct {
	word uint32
	err  error
}

// Default BitBang timings.
const (
	DefaultTclk = time.Microsecond
	// DefaultMaxHigh is below the 60us that would power down the converter.
	DefaultMaxHigh   = 50 * time.Microsecond
	DefaultReadyPoll = 100 * time.Microsecond
)

// ErrBusy indicates the sequencer is already running a cycle.
var ErrBusy = errors.New("sequencer busy")

// BitBangOption modifies the construction of a BitBang.
type BitBangOption func(*BitBang)

// WithTclk sets the time between clock edges.
func WithTclk(d time.Duration) BitBangOption {
	return func(s *BitBang) {
		s.tclk = d
	}
}

// WithMaxHigh sets the longest tolerated clock high time.
//
// A cycle where a clock pulse is stretched beyond this, e.g. due to the
// thread being preempted, is abandoned and reported as a timeout.
// Zero disables the check.
func WithMaxHigh(d time.Duration) BitBangOption {
	return func(s *BitBang) {
		s.thigh = d
	}
}

// WithReadyPoll sets the period between polls of the data line while waiting
// for the converter to be ready.
func WithReadyPoll(d time.Duration) BitBangOption {
	return func(s *BitBang) {
		s.tpoll = d
	}
}

// NewBitBang creates a BitBang driving clk and sampling data.
//
// The clock is driven low.
func NewBitBang(clk hx711.Output, data hx711.Input, options ...BitBangOption) (*BitBang, error) {
	s := &BitBang{
		tclk:  DefaultTclk,
		thigh: DefaultMaxHigh,
		tpoll: DefaultReadyPoll,
		clk:   clk,
		data:  data,
	}
	for _, option := range options {
		option(s)
	}
	if err := clk.SetValue(0); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the sequencer goroutine for a cycle of the given pulses.
func (s *BitBang) Start(pulses int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrBusy
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.res = make(chan result, 1)
	go s.run(pulses, s.stop, s.done, s.res)
	return nil
}

// Result returns the shifted in word once the cycle is complete.
func (s *BitBang) Result() (uint32, bool, error) {
	s.mu.Lock()
	res := s.res
	s.mu.Unlock()
	select {
	case r := <-res:
		return r.word, true, r.err
	default:
		return 0, false, nil
	}
}

// Stop abandons any wait for ready, and waits for any waveform in progress
// to complete.
func (s *BitBang) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
		s.done = nil
		s.res = nil
	}
	return s.clk.SetValue(0)
}

// SetClock drives the clock while the sequencer is stopped.
func (s *BitBang) SetClock(high bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrBusy
	}
	v := 0
	if high {
		v = 1
	}
	return s.clk.SetValue(v)
}

// Close stops the sequencer.
//
// The lines remain owned by the caller.
func (s *BitBang) Close() error {
	return s.Stop()
}

func (s *BitBang) run(pulses int, stop <-chan struct{}, done chan<- struct{}, res chan<- result) {
	defer close(done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		v, err := s.data.Value()
		if err != nil {
			res <- result{err: err}
			return
		}
		if v == 0 {
			break
		}
		select {
		case <-stop:
			return
		default:
		}
		time.Sleep(s.tpoll)
	}
	w, err := s.shiftIn(pulses)
	res <- result{word: w, err: err}
}

// shiftIn clocks pulses bits in from the converter, MSB first.
// The converter shifts out on the rising edge, so each bit is sampled
// while the clock is high.
func (s *BitBang) shiftIn(pulses int) (uint32, error) {
	var w uint32
	for i := 0; i < pulses; i++ {
		if err := s.clk.SetValue(1); err != nil {
			return 0, err
		}
		rise := time.Now()
		spin(s.tclk)
		v, err := s.data.Value()
		if err != nil {
			s.clk.SetValue(0)
			return 0, err
		}
		if err = s.clk.SetValue(0); err != nil {
			return 0, err
		}
		if high := time.Since(rise); s.thigh > 0 && high > s.thigh {
			return 0, fmt.Errorf("%w: clock held high for %s", hx711.ErrTimeout, high)
		}
		w = w << 1
		if v != 0 {
			w = w | 0x01
		}
		spin(s.tclk)
	}
	return w, nil
}

// spin busy waits as time.Sleep is far too coarse for clock edges.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}
