// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package pulse provides an HX711 transport that generates the clock
// waveform from a dedicated sequencer.
//
// The sequencer runs independently of the calling goroutine, so scheduling
// jitter in the caller cannot stretch the clock pulses while data is being
// shifted out.  The transport arms the sequencer with the pulse count for
// the active gain, then polls for the result until the cycle deadline.
package pulse

import (
	"time"

	"github.com/warthog618/hx711"
	"github.com/warthog618/hx711/health"
	"go.uber.org/multierr"
)

// Sequencer generates the clock waveform for one conversion cycle and shifts
// in the sampled data bits.
type Sequencer interface {
	// Start arms the sequencer to wait for the converter to be ready and then
	// generate pulses clock pulses.
	Start(pulses int) error

	// Result returns the shifted in word once the cycle is complete.
	//
	// The word holds one bit per pulse, MSB first, so the data bits are
	// followed by the samples taken during the gain select pulses.
	// ok is false while the cycle is still in progress.
	Result() (word uint32, ok bool, err error)

	// Stop deactivates the sequencer and leaves the clock low.
	//
	// It must leave the sequencer ready for a subsequent Start.
	Stop() error

	// SetClock drives the clock while the sequencer is stopped.
	SetClock(high bool) error

	// Close releases the sequencer.
	Close() error
}

// Defaults applied by New.
const (
	DefaultPollPeriod = 100 * time.Microsecond
	// PowerDownHold exceeds the 60us the converter requires with the clock
	// held high to enter power down.
	PowerDownHold = 100 * time.Microsecond
)

// Transport is an hx711.Transport driven by a Sequencer.
type Transport struct {
	seq     Sequencer
	mon     *health.Monitor
	timeout time.Duration
	poll    time.Duration
	sleep   func(time.Duration)
	closed  bool
}

// Option modifies the construction of a Transport.
type Option func(*Transport)

// WithTimeout sets the deadline for a conversion cycle, including the wait
// for the converter to be ready.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithPollPeriod sets the period between polls for the cycle result.
func WithPollPeriod(d time.Duration) Option {
	return func(t *Transport) {
		t.poll = d
	}
}

// WithClock sets the clock used to measure cycle deadlines.
func WithClock(c health.Clock) Option {
	return func(t *Transport) {
		t.mon = health.New(c)
	}
}

// WithSleep sets the function used to wait between polls.
func WithSleep(f func(time.Duration)) Option {
	return func(t *Transport) {
		t.sleep = f
	}
}

// New creates a Transport using the sequencer s.
//
// The sequencer is owned by the Transport and is closed by Close.
func New(s Sequencer, options ...Option) *Transport {
	t := &Transport{
		seq:     s,
		mon:     health.New(nil),
		timeout: health.DefaultTimeout,
		poll:    DefaultPollPeriod,
		sleep:   time.Sleep,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Cycle performs a conversion cycle that selects g for the next conversion.
func (t *Transport) Cycle(g hx711.Gain) (uint32, error) {
	if t.closed {
		return 0, hx711.ErrClosed
	}
	pulses := g.Pulses()
	if pulses == 0 {
		return 0, hx711.ErrInvalidConfig
	}
	t.mon.Arm(t.timeout)
	if err := t.seq.Start(pulses); err != nil {
		t.mon.Fail()
		return 0, multierr.Append(err, t.seq.Stop())
	}
	for {
		w, ok, err := t.seq.Result()
		if err != nil {
			t.mon.Fail()
			return 0, multierr.Append(err, t.seq.Stop())
		}
		if ok {
			if err = t.seq.Stop(); err != nil {
				t.mon.Fail()
				return 0, err
			}
			t.mon.Complete()
			return Unpack(w, pulses), nil
		}
		if t.mon.Expired() {
			err = t.seq.Stop()
			t.mon.TimeOut()
			return 0, multierr.Append(hx711.ErrTimeout, err)
		}
		t.sleep(t.poll)
	}
}

// PowerDown holds the clock high until the converter powers down.
func (t *Transport) PowerDown() error {
	if t.closed {
		return hx711.ErrClosed
	}
	if err := t.seq.SetClock(false); err != nil {
		return err
	}
	if err := t.seq.SetClock(true); err != nil {
		return err
	}
	t.sleep(PowerDownHold)
	return nil
}

// PowerUp returns the clock low.
func (t *Transport) PowerUp() error {
	if t.closed {
		return hx711.ErrClosed
	}
	return t.seq.SetClock(false)
}

// Close stops and releases the sequencer.
func (t *Transport) Close() error {
	if t.closed {
		return hx711.ErrClosed
	}
	t.closed = true
	return multierr.Append(t.seq.Stop(), t.seq.Close())
}

// Armed returns true while a cycle is in progress.
func (t *Transport) Armed() bool {
	return t.mon.Armed()
}

// Stats returns the cycle statistics.
func (t *Transport) Stats() health.Stats {
	return t.mon.Stats()
}

// Unpack extracts the 24 data bits from a word shifted in over pulses clock
// pulses.
//
// The converter drives the data line high from the 25th pulse, so the
// trailing gain select samples must all be set.  If not, the converter is
// not driving the line and NoResponse is returned.
func Unpack(w uint32, pulses int) uint32 {
	extra := uint(pulses - hx711.DataBits)
	status := uint32(1)<<extra - 1
	if w&status != status {
		return hx711.NoResponse
	}
	return (w >> extra) & (1<<hx711.DataBits - 1)
}
