// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package shift provides an HX711 transport that generates the clock from
// the MOSI of a synchronous transfer peripheral, such as an SPI controller.
//
// PD_SCK is connected to MOSI and DOUT to MISO.  The peripheral clock is not
// used by the converter.  Each clock pulse is encoded as two bits, high then
// low, so a 7 byte transfer carries the 24 data pulses and up to 4 gain
// select pulses.  The converter output is sampled into the received bytes,
// with the data bits in the even bit positions.
//
// Once issued the peripheral generates the waveform atomically, so the
// transport is insensitive to host scheduling, but the peripheral clock
// rate determines the pulse width, so it should be at most 1MHz, giving 1us
// pulses.
package shift

import (
	"io"
	"time"

	"github.com/warthog618/hx711"
	"github.com/warthog618/hx711/health"
	"go.uber.org/multierr"
)

// Conn is a full duplex synchronous transfer peripheral.
//
// Both periph.io spi.Conn and TinyGo machine.SPI satisfy Conn.
type Conn interface {
	// Tx transmits w while receiving the same number of bytes into r.
	Tx(w, r []byte) error
}

// PowerControl holds the clock line high to power down the converter.
//
// As the clock is the peripheral MOSI, this typically requires switching
// the pin to a GPIO output and back again.
type PowerControl interface {
	PowerDown() error
	PowerUp() error
}

// PatternLen is the length of a clock pattern, and of the received data.
const PatternLen = 7

// Clock patterns, 24 data pulses followed by the gain select pulses.
var (
	pattern25 = [PatternLen]byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0x80}
	pattern26 = [PatternLen]byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xa0}
	pattern27 = [PatternLen]byte{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xa8}
)

// nibbles maps the data samples in a received byte, masked with dataMask,
// to the 4 data bits they carry.
var nibbles = [dataMask + 1]byte{
	0x00: 0x0, 0x01: 0x1, 0x04: 0x2, 0x05: 0x3,
	0x10: 0x4, 0x11: 0x5, 0x14: 0x6, 0x15: 0x7,
	0x40: 0x8, 0x41: 0x9, 0x44: 0xa, 0x45: 0xb,
	0x50: 0xc, 0x51: 0xd, 0x54: 0xe, 0x55: 0xf,
}

const (
	dataMask  = 0x55
	dataBytes = 6
)

// Pattern returns the clock pattern for a cycle selecting g.
func Pattern(g hx711.Gain) ([PatternLen]byte, bool) {
	switch g.Pulses() {
	case 25:
		return pattern25, true
	case 26:
		return pattern26, true
	case 27:
		return pattern27, true
	}
	return [PatternLen]byte{}, false
}

// Unpack extracts the 24 bit raw sample from the bytes received during a
// cycle of pulses clock pulses.
//
// The converter drives DOUT high from the 25th pulse, so the samples taken
// during the gain select pulses must all be set.  If not, the converter is
// not driving the line and NoResponse is returned.
func Unpack(rx [PatternLen]byte, pulses int) uint32 {
	var raw uint32
	for _, b := range rx[:dataBytes] {
		raw = raw<<4 | uint32(nibbles[b&dataMask])
	}
	status := byte(0)
	for i := 0; i < pulses-hx711.DataBits; i++ {
		status |= 0x40 >> uint(2*i)
	}
	if rx[dataBytes]&status != status {
		return hx711.NoResponse
	}
	return raw
}

// Defaults applied by New.
const (
	DefaultReadyPolls = 500
	DefaultReadyPoll  = time.Millisecond
)

// PowerDownHold exceeds the 60us the converter requires with the clock
// held high before it powers down.
const PowerDownHold = 100 * time.Microsecond

// Transport is an hx711.Transport driven by a Conn.
type Transport struct {
	conn    Conn
	data    hx711.Input
	pc      PowerControl
	closer  io.Closer
	mon     *health.Monitor
	timeout time.Duration
	polls   int
	tpoll   time.Duration
	sleep   func(time.Duration)
	rx      [PatternLen]byte
	closed  bool
}

// Option modifies the construction of a Transport.
type Option func(*Transport)

// WithReadyPolls sets the number of polls of the data line while waiting for
// the converter to be ready.
func WithReadyPolls(n int) Option {
	return func(t *Transport) {
		t.polls = n
	}
}

// WithReadyPoll sets the period between polls of the data line.
func WithReadyPoll(d time.Duration) Option {
	return func(t *Transport) {
		t.tpoll = d
	}
}

// WithTimeout sets the deadline for a conversion cycle, including the wait
// for the converter to be ready.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
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

// WithPowerControl enables PowerDown and PowerUp.
func WithPowerControl(pc PowerControl) Option {
	return func(t *Transport) {
		t.pc = pc
	}
}

// WithCloser sets a resource, such as the port underlying the Conn, to be
// closed with the Transport.
func WithCloser(c io.Closer) Option {
	return func(t *Transport) {
		t.closer = c
	}
}

// New creates a Transport that clocks the converter through c and polls data
// for the converter to be ready.
//
// The data line is usually wired to both MISO and a GPIO, though some
// platforms can read the level of the MISO pin directly.
func New(c Conn, data hx711.Input, options ...Option) *Transport {
	t := &Transport{
		conn:    c,
		data:    data,
		mon:     health.New(nil),
		timeout: health.DefaultTimeout,
		polls:   DefaultReadyPolls,
		tpoll:   DefaultReadyPoll,
		sleep:   time.Sleep,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// Cycle performs a conversion cycle that selects g for the next conversion.
//
// If the converter is not ready within the poll budget, or the deadline,
// the transfer is not issued.
func (t *Transport) Cycle(g hx711.Gain) (uint32, error) {
	if t.closed {
		return 0, hx711.ErrClosed
	}
	tx, ok := Pattern(g)
	if !ok {
		return 0, hx711.ErrInvalidConfig
	}
	t.mon.Arm(t.timeout)
	ready := false
	for i := 0; i < t.polls && !t.mon.Expired(); i++ {
		v, err := t.data.Value()
		if err != nil {
			t.mon.Fail()
			return 0, err
		}
		if v == 0 {
			ready = true
			break
		}
		t.sleep(t.tpoll)
	}
	if !ready {
		t.mon.TimeOut()
		return 0, hx711.ErrTimeout
	}
	if err := t.conn.Tx(tx[:], t.rx[:]); err != nil {
		t.mon.Fail()
		return 0, err
	}
	t.mon.Complete()
	return Unpack(t.rx, g.Pulses()), nil
}

// PowerDown powers down the converter, if a PowerControl is available.
//
// Returns once the clock has been held high for PowerDownHold.
func (t *Transport) PowerDown() error {
	if t.closed {
		return hx711.ErrClosed
	}
	if t.pc == nil {
		return hx711.ErrUnsupported
	}
	if err := t.pc.PowerDown(); err != nil {
		return err
	}
	t.sleep(PowerDownHold)
	return nil
}

// PowerUp powers up the converter, if a PowerControl is available.
func (t *Transport) PowerUp() error {
	if t.closed {
		return hx711.ErrClosed
	}
	if t.pc == nil {
		return hx711.ErrUnsupported
	}
	return t.pc.PowerUp()
}

// Close releases the closer, if any.
func (t *Transport) Close() error {
	if t.closed {
		return hx711.ErrClosed
	}
	t.closed = true
	var err error
	if t.closer != nil {
		err = multierr.Append(err, t.closer.Close())
	}
	return err
}

// Armed returns true while a cycle is in progress.
func (t *Transport) Armed() bool {
	return t.mon.Armed()
}

// Stats returns the cycle statistics.
func (t *Transport) Stats() health.Stats {
	return t.mon.Stats()
}
