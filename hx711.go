// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package hx711 provides a driver for the HX711 24 bit load cell ADC.
//
// The HX711 is read over a two wire interface - a clock (PD_SCK) driven by
// the host and a data line (DOUT) driven by the converter.  There is no
// addressing or framing; the converter signals a completed conversion by
// pulling DOUT low, and the host then clocks out 24 data bits followed by
// 1 to 3 extra pulses that select the gain and channel for the next
// conversion.
//
// The bit level exchange is delegated to a Transport, of which two are
// provided:
//
//   - pulse, which drives the clock from a dedicated sequencer, either a
//     goroutine locked to an OS thread or an RP2040 PIO state machine.
//   - shift, which drives the clock from the MOSI of an SPI controller using
//     pre-baked clock patterns and decodes the data from MISO.
//
// The driver layers tare, scale and a low-pass filter over the raw samples.
//
// Example of use:
//
//	hx, err := hx711.New(t, hx711.WithScale(48.36))
//	if err != nil {
//		...
//	}
//	defer hx.Close()
//	hx.Tare(15)
//	w, err := hx.Units()
//
// The driver serialises its own operations, but the lines used by the
// transport must not be driven by anything else while the driver is open.
package hx711

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Output is a line driven by the host, i.e. the clock.
//
// The line value is 0 (low) or 1 (high).
type Output interface {
	SetValue(v int) error
}

// Input is a line sampled by the host, i.e. the data line.
type Input interface {
	Value() (int, error)
}

// Transport performs the bit level exchange with the converter.
type Transport interface {
	// Cycle waits for the converter to be ready, then clocks out a sample,
	// selecting g for the following conversion.
	//
	// Returns the raw 24 bit accumulator, or NoResponse if the converter did
	// not drive the data line.
	Cycle(g Gain) (uint32, error)

	// PowerDown holds the clock high long enough for the converter to enter
	// power down.
	PowerDown() error

	// PowerUp returns the clock low, waking the converter.
	PowerUp() error

	// Close releases the transport.
	Close() error
}

// Defaults applied by New.
const (
	DefaultGain         = Gain128
	DefaultTimeConstant = 0.25
	DefaultScale        = 1.0
	DefaultTareSamples  = 15
	DefaultAverage      = 3
)

// HX711 reads calibrated measurements from a connected HX711.
type HX711 struct {
	mu  sync.Mutex
	t   Transport
	log zerolog.Logger
	// active gain, programmed into the converter by the last cycle
	gain Gain
	// calibration
	offset float64
	scale  float64
	// low-pass filter
	tc       float64
	filtered float64
	down     bool
	closed   bool
}

// Option modifies the construction of an HX711.
type Option func(*HX711) error

// WithGain sets the initial gain.
func WithGain(g Gain) Option {
	return func(hx *HX711) error {
		if !g.Valid() {
			return invalidConfig("gain", int(g))
		}
		hx.gain = g
		return nil
	}
}

// WithScale sets the initial scale.
func WithScale(s float64) Option {
	return func(hx *HX711) error {
		return hx.setScale(s)
	}
}

// WithOffset sets the initial offset.
func WithOffset(o float64) Option {
	return func(hx *HX711) error {
		hx.offset = o
		return nil
	}
}

// WithTimeConstant sets the initial low-pass filter time constant.
func WithTimeConstant(tc float64) Option {
	return func(hx *HX711) error {
		return hx.setTimeConstant(tc)
	}
}

// WithLogger sets the logger used by the driver.
func WithLogger(l zerolog.Logger) Option {
	return func(hx *HX711) error {
		hx.log = l
		return nil
	}
}

// New creates an HX711 reading through the transport t.
//
// New programs the gain into the converter and seeds the low-pass filter,
// so it blocks for up to three conversion cycles.
// The transport is owned by the HX711 and is closed by Close, including when
// New fails.
func New(t Transport, options ...Option) (*HX711, error) {
	hx := &HX711{
		t:     t,
		log:   zerolog.Nop(),
		gain:  DefaultGain,
		scale: DefaultScale,
		tc:    DefaultTimeConstant,
	}
	for _, option := range options {
		if err := option(hx); err != nil {
			return nil, multierr.Append(err, t.Close())
		}
	}
	if err := hx.applyGain(hx.gain); err != nil {
		return nil, multierr.Append(err, t.Close())
	}
	return hx, nil
}

// Close releases the transport.
func (hx *HX711) Close() error {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	if hx.closed {
		return ErrClosed
	}
	hx.closed = true
	return hx.t.Close()
}

// Read performs a single conversion cycle and returns the raw sample.
func (hx *HX711) Read() (int32, error) {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.read()
}

// ReadAverage returns the mean of n raw samples.
//
// The first error aborts the average.
func (hx *HX711) ReadAverage(n int) (float64, error) {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.readAverage(n)
}

// ReadMedian returns the median of n raw samples.
//
// The first error aborts the read.
func (hx *HX711) ReadMedian(n int) (float64, error) {
	if n <= 0 {
		return 0, invalidConfig("samples", n)
	}
	hx.mu.Lock()
	defer hx.mu.Unlock()
	vv := make([]int32, n)
	for i := range vv {
		v, err := hx.read()
		if err != nil {
			return 0, err
		}
		vv[i] = v
	}
	sort.Slice(vv, func(i, j int) bool { return vv[i] < vv[j] })
	if n%2 == 1 {
		return float64(vv[n/2]), nil
	}
	return (float64(vv[n/2-1]) + float64(vv[n/2])) / 2, nil
}

// ReadLowpass reads a sample and returns the updated low-pass filter output.
//
// The filter is not updated if the read fails.
func (hx *HX711) ReadLowpass() (float64, error) {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.readLowpass()
}

// Value returns the filtered reading less the offset.
func (hx *HX711) Value() (float64, error) {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	v, err := hx.readLowpass()
	if err != nil {
		return 0, err
	}
	return v - hx.offset, nil
}

// Units returns the filtered reading less the offset, divided by the scale.
func (hx *HX711) Units() (float64, error) {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	if hx.scale == 0 || math.IsNaN(hx.scale) {
		return 0, invalidConfig("scale", hx.scale)
	}
	v, err := hx.readLowpass()
	if err != nil {
		return 0, err
	}
	return (v - hx.offset) / hx.scale, nil
}

// Tare sets the offset to the mean of n raw samples.
//
// The offset is unchanged if any read fails.
func (hx *HX711) Tare(n int) error {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	avg, err := hx.readAverage(n)
	if err != nil {
		return err
	}
	hx.offset = avg
	hx.log.Debug().Int("samples", n).Float64("offset", avg).Msg("tare")
	return nil
}

// Gain returns the active gain.
func (hx *HX711) Gain() Gain {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.gain
}

// SetGain changes the gain and channel.
//
// An unsupported gain is rejected with ErrInvalidConfig, leaving the active
// gain unchanged.  Otherwise a discard cycle flushes the conversion in
// flight at the old gain and a second cycle seeds the low-pass filter.
func (hx *HX711) SetGain(g Gain) error {
	if !g.Valid() {
		return invalidConfig("gain", int(g))
	}
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.applyGain(g)
}

// Offset returns the offset subtracted from filtered readings.
func (hx *HX711) Offset() float64 {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.offset
}

// SetOffset sets the offset subtracted from filtered readings.
func (hx *HX711) SetOffset(o float64) {
	hx.mu.Lock()
	hx.offset = o
	hx.mu.Unlock()
}

// Scale returns the divisor converting readings to units.
func (hx *HX711) Scale() float64 {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.scale
}

// SetScale sets the divisor converting readings to units.
//
// A zero, infinite or NaN scale is rejected with ErrInvalidConfig.
func (hx *HX711) SetScale(s float64) error {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.setScale(s)
}

// TimeConstant returns the low-pass filter time constant.
func (hx *HX711) TimeConstant() float64 {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.tc
}

// SetTimeConstant sets the low-pass filter time constant.
//
// Values outside (0,1) are rejected with ErrInvalidConfig.
func (hx *HX711) SetTimeConstant(tc float64) error {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.setTimeConstant(tc)
}

// Filtered returns the current low-pass filter output.
func (hx *HX711) Filtered() float64 {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.filtered
}

// Seed sets the low-pass filter output, e.g. to a long term average.
func (hx *HX711) Seed(v float64) {
	hx.mu.Lock()
	hx.filtered = v
	hx.mu.Unlock()
}

// PowerDown places the converter in power down mode.
//
// Reads fail with ErrPoweredDown until PowerUp is called.
func (hx *HX711) PowerDown() error {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	if hx.closed {
		return ErrClosed
	}
	if err := hx.t.PowerDown(); err != nil {
		return err
	}
	hx.down = true
	hx.log.Debug().Msg("power down")
	return nil
}

// PowerUp wakes the converter from power down.
//
// The converter resets to Gain128 on power up, so any other active gain
// is reprogrammed, which blocks for two conversion cycles.
func (hx *HX711) PowerUp() error {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	if hx.closed {
		return ErrClosed
	}
	if err := hx.t.PowerUp(); err != nil {
		return err
	}
	hx.down = false
	hx.log.Debug().Msg("power up")
	if hx.gain != Gain128 {
		return hx.applyGain(hx.gain)
	}
	return nil
}

// PoweredDown returns true if the converter has been powered down.
func (hx *HX711) PoweredDown() bool {
	hx.mu.Lock()
	defer hx.mu.Unlock()
	return hx.down
}

// applyGain must be called with hx.mu held.
func (hx *HX711) applyGain(g Gain) error {
	hx.gain = g
	// flush the conversion started with the previous gain
	if _, err := hx.read(); err != nil {
		return err
	}
	v, err := hx.read()
	if err != nil {
		return err
	}
	hx.filtered = float64(v)
	hx.log.Debug().Int("gain", int(g)).Str("channel", g.Channel()).Int32("seed", v).Msg("gain set")
	return nil
}

func (hx *HX711) read() (int32, error) {
	if hx.closed {
		return 0, ErrClosed
	}
	if hx.down {
		return 0, ErrPoweredDown
	}
	raw, err := hx.t.Cycle(hx.gain)
	if err != nil {
		hx.log.Warn().Err(err).Msg("read failed")
		return 0, err
	}
	v, err := Decode(raw)
	if err != nil {
		hx.log.Warn().Err(err).Uint32("raw", raw).Msg("read failed")
		return 0, err
	}
	return v, nil
}

func (hx *HX711) readAverage(n int) (float64, error) {
	if n <= 0 {
		return 0, invalidConfig("samples", n)
	}
	var sum int64
	for i := 0; i < n; i++ {
		v, err := hx.read()
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}
	return float64(sum) / float64(n), nil
}

func (hx *HX711) readLowpass() (float64, error) {
	v, err := hx.read()
	if err != nil {
		return 0, err
	}
	hx.filtered += hx.tc * (float64(v) - hx.filtered)
	return hx.filtered, nil
}

func (hx *HX711) setScale(s float64) error {
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return invalidConfig("scale", s)
	}
	hx.scale = s
	return nil
}

func (hx *HX711) setTimeConstant(tc float64) error {
	if !(tc > 0 && tc < 1) {
		return invalidConfig("time constant", tc)
	}
	hx.tc = tc
	return nil
}

func invalidConfig(field string, v interface{}) error {
	return fmt.Errorf("%w: %s %v", ErrInvalidConfig, field, v)
}
