// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package spi provides a bit bashed SPI controller using GPIO lines.
//
// It is not related to the SPI device drivers provided by Linux, and is
// intended for platforms or pin assignments where a hardware controller is
// not available.  It provides a full duplex Tx in mode 0, so it may be used
// as the Conn for a shift.Transport.
package spi

import (
	"errors"
	"sync"
	"time"

	"github.com/warthog618/hx711"
)

// SPI represents a bit bashed SPI controller using 2 or 3 GPIO lines.
//
// The clock line is optional as some devices, such as the HX711 driven by
// shift patterns, only need the data lines.
type SPI struct {
	mu sync.Mutex
	// time between clock edges (i.e. half the cycle time)
	tclk time.Duration
	sclk hx711.Output
	mosi hx711.Output
	miso hx711.Input
}

// ErrShortBuffer indicates the receive buffer is shorter than the transmit
// buffer.
var ErrShortBuffer = errors.New("receive buffer too short")

// New creates a SPI, driving sclk and mosi low.
//
// sclk may be nil.
func New(tclk time.Duration, sclk, mosi hx711.Output, miso hx711.Input) (*SPI, error) {
	s := &SPI{
		tclk: tclk,
		sclk: sclk,
		mosi: mosi,
		miso: miso,
	}
	if err := s.idle(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close returns the output lines to idle.
//
// The lines remain owned by the caller.
func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle()
}

// Tx writes w to mosi while reading the same number of bytes from miso into
// r, MSB first.
//
// Bits are written before the rising clock edge and read on it (mode 0).
func (s *SPI) Tx(w, r []byte) error {
	if len(r) < len(w) {
		return ErrShortBuffer
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range w {
		var d byte
		for bit := 7; bit >= 0; bit-- {
			v, err := s.clock(int(b>>uint(bit)) & 0x01)
			if err != nil {
				s.idle()
				return err
			}
			d = d << 1
			if v != 0 {
				d = d | 0x01
			}
		}
		r[i] = d
	}
	return s.idle()
}

// clock writes a data bit to mosi and reads a data bit from miso.
// Assumes clock starts low and ends low.
// Assumes caller already holds the lock.
func (s *SPI) clock(b int) (int, error) {
	if err := s.mosi.SetValue(b); err != nil {
		return 0, err
	}
	if s.sclk != nil {
		if err := s.sclk.SetValue(1); err != nil {
			return 0, err
		}
	}
	spin(s.tclk)
	v, err := s.miso.Value()
	if err != nil {
		return 0, err
	}
	if s.sclk != nil {
		if err := s.sclk.SetValue(0); err != nil {
			return 0, err
		}
	}
	spin(s.tclk)
	return v, nil
}

func (s *SPI) idle() error {
	if s.sclk != nil {
		if err := s.sclk.SetValue(0); err != nil {
			return err
		}
	}
	return s.mosi.SetValue(0)
}

// spin busy waits as time.Sleep is far too coarse for clock edges.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}
