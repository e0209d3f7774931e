// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package gpio

// ClockHold powers the HX711 down by holding a pin, usually the SPI MOSI
// driving the converter clock, high as a GPIO output.
//
// It satisfies shift.PowerControl.
type ClockHold struct {
	pin  *Pin
	mode Mode
}

// NewClockHold creates a ClockHold for pin, restoring the pin's current mode
// on PowerUp.
func NewClockHold(pin *Pin) *ClockHold {
	return &ClockHold{pin: pin, mode: pin.Mode()}
}

// PowerDown switches the pin to an output and drives it high.
func (h *ClockHold) PowerDown() error {
	h.pin.Write(High)
	h.pin.SetMode(Output)
	return nil
}

// PowerUp drives the pin low and returns it to its original mode.
func (h *ClockHold) PowerUp() error {
	h.pin.Write(Low)
	h.pin.SetMode(h.mode)
	return nil
}
