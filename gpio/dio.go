// Copyright © 2017 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

// Package gpio provides memory mapped GPIO access on the Raspberry Pi, fast
// enough to bit bash the HX711 clock.
//
// Supports simple operations such as:
// - Pin mode/direction (input/output/alternate function)
// - Pin write (high/low)
// - Pin read (high/low)
// - Pull up/down/off
//
// A Pin satisfies both hx711.Input and hx711.Output, so may be used directly
// as the clock or data line of a transport.
//
// Example of use:
//
//	gpio.Open()
//	defer gpio.Close()
//
//	clk := gpio.NewPin(gpio.GPIO5)
//	clk.Low()
//	clk.Output()
//	data := gpio.NewPin(gpio.GPIO6)
//	data.Input()
//	data.PullUp()
//
// Pins are identified by their BCM GPIO number, not their J8 header position.
//
// See the peripherals datasheet for full details of the BCM2835 controller:
// http://www.raspberrypi.org/wp-content/uploads/2012/02/BCM2835-ARM-Peripherals.pdf
package gpio

import (
	"time"
)

// Pin represents a single GPIO pin.
type Pin struct {
	// Immutable fields
	pin         int
	fsel        int
	levelReg    int
	clearReg    int
	setReg      int
	pullReg2711 int
	bank        int
	mask        uint32
	// Mutable fields
	shadow Level
}

// Level represents the high (true) or low (false) level of a Pin.
type Level bool

// Mode defines the IO mode of a Pin.
type Mode int

// Pull defines the pull up/down state of a Pin.
type Pull int

const (
	memLength = 4096

	modeMask uint32 = 7 // pin mode is 3 bits wide
	pullMask uint32 = 3 // pull mode is 2 bits wide
	// BCM2835 pullReg is the same for all pins.
	pullReg2835 = 37
)

// Pin Mode, a pin can be set in Input or Output mode, or an alternate
// function such as SPI.
const (
	Input Mode = iota
	Output
	Alt5
	Alt4
	Alt0
	Alt1
	Alt2
	Alt3
)

// Level of pin, High / Low
const (
	Low  Level = false
	High Level = true
)

// Pull Up / Down / Off
const (
	// Values match bcm pull field.
	PullNone Pull = iota
	PullDown
	PullUp
)

// MaxGPIOPin is one beyond the highest BCM GPIO available on the J8 header.
const MaxGPIOPin = 28

// BCM numbers of the pins used by the default HX711 wiring and the hardware
// tests, with their J8 header positions.
const (
	GPIO4  = 4  // J8 pin 7
	GPIO5  = 5  // J8 pin 29
	GPIO6  = 6  // J8 pin 31
	GPIO22 = 22 // J8 pin 15
	GPIO23 = 23 // J8 pin 16
)

// SPI0 pins in their Alt0 function.
const (
	SPI0MISO = 9
	SPI0MOSI = 10
	SPI0SCLK = 11
)

// NewPin returns the Pin for the BCM GPIO number pin, or nil if pin is not
// available on the header.
//
// Open must have been called first.
func NewPin(pin int) *Pin {
	if len(mem) == 0 {
		panic("GPIO not initialised.")
	}
	if pin < 0 || pin >= MaxGPIOPin {
		return nil
	}
	bank := pin / 32
	p := &Pin{
		pin:         pin,
		fsel:        pin / 10,
		bank:        bank,
		mask:        uint32(1 << uint(pin&0x1f)),
		setReg:      7 + bank,
		clearReg:    10 + bank,
		levelReg:    13 + bank,
		pullReg2711: 57 + pin/16,
	}
	if mem[p.levelReg]&p.mask != 0 {
		p.shadow = High
	}
	return p
}

// Input sets pin as Input.
func (pin *Pin) Input() {
	pin.SetMode(Input)
}

// Output sets pin as Output.
func (pin *Pin) Output() {
	pin.SetMode(Output)
}

// High sets pin High.
func (pin *Pin) High() {
	pin.Write(High)
}

// Low sets pin Low.
func (pin *Pin) Low() {
	pin.Write(Low)
}

// Mode returns the mode of the pin in the Function Select register.
func (pin *Pin) Mode() Mode {
	modeShift := uint(pin.pin%10) * 3
	return Mode(mem[pin.fsel] >> modeShift & modeMask)
}

// Shadow returns the value of the last write to an output pin or the last read on an input pin.
func (pin *Pin) Shadow() Level {
	return pin.shadow
}

// Pin returns the pin number that this Pin represents.
func (pin *Pin) Pin() int {
	return pin.pin
}

// SetMode sets the pin Mode.
func (pin *Pin) SetMode(mode Mode) {
	// shift for pin mode field within fsel register.
	modeShift := uint(pin.pin%10) * 3

	memlock.Lock()
	defer memlock.Unlock()

	mem[pin.fsel] = mem[pin.fsel]&^(modeMask<<modeShift) | uint32(mode)<<modeShift
}

// Read pin state (high/low)
func (pin *Pin) Read() (level Level) {
	if (mem[pin.levelReg] & pin.mask) != 0 {
		level = High
	}
	pin.shadow = level
	return
}

// Set pin state (high/low)
func (pin *Pin) Write(level Level) {
	if level == Low {
		mem[pin.clearReg] = pin.mask
	} else {
		mem[pin.setReg] = pin.mask
	}
	pin.shadow = level
}

// Value returns the pin level as 0 or 1.
//
// Register access cannot fail, so the error is always nil.
func (pin *Pin) Value() (int, error) {
	if pin.Read() {
		return 1, nil
	}
	return 0, nil
}

// SetValue sets the pin High for any non-zero v, else Low.
func (pin *Pin) SetValue(v int) error {
	pin.Write(v != 0)
	return nil
}

// SetPull sets the pull up/down mode for a Pin.
// Unlike the mode, the pull value cannot be read back from hardware and
// so must be remembered by the caller.
func (pin *Pin) SetPull(pull Pull) {
	switch chipset {
	case BCM2711:
		pin.setPull2711(pull)
	default:
		pin.setPull2835(pull)
	}
}

func (pin *Pin) setPull2835(pull Pull) {
	clkReg := pin.bank + 38
	memlock.Lock()
	defer memlock.Unlock()

	mem[pullReg2835] = mem[pullReg2835]&^pullMask | uint32(pull)
	// Wait for value to clock in, this is ugly, sorry :(
	// This wait corresponds to at least 150 clock cycles.
	time.Sleep(time.Microsecond)
	mem[clkReg] = pin.mask
	// Wait for value to clock in
	time.Sleep(time.Microsecond)
	mem[pullReg2835] = mem[pullReg2835] &^ pullMask
	mem[clkReg] = 0
}

func (pin *Pin) setPull2711(pull Pull) {
	// 2711 reverses up/down sense
	switch pull {
	case PullUp:
		pull = PullDown
	case PullDown:
		pull = PullUp
	}
	shift := uint(pin.pin&0x0f) << 1
	memlock.Lock()
	defer memlock.Unlock()
	mem[pin.pullReg2711] = mem[pin.pullReg2711]&^(pullMask<<shift) | uint32(pull)<<shift
}

// PullUp sets the pull state of the pin to PullUp.
func (pin *Pin) PullUp() {
	pin.SetPull(PullUp)
}

// PullDown sets the pull state of the Pin to PullDown.
func (pin *Pin) PullDown() {
	pin.SetPull(PullDown)
}

// PullNone disables pullup/down on pin, leaving it floating.
func (pin *Pin) PullNone() {
	pin.SetPull(PullNone)
}
