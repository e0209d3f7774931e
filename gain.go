// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package hx711

import "strconv"

// Gain is the converter amplification, which also selects the input channel.
type Gain int

// Supported gains.
const (
	// Gain128 selects channel A with gain 128.
	Gain128 Gain = 128
	// Gain64 selects channel A with gain 64.
	Gain64 Gain = 64
	// Gain32 selects channel B with gain 32.
	Gain32 Gain = 32
)

// DataBits is the number of data bits shifted out per conversion.
const DataBits = 24

// Valid returns true if the gain is one the converter supports.
func (g Gain) Valid() bool {
	return g.Extra() != 0
}

// Extra returns the number of gain select pulses that follow the data bits,
// or 0 for an unsupported gain.
func (g Gain) Extra() int {
	switch g {
	case Gain128:
		return 1
	case Gain64:
		return 3
	case Gain32:
		return 2
	}
	return 0
}

// Pulses returns the total number of clock pulses in a conversion cycle that
// programs this gain for the following conversion, or 0 for an unsupported
// gain.
func (g Gain) Pulses() int {
	if e := g.Extra(); e != 0 {
		return DataBits + e
	}
	return 0
}

// Channel returns the input channel selected by the gain.
func (g Gain) Channel() string {
	switch g {
	case Gain128, Gain64:
		return "A"
	case Gain32:
		return "B"
	}
	return ""
}

func (g Gain) String() string {
	return strconv.Itoa(int(g))
}

// ParseGain converts a numeric string to a Gain.
func ParseGain(s string) (Gain, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	g := Gain(v)
	if !g.Valid() {
		return 0, invalidConfig("gain", s)
	}
	return g, nil
}
