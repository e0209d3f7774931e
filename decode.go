// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package hx711

const (
	// NoResponse is the raw value a transport returns when the cycle completed
	// but the converter did not drive the data line.
	//
	// It lies outside the 24 bit range so it can never be mistaken for a
	// sample.
	NoResponse uint32 = 0x7fffffff

	// MaxSample is the largest sample the converter can return.
	MaxSample = 1<<(DataBits-1) - 1
	// MinSample is the smallest sample the converter can return.
	MinSample = -1 << (DataBits - 1)

	rawMask  = 1<<DataBits - 1
	signBit  = 1 << (DataBits - 1)
	rawRange = 1 << DataBits
)

// Decode converts a raw 24 bit twos-complement accumulator to a signed sample.
//
// Returns ErrNoResponse for the NoResponse sentinel, or any other value that
// does not fit in 24 bits.
func Decode(raw uint32) (int32, error) {
	if raw > rawMask {
		return 0, ErrNoResponse
	}
	v := int32(raw)
	if raw&signBit != 0 {
		v -= rawRange
	}
	return v, nil
}

// Encode converts a sample back to its raw 24 bit form.
//
// It is the inverse of Decode for samples in [MinSample, MaxSample].
func Encode(v int32) uint32 {
	return uint32(v) & rawMask
}
