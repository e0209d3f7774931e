// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package hx711

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates the converter did not become ready, or a
	// conversion cycle did not complete, within the deadline.
	//
	// The driver state is clean after it is returned, so the read may be
	// retried.
	ErrTimeout = errors.New("sensor timeout")

	// ErrNoResponse indicates a cycle completed but returned the pattern
	// reserved for an absent converter.
	//
	// It wraps ErrTimeout, so errors.Is(err, ErrTimeout) holds for both.
	ErrNoResponse = fmt.Errorf("%w: sensor does not respond", ErrTimeout)

	// ErrInvalidConfig indicates a rejected configuration value.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPoweredDown indicates a read was attempted while the converter is
	// powered down.
	ErrPoweredDown = errors.New("powered down")

	// ErrClosed indicates the driver or transport has been closed.
	ErrClosed = errors.New("closed")

	// ErrUnsupported indicates the transport cannot perform the operation.
	ErrUnsupported = errors.New("not supported by transport")
)
