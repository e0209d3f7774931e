// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package hx711_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/hx711"
)

func TestDecode(t *testing.T) {
	patterns := []struct {
		name string
		raw  uint32
		v    int32
	}{
		{"zero", 0x000000, 0},
		{"one", 0x000001, 1},
		{"minus one", 0xffffff, -1},
		{"max", 0x7fffff, hx711.MaxSample},
		{"min", 0x800000, hx711.MinSample},
		{"mixed", 0x123456, 0x123456},
		{"negative mixed", 0xedcbaa, -0x123456},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			v, err := hx711.Decode(p.raw)
			require.Nil(t, err)
			assert.Equal(t, p.v, v)
			assert.Equal(t, p.raw, hx711.Encode(v))
		})
	}
}

func TestDecodeNoResponse(t *testing.T) {
	for _, raw := range []uint32{hx711.NoResponse, 0x1000000, 0xffffffff} {
		_, err := hx711.Decode(raw)
		assert.Equal(t, hx711.ErrNoResponse, err)
		assert.True(t, errors.Is(err, hx711.ErrTimeout))
	}
}
