// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package hx711_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/hx711"
)

type step struct {
	raw uint32
	err error
}

// mockTransport returns the queued steps, then fill.
type mockTransport struct {
	steps    []step
	fill     uint32
	gains    []hx711.Gain
	downs    int
	ups      int
	closes   int
	powerErr error
	closeErr error
}

func (m *mockTransport) queue(raws ...uint32) {
	for _, r := range raws {
		m.steps = append(m.steps, step{raw: r})
	}
}

func (m *mockTransport) fail(err error) {
	m.steps = append(m.steps, step{err: err})
}

func (m *mockTransport) Cycle(g hx711.Gain) (uint32, error) {
	m.gains = append(m.gains, g)
	if len(m.steps) > 0 {
		s := m.steps[0]
		m.steps = m.steps[1:]
		return s.raw, s.err
	}
	return m.fill, nil
}

func (m *mockTransport) PowerDown() error {
	if m.powerErr != nil {
		return m.powerErr
	}
	m.downs++
	return nil
}

func (m *mockTransport) PowerUp() error {
	if m.powerErr != nil {
		return m.powerErr
	}
	m.ups++
	return nil
}

func (m *mockTransport) Close() error {
	m.closes++
	return m.closeErr
}

func newHX(t *testing.T, m *mockTransport, options ...hx711.Option) *hx711.HX711 {
	t.Helper()
	hx, err := hx711.New(m, options...)
	require.Nil(t, err)
	require.NotNil(t, hx)
	return hx
}

func TestNew(t *testing.T) {
	m := &mockTransport{fill: 0x20}
	m.queue(0x10)
	hx := newHX(t, m)
	assert.Equal(t, hx711.Gain128, hx.Gain())
	assert.Equal(t, []hx711.Gain{hx711.Gain128, hx711.Gain128}, m.gains)
	// first cycle discarded, second seeds the filter
	assert.Equal(t, float64(0x20), hx.Filtered())
	assert.Equal(t, hx711.DefaultScale, hx.Scale())
	assert.Equal(t, float64(0), hx.Offset())
	assert.Equal(t, hx711.DefaultTimeConstant, hx.TimeConstant())
	assert.False(t, hx.PoweredDown())

	m = &mockTransport{}
	hx = newHX(t, m,
		hx711.WithGain(hx711.Gain64),
		hx711.WithScale(-2.5),
		hx711.WithOffset(12),
		hx711.WithTimeConstant(0.5))
	assert.Equal(t, hx711.Gain64, hx.Gain())
	assert.Equal(t, []hx711.Gain{hx711.Gain64, hx711.Gain64}, m.gains)
	assert.Equal(t, -2.5, hx.Scale())
	assert.Equal(t, float64(12), hx.Offset())
	assert.Equal(t, 0.5, hx.TimeConstant())
}

func TestNewInvalid(t *testing.T) {
	patterns := []struct {
		name   string
		option hx711.Option
	}{
		{"gain", hx711.WithGain(hx711.Gain(16))},
		{"scale", hx711.WithScale(0)},
		{"scale nan", hx711.WithScale(math.NaN())},
		{"scale inf", hx711.WithScale(math.Inf(1))},
		{"tc zero", hx711.WithTimeConstant(0)},
		{"tc one", hx711.WithTimeConstant(1)},
	}
	for _, p := range patterns {
		t.Run(p.name, func(t *testing.T) {
			m := &mockTransport{}
			hx, err := hx711.New(m, p.option)
			assert.True(t, errors.Is(err, hx711.ErrInvalidConfig))
			assert.Nil(t, hx)
			assert.Empty(t, m.gains)
			assert.Equal(t, 1, m.closes)
		})
	}
}

func TestNewTimeout(t *testing.T) {
	closeErr := errors.New("close failed")
	m := &mockTransport{closeErr: closeErr}
	m.fail(hx711.ErrTimeout)
	hx, err := hx711.New(m)
	assert.Nil(t, hx)
	assert.True(t, errors.Is(err, hx711.ErrTimeout))
	assert.True(t, errors.Is(err, closeErr))
	assert.Equal(t, 1, m.closes)
}

func TestRead(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	patterns := []struct {
		raw uint32
		v   int32
	}{
		{0x000001, 1},
		{0xffffff, -1},
		{0x7fffff, hx711.MaxSample},
		{0x800000, hx711.MinSample},
	}
	for _, p := range patterns {
		m.queue(p.raw)
		v, err := hx.Read()
		require.Nil(t, err)
		assert.Equal(t, p.v, v)
	}
}

func TestReadErrors(t *testing.T) {
	m := &mockTransport{fill: 100}
	hx := newHX(t, m)
	require.Equal(t, float64(100), hx.Filtered())

	m.fail(hx711.ErrTimeout)
	_, err := hx.ReadLowpass()
	assert.Equal(t, hx711.ErrTimeout, err)
	assert.Equal(t, float64(100), hx.Filtered())

	m.queue(hx711.NoResponse)
	_, err = hx.Value()
	assert.Equal(t, hx711.ErrNoResponse, err)
	assert.True(t, errors.Is(err, hx711.ErrTimeout))
	assert.Equal(t, float64(100), hx.Filtered())

	// recovers on the next cycle
	v, err := hx.ReadLowpass()
	require.Nil(t, err)
	assert.Equal(t, float64(100), v)
}

func TestLowpass(t *testing.T) {
	m := &mockTransport{fill: 1}
	m.queue(0, 0)
	hx := newHX(t, m)
	require.Equal(t, float64(0), hx.Filtered())
	v, err := hx.ReadLowpass()
	require.Nil(t, err)
	assert.Equal(t, hx711.DefaultTimeConstant, v)
	for i := 0; i < 100; i++ {
		v, err = hx.ReadLowpass()
		require.Nil(t, err)
	}
	assert.InDelta(t, 1, v, 1e-9)
	assert.Equal(t, v, hx.Filtered())

	// steady state is unchanged
	m = &mockTransport{fill: 1}
	hx = newHX(t, m)
	v, err = hx.ReadLowpass()
	require.Nil(t, err)
	assert.Equal(t, float64(1), v)
}

func TestSeed(t *testing.T) {
	m := &mockTransport{fill: 200}
	hx := newHX(t, m, hx711.WithTimeConstant(0.5))
	hx.Seed(100)
	assert.Equal(t, float64(100), hx.Filtered())
	v, err := hx.ReadLowpass()
	require.Nil(t, err)
	assert.Equal(t, float64(150), v)
}

func TestReadAverage(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	m.queue(1, 2, 3, 0xfffffa)
	v, err := hx.ReadAverage(4)
	require.Nil(t, err)
	assert.Equal(t, float64(0), v)

	_, err = hx.ReadAverage(0)
	assert.True(t, errors.Is(err, hx711.ErrInvalidConfig))

	m.queue(1)
	m.fail(hx711.ErrTimeout)
	_, err = hx.ReadAverage(3)
	assert.Equal(t, hx711.ErrTimeout, err)
}

func TestReadMedian(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	m.queue(5, 1, 0xfffffd)
	v, err := hx.ReadMedian(3)
	require.Nil(t, err)
	assert.Equal(t, float64(1), v)

	m.queue(1, 4, 2, 3)
	v, err = hx.ReadMedian(4)
	require.Nil(t, err)
	assert.Equal(t, 2.5, v)

	_, err = hx.ReadMedian(-1)
	assert.True(t, errors.Is(err, hx711.ErrInvalidConfig))

	m.fail(hx711.ErrTimeout)
	_, err = hx.ReadMedian(3)
	assert.Equal(t, hx711.ErrTimeout, err)
}

func TestTare(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	m.queue(10, 20, 30)
	require.Nil(t, hx.Tare(3))
	assert.Equal(t, float64(20), hx.Offset())

	m.queue(40)
	m.fail(hx711.ErrTimeout)
	assert.Equal(t, hx711.ErrTimeout, hx.Tare(3))
	assert.Equal(t, float64(20), hx.Offset())

	assert.True(t, errors.Is(hx.Tare(0), hx711.ErrInvalidConfig))
	assert.Equal(t, float64(20), hx.Offset())
}

func TestUnits(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m, hx711.WithScale(2))
	hx.SetOffset(100)
	for _, raw := range []int32{100, 300, 500, -100} {
		hx.Seed(float64(raw))
		m.fill = hx711.Encode(raw)
		u, err := hx.Units()
		require.Nil(t, err)
		assert.Equal(t, float64(raw-100)/2, u)
		v, err := hx.Value()
		require.Nil(t, err)
		assert.Equal(t, float64(raw-100), v)
	}

	assert.True(t, errors.Is(hx.SetScale(0), hx711.ErrInvalidConfig))
	assert.True(t, errors.Is(hx.SetScale(math.NaN()), hx711.ErrInvalidConfig))
	assert.True(t, errors.Is(hx.SetScale(math.Inf(1)), hx711.ErrInvalidConfig))
	assert.True(t, errors.Is(hx.SetScale(math.Inf(-1)), hx711.ErrInvalidConfig))
	assert.Equal(t, float64(2), hx.Scale())
	assert.Nil(t, hx.SetScale(-4))
	assert.Equal(t, float64(-4), hx.Scale())

	m.fail(hx711.ErrTimeout)
	_, err := hx.Units()
	assert.Equal(t, hx711.ErrTimeout, err)
}

func TestSetTimeConstant(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	for _, tc := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		assert.True(t, errors.Is(hx.SetTimeConstant(tc), hx711.ErrInvalidConfig))
		assert.Equal(t, hx711.DefaultTimeConstant, hx.TimeConstant())
	}
	assert.Nil(t, hx.SetTimeConstant(0.1))
	assert.Equal(t, 0.1, hx.TimeConstant())
}

func TestSetGain(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	m.gains = nil

	err := hx.SetGain(hx711.Gain(16))
	assert.True(t, errors.Is(err, hx711.ErrInvalidConfig))
	assert.Empty(t, m.gains)
	assert.Equal(t, hx711.Gain128, hx.Gain())

	m.queue(0x100, 0x200)
	require.Nil(t, hx.SetGain(hx711.Gain32))
	assert.Equal(t, hx711.Gain32, hx.Gain())
	assert.Equal(t, []hx711.Gain{hx711.Gain32, hx711.Gain32}, m.gains)
	assert.Equal(t, float64(0x200), hx.Filtered())

	m.fail(hx711.ErrTimeout)
	assert.Equal(t, hx711.ErrTimeout, hx.SetGain(hx711.Gain64))
}

func TestPower(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	m.gains = nil

	require.Nil(t, hx.PowerDown())
	assert.True(t, hx.PoweredDown())
	assert.Equal(t, 1, m.downs)
	_, err := hx.Read()
	assert.Equal(t, hx711.ErrPoweredDown, err)
	_, err = hx.Units()
	assert.Equal(t, hx711.ErrPoweredDown, err)
	assert.Empty(t, m.gains)

	// gain 128 is the power up default, so needs no cycles
	require.Nil(t, hx.PowerUp())
	assert.False(t, hx.PoweredDown())
	assert.Equal(t, 1, m.ups)
	assert.Empty(t, m.gains)

	m = &mockTransport{}
	hx = newHX(t, m, hx711.WithGain(hx711.Gain32))
	m.gains = nil
	require.Nil(t, hx.PowerDown())
	require.Nil(t, hx.PowerUp())
	assert.Equal(t, []hx711.Gain{hx711.Gain32, hx711.Gain32}, m.gains)

	m.powerErr = hx711.ErrUnsupported
	assert.Equal(t, hx711.ErrUnsupported, hx.PowerDown())
	assert.False(t, hx.PoweredDown())
}

func TestClose(t *testing.T) {
	m := &mockTransport{}
	hx := newHX(t, m)
	assert.Nil(t, hx.Close())
	assert.Equal(t, 1, m.closes)
	assert.Equal(t, hx711.ErrClosed, hx.Close())
	assert.Equal(t, 1, m.closes)
	_, err := hx.Read()
	assert.Equal(t, hx711.ErrClosed, err)
	assert.Equal(t, hx711.ErrClosed, hx.PowerDown())
	assert.Equal(t, hx711.ErrClosed, hx.PowerUp())
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	m := &mockTransport{}
	hx := newHX(t, m, hx711.WithLogger(zerolog.New(&buf).Level(zerolog.WarnLevel)))
	assert.Zero(t, buf.Len())
	m.queue(hx711.NoResponse)
	_, err := hx.Read()
	assert.NotNil(t, err)
	assert.Contains(t, buf.String(), "read failed")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
