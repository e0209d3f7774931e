// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warthog618/config"
	"github.com/warthog618/gpiod"
	"github.com/warthog618/hx711"
	"github.com/warthog618/hx711/gpio"
	"github.com/warthog618/hx711/health"
	"github.com/warthog618/hx711/pulse"
	"github.com/warthog618/hx711/shift"
	"github.com/warthog618/hx711/spi"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	periphspi "periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// device is an HX711 and the lines and backend it reads through.
type device struct {
	*hx711.HX711
	log   zerolog.Logger
	stats func() health.Stats
	chip  *gpiod.Chip
	// released in reverse order after the driver is closed
	release []func() error
}

func openDevice(cfg *config.Config, log zerolog.Logger) (d *device, err error) {
	d = &device{log: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, d.releaseAll())
			d = nil
		}
	}()
	if err = d.openBackend(cfg); err != nil {
		return
	}
	var tr hx711.Transport
	switch t := cfg.MustGet("transport").String(); t {
	case "pulse":
		tr, err = d.pulseTransport(cfg)
	case "bbspi":
		tr, err = d.bbspiTransport(cfg)
	case "spi":
		tr, err = d.spiTransport(cfg)
	default:
		err = fmt.Errorf("%w: transport %s", hx711.ErrInvalidConfig, t)
	}
	if err != nil {
		return
	}
	d.log.Debug().
		Str("transport", cfg.MustGet("transport").String()).
		Str("backend", cfg.MustGet("backend").String()).
		Msg("transport open")
	d.HX711, err = hx711.New(tr,
		hx711.WithGain(hx711.Gain(cfg.MustGet("gain").Int())),
		hx711.WithScale(cfg.MustGet("scale").Float()),
		hx711.WithOffset(cfg.MustGet("offset").Float()),
		hx711.WithTimeConstant(cfg.MustGet("tc").Float()),
		hx711.WithLogger(log))
	return
}

// Close closes the driver, and so the transport, then releases the lines.
func (d *device) Close() error {
	return multierr.Append(d.HX711.Close(), d.releaseAll())
}

func (d *device) releaseAll() error {
	var err error
	for i := len(d.release) - 1; i >= 0; i-- {
		err = multierr.Append(err, d.release[i]())
	}
	d.release = nil
	return err
}

func (d *device) openBackend(cfg *config.Config) error {
	switch b := cfg.MustGet("backend").String(); b {
	case "mem":
		if err := gpio.Open(); err != nil {
			return err
		}
		d.release = append(d.release, gpio.Close)
	case "cdev":
		c, err := gpiod.NewChip(cfg.MustGet("chip").String(), gpiod.WithConsumer("hx711"))
		if err != nil {
			return err
		}
		d.chip = c
		d.release = append(d.release, c.Close)
	default:
		return fmt.Errorf("%w: backend %s", hx711.ErrInvalidConfig, b)
	}
	return nil
}

// output requests a line driven low by the host.
func (d *device) output(offset int) (hx711.Output, error) {
	if d.chip != nil {
		l, err := d.chip.RequestLine(offset, gpiod.AsOutput(0))
		if err != nil {
			return nil, err
		}
		d.release = append(d.release, l.Close)
		return l, nil
	}
	pin, err := d.pin(offset)
	if err != nil {
		return nil, err
	}
	pin.Low()
	pin.Output()
	d.release = append(d.release, func() error {
		pin.Input()
		return nil
	})
	return pin, nil
}

// input requests a line driven by the converter.
//
// The line is pulled down so an absent converter reads as no response.
func (d *device) input(offset int) (hx711.Input, error) {
	if d.chip != nil {
		l, err := d.chip.RequestLine(offset, gpiod.AsInput, gpiod.WithPullDown)
		if err != nil {
			return nil, err
		}
		d.release = append(d.release, l.Close)
		return l, nil
	}
	pin, err := d.pin(offset)
	if err != nil {
		return nil, err
	}
	pin.Input()
	pin.PullDown()
	return pin, nil
}

func (d *device) pin(offset int) (*gpio.Pin, error) {
	pin := gpio.NewPin(offset)
	if pin == nil {
		return nil, fmt.Errorf("%w: pin %d", hx711.ErrInvalidConfig, offset)
	}
	return pin, nil
}

func (d *device) pulseTransport(cfg *config.Config) (hx711.Transport, error) {
	clk, err := d.output(cfg.MustGet("clk").Int())
	if err != nil {
		return nil, err
	}
	data, err := d.input(cfg.MustGet("data").Int())
	if err != nil {
		return nil, err
	}
	seq, err := pulse.NewBitBang(clk, data, pulse.WithTclk(cfg.MustGet("tclk").Duration()))
	if err != nil {
		return nil, err
	}
	tr := pulse.New(seq, pulse.WithTimeout(cfg.MustGet("timeout").Duration()))
	d.stats = tr.Stats
	return tr, nil
}

func (d *device) bbspiTransport(cfg *config.Config) (hx711.Transport, error) {
	mosi, err := d.output(cfg.MustGet("mosi").Int())
	if err != nil {
		return nil, err
	}
	miso, err := d.input(cfg.MustGet("miso").Int())
	if err != nil {
		return nil, err
	}
	var sclk hx711.Output
	if offset := cfg.MustGet("sclk").Int(); offset >= 0 {
		if sclk, err = d.output(offset); err != nil {
			return nil, err
		}
	}
	s, err := spi.New(cfg.MustGet("tclk").Duration(), sclk, mosi, miso)
	if err != nil {
		return nil, err
	}
	tr := shift.New(s, miso,
		shift.WithTimeout(cfg.MustGet("timeout").Duration()),
		shift.WithPowerControl(lineHold{mosi}),
		shift.WithCloser(s))
	d.stats = tr.Stats
	return tr, nil
}

func (d *device) spiTransport(cfg *config.Config) (hx711.Transport, error) {
	var speed physic.Frequency
	if err := speed.Set(cfg.MustGet("spi.speed").String()); err != nil {
		return nil, fmt.Errorf("%w: spi.speed %s", hx711.ErrInvalidConfig, err)
	}
	options := []shift.Option{shift.WithTimeout(cfg.MustGet("timeout").Duration())}
	var ready hx711.Input
	if d.chip != nil {
		// MISO is owned by the SPI driver, so DOUT must also be wired to data.
		var err error
		if ready, err = d.input(cfg.MustGet("data").Int()); err != nil {
			return nil, err
		}
	} else {
		// the level of MISO is readable while in its SPI function.
		miso, err := d.pin(cfg.MustGet("miso").Int())
		if err != nil {
			return nil, err
		}
		mosi, err := d.pin(cfg.MustGet("mosi").Int())
		if err != nil {
			return nil, err
		}
		ready = miso
		options = append(options, shift.WithPowerControl(gpio.NewClockHold(mosi)))
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	p, err := spireg.Open(cfg.MustGet("spi.dev").String())
	if err != nil {
		return nil, err
	}
	c, err := p.Connect(speed, periphspi.Mode0, 8)
	if err != nil {
		return nil, multierr.Append(err, p.Close())
	}
	tr := shift.New(c, ready, append(options, shift.WithCloser(p))...)
	d.stats = tr.Stats
	return tr, nil
}

// lineHold powers the converter down by holding a GPIO clock line high.
type lineHold struct {
	clk hx711.Output
}

func (h lineHold) PowerDown() error {
	return h.clk.SetValue(1)
}

func (h lineHold) PowerUp() error {
	return h.clk.SetValue(0)
}
