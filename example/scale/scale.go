// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"
	"github.com/warthog618/hx711"
	"github.com/warthog618/hx711/gpio"
	"github.com/warthog618/hx711/pulse"
)

// This example tares a load cell connected via an HX711, then reports the
// load in grams.  The HX711 is connected to the RPI by two data lines - the
// clock, PD_SCK, and the data, DOUT. The default pin assignments and scale
// are defined in loadConfig, but can be altered via configuration (env, flag
// or config file).
// The clock pin is an output so do not run this example on a board where that
// pin serves other purposes.
func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(loadConfig(), log); err != nil {
		log.Error().Err(err).Msg("scale failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if err := gpio.Open(); err != nil {
		return err
	}
	defer gpio.Close()
	clk := gpio.NewPin(cfg.MustGet("clk").Int())
	data := gpio.NewPin(cfg.MustGet("data").Int())
	if clk == nil || data == nil {
		return fmt.Errorf("%w: pin out of range", hx711.ErrInvalidConfig)
	}
	clk.Low()
	clk.Output()
	defer clk.Input()
	data.Input()
	data.PullDown()
	seq, err := pulse.NewBitBang(clk, data, pulse.WithTclk(cfg.MustGet("tclk").Duration()))
	if err != nil {
		return err
	}
	hx, err := hx711.New(pulse.New(seq),
		hx711.WithScale(cfg.MustGet("scale").Float()),
		hx711.WithLogger(log))
	if err != nil {
		return err
	}
	defer hx.Close()
	if err = hx.Tare(hx711.DefaultTareSamples); err != nil {
		return err
	}
	hx.Seed(hx.Offset())
	for i := 0; i < cfg.MustGet("readings").Int(); i++ {
		time.Sleep(100 * time.Millisecond)
		g, err := hx.Units()
		if err != nil {
			log.Error().Err(err).Msg("read failed")
			continue
		}
		fmt.Printf("%.1fg\n", g)
	}
	return nil
}

func defaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"tclk":     "1us",
		"clk":      gpio.GPIO5,
		"data":     gpio.GPIO6,
		"scale":    48.36,
		"readings": 50,
	}
}

func loadConfig() *config.Config {
	def := dict.New(dict.WithMap(defaultConfig()))
	cfg := config.New(
		pflag.New(pflag.WithFlags(
			[]pflag.Flag{{Short: 'c', Name: "config-file"}})),
		env.New(env.WithEnvPrefix("HX711_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "scale.json", json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}
