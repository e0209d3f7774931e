// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/hx711"
	"github.com/warthog618/hx711/gpio"
	"github.com/warthog618/hx711/health"
)

var version = "undefined"

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default hx711.json)")
	pf.BoolVarP(&rootOpts.Verbose, "verbose", "v", false, "log debug detail to stderr")
	pf.StringP("transport", "t", "", "clock transport [pulse|bbspi|spi]")
	pf.StringP("backend", "b", "", "GPIO backend [mem|cdev]")
	pf.String("chip", "", "GPIO chip for the cdev backend")
	pf.Int("clk", 0, "PD_SCK pin for the pulse transport")
	pf.Int("data", 0, "DOUT pin for the pulse transport, and the spi transport ready line on cdev")
	pf.Int("mosi", 0, "PD_SCK pin for the bbspi transport, held for power down by spi on mem")
	pf.Int("miso", 0, "DOUT pin for the bbspi transport, and the spi transport ready line on mem")
	pf.Int("sclk", 0, "optional clock pin for the bbspi transport, -1 for none")
	pf.String("spi-dev", "", "SPI port for the spi transport (default first available)")
	pf.String("spi-speed", "", "SPI clock rate for the spi transport")
	pf.Duration("tclk", 0, "time between clock edges for bit bashed transports")
	pf.Duration("timeout", 0, "conversion cycle deadline")
	pf.IntP("gain", "g", 0, "gain and channel [128|64|32]")
	pf.Float64("scale", 0, "reading per unit")
	pf.Float64("offset", 0, "reading at zero load")
	pf.Float64("tc", 0, "low-pass filter time constant (0,1)")
}

var rootCmd = &cobra.Command{
	Use:   "hx711",
	Short: "hx711 is a utility to read an HX711 load cell ADC",
	Long: `hx711 reads an HX711 load cell ADC connected via GPIO or SPI.

Configuration is taken from flags, then the environment (HX711_ prefix),
then the config file, then defaults.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var rootOpts = struct {
	Verbose bool
}{}

func main() {
	if cmd, err := rootCmd.ExecuteC(); err != nil {
		logErr(cmd, err)
		os.Exit(1)
	}
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(os.Stderr, "hx711 %s: %s\n", cmd.Name(), err)
}

func newLogger(verbose bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// flagKeys maps the persistent flags to their config keys.
var flagKeys = map[string]string{
	"config":    "config.file",
	"transport": "transport",
	"backend":   "backend",
	"chip":      "chip",
	"clk":       "clk",
	"data":      "data",
	"mosi":      "mosi",
	"miso":      "miso",
	"sclk":      "sclk",
	"spi-dev":   "spi.dev",
	"spi-speed": "spi.speed",
	"tclk":      "tclk",
	"timeout":   "timeout",
	"gain":      "gain",
	"scale":     "scale",
	"offset":    "offset",
	"tc":        "tc",
}

func defaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"transport": "pulse",
		"backend":   "mem",
		"chip":      "gpiochip0",
		"clk":       gpio.GPIO5,
		"data":      gpio.GPIO6,
		"mosi":      gpio.SPI0MOSI,
		"miso":      gpio.SPI0MISO,
		"sclk":      -1,
		"spi": map[string]interface{}{
			"dev":   "",
			"speed": "1MHz",
		},
		"tclk":    "1us",
		"timeout": health.DefaultTimeout.String(),
		"gain":    int(hx711.DefaultGain),
		"scale":   hx711.DefaultScale,
		"offset":  0.0,
		"tc":      hx711.DefaultTimeConstant,
	}
}

// loadConfig layers the flags explicitly set in fs over the environment, the
// config file and the defaults.
func loadConfig(fs *pflag.FlagSet) *config.Config {
	fm := map[string]interface{}{}
	fs.Visit(func(f *pflag.Flag) {
		if k, ok := flagKeys[f.Name]; ok {
			setPath(fm, k, f.Value.String())
		}
	})
	def := dict.New(dict.WithMap(defaultConfig()))
	// highest priority sources first - flags override environment
	cfg := config.New(
		dict.New(dict.WithMap(fm)),
		env.New(env.WithEnvPrefix("HX711_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "hx711.json", json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}

// setPath sets the value at a dotted key path in nested maps.
func setPath(m map[string]interface{}, key string, v interface{}) {
	path := strings.Split(key, ".")
	for _, p := range path[:len(path)-1] {
		n, ok := m[p].(map[string]interface{})
		if !ok {
			n = map[string]interface{}{}
			m[p] = n
		}
		m = n
	}
	m[path[len(path)-1]] = v
}

// withDevice opens the configured device, calls fn, and closes the device.
func withDevice(cmd *cobra.Command, fn func(d *device) error) error {
	cfg := loadConfig(cmd.Flags())
	log := newLogger(rootOpts.Verbose)
	d, err := openDevice(cfg, log)
	if err != nil {
		return err
	}
	err = fn(d)
	if cerr := d.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
