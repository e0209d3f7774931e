// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.AddFlagSet(rootCmd.PersistentFlags())
	require.Nil(t, fs.Parse(args))
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig(newFlags(t))
	assert.Equal(t, "pulse", cfg.MustGet("transport").String())
	assert.Equal(t, "mem", cfg.MustGet("backend").String())
	assert.Equal(t, 128, cfg.MustGet("gain").Int())
	assert.Equal(t, time.Microsecond, cfg.MustGet("tclk").Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.MustGet("timeout").Duration())
	assert.Equal(t, "1MHz", cfg.MustGet("spi.speed").String())
	assert.Equal(t, -1, cfg.MustGet("sclk").Int())
	assert.Equal(t, 0.25, cfg.MustGet("tc").Float())
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scale.json")
	require.Nil(t, os.WriteFile(path,
		[]byte(`{"scale": 48.36, "gain": 64, "spi": {"speed": "500kHz"}}`), 0644))
	t.Setenv("HX711_TRANSPORT", "bbspi")
	t.Setenv("HX711_GAIN", "32")

	cfg := loadConfig(newFlags(t, "--config", path))
	// file
	assert.Equal(t, 48.36, cfg.MustGet("scale").Float())
	assert.Equal(t, "500kHz", cfg.MustGet("spi.speed").String())
	// environment over file
	assert.Equal(t, "bbspi", cfg.MustGet("transport").String())
	assert.Equal(t, 32, cfg.MustGet("gain").Int())

	// flags over environment
	cfg = loadConfig(newFlags(t, "--config", path, "-t", "spi", "--spi-speed", "2MHz", "--tclk", "2us"))
	assert.Equal(t, "spi", cfg.MustGet("transport").String())
	assert.Equal(t, "2MHz", cfg.MustGet("spi.speed").String())
	assert.Equal(t, 2*time.Microsecond, cfg.MustGet("tclk").Duration())
	assert.Equal(t, 32, cfg.MustGet("gain").Int())
}

func TestSetPath(t *testing.T) {
	m := map[string]interface{}{}
	setPath(m, "gain", 32)
	setPath(m, "spi.dev", "SPI0.0")
	setPath(m, "spi.speed", "1MHz")
	assert.Equal(t, map[string]interface{}{
		"gain": 32,
		"spi": map[string]interface{}{
			"dev":   "SPI0.0",
			"speed": "1MHz",
		},
	}, m)
}
