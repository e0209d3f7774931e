// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"github.com/warthog618/hx711"
)

func init() {
	statsCmd.Flags().IntVarP(&statsOpts.Num, "num", "n", 100, "number of samples")
	statsCmd.Flags().BoolVarP(&statsOpts.MinMax, "minmax", "m", false, "histogram of deviation from the mean")
	statsCmd.Flags().BoolVarP(&statsOpts.Lowpass, "lowpass", "l", false, "histogram the low-pass filter output rather than raw samples")
	statsCmd.SetHelpTemplate(statsCmd.HelpTemplate() + extendedStatsHelp)
	rootCmd.AddCommand(statsCmd)
}

var (
	statsCmd = &cobra.Command{
		Use:     "stats",
		Short:   "Report the noise characteristics of the sensor",
		Args:    cobra.NoArgs,
		RunE:    stats,
		Example: "  hx711 stats -n 100\n  hx711 stats -m -n 10000",
	}
	statsOpts = struct {
		Num     int
		MinMax  bool
		Lowpass bool
	}{}
)

var extendedStatsHelp = `
By default the median of the samples is reported for both channel A, at gain
128, and channel B, at gain 32.

With --minmax the mean of the samples at gain 128 is measured, then each
subsequent sample is binned by its relative deviation from the mean.

Cycle statistics of the transport are logged on completion.
`

func stats(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(d *device) error {
		gain := d.Gain()
		var err error
		if statsOpts.MinMax {
			err = minmax(d, os.Stdout)
		} else {
			err = medians(d, os.Stdout)
		}
		if d.stats != nil {
			st := d.stats()
			d.log.Info().
				Uint64("completed", st.Completed).
				Uint64("timedout", st.TimedOut).
				Uint64("failed", st.Failed).
				Dur("last", st.Last).
				Dur("max", st.Max).
				Msg("cycles")
		}
		if err != nil {
			return err
		}
		return d.SetGain(gain)
	})
}

func medians(d *device, w io.Writer) error {
	var mm [2]float64
	for i, g := range []hx711.Gain{hx711.Gain128, hx711.Gain32} {
		if err := d.SetGain(g); err != nil {
			return err
		}
		m, err := d.ReadMedian(statsOpts.Num)
		if err != nil {
			return err
		}
		mm[i] = m
	}
	fmt.Fprintf(w, "A/128: %.1f B/32: %.1f\n", mm[0], mm[1])
	return nil
}

func minmax(d *device, w io.Writer) error {
	if err := d.SetGain(hx711.Gain128); err != nil {
		return err
	}
	n := statsOpts.Num
	if n > 1000 {
		n = 1000
	}
	mean, err := d.ReadAverage(n)
	if err != nil {
		return err
	}
	d.Seed(mean)
	offset := d.Offset()
	h := newHistogram(math.Abs(mean) - offset)
	fmt.Fprintf(w, "Average %.1f\n", h.middle)
	for i := 0; i < statsOpts.Num; i++ {
		var v float64
		if statsOpts.Lowpass {
			if v, err = d.ReadLowpass(); err != nil {
				return err
			}
		} else {
			r, err := d.Read()
			if err != nil {
				return err
			}
			v = float64(r)
		}
		v = math.Abs(v) - offset
		if h.add(v) == len(bands) {
			d.log.Warn().Int("sample", i).Float64("value", v).Msg("out of band")
		}
	}
	h.print(w)
	return nil
}

// bands are the relative deviation limits of the histogram bins.
var bands = []float64{0.000003, 0.00001, 0.00003, 0.0001, 0.0003, 0.001}

// histogram bins values by their relative deviation from middle.
type histogram struct {
	middle float64
	// one bin per band, plus one for values beyond the widest band
	counts []int
	total  int
}

func newHistogram(middle float64) *histogram {
	return &histogram{middle: middle, counts: make([]int, len(bands)+1)}
}

// add bins v and returns the index of the bin.
func (h *histogram) add(v float64) int {
	h.total++
	dev := math.Abs(v - h.middle)
	for i, b := range bands {
		if dev < math.Abs(h.middle)*b {
			h.counts[i]++
			return i
		}
	}
	h.counts[len(bands)]++
	return len(bands)
}

// fraction returns the fraction of values in bin i.
func (h *histogram) fraction(i int) float64 {
	if h.total == 0 {
		return 0
	}
	return float64(h.counts[i]) / float64(h.total)
}

func (h *histogram) print(w io.Writer) {
	for i, b := range bands {
		fmt.Fprintf(w, "+/- %-8s %f\n", fmt.Sprintf("%g%%", b*100), h.fraction(i))
	}
	fmt.Fprintf(w, "%-12s %f\n", "Beyond:", h.fraction(len(bands)))
}
