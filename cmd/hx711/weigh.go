// SPDX-License-Identifier: MIT
//
// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/hx711"
)

func init() {
	weighCmd.Flags().IntVarP(&weighOpts.Num, "num", "n", 1, "number of readings, 0 to run until interrupted")
	weighCmd.Flags().DurationVarP(&weighOpts.Interval, "interval", "i", 100*time.Millisecond, "delay between readings")
	weighCmd.Flags().BoolVar(&weighOpts.Tare, "tare", true, "tare before weighing")
	weighCmd.Flags().IntVar(&weighOpts.TareSamples, "tare-samples", hx711.DefaultTareSamples, "number of samples averaged by the tare")
	weighCmd.Flags().IntVarP(&weighOpts.Settle, "settle", "s", 5, "readings discarded while the filter settles")
	rootCmd.AddCommand(weighCmd)
}

var (
	weighCmd = &cobra.Command{
		Use:     "weigh",
		Short:   "Report the load in calibrated units",
		Args:    cobra.NoArgs,
		RunE:    weigh,
		Example: "  hx711 --scale 48.36 weigh\n  hx711 --offset 8213.5 --scale 48.36 weigh --tare=false -n 0",
	}
	weighOpts = struct {
		Num         int
		Interval    time.Duration
		Tare        bool
		TareSamples int
		Settle      int
	}{}
)

func weigh(cmd *cobra.Command, args []string) error {
	return withDevice(cmd, func(d *device) error {
		if weighOpts.Tare {
			if err := d.Tare(weighOpts.TareSamples); err != nil {
				return err
			}
			d.Seed(d.Offset())
			d.log.Info().Float64("offset", d.Offset()).Msg("tared")
		}
		for i := 0; i < weighOpts.Settle; i++ {
			if _, err := d.ReadLowpass(); err != nil {
				return err
			}
		}
		sigdone := make(chan os.Signal, 1)
		signal.Notify(sigdone, os.Interrupt)
		defer signal.Stop(sigdone)
		for i := 0; weighOpts.Num == 0 || i < weighOpts.Num; i++ {
			if i > 0 {
				select {
				case <-sigdone:
					return nil
				case <-time.After(weighOpts.Interval):
				}
			}
			u, err := d.Units()
			if err != nil {
				return err
			}
			fmt.Printf("%.3f\n", u)
		}
		return nil
	})
}
